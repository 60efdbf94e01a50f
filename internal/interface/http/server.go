package http

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Server はチャットAPIを提供するHTTPサーバ
type Server struct {
	app    *fiber.App
	port   int
	logger *slog.Logger
}

type serverOptions struct {
	logger *slog.Logger
}

// ServerOption は Server のオプション設定
type ServerOption func(*serverOptions)

// WithServerLogger はロガーを上書きする
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(o *serverOptions) {
		o.logger = l
	}
}

// NewServer はルーティングを構築したHTTPサーバを作成する
func NewServer(handler *Handler, port int, opts ...ServerOption) *Server {
	options := serverOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	app := fiber.New(fiber.Config{
		AppName:      "persona-rag",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
	})

	app.Use(recover.New())
	app.Use(logger.New())

	app.Get("/health", handler.Health)

	api := app.Group("/api")
	api.Post("/chat", handler.Chat)
	api.Post("/users", handler.CreateUser)

	return &Server{
		app:    app,
		port:   port,
		logger: options.logger,
	}
}

// Start はサーバを起動し、ctx がキャンセルされるまでブロックする
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(fmt.Sprintf(":%d", s.port))
	}()

	s.logger.InfoContext(ctx, "http server started", slog.Int("port", s.port))

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		s.logger.InfoContext(ctx, "shutting down http server")
		if err := s.app.ShutdownWithTimeout(10 * time.Second); err != nil {
			return fmt.Errorf("failed to shutdown http server: %w", err)
		}
		return nil
	}
}
