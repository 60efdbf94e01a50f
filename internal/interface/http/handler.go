package http

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/jinford/persona-rag/internal/core/chat"
	"github.com/jinford/persona-rag/internal/core/retrieval"
	"github.com/jinford/persona-rag/internal/core/user"
)

// ChatService はチャット応答のユースケース
type ChatService interface {
	Answer(ctx context.Context, params chat.AnswerParams) (*chat.AnswerResult, error)
}

// UserService はユーザー作成のユースケース
type UserService interface {
	Onboard(ctx context.Context, name, interests string) (*user.User, error)
}

// Handler はHTTPリクエストをユースケースに取り次ぐ
type Handler struct {
	chats       ChatService
	users       UserService
	environment string
	logger      *slog.Logger
}

// NewHandler は新しい Handler を作成する
func NewHandler(chats ChatService, users UserService, environment string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		chats:       chats,
		users:       users,
		environment: environment,
		logger:      logger,
	}
}

type chatRequest struct {
	Message string  `json:"message"`
	UserID  *string `json:"user_id"`
}

type createUserRequest struct {
	Name      string `json:"name"`
	Interests string `json:"interests"`
}

type createUserResponse struct {
	UserID string `json:"user_id"`
}

// Health はサーバの稼働状態を返す
func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":      "ok",
		"environment": h.environment,
	})
}

// Chat は質問を受け取り、回答と出典を返す
func (h *Handler) Chat(c *fiber.Ctx) error {
	var req chatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	if strings.TrimSpace(req.Message) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "message is required"})
	}

	userID := mo.None[uuid.UUID]()
	if req.UserID != nil && *req.UserID != "" {
		id, err := uuid.Parse(*req.UserID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid user_id"})
		}
		userID = mo.Some(id)
	}

	result, err := h.chats.Answer(c.Context(), chat.AnswerParams{
		Message: req.Message,
		UserID:  userID,
	})
	if err != nil {
		if errors.Is(err, retrieval.ErrRetrievalFailed) {
			h.logger.Error("retrieval failed", slog.String("error", err.Error()))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to retrieve context"})
		}
		h.logger.Error("chat request failed", slog.String("error", err.Error()))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}

	return c.JSON(result)
}

// CreateUser は新規ユーザーを作成する
func (h *Handler) CreateUser(c *fiber.Ctx) error {
	var req createUserRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	if strings.TrimSpace(req.Name) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name is required"})
	}

	u, err := h.users.Onboard(c.Context(), req.Name, req.Interests)
	if err != nil {
		h.logger.Error("failed to create user", slog.String("error", err.Error()))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create user"})
	}

	return c.Status(fiber.StatusCreated).JSON(createUserResponse{UserID: u.ID.String()})
}
