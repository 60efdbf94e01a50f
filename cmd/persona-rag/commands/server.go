package commands

import (
	"context"

	"github.com/urfave/cli/v3"

	httpiface "github.com/jinford/persona-rag/internal/interface/http"
)

// ServerStartAction はチャットAPIサーバを起動する。
// SIGINT / SIGTERM で graceful shutdown する
func ServerStartAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer app.Close()

	handler := httpiface.NewHandler(
		app.Container.Chat,
		app.Container.Users,
		app.Config.Environment,
		app.Logger(),
	)

	port := app.Config.HTTP.Port
	if p := cmd.Int("port"); p > 0 {
		port = int(p)
	}

	server := httpiface.NewServer(handler, port,
		httpiface.WithServerLogger(app.Logger()),
	)

	return server.Start(ctx)
}
