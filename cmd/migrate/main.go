// Command migrate applies the embedded goose migrations and exits.
package main

import (
	"context"
	"log/slog"
	"os"

	"basegraph.app/trackersync/core/config"
	"basegraph.app/trackersync/internal/app"
)

func main() {
	ctx := context.Background()

	rt, err := app.Start(ctx, config.ServiceTypeWorker, app.Options{})
	if err != nil {
		slog.ErrorContext(ctx, "migrate startup failed", "error", err)
		os.Exit(1)
	}
	defer rt.Close(ctx)

	if err := rt.DB.Migrate(ctx); err != nil {
		slog.ErrorContext(ctx, "migration failed", "error", err)
		rt.Close(ctx)
		os.Exit(1)
	}

	slog.InfoContext(ctx, "migrations up to date")
}
