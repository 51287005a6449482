// Command server runs the QuestLog API: OpenID Connect login, session
// cookies and the current-user endpoint.
//
// All settings come from environment variables; see internal/config.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/sakif/questlog/internal/auth"
	"github.com/sakif/questlog/internal/config"
	"github.com/sakif/questlog/internal/server"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := server.OpenStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open store",
			slog.String("driver", cfg.DBDriver),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// Discovery happens once at startup; the provider's keys are refreshed
	// on demand afterwards.
	provider, err := auth.NewOIDCProvider(context.Background(), cfg.OIDC())
	if err != nil {
		logger.Error("failed to set up OIDC provider",
			slog.String("issuer", cfg.OIDCIssuer),
			slog.String("error", err.Error()),
		)
		store.Close()
		os.Exit(1)
	}

	srv, err := server.New(cfg, store, provider, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		store.Close()
		os.Exit(1)
	}

	// Start blocks until SIGINT or SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
