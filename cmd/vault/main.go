// Command vault is the interactive client: a local-first character vault
// with peer-to-peer campaign sessions and cloud snapshot sync.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/castmir/vaultmesh/internal/cli"
	"github.com/castmir/vaultmesh/internal/config"
	"github.com/castmir/vaultmesh/internal/logging"
)

func main() {
	cfg := config.LoadConfig()
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := cli.NewApp(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "startup failed", "error", err)
		os.Exit(1)
	}
	app.Run(ctx)
}
