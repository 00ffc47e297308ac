// Command trackerd runs a rendezvous tracker. Clients connect over
// websocket to discover peers and relay room traffic.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/castmir/vaultmesh/internal/common"
	"github.com/castmir/vaultmesh/internal/logging"
	"github.com/castmir/vaultmesh/internal/tracker"
)

func main() {
	addr := flag.String("addr", ":8787", "listen address")
	appID := flag.String("app", common.AppName, "application id clients must present")
	flag.Parse()

	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	srv := tracker.NewServer(*appID, log)
	srv.Register(e)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info(ctx, "tracker listening", "addr", *addr, "app", *appID)
		if err := e.Start(*addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "shutdown failed", "error", err)
	}
}
