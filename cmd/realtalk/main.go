package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"realtalk/internal/app"
	"realtalk/internal/config"
	h "realtalk/internal/http"
	"realtalk/internal/logging"
	"realtalk/pkg/ws"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "realtalk: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{Level: cfg.Log.Level, File: cfg.Log.File})
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := ws.NewHub()
	application := app.New(hub, logger.Named("app"))
	if err := application.Startup(ctx, cfg); err != nil {
		logger.Fatalw("startup failed", "error", err)
	}

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           h.NewRouter(application, hub, logger.Named("http")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infow("realtalk listening", "addr", cfg.HTTP.Addr, "model", cfg.OpenAI.Model)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("http server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := application.Shutdown(); err != nil {
		logger.Warnw("session shutdown reported errors", "error", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warnw("http shutdown reported errors", "error", err)
	}
}
