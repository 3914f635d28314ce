package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"remindme/internal/config"
	"remindme/internal/container"
	"remindme/internal/handlers"
	"remindme/internal/logger"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

func main() {
	logger.Init()
	log := logger.Get()

	err := godotenv.Load(".env.local")
	if err != nil {
		log.Info("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Invalid configuration. Set it in .env file or as environment variable")
	}
	if err := logger.Configure(log, cfg.LogLevel, cfg.LogWebhookURL); err != nil {
		log.WithError(err).Fatal("Invalid logging configuration")
	}

	if err := run(cfg); err != nil {
		log.WithError(err).Fatal("Bot stopped")
	}
}

func run(cfg *config.Config) error {
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := container.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Session.Open(); err != nil {
		return errors.Wrap(err, "failed to open discord session")
	}
	log.Info("Connected to Discord")

	c.Scheduler.Start(ctx)
	defer c.Scheduler.Stop()

	mux := http.NewServeMux()
	mux.Handle("/healthz", handlers.HealthHandler(c.HealthChecks(), log))
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Health server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down...")
	case err := <-serverErr:
		return errors.Wrap(err, "health server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
