// Package main is the entry point for the wirekit server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tendant/wirekit/internal/app"
	"github.com/tendant/wirekit/internal/auth"
	"github.com/tendant/wirekit/internal/config"
	apperrors "github.com/tendant/wirekit/internal/errors"
	wirehttp "github.com/tendant/wirekit/internal/http"
	"github.com/tendant/wirekit/internal/resource"
	"github.com/tendant/wirekit/internal/rpc"
	"github.com/tendant/wirekit/internal/store/backend"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logger
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: parseLogLevel(cfg.LogLevel),
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: parseLogLevel(cfg.LogLevel),
		})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	ctx := context.Background()

	storage, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open storage", "backend", cfg.StorageBackend, "error", err)
		os.Exit(1)
	}
	defer storage.Close()

	namespace := resource.Namespace(cfg.AuthNamespace)
	authService, err := auth.New(namespace, cfg.AuthID, storage.Factory,
		auth.WithLogger(logger),
		auth.WithDuration(cfg.SessionDuration),
		auth.WithCookieName(cfg.SessionCookie),
		auth.WithKeepalive(cfg.SessionKeepalive),
		auth.WithLockout(auth.NewLockout(cfg.LockoutMaxAttempts, cfg.LockoutDuration)),
	)
	if err != nil {
		logger.Error("failed to create auth service", "error", err)
		os.Exit(1)
	}

	bootstrapUsers(ctx, logger, authService, cfg.ParseBootstrapUsers())

	sample, err := app.New(namespace, authService, storage.Factory, app.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create app", "error", err)
		os.Exit(1)
	}

	opts := []wirehttp.Option{
		wirehttp.WithLogger(logger),
		wirehttp.WithReadinessCheck("storage", authService.Ping),
	}
	if origins := cfg.AllowedOrigins(); len(origins) > 0 {
		opts = append(opts, wirehttp.WithCORS(wirehttp.NewCORSConfig(origins)))
	}
	server := wirehttp.NewServer(cfg.Addr(), opts...)
	server.MountAPI(cfg.APIPath, rpc.NewHandler(sample.API(), rpc.WithLogger(logger)), cfg.APIRateLimit)

	// Start server in goroutine
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("server started", "addr", cfg.Addr(), "api", cfg.APIPath, "storage", storage.Name)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func bootstrapUsers(ctx context.Context, logger *slog.Logger, svc *auth.Service, users []config.BootstrapUser) {
	for _, u := range users {
		_, err := svc.Signup(ctx, u.Username, u.Password)
		switch {
		case err == nil:
			logger.Info("created bootstrap user", "username", u.Username)
		case apperrors.IsCode(err, apperrors.CodeAlreadyExists):
			logger.Debug("bootstrap user already exists", "username", u.Username)
		default:
			logger.Error("failed to create bootstrap user", "username", u.Username, "error", err)
		}
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
