// Package main запускает HTTP-сервер витрины ishop.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/ishop/internal/backend"
	"github.com/mmeshcher/ishop/internal/config"
	"github.com/mmeshcher/ishop/internal/handler"
	"github.com/mmeshcher/ishop/internal/middleware"
	"github.com/mmeshcher/ishop/internal/service"
	"github.com/mmeshcher/ishop/internal/storage"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		sugar.Warnw("failed to load .env", "error", err.Error())
	}

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	kv, err := openStorage(cfg, logger)
	if err != nil {
		sugar.Fatalw("storage initialization error", "error", err.Error())
	}

	client := backend.NewClient(cfg.BackendURL, logger,
		backend.WithRetryMax(cfg.BackendRetryMax),
		backend.WithTimeout(cfg.BackendTimeout),
		backend.WithDefaultLanguage(cfg.Language),
	)

	svc := service.NewService(kv, client, logger,
		service.WithLocation(cfg.Location()),
		service.WithDismissDelay(cfg.ErrorDismiss),
		service.WithSessionTTL(cfg.SessionTTL),
		service.WithStateRetention(cfg.StateRetention),
	)
	defer svc.Close()

	sessions := middleware.NewSessionMiddleware(cfg.SessionSecret, cfg.SecureCookie)
	h := handler.NewHandler(handler.SessionFunc(func(ctx context.Context, id string) handler.Session {
		return svc.Session(ctx, id)
	}), logger, sessions, cfg.Language)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Очистка простаивающих сессий и устаревшего состояния
	g.Go(func() error {
		return svc.RunJanitor(ctx, cfg.JanitorInterval)
	})

	g.Go(func() error {
		sugar.Infow("starting ishop server", "addr", cfg.RunAddress, "backend", cfg.BackendURL)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

// openStorage выбирает хранилище состояния: PostgreSQL, Redis или память процесса.
func openStorage(cfg *config.Config, logger *zap.Logger) (storage.KV, error) {
	switch {
	case cfg.DatabaseURI != "":
		logger.Info("using postgres session storage")
		return storage.NewPostgresKV(cfg.DatabaseURI)
	case cfg.RedisAddress != "":
		logger.Info("using redis session storage", zap.String("addr", cfg.RedisAddress))
		return storage.DialRedis(context.Background(), cfg.RedisAddress,
			storage.WithRedisTTL(cfg.StateRetention))
	default:
		logger.Warn("no persistent storage configured, session state is kept in memory")
		return storage.NewMemoryKV(), nil
	}
}
