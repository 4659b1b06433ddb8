package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fulfillment-be/internal/app"
	"fulfillment-be/internal/config"
	"fulfillment-be/internal/logger"
	"fulfillment-be/internal/scheduler"

	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.L().Fatal("failed to start", zap.Error(err))
	}
	defer a.Close()

	if _, err := a.Bootstrap(ctx); err != nil {
		logger.L().Fatal("bootstrap failed", zap.Error(err))
	}

	jobs, err := scheduler.New(a.Jobs()...)
	if err != nil {
		logger.L().Fatal("scheduler setup failed", zap.Error(err))
	}
	jobs.Start()
	go a.Limiter.RunCleanup(ctx)

	srv := newServer(":"+cfg.AppPort, a.Handler())

	go func() {
		logger.L().Info("server running", zap.String("port", cfg.AppPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L().Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.L().Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.L().Error("http shutdown", zap.Error(err))
	}
	if err := jobs.Stop(shutdownCtx); err != nil {
		logger.L().Error("scheduler shutdown", zap.Error(err))
	}
}

func newServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
