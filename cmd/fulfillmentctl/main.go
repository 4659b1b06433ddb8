package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"fulfillment-be/internal/app"
	"fulfillment-be/internal/config"
	"fulfillment-be/internal/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opened *app.App
	load := func(ctx context.Context) (*app.App, error) {
		if opened != nil {
			return opened, nil
		}
		a, err := app.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		opened = a
		return a, nil
	}
	defer func() {
		if opened != nil {
			opened.Close()
		}
	}()

	if err := newRootCmd(load).ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}
