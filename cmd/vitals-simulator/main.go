package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"patientvitals/common/logger"
	"patientvitals/internal/config"
	"patientvitals/internal/service"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadSimulator()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "vitals-simulator")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	simulatorService, err := service.NewSimulatorService(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatal("Failed to create simulator service", zap.Error(err))
	}

	if err := simulatorService.Start(ctx); err != nil {
		zlog.Error("Simulator exited with error", zap.Error(err))
	}

	if err := simulatorService.Stop(context.Background()); err != nil {
		zlog.Error("Error during shutdown", zap.Error(err))
	}
}
