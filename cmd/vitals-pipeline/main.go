package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"patientvitals/common/logger"
	"patientvitals/internal/config"
	"patientvitals/internal/service"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadPipeline()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "vitals-pipeline")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pipelineService, err := service.NewPipelineService(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatal("Failed to create pipeline service", zap.Error(err))
	}

	done := make(chan error, 1)
	go func() {
		done <- pipelineService.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		zlog.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
		if err := <-done; err != nil {
			zlog.Error("Pipeline exited with error", zap.Error(err))
		}
	case err := <-done:
		if err != nil {
			zlog.Error("Pipeline exited with error", zap.Error(err))
		}
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := pipelineService.Stop(stopCtx); err != nil {
		zlog.Error("Error during shutdown", zap.Error(err))
	}
}
