package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	root, err := NewCompositionRoot(ctx)
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	defer func() {
		if err := root.Cleanup(); err != nil {
			root.Logger.Error("Failed to cleanup resources", zap.Error(err))
		}
	}()

	listenAddr := root.Config.Server.ListenAddr
	root.Logger.Info("Starting cache server", zap.String("addr", listenAddr))
	go func() {
		if err := root.HTTPServer.Start(listenAddr); err != nil {
			root.Logger.Error("Server failed to start", zap.Error(err))
		}
	}()

	metricsAddr := root.Config.Server.MetricsAddr
	root.Logger.Info("Starting metrics server", zap.String("addr", metricsAddr))
	go func() {
		if err := root.MetricsServer.Start(metricsAddr); err != nil {
			root.Logger.Error("Metrics server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	root.Logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := root.HTTPServer.Stop(shutdownCtx); err != nil {
		root.Logger.Error("HTTP server forced to shutdown", zap.Error(err))
	}
	if err := root.MetricsServer.Stop(shutdownCtx); err != nil {
		root.Logger.Error("Metrics server forced to shutdown", zap.Error(err))
	}

	root.Logger.Info("Server exited")
}
