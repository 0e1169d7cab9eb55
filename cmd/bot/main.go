package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/azure/reddit-brand-monitor/internal/api"
	"github.com/azure/reddit-brand-monitor/internal/app"
	"github.com/azure/reddit-brand-monitor/internal/config"
	"github.com/azure/reddit-brand-monitor/internal/logging"
	"github.com/azure/reddit-brand-monitor/internal/scheduler"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	level := cfg.LogLevel
	if cfg.Debug {
		level = "debug"
	}
	if err := logging.Setup(logging.Options{Level: level, File: cfg.LogFile}); err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}

	logrus.Info("Starting Reddit brand monitor")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	application, err := app.New(ctx, cfg)
	cancel()
	if err != nil {
		logrus.Fatalf("Failed to initialize: %v", err)
	}

	if cfg.AutoStart {
		if err := application.Monitor.Start(context.Background()); err != nil {
			logrus.Fatalf("Failed to start monitoring: %v", err)
		}
	}

	schedulerService := scheduler.NewService(application.Monitor, application.Monitor, cfg.FlushInterval, cfg.MetricsInterval)
	if application.Notifier.Enabled() {
		if err := schedulerService.ScheduleDigest(cfg.DigestSchedule, application.Monitor); err != nil {
			logrus.Fatalf("Failed to schedule digest: %v", err)
		}
	}
	if err := schedulerService.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      api.NewRouter(application.Monitor, application.Store),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	schedulerService.Stop()

	// stops the sources and waits for the final flush before the store closes
	if err := application.Close(); err != nil {
		logrus.Errorf("Failed to close store: %v", err)
	}

	logrus.Info("Server exited")
}
