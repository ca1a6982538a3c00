package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"postback-relay/config"
	"postback-relay/internal/server"
	"postback-relay/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger := logger.NewLogger(cfg.LogLevel, "postback-relay")
	defer logger.Sync()

	// Initialize server
	srv, err := server.NewServer(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize server: %v", err)
	}

	// Start server
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Shutdown server
	if err := srv.Shutdown(); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}
}
