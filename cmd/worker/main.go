package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"postback-relay/config"
	"postback-relay/internal/queue"
	"postback-relay/internal/server"
	"postback-relay/internal/templates"
	"postback-relay/internal/worker"
	"postback-relay/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger := logger.NewLogger(cfg.LogLevel, "postback-relay-worker")
	defer logger.Sync()

	if cfg.Storage != config.StorageMongoDB {
		logger.Fatalf("Worker requires shared storage, got %q", cfg.Storage)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize RabbitMQ connection
	amqpConn, err := queue.NewRabbitMQConnection(cfg.RabbitMQ.URL)
	if err != nil {
		logger.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer amqpConn.Close()

	// Create a channel
	ch, err := amqpConn.Channel()
	if err != nil {
		logger.Fatalf("Failed to open channel: %v", err)
	}
	defer ch.Close()

	q, err := queue.DeclareTopology(ch, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.QueueName)
	if err != nil {
		logger.Fatalf("Failed to declare queue topology: %v", err)
	}

	store, err := server.OpenStore(ctx, cfg, logger.Desugar())
	if err != nil {
		logger.Fatalf("Failed to open store: %v", err)
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer closeCancel()
		_ = store.Close(closeCtx)
	}()

	dispatcher, deliveries := server.NewDispatcher(cfg, store, templates.Default(), logger.Desugar())
	defer deliveries.StopAndWait()

	// Initialize worker
	w := worker.NewWorker(ch, cfg.RabbitMQ.Exchange, dispatcher, cfg.Relay.Workers, logger.Desugar())

	// Start consuming messages
	if err := w.Start(ctx, q.Name); err != nil {
		logger.Fatalf("Failed to start worker: %v", err)
	}

	logger.Info("Worker started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Worker shutting down")
	w.Stop()
}
