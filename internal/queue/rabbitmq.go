// Package queue carries relay jobs from the ingestion server to relay
// workers over RabbitMQ.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"postback-relay/internal/relay"
	"postback-relay/pkg/metrics"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	HeaderRequestID  = "request_id"
	HeaderEndpointID = "endpoint_id"
	HeaderAttempt    = "x-attempt"
)

type Publisher interface {
	Publish(ctx context.Context, job relay.Job) error
	Close() error
}

type RabbitMQ struct {
	conn         *amqp.Connection
	ch           *amqp.Channel
	exchangeName string
	logger       *zap.Logger
	queueName    string
}

// StartMetricsUpdater periodically reports the job queue depth.
func (r *RabbitMQ) StartMetricsUpdater(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if queue, err := r.ch.QueueInspect(r.queueName); err == nil {
					metrics.RelayQueueSize.Set(float64(queue.Messages))
				}
			}
		}
	}()
}

func NewRabbitMQ(url, exchangeName, queueName string, logger *zap.Logger) (*RabbitMQ, error) {
	conn, err := NewRabbitMQConnection(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %v", err)
	}

	if _, err := DeclareTopology(ch, exchangeName, queueName); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &RabbitMQ{
		conn:         conn,
		ch:           ch,
		exchangeName: exchangeName,
		logger:       logger,
		queueName:    queueName,
	}, nil
}

// Publish sends a job as a persistent message.
func (r *RabbitMQ) Publish(ctx context.Context, job relay.Job) error {
	return PublishJob(ctx, r.ch, r.exchangeName, job, 1)
}

// PublishJob publishes job on ch; attempt counts deliveries of the same job.
func PublishJob(ctx context.Context, ch *amqp.Channel, exchangeName string, job relay.Job, attempt int) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	msg, err := NewMessage(job, attempt)
	if err != nil {
		return err
	}
	if err := ch.PublishWithContext(ctx,
		exchangeName,
		"",    // routing key
		false, // mandatory
		false, // immediate
		msg,
	); err != nil {
		return fmt.Errorf("failed to publish message: %v", err)
	}
	return nil
}

// NewMessage encodes a job for the wire.
func NewMessage(job relay.Job, attempt int) (amqp.Publishing, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal job: %v", err)
	}
	return amqp.Publishing{
		ContentType: "application/json",
		Headers: amqp.Table{
			HeaderRequestID:  job.RequestID,
			HeaderEndpointID: job.EndpointID,
			HeaderAttempt:    int32(attempt),
		},
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
	}, nil
}

// DecodeMessage reverses NewMessage. Messages without an attempt header
// count as the first attempt.
func DecodeMessage(d amqp.Delivery) (relay.Job, int, error) {
	var job relay.Job
	if err := json.Unmarshal(d.Body, &job); err != nil {
		return job, 0, fmt.Errorf("failed to unmarshal job: %v", err)
	}
	if job.RequestID == "" {
		if id, ok := d.Headers[HeaderRequestID].(string); ok {
			job.RequestID = id
		}
	}
	if job.EndpointID == "" {
		if id, ok := d.Headers[HeaderEndpointID].(string); ok {
			job.EndpointID = id
		}
	}

	attempt := 1
	switch v := d.Headers[HeaderAttempt].(type) {
	case int32:
		attempt = int(v)
	case int64:
		attempt = int(v)
	case int:
		attempt = v
	}
	return job, attempt, nil
}

func (r *RabbitMQ) Close() error {
	if err := r.ch.Close(); err != nil {
		r.logger.Error("Failed to close channel", zap.Error(err))
	}
	if err := r.conn.Close(); err != nil {
		r.logger.Error("Failed to close connection", zap.Error(err))
	}
	return nil
}

// Scheduler hands relay jobs to the queue instead of running them in
// process.
type Scheduler struct {
	publisher Publisher
	logger    *zap.Logger
}

func NewScheduler(publisher Publisher, logger *zap.Logger) *Scheduler {
	return &Scheduler{publisher: publisher, logger: logger}
}

func (s *Scheduler) Schedule(ctx context.Context, job relay.Job) error {
	return s.publisher.Publish(context.WithoutCancel(ctx), job)
}

func (s *Scheduler) Close() {
	if err := s.publisher.Close(); err != nil {
		s.logger.Error("Failed to close publisher", zap.Error(err))
	}
}

var _ relay.Scheduler = (*Scheduler)(nil)
