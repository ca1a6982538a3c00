// Package worker consumes relay jobs from RabbitMQ and runs them through
// the relay dispatcher.
package worker

import (
	"context"
	"math"
	"math/rand"
	"time"

	"postback-relay/internal/queue"
	"postback-relay/internal/relay"
	"postback-relay/pkg/errs"

	"github.com/alitto/pond/v2"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Dispatcher runs one relay job.
type Dispatcher interface {
	Dispatch(ctx context.Context, job relay.Job) error
}

// Requeuer puts a job back on the queue for a later attempt.
type Requeuer func(ctx context.Context, job relay.Job, attempt int) error

type Worker struct {
	channel    *amqp.Channel
	dispatcher Dispatcher
	requeue    Requeuer
	pool       pond.Pool
	logger     *zap.Logger
	maxRetries int
	baseDelay  time.Duration
	sleep      relay.Sleeper
}

// NewWorker creates a worker that runs up to concurrency jobs at once.
// Jobs whose dispatch fails (store errors, not delivery failures) are
// republished to exchangeName with exponential backoff.
func NewWorker(channel *amqp.Channel, exchangeName string, dispatcher Dispatcher, concurrency int, logger *zap.Logger) *Worker {
	return &Worker{
		channel:    channel,
		dispatcher: dispatcher,
		requeue: func(ctx context.Context, job relay.Job, attempt int) error {
			return queue.PublishJob(ctx, channel, exchangeName, job, attempt)
		},
		pool:       pond.NewPool(concurrency),
		logger:     logger,
		maxRetries: 3,
		baseDelay:  10 * time.Second,
		sleep:      relay.RealSleep,
	}
}

func (w *Worker) Start(ctx context.Context, queueName string) error {
	if err := w.channel.Qos(w.pool.MaxConcurrency(), 0, false); err != nil {
		return err
	}
	msgs, err := w.channel.Consume(
		queueName,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return err
	}

	go func() {
		for msg := range msgs {
			msg := msg
			w.pool.Submit(func() {
				w.handle(ctx, msg)
			})
		}
	}()

	return nil
}

// Stop waits for in-flight jobs.
func (w *Worker) Stop() {
	w.pool.StopAndWait()
}

func (w *Worker) handle(ctx context.Context, msg amqp.Delivery) {
	job, attempt, err := queue.DecodeMessage(msg)
	if err != nil {
		w.logger.Error("Failed to unmarshal message",
			zap.Error(err),
			zap.String("body", string(msg.Body)))
		msg.Nack(false, false)
		return
	}

	w.logger.Debug("Processing relay job",
		zap.String("request_id", job.RequestID),
		zap.String("endpoint_id", job.EndpointID),
		zap.Int("attempt", attempt))

	if err := w.dispatcher.Dispatch(ctx, job); err != nil {
		w.handleError(ctx, job, attempt, msg, err)
		return
	}
	msg.Ack(false)
}

func (w *Worker) handleError(ctx context.Context, job relay.Job, attempt int, msg amqp.Delivery, err error) {
	w.logger.Error("Failed to process relay job",
		zap.Error(err),
		zap.String("request_id", job.RequestID),
		zap.Int("attempt", attempt))

	if errs.Is(err, relay.ErrOutcomeNotRecorded) {
		w.logger.Error("Relays ran but outcome was not recorded, not requeueing",
			zap.String("request_id", job.RequestID))
		msg.Ack(false)
		return
	}

	if attempt >= w.maxRetries {
		w.logger.Error("Dropping relay job after max retries",
			zap.String("request_id", job.RequestID),
			zap.Int("attempts", attempt))
		msg.Ack(false)
		return
	}

	w.sleep(ctx, w.calculateBackoff(attempt))
	if err := w.requeue(ctx, job, attempt+1); err != nil {
		w.logger.Error("Failed to requeue relay job", zap.String("request_id", job.RequestID), zap.Error(err))
		msg.Nack(false, true)
		return
	}
	msg.Ack(false)
}

func (w *Worker) calculateBackoff(retryCount int) time.Duration {
	// Exponential backoff with jitter
	backoff := float64(w.baseDelay) * math.Pow(2, float64(retryCount-1))
	jitter := (rand.Float64()*0.5 + 0.5) // 50% jitter
	return time.Duration(backoff * jitter)
}
