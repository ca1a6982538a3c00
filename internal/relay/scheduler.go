package relay

import (
	"context"
	"time"

	"postback-relay/pkg/errs"
	"postback-relay/pkg/metrics"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"
)

// ErrSchedulerClosed is returned when a job arrives after Close.
var ErrSchedulerClosed = errs.New("relay scheduler closed")

// Scheduler hands relay jobs off so ingestion can respond before any
// delivery happens.
type Scheduler interface {
	Schedule(ctx context.Context, job Job) error
	Close()
}

// LocalScheduler runs jobs in-process on a bounded pool.
type LocalScheduler struct {
	dispatcher *Dispatcher
	jobs       pond.Pool
	logger     *zap.Logger
}

// NewLocalScheduler starts a scheduler running at most concurrency jobs at
// a time.
func NewLocalScheduler(dispatcher *Dispatcher, concurrency int, logger *zap.Logger) *LocalScheduler {
	return &LocalScheduler{
		dispatcher: dispatcher,
		jobs:       pond.NewPool(concurrency),
		logger:     logger,
	}
}

// Schedule queues the job. The job outlives the caller's context so a
// client disconnect cannot cancel delivery.
func (s *LocalScheduler) Schedule(ctx context.Context, job Job) error {
	if s.jobs.Stopped() {
		return ErrSchedulerClosed
	}
	detached := context.WithoutCancel(ctx)
	s.jobs.Submit(func() {
		if err := s.dispatcher.Dispatch(detached, job); err != nil {
			s.logger.Error("Relay job failed",
				zap.String("request_id", job.RequestID),
				zap.Error(err))
		}
		metrics.RelayQueueSize.Set(float64(s.jobs.WaitingTasks()))
	})
	metrics.RelayQueueSize.Set(float64(s.jobs.WaitingTasks()))
	return nil
}

// Wait blocks until every queued job has finished, or ctx is done.
func (s *LocalScheduler) Wait(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if s.jobs.CompletedTasks() >= s.jobs.SubmittedTasks() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close drains queued jobs and stops the pool.
func (s *LocalScheduler) Close() {
	s.jobs.StopAndWait()
}

// DeliveryPool creates the pool that bounds concurrent relay deliveries.
func DeliveryPool(concurrency int) pond.Pool {
	return pond.NewPool(concurrency)
}
