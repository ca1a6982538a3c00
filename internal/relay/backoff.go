package relay

import (
	"context"
	"math"
	"time"

	"postback-relay/internal/models"
)

// Delay is the wait after a failed attempt (1-based):
// min(initialDelay * multiplier^(attempt-1), maxDelay).
func Delay(cfg models.RetryConfig, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	ms := float64(cfg.InitialDelayMs) * math.Pow(cfg.BackoffMultiplier, float64(attempt-1))
	if ms > float64(cfg.MaxDelayMs) {
		ms = float64(cfg.MaxDelayMs)
	}
	return time.Duration(ms) * time.Millisecond
}

// Schedule lists the delays between consecutive attempts.
func Schedule(cfg models.RetryConfig) []time.Duration {
	if cfg.MaxAttempts <= 1 {
		return nil
	}
	out := make([]time.Duration, cfg.MaxAttempts-1)
	for i := range out {
		out[i] = Delay(cfg, i+1)
	}
	return out
}

// Sleeper waits between attempts.
type Sleeper func(ctx context.Context, d time.Duration)

// RealSleep blocks for d or until ctx is done.
func RealSleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
