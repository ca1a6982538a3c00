package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PostbackReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postback_requests_received_total",
		Help: "The total number of inbound postback requests",
	}, []string{"endpoint", "method"})

	PostbackProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postback_requests_processed_total",
		Help: "The total number of postback requests by final ingestion status",
	}, []string{"endpoint", "status"})

	PostbackProcessingTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "postback_processing_duration_seconds",
		Help:    "Time taken to validate and record a postback",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	ValidationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postback_validation_failures_total",
		Help: "The total number of postbacks rejected by validation",
	}, []string{"endpoint", "reason"})

	ClickMatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postback_click_matches_total",
		Help: "Click attribution lookups by outcome",
	}, []string{"kind"})

	RelayAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postback_relay_attempts_total",
		Help: "The total number of outbound relay attempts",
	}, []string{"mode", "status"})

	RelayDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "postback_relay_duration_seconds",
		Help:    "Latency of outbound relay HTTP calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})

	RelayQueueSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "postback_relay_queue_size",
		Help: "Relay jobs waiting for a worker",
	})

	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postback_rate_limit_exceeded_total",
		Help: "The total number of times rate limits were exceeded",
	}, []string{"endpoint"})
)
