package relay

import (
	"context"
	"time"

	"postback-relay/internal/fields"
	"postback-relay/internal/models"
	"postback-relay/internal/templates"
	"postback-relay/internal/tmpl"
	"postback-relay/pkg/errs"
	"postback-relay/pkg/metrics"
	"postback-relay/pkg/tracing"

	"github.com/alitto/pond/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	ModeTemplate = "template"
	ModeLegacy   = "legacy"
)

// Job is one request's relay work. It is self-contained so it can travel
// through a queue.
type Job struct {
	RequestID  string                 `json:"requestId"`
	EndpointID string                 `json:"endpointId"`
	Fields     map[string]interface{} `json:"fields"`
}

// ErrOutcomeNotRecorded marks a job whose relays ran but whose outcome
// could not be written onto the request. Retrying it would deliver again.
var ErrOutcomeNotRecorded = errs.New("relay outcome not recorded")

// Store is the persistence the dispatcher needs.
type Store interface {
	GetRequest(ctx context.Context, id string) (*models.PostbackRequest, error)
	GetEndpoint(ctx context.Context, id string) (*models.Endpoint, error)
	ListActiveRelays(ctx context.Context, endpointID string) ([]*models.Relay, error)
	UpdateRequest(ctx context.Context, id string, u models.RequestUpdate) error
	CreateRelayLog(ctx context.Context, l *models.RelayLog) error
}

// Dispatcher delivers a Job to the endpoint's relay template or to its
// active legacy relays, then writes the outcome onto the audit record.
type Dispatcher struct {
	store      Store
	sender     *Sender
	registry   *templates.Registry
	deliveries pond.Pool
	tracer     *tracing.Tracer
	logger     *zap.Logger

	sleep Sleeper
	now   func() time.Time
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithSleeper replaces the backoff sleeper.
func WithSleeper(s Sleeper) Option {
	return func(d *Dispatcher) { d.sleep = s }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher creates a dispatcher. deliveries bounds how many relay
// targets are delivered to at once across all jobs.
func NewDispatcher(store Store, sender *Sender, registry *templates.Registry, deliveries pond.Pool, logger *zap.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:      store,
		sender:     sender,
		registry:   registry,
		deliveries: deliveries,
		tracer:     tracing.NewTracer(),
		logger:     logger,
		sleep:      RealSleep,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs the job to completion. Delivery failures are recorded, not
// returned; the error covers lookups and audit updates only. A job is a
// no-op unless its request is still recorded, so redelivery never resends.
func (d *Dispatcher) Dispatch(ctx context.Context, job Job) error {
	req, err := d.store.GetRequest(ctx, job.RequestID)
	if err != nil {
		return errs.Wrapf(err, "load request %s", job.RequestID)
	}
	if req.Status != models.StatusRecorded {
		d.logger.Info("Skipping relay job for settled request",
			zap.String("request_id", job.RequestID),
			zap.String("status", string(req.Status)))
		return nil
	}

	endpoint, err := d.store.GetEndpoint(ctx, job.EndpointID)
	if err != nil {
		return errs.Wrapf(err, "load endpoint %s", job.EndpointID)
	}

	if endpoint.RelayTemplateID != "" {
		if t, ok := d.registry.Relay(endpoint.RelayTemplateID); ok {
			return d.dispatchTemplate(ctx, job, endpoint, t)
		}
		d.logger.Warn("Unknown relay template, falling back to relays",
			zap.String("endpoint_id", endpoint.ID),
			zap.String("relay_template_id", endpoint.RelayTemplateID))
	}

	relays, err := d.store.ListActiveRelays(ctx, endpoint.ID)
	if err != nil {
		return errs.Wrapf(err, "list relays for endpoint %s", endpoint.ID)
	}
	if len(relays) == 0 {
		return nil
	}
	return d.dispatchLegacy(ctx, job, relays)
}

// FormatTemplate renders a relay template for the given fields. The
// endpoint's relayTargetUrl, itself rendered, wins over the template URL.
func FormatTemplate(t *templates.RelayTemplate, endpoint *models.Endpoint, data map[string]interface{}, now time.Time) (Request, interface{}, error) {
	enriched := fields.Merge(data)
	if fields.Empty(enriched["timestamp"]) {
		enriched["timestamp"] = now.Unix()
	}
	lookup := fields.Chain{fields.Map(enriched), fields.Map(endpoint.Config.Settings)}

	target := t.URL().Render(lookup)
	if endpoint.RelayTargetURL != "" {
		target = tmpl.Parse(endpoint.RelayTargetURL).Render(lookup)
	}

	headers := make(map[string]string, len(t.HeaderTemplates()))
	for k, h := range t.HeaderTemplates() {
		headers[k] = h.Render(lookup)
	}

	rendered := t.Body().Render(lookup)
	payload, _ := rendered.(map[string]interface{})
	url, contentType, body, err := Encode(t.Format, target, payload)
	if err != nil {
		return Request{}, rendered, err
	}
	return Request{
		Method:      t.Method,
		URL:         url,
		ContentType: contentType,
		Headers:     headers,
		Body:        body,
	}, rendered, nil
}

// dispatchTemplate makes a single attempt; template relays do not retry.
func (d *Dispatcher) dispatchTemplate(ctx context.Context, job Job, endpoint *models.Endpoint, t *templates.RelayTemplate) error {
	start := d.now()
	result := &models.RelayResult{Method: t.Method}

	req, body, err := FormatTemplate(t, endpoint, job.Fields, start)
	result.Body = body
	var resp Response
	if err == nil {
		result.URL = req.URL
		spanCtx, span := d.tracer.StartRelaySpan(ctx, job.RequestID, t.ID, ModeTemplate, 1)
		resp, err = d.sender.Send(spanCtx, req)
		d.tracer.EndRelaySpan(span, resp.StatusCode, resp.DurationMs, err)
	}
	result.DurationMs = d.now().Sub(start).Milliseconds()
	result.StatusCode = resp.StatusCode
	result.ResponseBody = resp.Body

	status := models.StatusRelayed
	outcome := "success"
	if err != nil {
		status = models.StatusRelayFailed
		outcome = "failed"
		result.Error = err.Error()
		d.logger.Error("Template relay failed",
			zap.String("request_id", job.RequestID),
			zap.String("relay_template_id", t.ID),
			zap.Int("status_code", resp.StatusCode),
			zap.Error(err))
	} else {
		result.Success = true
	}
	metrics.RelayAttempts.WithLabelValues(ModeTemplate, outcome).Inc()
	metrics.RelayDuration.WithLabelValues(ModeTemplate).Observe(float64(result.DurationMs) / 1000)

	return d.recordOutcome(ctx, job.RequestID, models.RequestUpdate{
		Status:      &status,
		RelayResult: result,
	})
}

// recordOutcome writes the relay result once delivery has happened.
func (d *Dispatcher) recordOutcome(ctx context.Context, requestID string, u models.RequestUpdate) error {
	if err := d.store.UpdateRequest(ctx, requestID, u); err != nil {
		return errs.Mark(errs.Wrapf(err, "record relay outcome for %s", requestID), ErrOutcomeNotRecorded)
	}
	return nil
}

// dispatchLegacy fans out to every relay concurrently and waits for all of
// them. The request becomes relayed when every attempted relay succeeded,
// relayFailed when any exhausted its retries, and is left untouched when
// every relay was skipped by its conditions.
func (d *Dispatcher) dispatchLegacy(ctx context.Context, job Job, relays []*models.Relay) error {
	stats := make([]models.RelayTargetStat, len(relays))
	group := d.deliveries.NewGroup()
	for i, r := range relays {
		i, r := i, r
		group.Submit(func() {
			stats[i] = d.deliver(ctx, job, r)
		})
	}
	if err := group.Wait(); err != nil {
		d.logger.Error("Relay group failed", zap.String("request_id", job.RequestID), zap.Error(err))
	}

	attempted, succeeded := 0, 0
	for _, s := range stats {
		if s.Skipped {
			continue
		}
		attempted++
		if s.Success {
			succeeded++
		}
	}
	if attempted == 0 {
		return nil
	}

	status := models.StatusRelayed
	if succeeded < attempted {
		status = models.StatusRelayFailed
	}
	return d.recordOutcome(ctx, job.RequestID, models.RequestUpdate{
		Status: &status,
		RelayResult: &models.RelayResult{
			Success: succeeded == attempted,
			Relays:  stats,
		},
	})
}

// deliver runs one relay's sequential retry loop, logging every attempt.
func (d *Dispatcher) deliver(ctx context.Context, job Job, r *models.Relay) models.RelayTargetStat {
	stat := models.RelayTargetStat{RelayID: r.ID, Name: r.Name}
	if !Evaluate(r.Conditions, job.Fields) {
		stat.Skipped = true
		return stat
	}

	retry := r.RetryConfig.Effective()
	payload := ApplyMapping(job.Fields, r.Mapping)

	var lastErr error
	for attempt := 1; attempt <= retry.MaxAttempts; attempt++ {
		stat.Attempts = attempt
		resp, err := d.attempt(ctx, job, r, payload, attempt)

		entry := &models.RelayLog{
			ID:        uuid.NewString(),
			RelayID:   r.ID,
			RequestID: job.RequestID,
			Attempt:   attempt,
			CreatedAt: d.now().UTC(),
		}
		if err == nil {
			entry.Status = models.RelayLogSuccess
			entry.StatusCode = resp.StatusCode
			entry.RequestBody = payload
			entry.ResponseBody = resp.Body
			entry.DurationMs = resp.DurationMs
			d.writeLog(ctx, entry)
			metrics.RelayAttempts.WithLabelValues(ModeLegacy, string(models.RelayLogSuccess)).Inc()
			d.logger.Debug("Relay delivered",
				zap.String("request_id", job.RequestID),
				zap.String("relay", r.Name),
				zap.Int("attempt", attempt),
				zap.Int("status_code", resp.StatusCode))
			stat.Success = true
			return stat
		}

		lastErr = err
		entry.Status = models.RelayLogFailed
		if attempt < retry.MaxAttempts {
			entry.Status = models.RelayLogRetrying
		}
		entry.StatusCode = resp.StatusCode
		entry.DurationMs = resp.DurationMs
		entry.Error = err.Error()
		d.writeLog(ctx, entry)
		metrics.RelayAttempts.WithLabelValues(ModeLegacy, string(entry.Status)).Inc()
		d.logger.Warn("Relay attempt failed",
			zap.String("request_id", job.RequestID),
			zap.String("relay", r.Name),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", retry.MaxAttempts),
			zap.Error(err))

		if attempt < retry.MaxAttempts {
			d.sleep(ctx, Delay(retry, attempt))
		}
	}

	stat.Error = lastErr.Error()
	d.logger.Error("Relay failed after all attempts",
		zap.String("request_id", job.RequestID),
		zap.String("relay", r.Name),
		zap.Int("attempts", retry.MaxAttempts),
		zap.Error(lastErr))
	return stat
}

func (d *Dispatcher) attempt(ctx context.Context, job Job, r *models.Relay, payload map[string]interface{}, attempt int) (Response, error) {
	url, contentType, body, err := Encode(r.Format, r.TargetURL, payload)
	if err != nil {
		return Response{}, err
	}

	spanCtx, span := d.tracer.StartRelaySpan(ctx, job.RequestID, r.ID, ModeLegacy, attempt)
	resp, err := d.sender.Send(spanCtx, Request{
		Method:      r.Method,
		URL:         url,
		ContentType: contentType,
		Headers:     r.Headers,
		Body:        body,
	})
	d.tracer.EndRelaySpan(span, resp.StatusCode, resp.DurationMs, err)
	metrics.RelayDuration.WithLabelValues(ModeLegacy).Observe(float64(resp.DurationMs) / 1000)
	return resp, err
}

func (d *Dispatcher) writeLog(ctx context.Context, entry *models.RelayLog) {
	if err := d.store.CreateRelayLog(ctx, entry); err != nil {
		d.logger.Error("Failed to write relay log",
			zap.String("request_id", entry.RequestID),
			zap.String("relay_id", entry.RelayID),
			zap.Error(err))
	}
}
