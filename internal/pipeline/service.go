// Package pipeline runs one inbound postback through normalization,
// validation, extraction, click attribution and event recording, then hands
// relay delivery to a scheduler.
package pipeline

import (
	"context"
	"net/http"
	"time"

	"postback-relay/internal/attribution"
	"postback-relay/internal/ingest"
	"postback-relay/internal/models"
	"postback-relay/internal/relay"
	"postback-relay/internal/templates"
	"postback-relay/internal/transform"
	"postback-relay/internal/validation"
	"postback-relay/pkg/errs"
	"postback-relay/pkg/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrEndpointNotFound = errs.New("endpoint not found")
	ErrMethodNotAllowed = errs.New("method not allowed")
)

// Store is the persistence the pipeline needs.
type Store interface {
	attribution.ClickStore
	GetEndpointBySlug(ctx context.Context, slug string) (*models.Endpoint, error)
	ListActiveRelays(ctx context.Context, endpointID string) ([]*models.Relay, error)
	CreateRequest(ctx context.Context, r *models.PostbackRequest) error
	UpdateRequest(ctx context.Context, id string, u models.RequestUpdate) error
	SaveEvent(ctx context.Context, e *models.Event) error
	SaveRevenue(ctx context.Context, r *models.Revenue) error
}

// Result is the acknowledgment for an accepted postback. A nil Body means
// an empty response.
type Result struct {
	StatusCode int
	Body       map[string]interface{}
	RequestID  string
	EventID    string
}

type Service struct {
	store      Store
	registry   *templates.Registry
	normalizer *ingest.Normalizer
	extractor  *transform.Extractor
	matcher    *attribution.Matcher
	scheduler  relay.Scheduler
	now        func() time.Time
	logger     *zap.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, registry *templates.Registry, scheduler relay.Scheduler, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:      store,
		registry:   registry,
		normalizer: ingest.NewNormalizer(logger),
		extractor:  transform.NewExtractor(logger),
		scheduler:  scheduler,
		now:        time.Now,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.matcher = attribution.NewMatcher(store, s.now, logger)
	return s
}

// Endpoint resolves an available endpoint by slug.
func (s *Service) Endpoint(ctx context.Context, slug string) (*models.Endpoint, error) {
	endpoint, err := s.store.GetEndpointBySlug(ctx, slug)
	if err != nil {
		if errs.Is(err, errs.ErrNotFound) {
			return nil, ErrEndpointNotFound
		}
		return nil, errs.Wrapf(err, "load endpoint %s", slug)
	}
	if !endpoint.Available() {
		return nil, ErrEndpointNotFound
	}
	return endpoint, nil
}

// Process handles one inbound postback for the endpoint behind slug.
//
// Unknown endpoints fail with ErrEndpointNotFound and disallowed methods
// with ErrMethodNotAllowed. A rejected postback is recorded as failed and
// the returned error is marked with validation.ErrMismatch or
// validation.ErrConfiguration. Relay delivery is scheduled, never awaited.
func (s *Service) Process(ctx context.Context, slug string, r *http.Request) (*Result, error) {
	start := s.now()
	endpoint, err := s.Endpoint(ctx, slug)
	if err != nil {
		return nil, err
	}
	metrics.PostbackReceived.WithLabelValues(endpoint.Slug, r.Method).Inc()
	defer func() {
		metrics.PostbackProcessingTime.WithLabelValues(endpoint.Slug).Observe(s.now().Sub(start).Seconds())
	}()

	if !endpoint.Config.AllowsMethod(r.Method) {
		metrics.PostbackProcessed.WithLabelValues(endpoint.Slug, "rejected").Inc()
		return nil, ErrMethodNotAllowed
	}

	req := s.normalizer.Normalize(r, endpoint.Config.Format())
	tpl := s.receiveTemplate(endpoint)

	record := &models.PostbackRequest{
		ID:           uuid.NewString(),
		EndpointID:   endpoint.ID,
		Method:       req.Method,
		Path:         req.Path,
		Query:        req.Query,
		Headers:      req.Headers,
		Body:         req.Body,
		BodyRaw:      req.RawBody,
		ContentType:  req.ContentType,
		ClientIP:     req.ClientIP,
		UserAgent:    req.UserAgent,
		Status:       models.StatusReceived,
		ParsedFields: s.extractor.TemplateFields(req, tpl),
		CreatedAt:    start.UTC(),
		UpdatedAt:    start.UTC(),
	}
	if err := s.store.CreateRequest(ctx, record); err != nil {
		return nil, errs.Wrap(err, "create request record")
	}

	result := validation.Validate(req, endpoint, tpl)
	if !result.Valid {
		return nil, s.reject(ctx, endpoint, record.ID, result)
	}

	data := s.extractor.Fields(req, endpoint, tpl)
	match := s.matchClick(ctx, req)

	event, err := s.recordEvent(ctx, endpoint, req, data, match)
	if err != nil {
		metrics.PostbackProcessed.WithLabelValues(endpoint.Slug, "error").Inc()
		return nil, err
	}

	status := models.StatusRecorded
	update := models.RequestUpdate{
		Status:     &status,
		Validation: result.Outcome(),
		EventID:    &event.ID,
	}
	if match.ClickID != "" {
		update.ClickID = &match.ClickID
	}
	if match.LinkClick != nil {
		update.LinkClickID = &match.LinkClick.ID
	}
	if match.RedirectClick != nil {
		update.RedirectClickID = &match.RedirectClick.ID
	}
	if err := s.store.UpdateRequest(ctx, record.ID, update); err != nil {
		metrics.PostbackProcessed.WithLabelValues(endpoint.Slug, "error").Inc()
		return nil, errs.Wrap(err, "mark request recorded")
	}
	metrics.PostbackProcessed.WithLabelValues(endpoint.Slug, string(models.StatusRecorded)).Inc()

	s.scheduleRelay(ctx, endpoint, record.ID, data)

	s.logger.Info("Postback recorded",
		zap.String("endpoint", endpoint.Slug),
		zap.String("request_id", record.ID),
		zap.String("event_id", event.ID),
		zap.String("click_id", match.ClickID),
		zap.String("click_match", string(match.Kind)))

	return s.respond(endpoint, record.ID, event), nil
}

func (s *Service) receiveTemplate(endpoint *models.Endpoint) *templates.ReceiveTemplate {
	if endpoint.ReceiveTemplateID == "" {
		return nil
	}
	t, ok := s.registry.Receive(endpoint.ReceiveTemplateID)
	if !ok {
		s.logger.Warn("Unknown receive template, using endpoint config",
			zap.String("endpoint", endpoint.Slug),
			zap.String("receive_template_id", endpoint.ReceiveTemplateID))
		return nil
	}
	return t
}

func (s *Service) reject(ctx context.Context, endpoint *models.Endpoint, requestID string, result validation.Result) error {
	metrics.ValidationFailures.WithLabelValues(endpoint.Slug, result.Reason()).Inc()
	metrics.PostbackProcessed.WithLabelValues(endpoint.Slug, string(models.StatusFailed)).Inc()
	s.logger.Warn("Postback validation failed",
		zap.String("endpoint", endpoint.Slug),
		zap.String("request_id", requestID),
		zap.String("reason", result.Reason()),
		zap.String("error", result.Error))

	status := models.StatusFailed
	if err := s.store.UpdateRequest(ctx, requestID, models.RequestUpdate{
		Status:     &status,
		Validation: result.Outcome(),
	}); err != nil {
		s.logger.Error("Failed to mark request failed", zap.String("request_id", requestID), zap.Error(err))
	}
	return result.Err()
}

// matchClick never fails the postback; lookup errors only lose attribution.
func (s *Service) matchClick(ctx context.Context, req *ingest.ParsedRequest) *attribution.Match {
	match, err := s.matcher.Match(ctx, req.Merged())
	if err != nil {
		s.logger.Warn("Click attribution failed", zap.Error(err))
		return &attribution.Match{ClickID: attribution.CandidateID(req.Merged()), Kind: attribution.KindNone}
	}
	return match
}

func (s *Service) recordEvent(ctx context.Context, endpoint *models.Endpoint, req *ingest.ParsedRequest, data map[string]interface{}, match *attribution.Match) (*models.Event, error) {
	now := s.now().UTC()
	sessionID := SessionID(endpoint.WebsiteID, req.ClientIP, req.UserAgent, match)

	eventName := models.DefaultEventName
	if cfg := endpoint.Config.EventConfig; cfg != nil && cfg.EventName != "" {
		eventName = cfg.EventName
	}

	eventData := make(map[string]interface{}, len(data)+len(match.Attribution)+2)
	for k, v := range data {
		eventData[k] = v
	}
	for k, v := range match.Attribution {
		eventData[k] = v
	}
	if match.Matched() {
		eventData["matchedClickId"] = match.ClickID
	}
	eventData["hasAttribution"] = match.Matched()

	event := &models.Event{
		ID:         uuid.NewString(),
		EndpointID: endpoint.ID,
		WebsiteID:  endpoint.WebsiteID,
		SessionID:  sessionID,
		VisitID:    VisitID(sessionID, now),
		EventName:  eventName,
		EventData:  eventData,
		Hostname:   req.Host,
		URLPath:    req.Path,
		URLQuery:   req.RawQuery,
		CreatedAt:  now,
	}
	if err := s.store.SaveEvent(ctx, event); err != nil {
		return nil, errs.Wrap(err, "save event")
	}

	if rev := transform.ExtractRevenue(data, endpoint.Config.EventConfig); rev != nil {
		if err := s.store.SaveRevenue(ctx, &models.Revenue{
			ID:        uuid.NewString(),
			WebsiteID: endpoint.WebsiteID,
			SessionID: sessionID,
			EventID:   event.ID,
			EventName: eventName,
			Currency:  rev.Currency,
			Revenue:   rev.Revenue,
			CreatedAt: now,
		}); err != nil {
			return nil, errs.Wrap(err, "save revenue")
		}
	}
	return event, nil
}

func (s *Service) scheduleRelay(ctx context.Context, endpoint *models.Endpoint, requestID string, data map[string]interface{}) {
	if s.scheduler == nil {
		return
	}
	if endpoint.RelayTemplateID == "" {
		relays, err := s.store.ListActiveRelays(ctx, endpoint.ID)
		if err != nil {
			s.logger.Error("Failed to list relays", zap.String("endpoint", endpoint.Slug), zap.Error(err))
			return
		}
		if len(relays) == 0 {
			return
		}
	}
	job := relay.Job{RequestID: requestID, EndpointID: endpoint.ID, Fields: data}
	if err := s.scheduler.Schedule(ctx, job); err != nil {
		s.logger.Error("Failed to schedule relay",
			zap.String("endpoint", endpoint.Slug),
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}

func (s *Service) respond(endpoint *models.Endpoint, requestID string, event *models.Event) *Result {
	res := &Result{StatusCode: http.StatusOK, RequestID: requestID, EventID: event.ID}
	cfg := endpoint.Config.Response
	if cfg == nil {
		cfg = &models.ResponseConfig{}
	}
	if cfg.Mode == "" || cfg.Mode == models.ResponseMinimal {
		if cfg.SuccessCode != 0 {
			res.StatusCode = cfg.SuccessCode
		}
		return res
	}
	res.Body = map[string]interface{}{
		"status":    "ok",
		"eventId":   event.ID,
		"timestamp": event.CreatedAt.Format(time.RFC3339),
	}
	if cfg.Mode == models.ResponseDetailed {
		res.Body["requestId"] = requestID
		res.Body["hasAttribution"] = event.EventData["hasAttribution"]
	}
	return res
}
