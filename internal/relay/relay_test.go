package relay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"postback-relay/internal/models"
	"postback-relay/internal/storage"
	"postback-relay/internal/templates"
	"postback-relay/pkg/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDelaySchedule(t *testing.T) {
	tests := []struct {
		name string
		cfg  models.RetryConfig
		want []time.Duration
	}{
		{
			name: "defaults",
			cfg:  models.DefaultRetryConfig,
			want: []time.Duration{time.Second, 2 * time.Second},
		},
		{
			name: "doubling",
			cfg:  models.RetryConfig{MaxAttempts: 4, InitialDelayMs: 1000, MaxDelayMs: 30000, BackoffMultiplier: 2},
			want: []time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
		},
		{
			name: "capped",
			cfg:  models.RetryConfig{MaxAttempts: 5, InitialDelayMs: 1000, MaxDelayMs: 3000, BackoffMultiplier: 3},
			want: []time.Duration{time.Second, 3 * time.Second, 3 * time.Second, 3 * time.Second},
		},
		{
			name: "single attempt",
			cfg:  models.RetryConfig{MaxAttempts: 1, InitialDelayMs: 1000, MaxDelayMs: 3000, BackoffMultiplier: 2},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Schedule(tt.cfg))
		})
	}
}

func TestEvaluate(t *testing.T) {
	data := map[string]interface{}{
		"status":  "approved",
		"revenue": 12.5,
		"count":   "10",
		"meta":    map[string]interface{}{"country": "US"},
	}

	rule := func(field, op string, v interface{}) models.ConditionRule {
		return models.ConditionRule{Field: field, Operator: op, Value: v}
	}

	tests := []struct {
		name string
		cond *models.Conditions
		want bool
	}{
		{"no conditions", nil, true},
		{"empty rules", &models.Conditions{}, true},
		{"eq string", &models.Conditions{Rules: []models.ConditionRule{rule("status", "eq", "approved")}}, true},
		{"eq is strict", &models.Conditions{Rules: []models.ConditionRule{rule("count", "eq", 10.0)}}, false},
		{"eq numbers across types", &models.Conditions{Rules: []models.ConditionRule{rule("revenue", "eq", 12.5)}}, true},
		{"neq", &models.Conditions{Rules: []models.ConditionRule{rule("status", "neq", "rejected")}}, true},
		{"gt coerces", &models.Conditions{Rules: []models.ConditionRule{rule("count", "gt", 5)}}, true},
		{"lte", &models.Conditions{Rules: []models.ConditionRule{rule("revenue", "lte", 12.5)}}, true},
		{"gt on missing field", &models.Conditions{Rules: []models.ConditionRule{rule("missing", "gt", -1)}}, false},
		{"gt on text", &models.Conditions{Rules: []models.ConditionRule{rule("status", "gt", 0)}}, false},
		{"gt without value", &models.Conditions{Rules: []models.ConditionRule{rule("revenue", "gt", nil)}}, false},
		{"lt without value", &models.Conditions{Rules: []models.ConditionRule{rule("revenue", "lt", nil)}}, false},
		{"contains on missing field", &models.Conditions{Rules: []models.ConditionRule{rule("missing", "contains", "")}}, false},
		{"startsWith on missing field", &models.Conditions{Rules: []models.ConditionRule{rule("missing", "startsWith", "und")}}, false},
		{"endsWith without value", &models.Conditions{Rules: []models.ConditionRule{rule("status", "endsWith", nil)}}, false},
		{"contains", &models.Conditions{Rules: []models.ConditionRule{rule("status", "contains", "prov")}}, true},
		{"startsWith", &models.Conditions{Rules: []models.ConditionRule{rule("status", "startsWith", "app")}}, true},
		{"endsWith", &models.Conditions{Rules: []models.ConditionRule{rule("status", "endsWith", "xyz")}}, false},
		{"exists nested", &models.Conditions{Rules: []models.ConditionRule{rule("meta.country", "exists", nil)}}, true},
		{"notExists", &models.Conditions{Rules: []models.ConditionRule{rule("meta.region", "notExists", nil)}}, true},
		{"unknown operator", &models.Conditions{Rules: []models.ConditionRule{rule("status", "matches", ".*")}}, false},
		{
			"and needs all",
			&models.Conditions{Rules: []models.ConditionRule{rule("status", "eq", "approved"), rule("revenue", "gt", 100)}},
			false,
		},
		{
			"or needs one",
			&models.Conditions{Logic: models.LogicOr, Rules: []models.ConditionRule{rule("status", "eq", "approved"), rule("revenue", "gt", 100)}},
			true,
		},
		{
			"or with none",
			&models.Conditions{Logic: models.LogicOr, Rules: []models.ConditionRule{rule("status", "eq", "pending"), rule("revenue", "gt", 100)}},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.cond, data))
		})
	}
}

func TestApplyMapping(t *testing.T) {
	data := map[string]interface{}{
		"click_id": "K1",
		"revenue":  "12.6",
		"status":   "  Approved ",
		"user":     map[string]interface{}{"email": "A@B.COM"},
	}

	t.Run("empty mapping forwards data", func(t *testing.T) {
		out := ApplyMapping(data, nil)
		assert.Equal(t, data, out)
		out["click_id"] = "changed"
		assert.Equal(t, "K1", data["click_id"])
	})

	t.Run("rules", func(t *testing.T) {
		out := ApplyMapping(data, []models.RelayFieldMap{
			{Source: "click_id", Target: "clickid"},
			{Source: "revenue", Target: "payout", Transform: "round"},
			{Source: "status", Target: "state", Transform: "trim"},
			{Source: "user.email", Target: "contact.email", Transform: "lowercase"},
			{Source: "missing", Target: "sub1", DefaultValue: "none"},
			{Source: "missing", Target: "sub2"},
			{Source: "click_id", Target: "network", StaticValue: "acme"},
			{Source: "status", Target: "amount", Transform: "number"},
		})

		assert.Equal(t, map[string]interface{}{
			"clickid": "K1",
			"payout":  13.0,
			"state":   "Approved",
			"contact": map[string]interface{}{"email": "a@b.com"},
			"sub1":    "none",
			"network": "acme",
			"amount":  nil,
		}, out)
	})
}

func TestEncode(t *testing.T) {
	payload := map[string]interface{}{"a": "1", "b": 2.5, "skip": nil}

	u, ct, body, err := Encode(models.FormatQuery, "https://t.example/cb?x=y", payload)
	require.NoError(t, err)
	assert.Equal(t, "text/plain", ct)
	assert.Nil(t, body)
	parsed, err := url.Parse(u)
	require.NoError(t, err)
	assert.Equal(t, url.Values{"x": {"y"}, "a": {"1"}, "b": {"2.5"}}, parsed.Query())

	_, ct, body, err = Encode(models.FormatForm, "https://t.example/cb", payload)
	require.NoError(t, err)
	assert.Equal(t, "application/x-www-form-urlencoded", ct)
	assert.Equal(t, "a=1&b=2.5", string(body))

	_, ct, body, err = Encode(models.FormatJSON, "https://t.example/cb", payload)
	require.NoError(t, err)
	assert.Equal(t, "application/json", ct)
	assert.JSONEq(t, `{"a":"1","b":2.5,"skip":null}`, string(body))
}

type recordedCall struct {
	method      string
	query       url.Values
	contentType string
	userAgent   string
	body        string
}

type target struct {
	*httptest.Server
	mu       sync.Mutex
	calls    []recordedCall
	failures int32
}

// newTarget answers 500 for the first failures calls and 200 afterwards.
func newTarget(t *testing.T, failures int) *target {
	tg := &target{failures: int32(failures)}
	tg.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		tg.mu.Lock()
		tg.calls = append(tg.calls, recordedCall{
			method:      r.Method,
			query:       r.URL.Query(),
			contentType: r.Header.Get("Content-Type"),
			userAgent:   r.Header.Get("User-Agent"),
			body:        string(b),
		})
		tg.mu.Unlock()
		if atomic.AddInt32(&tg.failures, -1) >= 0 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("upstream down"))
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(tg.Close)
	return tg
}

func (tg *target) Calls() []recordedCall {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	return append([]recordedCall(nil), tg.calls...)
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) Sleep(_ context.Context, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
}

func setupDispatcher(t *testing.T) (*Dispatcher, *storage.MemoryStore, *sleepRecorder) {
	t.Helper()
	store := storage.NewMemoryStore()
	pool := DeliveryPool(4)
	t.Cleanup(pool.StopAndWait)
	sleeps := &sleepRecorder{}
	d := NewDispatcher(store, NewSender(5*time.Second, ""), templates.Default(), pool, zap.NewNop(),
		WithSleeper(sleeps.Sleep))
	return d, store, sleeps
}

func seedRequest(t *testing.T, store *storage.MemoryStore, endpoint *models.Endpoint) *models.PostbackRequest {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.CreateEndpoint(ctx, endpoint))
	req := &models.PostbackRequest{ID: "req-1", EndpointID: endpoint.ID, Status: models.StatusRecorded}
	require.NoError(t, store.CreateRequest(ctx, req))
	return req
}

func TestDispatchLegacyRetriesThenSucceeds(t *testing.T) {
	d, store, sleeps := setupDispatcher(t)
	tg := newTarget(t, 2)
	ctx := context.Background()

	endpoint := &models.Endpoint{ID: "ep-1", Slug: "abc", IsActive: true}
	seedRequest(t, store, endpoint)
	require.NoError(t, store.CreateRelay(ctx, &models.Relay{
		ID:          "relay-1",
		EndpointID:  endpoint.ID,
		Name:        "network",
		TargetURL:   tg.URL + "/cb",
		Method:      http.MethodGet,
		Format:      models.FormatQuery,
		Mapping:     []models.RelayFieldMap{{Source: "click_id", Target: "clickid"}},
		RetryConfig: &models.RetryConfig{MaxAttempts: 4, InitialDelayMs: 1000, MaxDelayMs: 30000, BackoffMultiplier: 2},
		IsActive:    true,
	}))

	err := d.Dispatch(ctx, Job{RequestID: "req-1", EndpointID: endpoint.ID, Fields: map[string]interface{}{"click_id": "K1"}})
	require.NoError(t, err)

	calls := tg.Calls()
	require.Len(t, calls, 3)
	for _, c := range calls {
		assert.Equal(t, http.MethodGet, c.method)
		assert.Equal(t, "K1", c.query.Get("clickid"))
		assert.Equal(t, DefaultUserAgent, c.userAgent)
		assert.Empty(t, c.body)
	}
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeps.delays)

	logs, err := store.ListRelayLogs(ctx, "req-1")
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, models.RelayLogRetrying, logs[0].Status)
	assert.Equal(t, 500, logs[0].StatusCode)
	assert.Contains(t, logs[0].Error, "Relay failed: 500 upstream down")
	assert.Equal(t, models.RelayLogRetrying, logs[1].Status)
	assert.Equal(t, models.RelayLogSuccess, logs[2].Status)
	assert.Equal(t, 3, logs[2].Attempt)

	got, err := store.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRelayed, got.Status)
	require.NotNil(t, got.RelayResult)
	assert.True(t, got.RelayResult.Success)
	require.Len(t, got.RelayResult.Relays, 1)
	assert.Equal(t, 3, got.RelayResult.Relays[0].Attempts)
}

func TestDispatchLegacyExhaustsRetries(t *testing.T) {
	d, store, sleeps := setupDispatcher(t)
	tg := newTarget(t, 100)
	ctx := context.Background()

	endpoint := &models.Endpoint{ID: "ep-1", Slug: "abc", IsActive: true}
	seedRequest(t, store, endpoint)
	require.NoError(t, store.CreateRelay(ctx, &models.Relay{
		ID:         "relay-1",
		EndpointID: endpoint.ID,
		Name:       "network",
		TargetURL:  tg.URL,
		Method:     http.MethodPost,
		Format:     models.FormatJSON,
		IsActive:   true,
	}))

	err := d.Dispatch(ctx, Job{RequestID: "req-1", EndpointID: endpoint.ID, Fields: map[string]interface{}{"click_id": "K1"}})
	require.NoError(t, err)

	calls := tg.Calls()
	require.Len(t, calls, models.DefaultRetryConfig.MaxAttempts)
	assert.Equal(t, "application/json", calls[0].contentType)
	assert.JSONEq(t, `{"click_id":"K1"}`, calls[0].body)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeps.delays)

	logs, err := store.ListRelayLogs(ctx, "req-1")
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, models.RelayLogFailed, logs[2].Status)

	got, err := store.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRelayFailed, got.Status)
	assert.False(t, got.RelayResult.Success)
}

func TestDispatchSkipsRelaysByConditions(t *testing.T) {
	d, store, _ := setupDispatcher(t)
	approved := newTarget(t, 0)
	rejected := newTarget(t, 0)
	ctx := context.Background()

	endpoint := &models.Endpoint{ID: "ep-1", Slug: "abc", IsActive: true}
	seedRequest(t, store, endpoint)
	for _, r := range []*models.Relay{
		{
			ID: "relay-approved", EndpointID: endpoint.ID, Name: "approved", TargetURL: approved.URL,
			Method: http.MethodPost, Format: models.FormatForm, IsActive: true,
			Conditions: &models.Conditions{Rules: []models.ConditionRule{{Field: "status", Operator: "eq", Value: "approved"}}},
		},
		{
			ID: "relay-rejected", EndpointID: endpoint.ID, Name: "rejected", TargetURL: rejected.URL,
			Method: http.MethodPost, Format: models.FormatForm, IsActive: true,
			Conditions: &models.Conditions{Rules: []models.ConditionRule{{Field: "status", Operator: "eq", Value: "rejected"}}},
		},
		{
			ID: "relay-inactive", EndpointID: endpoint.ID, Name: "inactive", TargetURL: rejected.URL,
			Method: http.MethodPost, Format: models.FormatForm, IsActive: false,
		},
	} {
		require.NoError(t, store.CreateRelay(ctx, r))
	}

	err := d.Dispatch(ctx, Job{RequestID: "req-1", EndpointID: endpoint.ID, Fields: map[string]interface{}{"status": "approved"}})
	require.NoError(t, err)

	require.Len(t, approved.Calls(), 1)
	assert.Equal(t, "status=approved", approved.Calls()[0].body)
	assert.Empty(t, rejected.Calls())

	logs, err := store.ListRelayLogs(ctx, "req-1")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "relay-approved", logs[0].RelayID)

	got, err := store.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRelayed, got.Status)
}

func TestDispatchAllSkippedLeavesRecorded(t *testing.T) {
	d, store, _ := setupDispatcher(t)
	tg := newTarget(t, 0)
	ctx := context.Background()

	endpoint := &models.Endpoint{ID: "ep-1", Slug: "abc", IsActive: true}
	seedRequest(t, store, endpoint)
	require.NoError(t, store.CreateRelay(ctx, &models.Relay{
		ID: "relay-1", EndpointID: endpoint.ID, Name: "only", TargetURL: tg.URL,
		Method: http.MethodPost, Format: models.FormatJSON, IsActive: true,
		Conditions: &models.Conditions{Rules: []models.ConditionRule{{Field: "revenue", Operator: "gt", Value: 100}}},
	}))

	err := d.Dispatch(ctx, Job{RequestID: "req-1", EndpointID: endpoint.ID, Fields: map[string]interface{}{"revenue": 5}})
	require.NoError(t, err)

	assert.Empty(t, tg.Calls())
	got, err := store.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRecorded, got.Status)
	assert.Nil(t, got.RelayResult)
}

func TestDispatchLegacyRelaysAreIndependent(t *testing.T) {
	d, store, _ := setupDispatcher(t)
	down := newTarget(t, 100)
	up := newTarget(t, 0)
	ctx := context.Background()

	endpoint := &models.Endpoint{ID: "ep-1", Slug: "abc", IsActive: true}
	seedRequest(t, store, endpoint)
	for _, r := range []*models.Relay{
		{
			ID: "relay-down", EndpointID: endpoint.ID, Name: "down", TargetURL: down.URL,
			Method: http.MethodPost, Format: models.FormatJSON, IsActive: true,
		},
		{
			ID: "relay-up", EndpointID: endpoint.ID, Name: "up", TargetURL: up.URL,
			Method: http.MethodPost, Format: models.FormatJSON, IsActive: true,
		},
	} {
		require.NoError(t, store.CreateRelay(ctx, r))
	}

	err := d.Dispatch(ctx, Job{RequestID: "req-1", EndpointID: endpoint.ID, Fields: map[string]interface{}{"click_id": "K1"}})
	require.NoError(t, err)

	assert.Len(t, down.Calls(), models.DefaultRetryConfig.MaxAttempts)
	assert.Len(t, up.Calls(), 1)

	logs, err := store.ListRelayLogs(ctx, "req-1")
	require.NoError(t, err)
	byRelay := map[string][]models.RelayLogStatus{}
	for _, l := range logs {
		byRelay[l.RelayID] = append(byRelay[l.RelayID], l.Status)
	}
	assert.Equal(t, []models.RelayLogStatus{models.RelayLogSuccess}, byRelay["relay-up"])
	assert.Equal(t, []models.RelayLogStatus{models.RelayLogRetrying, models.RelayLogRetrying, models.RelayLogFailed}, byRelay["relay-down"])

	got, err := store.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRelayFailed, got.Status)
	require.NotNil(t, got.RelayResult)
	assert.False(t, got.RelayResult.Success)
	require.Len(t, got.RelayResult.Relays, 2)
	stats := map[string]models.RelayTargetStat{}
	for _, s := range got.RelayResult.Relays {
		stats[s.RelayID] = s
	}
	assert.True(t, stats["relay-up"].Success)
	assert.Equal(t, 1, stats["relay-up"].Attempts)
	assert.False(t, stats["relay-down"].Success)
	assert.Equal(t, 3, stats["relay-down"].Attempts)
	assert.Contains(t, stats["relay-down"].Error, "500")
}

func TestDispatchRedeliveredJobDoesNotResend(t *testing.T) {
	d, store, _ := setupDispatcher(t)
	tg := newTarget(t, 0)
	ctx := context.Background()

	endpoint := &models.Endpoint{ID: "ep-1", Slug: "abc", IsActive: true}
	seedRequest(t, store, endpoint)
	require.NoError(t, store.CreateRelay(ctx, &models.Relay{
		ID: "relay-1", EndpointID: endpoint.ID, Name: "only", TargetURL: tg.URL,
		Method: http.MethodPost, Format: models.FormatJSON, IsActive: true,
	}))

	job := Job{RequestID: "req-1", EndpointID: endpoint.ID, Fields: map[string]interface{}{"click_id": "K1"}}
	require.NoError(t, d.Dispatch(ctx, job))
	require.NoError(t, d.Dispatch(ctx, job))

	assert.Len(t, tg.Calls(), 1)
	logs, err := store.ListRelayLogs(ctx, "req-1")
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	got, err := store.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRelayed, got.Status)
}

type outcomeFailingStore struct {
	*storage.MemoryStore
}

func (s outcomeFailingStore) UpdateRequest(context.Context, string, models.RequestUpdate) error {
	return errs.New("mongo unavailable")
}

func TestDispatchMarksUnrecordedOutcome(t *testing.T) {
	store := storage.NewMemoryStore()
	pool := DeliveryPool(2)
	t.Cleanup(pool.StopAndWait)
	d := NewDispatcher(outcomeFailingStore{store}, NewSender(5*time.Second, ""), templates.Default(), pool, zap.NewNop(),
		WithSleeper((&sleepRecorder{}).Sleep))
	tg := newTarget(t, 0)
	ctx := context.Background()

	endpoint := &models.Endpoint{ID: "ep-1", Slug: "abc", IsActive: true}
	seedRequest(t, store, endpoint)
	require.NoError(t, store.CreateRelay(ctx, &models.Relay{
		ID: "relay-1", EndpointID: endpoint.ID, Name: "only", TargetURL: tg.URL,
		Method: http.MethodPost, Format: models.FormatJSON, IsActive: true,
	}))

	err := d.Dispatch(ctx, Job{RequestID: "req-1", EndpointID: endpoint.ID, Fields: map[string]interface{}{"click_id": "K1"}})
	require.Error(t, err)
	assert.True(t, errs.Is(err, ErrOutcomeNotRecorded))
	assert.Len(t, tg.Calls(), 1)

	err = d.Dispatch(ctx, Job{RequestID: "missing", EndpointID: endpoint.ID})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrNotFound))
	assert.False(t, errs.Is(err, ErrOutcomeNotRecorded))
}

func TestDispatchTemplateRelay(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := storage.NewMemoryStore()
	pool := DeliveryPool(2)
	defer pool.StopAndWait()
	d := NewDispatcher(store, NewSender(5*time.Second, ""), templates.Default(), pool, zap.NewNop(),
		WithClock(func() time.Time { return now }))
	tg := newTarget(t, 0)
	ctx := context.Background()

	endpoint := &models.Endpoint{
		ID:              "ep-1",
		Slug:            "abc",
		IsActive:        true,
		RelayTemplateID: "generic-webhook",
		Config: models.EndpointConfig{
			Settings: map[string]interface{}{"webhookUrl": tg.URL + "/hook"},
		},
	}
	seedRequest(t, store, endpoint)

	err := d.Dispatch(ctx, Job{RequestID: "req-1", EndpointID: endpoint.ID, Fields: map[string]interface{}{
		"clickId": "K1",
		"revenue": 12.5,
		"status":  "approved",
	}})
	require.NoError(t, err)

	calls := tg.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodPost, calls[0].method)
	assert.Equal(t, "application/json", calls[0].contentType)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(calls[0].body), &body))
	assert.Equal(t, "K1", body["click_id"])
	assert.Equal(t, "12.5", body["revenue"])
	assert.Equal(t, "approved", body["status"])
	assert.Equal(t, "", body["transaction_id"])
	assert.Equal(t, "1709294400", body["timestamp"])

	got, err := store.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRelayed, got.Status)
	require.NotNil(t, got.RelayResult)
	assert.True(t, got.RelayResult.Success)
	assert.Equal(t, tg.URL+"/hook", got.RelayResult.URL)
	assert.Equal(t, 200, got.RelayResult.StatusCode)
	assert.Equal(t, "ok", got.RelayResult.ResponseBody)
}

func TestDispatchTemplateRelayFailureDoesNotRetry(t *testing.T) {
	d, store, sleeps := setupDispatcher(t)
	tg := newTarget(t, 5)
	ctx := context.Background()

	endpoint := &models.Endpoint{
		ID:              "ep-1",
		Slug:            "abc",
		IsActive:        true,
		RelayTemplateID: "generic-webhook",
		RelayTargetURL:  tg.URL + "/{{clickId}}",
	}
	seedRequest(t, store, endpoint)

	err := d.Dispatch(ctx, Job{RequestID: "req-1", EndpointID: endpoint.ID, Fields: map[string]interface{}{"clickId": "K9"}})
	require.NoError(t, err)

	require.Len(t, tg.Calls(), 1)
	assert.Empty(t, sleeps.delays)

	got, err := store.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRelayFailed, got.Status)
	assert.Equal(t, tg.URL+"/K9", got.RelayResult.URL)
	assert.Equal(t, 500, got.RelayResult.StatusCode)
	assert.Contains(t, got.RelayResult.Error, "Relay failed: 500")
}

func TestLocalScheduler(t *testing.T) {
	d, store, _ := setupDispatcher(t)
	tg := newTarget(t, 0)

	endpoint := &models.Endpoint{ID: "ep-1", Slug: "abc", IsActive: true}
	seedRequest(t, store, endpoint)
	require.NoError(t, store.CreateRelay(context.Background(), &models.Relay{
		ID: "relay-1", EndpointID: endpoint.ID, Name: "only", TargetURL: tg.URL,
		Method: http.MethodPost, Format: models.FormatJSON, IsActive: true,
	}))

	s := NewLocalScheduler(d, 2, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Schedule(ctx, Job{RequestID: "req-1", EndpointID: endpoint.ID, Fields: map[string]interface{}{"a": "b"}}))
	cancel()

	waitCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	require.NoError(t, s.Wait(waitCtx))
	s.Close()

	assert.Len(t, tg.Calls(), 1)
	got, err := store.GetRequest(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRelayed, got.Status)

	assert.ErrorIs(t, s.Schedule(context.Background(), Job{}), ErrSchedulerClosed)
}
