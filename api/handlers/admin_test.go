package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"postback-relay/internal/models"
	"postback-relay/internal/pipeline"
	"postback-relay/internal/schema"
	"postback-relay/internal/storage"
	"postback-relay/internal/templates"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type adminFixture struct {
	store  *storage.MemoryStore
	router *gin.Engine
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := storage.NewMemoryStore()
	registry := templates.Default()
	svc := pipeline.NewService(store, registry, nil, zap.NewNop())
	h := NewAdminHandler(zap.NewNop(), store, schema.MustNewValidator(), registry, svc)

	r := gin.New()
	h.Register(r.Group("/api"))
	return &adminFixture{store: store, router: r}
}

func (f *adminFixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func (f *adminFixture) createEndpoint(t *testing.T, body string) map[string]interface{} {
	t.Helper()
	w, out := f.do(t, http.MethodPost, "/api/endpoints", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return out
}

func TestCreateEndpoint(t *testing.T) {
	f := newAdminFixture(t)

	out := f.createEndpoint(t, `{"name":"Offers","config":{"allowedMethods":["GET"]}}`)
	assert.Len(t, out["slug"], slugLength)
	assert.Equal(t, true, out["isActive"])
	assert.NotEmpty(t, out["id"])

	inactive := f.createEndpoint(t, `{"name":"Paused","slug":"paused","isActive":false}`)
	assert.Equal(t, "paused", inactive["slug"])
	assert.Equal(t, false, inactive["isActive"])

	w, body := f.do(t, http.MethodPost, "/api/endpoints", `{"name":"Again","slug":"paused"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Slug already in use", body["error"])

	w, _ = f.do(t, http.MethodPost, "/api/endpoints", `{"config":{}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = f.do(t, http.MethodPost, "/api/endpoints", `{"name":"Bad","config":{"inputFormat":"yaml"}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["error"], "inputFormat")

	w, body = f.do(t, http.MethodGet, "/api/endpoints", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["endpoints"], 2)
}

func TestUpdateEndpointMergesFields(t *testing.T) {
	f := newAdminFixture(t)
	created := f.createEndpoint(t, `{"name":"Offers","slug":"offers","config":{"inputFormat":"json"}}`)
	path := "/api/endpoints/" + created["id"].(string)

	w, out := f.do(t, http.MethodPut, path, `{"description":"CPA network"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Offers", out["name"])
	assert.Equal(t, "offers", out["slug"])
	assert.Equal(t, "CPA network", out["description"])
	assert.Equal(t, "json", out["config"].(map[string]interface{})["inputFormat"])

	w, _ = f.do(t, http.MethodPut, path, `{"config":{"response":{"successCode":500}}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = f.do(t, http.MethodPut, "/api/endpoints/missing", `{"name":"x"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteEndpoint(t *testing.T) {
	f := newAdminFixture(t)
	created := f.createEndpoint(t, `{"name":"Offers"}`)
	path := "/api/endpoints/" + created["id"].(string)

	w, _ := f.do(t, http.MethodDelete, path, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, _ = f.do(t, http.MethodGet, path, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRelayCRUD(t *testing.T) {
	f := newAdminFixture(t)
	endpoint := f.createEndpoint(t, `{"name":"Offers"}`)
	base := "/api/endpoints/" + endpoint["id"].(string) + "/relays"

	w, _ := f.do(t, http.MethodPost, base, `{"name":"Partner","targetUrl":"ftp://nope"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body := f.do(t, http.MethodPost, base, `{"name":"Partner","targetUrl":"https://partner.example/pb","retryConfig":{"maxAttempts":0}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["error"], "maxAttempts")

	w, created := f.do(t, http.MethodPost, base, `{"name":"Partner","targetUrl":"https://partner.example/pb","retryConfig":{"maxAttempts":5}}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "POST", created["method"])
	assert.Equal(t, "json", created["format"])
	assert.Equal(t, true, created["isActive"])
	assert.Equal(t, endpoint["id"], created["endpointId"])

	relayPath := "/api/relays/" + created["id"].(string)
	w, updated := f.do(t, http.MethodPut, relayPath, `{"format":"query","isActive":false}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "query", updated["format"])
	assert.Equal(t, false, updated["isActive"])
	assert.Equal(t, "https://partner.example/pb", updated["targetUrl"])

	w, list := f.do(t, http.MethodGet, base, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, list["relays"], 1)

	w, _ = f.do(t, http.MethodDelete, relayPath, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w, _ = f.do(t, http.MethodDelete, relayPath, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRequestListingAndStats(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, status := range []models.RequestStatus{models.StatusRecorded, models.StatusFailed, models.StatusRecorded} {
		require.NoError(t, f.store.CreateRequest(ctx, &models.PostbackRequest{
			ID:         "req-" + string(rune('a'+i)),
			EndpointID: "ep-1",
			Method:     http.MethodGet,
			Status:     status,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, f.store.CreateRelayLog(ctx, &models.RelayLog{
		ID: "log-1", RelayID: "r-1", RequestID: "req-a", Attempt: 1, Status: models.RelayLogSuccess, StatusCode: 200,
	}))

	w, out := f.do(t, http.MethodGet, "/api/endpoints/ep-1/requests?limit=2&offset=0", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, out["total"])
	assert.EqualValues(t, 2, out["limit"])
	assert.Len(t, out["requests"], 2)

	w, out = f.do(t, http.MethodGet, "/api/endpoints/ep-1/requests?limit=9999", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, models.MaxPageLimit, out["limit"])

	w, out = f.do(t, http.MethodGet, "/api/endpoints/ep-1/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, out["total"])

	w, out = f.do(t, http.MethodGet, "/api/requests/req-a", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "recorded", out["status"])

	w, out = f.do(t, http.MethodGet, "/api/requests/req-a/logs", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, out["logs"], 1)

	w, _ = f.do(t, http.MethodGet, "/api/requests/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, out = f.do(t, http.MethodDelete, "/api/endpoints/ep-1/requests", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, out["deleted"])
}

func TestListTemplates(t *testing.T) {
	f := newAdminFixture(t)

	w, out := f.do(t, http.MethodGet, "/api/templates", "")
	require.Equal(t, http.StatusOK, w.Code)

	var receive []string
	for _, tpl := range out["receive"].([]interface{}) {
		receive = append(receive, tpl.(map[string]interface{})["id"].(string))
	}
	assert.Contains(t, receive, "chaturbate")
	assert.Len(t, out["relay"], 3)
}

func TestPreviewEndpoint(t *testing.T) {
	f := newAdminFixture(t)
	endpoint := f.createEndpoint(t, `{"name":"Offers"}`)
	path := "/api/endpoints/" + endpoint["id"].(string) + "/preview"

	w, out := f.do(t, http.MethodPost, path, `{"method":"get","query":{"click_id":"K9","revenue":"4.5"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "K9", out["clickId"])
	assert.Equal(t, true, out["validation"].(map[string]interface{})["isValid"])

	requests, total, err := f.store.ListRequests(context.Background(), endpoint["id"].(string), models.Page{}.Normalize())
	require.NoError(t, err)
	assert.Empty(t, requests)
	assert.Zero(t, total)
}
