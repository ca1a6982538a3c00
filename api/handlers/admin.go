package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"postback-relay/internal/models"
	"postback-relay/internal/pipeline"
	"postback-relay/internal/schema"
	"postback-relay/internal/storage"
	"postback-relay/internal/templates"
	"postback-relay/pkg/errs"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const slugLength = 12

// AdminStore is the persistence behind the admin API.
type AdminStore interface {
	storage.EndpointStore
	storage.RelayStore
	storage.RequestStore
	storage.RelayLogStore
}

// Previewer dry-runs a sample request against an endpoint.
type Previewer interface {
	Preview(ctx context.Context, endpoint *models.Endpoint, r *http.Request) (*pipeline.Preview, error)
}

type AdminHandler struct {
	logger    *zap.Logger
	store     AdminStore
	schemas   *schema.Validator
	registry  *templates.Registry
	previewer Previewer
	now       func() time.Time
}

func NewAdminHandler(logger *zap.Logger, store AdminStore, schemas *schema.Validator, registry *templates.Registry, previewer Previewer) *AdminHandler {
	return &AdminHandler{
		logger:    logger,
		store:     store,
		schemas:   schemas,
		registry:  registry,
		previewer: previewer,
		now:       time.Now,
	}
}

// Register mounts the admin routes on g.
func (h *AdminHandler) Register(g *gin.RouterGroup) {
	g.GET("/templates", h.ListTemplates)

	g.GET("/endpoints", h.ListEndpoints)
	g.POST("/endpoints", h.CreateEndpoint)
	g.GET("/endpoints/:id", h.GetEndpoint)
	g.PUT("/endpoints/:id", h.UpdateEndpoint)
	g.DELETE("/endpoints/:id", h.DeleteEndpoint)
	g.POST("/endpoints/:id/preview", h.PreviewEndpoint)

	g.GET("/endpoints/:id/relays", h.ListRelays)
	g.POST("/endpoints/:id/relays", h.CreateRelay)
	g.PUT("/relays/:relayId", h.UpdateRelay)
	g.DELETE("/relays/:relayId", h.DeleteRelay)

	g.GET("/endpoints/:id/requests", h.ListRequests)
	g.DELETE("/endpoints/:id/requests", h.ClearRequests)
	g.GET("/endpoints/:id/stats", h.RequestStats)
	g.GET("/requests/:requestId", h.GetRequest)
	g.GET("/requests/:requestId/logs", h.ListRelayLogs)
}

func (h *AdminHandler) ListTemplates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"receive": h.registry.ReceiveTemplates(),
		"relay":   h.registry.RelayTemplates(),
	})
}

func (h *AdminHandler) ListEndpoints(c *gin.Context) {
	endpoints, err := h.store.ListEndpoints(c.Request.Context())
	if err != nil {
		h.fail(c, err, "list endpoints")
		return
	}
	c.JSON(http.StatusOK, gin.H{"endpoints": endpoints})
}

func (h *AdminHandler) GetEndpoint(c *gin.Context) {
	endpoint, err := h.endpoint(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "get endpoint")
		return
	}
	c.JSON(http.StatusOK, endpoint)
}

// CreateEndpoint validates the document against the endpoint schema and
// assigns a random slug when none is given.
func (h *AdminHandler) CreateEndpoint(c *gin.Context) {
	raw, ok := h.readDocument(c, schema.Endpoint)
	if !ok {
		return
	}

	var endpoint models.Endpoint
	if err := json.Unmarshal(raw, &endpoint); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}
	now := h.now().UTC()
	endpoint.ID = uuid.NewString()
	endpoint.IsActive = activeFlag(raw, true)
	endpoint.CreatedAt = now
	endpoint.UpdatedAt = now
	endpoint.DeletedAt = nil

	ctx := c.Request.Context()
	generated := endpoint.Slug == ""
	for attempt := 0; ; attempt++ {
		if generated {
			endpoint.Slug = randomSlug()
		}
		err := h.store.CreateEndpoint(ctx, &endpoint)
		if err == nil {
			break
		}
		if generated && errs.Is(err, storage.ErrSlugTaken) && attempt < 3 {
			continue
		}
		h.fail(c, err, "create endpoint")
		return
	}

	h.logger.Info("Endpoint created",
		zap.String("endpoint_id", endpoint.ID),
		zap.String("slug", endpoint.Slug))
	c.JSON(http.StatusCreated, endpoint)
}

// UpdateEndpoint merges the given top-level fields into the stored endpoint
// and validates the merged document.
func (h *AdminHandler) UpdateEndpoint(c *gin.Context) {
	ctx := c.Request.Context()
	existing, err := h.endpoint(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err, "get endpoint")
		return
	}

	var updated models.Endpoint
	if !h.merge(c, schema.Endpoint, existing, &updated) {
		return
	}
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt
	updated.DeletedAt = nil
	updated.UpdatedAt = h.now().UTC()
	if updated.Slug == "" {
		updated.Slug = existing.Slug
	}

	if err := h.store.UpdateEndpoint(ctx, &updated); err != nil {
		h.fail(c, err, "update endpoint")
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *AdminHandler) DeleteEndpoint(c *gin.Context) {
	if err := h.store.DeleteEndpoint(c.Request.Context(), c.Param("id"), h.now().UTC()); err != nil {
		h.fail(c, err, "delete endpoint")
		return
	}
	c.Status(http.StatusNoContent)
}

// previewRequest is a sample postback described as JSON.
type previewRequest struct {
	Method   string            `json:"method"`
	Query    map[string]string `json:"query"`
	Headers  map[string]string `json:"headers"`
	Body     json.RawMessage   `json:"body"`
	ClientIP string            `json:"clientIp"`
}

// PreviewEndpoint runs a sample request through the endpoint without
// persisting anything.
func (h *AdminHandler) PreviewEndpoint(c *gin.Context) {
	ctx := c.Request.Context()
	endpoint, err := h.endpoint(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err, "get endpoint")
		return
	}

	var sample previewRequest
	if err := c.ShouldBindJSON(&sample); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}
	r, err := sample.httpRequest(ctx, endpoint.Slug)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	preview, err := h.previewer.Preview(ctx, endpoint, r)
	if err != nil {
		h.fail(c, err, "preview endpoint")
		return
	}
	c.JSON(http.StatusOK, preview)
}

func (p previewRequest) httpRequest(ctx context.Context, slug string) (*http.Request, error) {
	method := strings.ToUpper(p.Method)
	if method == "" {
		method = http.MethodPost
	}

	target := "/x/" + slug
	if len(p.Query) > 0 {
		q := url.Values{}
		for k, v := range p.Query {
			q.Set(k, v)
		}
		target += "?" + q.Encode()
	}

	var body []byte
	contentType := ""
	if raw := bytes.TrimSpace(p.Body); len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			body = []byte(s)
		} else {
			body = raw
			contentType = "application/json"
		}
	}

	r, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return nil, errs.Wrap(err, "build sample request")
	}
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	for k, v := range p.Headers {
		r.Header.Set(k, v)
	}
	r.RemoteAddr = "127.0.0.1:0"
	if p.ClientIP != "" {
		r.RemoteAddr = p.ClientIP + ":0"
	}
	return r, nil
}

func (h *AdminHandler) ListRelays(c *gin.Context) {
	ctx := c.Request.Context()
	endpoint, err := h.endpoint(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err, "get endpoint")
		return
	}
	relays, err := h.store.ListRelays(ctx, endpoint.ID)
	if err != nil {
		h.fail(c, err, "list relays")
		return
	}
	c.JSON(http.StatusOK, gin.H{"relays": relays})
}

func (h *AdminHandler) CreateRelay(c *gin.Context) {
	ctx := c.Request.Context()
	endpoint, err := h.endpoint(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err, "get endpoint")
		return
	}

	raw, ok := h.readDocument(c, schema.Relay)
	if !ok {
		return
	}
	var r models.Relay
	if err := json.Unmarshal(raw, &r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}
	now := h.now().UTC()
	r.ID = uuid.NewString()
	r.EndpointID = endpoint.ID
	r.IsActive = activeFlag(raw, true)
	r.CreatedAt = now
	r.UpdatedAt = now
	relayDefaults(&r)

	if err := h.store.CreateRelay(ctx, &r); err != nil {
		h.fail(c, err, "create relay")
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (h *AdminHandler) UpdateRelay(c *gin.Context) {
	ctx := c.Request.Context()
	existing, err := h.store.GetRelay(ctx, c.Param("relayId"))
	if err != nil {
		h.fail(c, err, "get relay")
		return
	}

	var updated models.Relay
	if !h.merge(c, schema.Relay, existing, &updated) {
		return
	}
	updated.ID = existing.ID
	updated.EndpointID = existing.EndpointID
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = h.now().UTC()
	relayDefaults(&updated)

	if err := h.store.UpdateRelay(ctx, &updated); err != nil {
		h.fail(c, err, "update relay")
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *AdminHandler) DeleteRelay(c *gin.Context) {
	if err := h.store.DeleteRelay(c.Request.Context(), c.Param("relayId")); err != nil {
		h.fail(c, err, "delete relay")
		return
	}
	c.Status(http.StatusNoContent)
}

// ListRequests pages through an endpoint's audit records, newest first.
func (h *AdminHandler) ListRequests(c *gin.Context) {
	page := models.Page{
		Limit:  queryInt(c, "limit", models.DefaultPageLimit),
		Offset: queryInt(c, "offset", 0),
	}.Normalize()

	requests, total, err := h.store.ListRequests(c.Request.Context(), c.Param("id"), page)
	if err != nil {
		h.fail(c, err, "list requests")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"requests": requests,
		"total":    total,
		"limit":    page.Limit,
		"offset":   page.Offset,
	})
}

func (h *AdminHandler) ClearRequests(c *gin.Context) {
	deleted, err := h.store.ClearRequests(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "clear requests")
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (h *AdminHandler) RequestStats(c *gin.Context) {
	stats, err := h.store.RequestStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "request stats")
		return
	}
	var total int64
	for _, s := range stats {
		total += s.Count
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats, "total": total})
}

func (h *AdminHandler) GetRequest(c *gin.Context) {
	req, err := h.store.GetRequest(c.Request.Context(), c.Param("requestId"))
	if err != nil {
		h.fail(c, err, "get request")
		return
	}
	c.JSON(http.StatusOK, req)
}

func (h *AdminHandler) ListRelayLogs(c *gin.Context) {
	logs, err := h.store.ListRelayLogs(c.Request.Context(), c.Param("requestId"))
	if err != nil {
		h.fail(c, err, "list relay logs")
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

func (h *AdminHandler) endpoint(ctx context.Context, id string) (*models.Endpoint, error) {
	endpoint, err := h.store.GetEndpoint(ctx, id)
	if err != nil {
		return nil, err
	}
	if endpoint.DeletedAt != nil {
		return nil, errs.Wrapf(errs.ErrNotFound, "endpoint %s", id)
	}
	return endpoint, nil
}

// readDocument reads the request body and validates it against kind.
func (h *AdminHandler) readDocument(c *gin.Context, kind schema.Kind) ([]byte, bool) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return nil, false
	}
	if err := h.schemas.Validate(kind, raw); err != nil {
		h.fail(c, err, "validate document")
		return nil, false
	}
	return raw, true
}

// merge overlays the top-level fields of the request body on current,
// validates the result and decodes it into out.
func (h *AdminHandler) merge(c *gin.Context, kind schema.Kind, current, out interface{}) bool {
	var patch map[string]json.RawMessage
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return false
	}

	base, err := json.Marshal(current)
	if err != nil {
		h.fail(c, errs.Wrap(err, "marshal current document"), "merge document")
		return false
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		h.fail(c, errs.Wrap(err, "unmarshal current document"), "merge document")
		return false
	}
	for k, v := range patch {
		merged[k] = v
	}

	raw, err := json.Marshal(merged)
	if err != nil {
		h.fail(c, errs.Wrap(err, "marshal merged document"), "merge document")
		return false
	}
	if err := h.schemas.Validate(kind, raw); err != nil {
		h.fail(c, err, "validate document")
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return false
	}
	return true
}

func (h *AdminHandler) fail(c *gin.Context, err error, action string) {
	switch {
	case errs.Is(err, errs.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errs.Is(err, storage.ErrSlugTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "Slug already in use"})
	case errs.Is(err, schema.ErrInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Admin request failed",
			zap.String("action", action),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// activeFlag reads isActive from a document, falling back to def when absent.
func activeFlag(raw []byte, def bool) bool {
	var doc struct {
		IsActive *bool `json:"isActive"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil || doc.IsActive == nil {
		return def
	}
	return *doc.IsActive
}

func relayDefaults(r *models.Relay) {
	if r.Method == "" {
		r.Method = http.MethodPost
	}
	if r.Format == "" {
		r.Format = models.FormatJSON
	}
}

func randomSlug() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:slugLength]
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
