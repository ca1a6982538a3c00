package handlers

import (
	"context"
	"net/http"

	"postback-relay/internal/pipeline"
	"postback-relay/internal/validation"
	"postback-relay/pkg/errs"
	"postback-relay/pkg/metrics"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Processor runs one inbound postback.
type Processor interface {
	Process(ctx context.Context, slug string, r *http.Request) (*pipeline.Result, error)
}

type PostbackHandler struct {
	logger      *zap.Logger
	processor   Processor
	rateLimiter *RateLimiter
	debug       bool
}

func NewPostbackHandler(logger *zap.Logger, processor Processor, rateLimiter *RateLimiter, debug bool) *PostbackHandler {
	return &PostbackHandler{
		logger:      logger,
		processor:   processor,
		rateLimiter: rateLimiter,
		debug:       debug,
	}
}

// HandlePostback serves /x/:slug for every method.
func (h *PostbackHandler) HandlePostback(c *gin.Context) {
	slug := c.Param("slug")

	if !h.rateLimiter.AllowRequest(slug) {
		metrics.RateLimitExceeded.WithLabelValues(slug).Inc()
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
		return
	}

	if h.debug {
		h.logger.Debug("Received postback",
			zap.String("slug", slug),
			zap.String("method", c.Request.Method),
			zap.String("content_type", c.GetHeader("Content-Type")),
			zap.String("query", c.Request.URL.RawQuery),
			zap.Any("headers", c.Request.Header),
			zap.String("remote_ip", c.ClientIP()),
		)
	}

	result, err := h.processor.Process(c.Request.Context(), slug, c.Request)
	if err != nil {
		h.writeError(c, slug, err)
		return
	}

	if result.Body == nil {
		c.Status(result.StatusCode)
		return
	}
	c.JSON(result.StatusCode, result.Body)
}

func (h *PostbackHandler) writeError(c *gin.Context, slug string, err error) {
	switch {
	case errs.Is(err, pipeline.ErrEndpointNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Endpoint not found"})
	case errs.Is(err, pipeline.ErrMethodNotAllowed):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Method not allowed"})
	case errs.Is(err, validation.ErrMismatch), errs.Is(err, validation.ErrConfiguration):
		h.logger.Warn("Postback rejected",
			zap.String("slug", slug),
			zap.String("ip", c.ClientIP()),
			zap.Error(err),
		)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Failed to process postback",
			zap.String("slug", slug),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
