package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type SecurityMiddleware struct {
	logger       *zap.Logger
	apiKeys      map[string]string // clientID -> apiKey
	apiKeyHeader string
}

func NewSecurityMiddleware(logger *zap.Logger, apiKeys map[string]string, apiKeyHeader string) *SecurityMiddleware {
	return &SecurityMiddleware{
		logger:       logger,
		apiKeys:      apiKeys,
		apiKeyHeader: apiKeyHeader,
	}
}

// Authenticate guards the admin API.
func (m *SecurityMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader(m.apiKeyHeader)
		if apiKey == "" {
			m.logger.Warn("Missing API key", zap.String("ip", c.ClientIP()))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing API key"})
			c.Abort()
			return
		}

		clientID := m.validateAPIKey(apiKey)
		if clientID == "" {
			prefixLen := len(apiKey)
			if prefixLen > 8 {
				prefixLen = 8
			}
			m.logger.Warn("Invalid API key", zap.String("ip", c.ClientIP()), zap.String("api_key_prefix", apiKey[:prefixLen]))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			c.Abort()
			return
		}

		// Set client ID for later use
		c.Set("clientID", clientID)
		m.logger.Debug("Successfully authenticated client", zap.String("client_id", clientID))
		c.Next()
	}
}

func (m *SecurityMiddleware) CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, "+m.apiKeyHeader)
		c.Header("Access-Control-Max-Age", "3600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Recovery turns a panic in a handler into a logged 500.
func (m *SecurityMiddleware) Recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered interface{}) {
		m.logger.Error("Panic while handling request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Any("panic", recovered),
			zap.Stack("stack"),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	})
}

func (m *SecurityMiddleware) validateAPIKey(apiKey string) string {
	// Find client ID by API key
	for clientID, key := range m.apiKeys {
		if key != "" && subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) == 1 {
			return clientID
		}
	}
	return ""
}
