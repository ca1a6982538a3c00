package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv("MONGODB_URI", "")
	t.Setenv("STORAGE", "")

	cfg, err := LoadFrom(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, RelayModeLocal, cfg.Relay.Mode)
	assert.Equal(t, 30*time.Second, cfg.Relay.RequestTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Redis.EndpointTTL)
	assert.Equal(t, "X-API-Key", cfg.Security.APIKeyHeader)
	assert.Equal(t, 100, cfg.RateLimit.Burst)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
server:
  port: 9000
relay:
  mode: queue
  workers: 4
  requestTimeout: 5s
security:
  apiKeys:
    ops: from-file
`), 0o644))

	t.Setenv("APP_PORT", "9100")
	t.Setenv("MONGODB_URI", "mongodb://db:27017")
	t.Setenv("STORAGE", "")
	t.Setenv("CLOUDAMQP_URL", "amqp://cloud")
	t.Setenv("ADMIN_API_KEY", "secret")
	t.Setenv("RELAY_MODE", "")

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, StorageMongoDB, cfg.Storage)
	assert.Equal(t, "mongodb://db:27017", cfg.MongoDB.URI)
	assert.Equal(t, "amqp://cloud", cfg.RabbitMQ.URL)
	assert.Equal(t, RelayModeQueue, cfg.Relay.Mode)
	assert.Equal(t, 4, cfg.Relay.Workers)
	assert.Equal(t, 5*time.Second, cfg.Relay.RequestTimeout)
	assert.Equal(t, "secret", cfg.Security.APIKeys["admin"])
	assert.Equal(t, "from-file", cfg.Security.APIKeys["ops"])
}
