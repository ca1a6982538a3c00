package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StorageMemory  = "memory"
	StorageMongoDB = "mongodb"

	RelayModeLocal = "local"
	RelayModeQueue = "queue"
)

type Config struct {
	Server     ServerConfig
	LogLevel   string           `mapstructure:"log_level"`
	Storage    string           `mapstructure:"storage"`
	RabbitMQ   RabbitMQConfig   `mapstructure:"rabbitmq"`
	MongoDB    MongoDBConfig    `mapstructure:"mongodb"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Security   SecurityConfig   `mapstructure:"security"`
	Relay      RelayConfig      `mapstructure:"relay"`
	RateLimit  RateLimitConfig  `mapstructure:"rateLimit"`
}

type SecurityConfig struct {
	APIKeyHeader string            `mapstructure:"apiKeyHeader"`
	APIKeys      map[string]string `mapstructure:"apiKeys"`
	// Debug logs the full normalized request of every postback.
	Debug bool `mapstructure:"debug"`
}

type MonitoringConfig struct {
	PrometheusPort int    `mapstructure:"prometheusPort"`
	MetricsPath    string `mapstructure:"metricsPath"`
}

type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type RabbitMQConfig struct {
	URL       string `mapstructure:"url"`
	Exchange  string `mapstructure:"exchange"`
	QueueName string `mapstructure:"queueName"`
}

// RedisConfig enables the endpoint cache when Addr is set.
type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	EndpointTTL time.Duration `mapstructure:"endpointTTL"`
}

type RelayConfig struct {
	Mode            string        `mapstructure:"mode"`
	Workers         int           `mapstructure:"workers"`
	DeliveryWorkers int           `mapstructure:"deliveryWorkers"`
	RequestTimeout  time.Duration `mapstructure:"requestTimeout"`
	UserAgent       string        `mapstructure:"userAgent"`
}

// RateLimitConfig bounds inbound postbacks per endpoint. Zero disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requestsPerSecond"`
	Burst             int     `mapstructure:"burst"`
}

type ServerConfig struct {
	Port int
	Host string
}

// Load reads ./config/config.yaml (optional), a .env file (optional) and
// the environment.
func Load() (*Config, error) {
	return LoadFrom("./config")
}

func LoadFrom(dir string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.AutomaticEnv()

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("log_level", "info")
	v.SetDefault("storage", StorageMemory)
	v.SetDefault("mongodb.database", "postback_relay")
	v.SetDefault("rabbitmq.exchange", "postback_relay")
	v.SetDefault("rabbitmq.queueName", "relay_jobs")
	v.SetDefault("redis.endpointTTL", "5m")
	v.SetDefault("monitoring.prometheusPort", 9090)
	v.SetDefault("monitoring.metricsPath", "/metrics")
	v.SetDefault("security.apiKeyHeader", "X-API-Key")
	v.SetDefault("relay.mode", RelayModeLocal)
	v.SetDefault("relay.workers", 16)
	v.SetDefault("relay.deliveryWorkers", 64)
	v.SetDefault("relay.requestTimeout", "30s")
	v.SetDefault("relay.userAgent", "Postback-Relay/1.0")
	v.SetDefault("rateLimit.requestsPerSecond", 50)
	v.SetDefault("rateLimit.burst", 100)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Override with environment variables
	if port := os.Getenv("APP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	if promPort := os.Getenv("PROMETHEUS_PORT"); promPort != "" {
		if p, err := strconv.Atoi(promPort); err == nil {
			cfg.Monitoring.PrometheusPort = p
		}
	}

	if uri := os.Getenv("MONGODB_URI"); uri != "" {
		cfg.MongoDB.URI = uri
		if os.Getenv("STORAGE") == "" {
			cfg.Storage = StorageMongoDB
		}
	}
	if db := os.Getenv("MONGODB_DATABASE"); db != "" {
		cfg.MongoDB.Database = db
	}
	if storage := os.Getenv("STORAGE"); storage != "" {
		cfg.Storage = storage
	}

	// Support both CLOUDAMQP_URL and RABBITMQ_URI for backwards compatibility
	if cloudamqpURL := os.Getenv("CLOUDAMQP_URL"); cloudamqpURL != "" {
		cfg.RabbitMQ.URL = cloudamqpURL
	} else if rabbitURL := os.Getenv("RABBITMQ_URI"); rabbitURL != "" {
		cfg.RabbitMQ.URL = rabbitURL
	}

	if exchange := os.Getenv("RABBITMQ_EXCHANGE"); exchange != "" {
		cfg.RabbitMQ.Exchange = exchange
	}
	if queue := os.Getenv("RABBITMQ_QUEUE"); queue != "" {
		cfg.RabbitMQ.QueueName = queue
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}

	if mode := os.Getenv("RELAY_MODE"); mode != "" {
		cfg.Relay.Mode = mode
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if header := os.Getenv("API_KEY_HEADER"); header != "" {
		cfg.Security.APIKeyHeader = header
	}
	if os.Getenv("POSTBACK_DEBUG") == "true" {
		cfg.Security.Debug = true
	}

	if cfg.Security.APIKeys == nil {
		cfg.Security.APIKeys = make(map[string]string)
	}
	for name, key := range loadAPIKeysFromEnv() {
		cfg.Security.APIKeys[name] = key
	}

	return &cfg, nil
}

// loadAPIKeysFromEnv maps NAME_API_KEY variables to admin clients named
// "name". ADMIN_API_KEY becomes the "admin" client.
func loadAPIKeysFromEnv() map[string]string {
	apiKeys := make(map[string]string)

	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 || parts[1] == "" {
			continue
		}

		envName := parts[0]
		if strings.HasSuffix(envName, "_API_KEY") {
			clientName := strings.ToLower(strings.TrimSuffix(envName, "_API_KEY"))
			apiKeys[clientName] = parts[1]
		}
	}

	return apiKeys
}
