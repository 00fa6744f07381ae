package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	domainconfig "locallens/domain/config"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string `yaml:"server_address"`
	Environment   string `yaml:"environment"`

	// Remote store: "dynamodb" or "memory"
	StoreBackend     string `yaml:"store_backend"`
	AWSRegion        string `yaml:"aws_region"`
	DynamoDBTable    string `yaml:"dynamodb_table"`
	DynamoDBEndpoint string `yaml:"dynamodb_endpoint"`
	GSI1IndexName    string `yaml:"gsi1_index_name"` // active posts in feed order
	GSI2IndexName    string `yaml:"gsi2_index_name"` // author history and post comments
	EventBusName     string `yaml:"event_bus_name"`
	EventSource      string `yaml:"event_source"`

	// Live updates
	WatchInterval       time.Duration `yaml:"watch_interval"`
	WatchRatePerSecond  float64       `yaml:"watch_rate_per_second"`
	ChangeFeedURL       string        `yaml:"change_feed_url"`
	ChangeFeedReconnect time.Duration `yaml:"change_feed_reconnect"`

	// Offline storage: "file", "redis" or "memory"
	OfflineStorage string `yaml:"offline_storage"`
	OfflineFile    string `yaml:"offline_file"`
	RedisAddr      string `yaml:"redis_addr"`
	RedisPassword  string `yaml:"redis_password"`
	RedisDB        int    `yaml:"redis_db"`
	RedisPrefix    string `yaml:"redis_prefix"`

	// Connectivity probing. An empty URL disables the probe loop.
	ProbeURL      string        `yaml:"probe_url"`
	ProbeInterval time.Duration `yaml:"probe_interval"`

	// Logging
	LogLevel string `yaml:"log_level"`

	// Feature flags
	EnableMetrics      bool     `yaml:"enable_metrics"`
	EnableTracing      bool     `yaml:"enable_tracing"`
	EnableCORS         bool     `yaml:"enable_cors"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`

	// Business rules, derived from Environment
	Domain *domainconfig.DomainConfig `yaml:"-"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		ServerAddress:       ":8080",
		Environment:         "development",
		StoreBackend:        "dynamodb",
		AWSRegion:           "us-east-1",
		DynamoDBTable:       "locallens",
		GSI1IndexName:       "GSI1",
		GSI2IndexName:       "GSI2",
		EventSource:         "locallens.feed",
		WatchInterval:       5 * time.Second,
		WatchRatePerSecond:  2,
		ChangeFeedReconnect: 3 * time.Second,
		OfflineStorage:      "file",
		OfflineFile:         "data/offline.json",
		RedisAddr:           "127.0.0.1:6379",
		RedisPrefix:         "locallens:",
		ProbeInterval:       15 * time.Second,
		LogLevel:            "info",
		EnableMetrics:       true,
		EnableCORS:          true,
		CORSAllowedOrigins:  []string{"*"},
	}
}

// LoadConfig loads configuration in layers: defaults, the YAML file named by
// CONFIG_FILE, a .env file, then environment variables.
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	// Variables already in the environment win over .env entries.
	_ = godotenv.Load(".env")
	cfg.loadEnv()

	cfg.Domain = domainconfig.LoadDomainConfig(cfg.Environment)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load is an alias for LoadConfig
func Load() (*Config, error) {
	return LoadConfig()
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() {
	c.ServerAddress = getEnv("SERVER_ADDRESS", c.ServerAddress)
	c.Environment = getEnv("ENVIRONMENT", c.Environment)

	c.StoreBackend = getEnv("STORE_BACKEND", c.StoreBackend)
	c.AWSRegion = getEnv("AWS_REGION", c.AWSRegion)
	c.DynamoDBTable = getEnv("TABLE_NAME", getEnv("DYNAMODB_TABLE", c.DynamoDBTable))
	c.DynamoDBEndpoint = getEnv("DYNAMODB_ENDPOINT", c.DynamoDBEndpoint)
	c.GSI1IndexName = getEnv("GSI1_INDEX_NAME", c.GSI1IndexName)
	c.GSI2IndexName = getEnv("GSI2_INDEX_NAME", c.GSI2IndexName)
	c.EventBusName = getEnv("EVENT_BUS_NAME", c.EventBusName)
	c.EventSource = getEnv("EVENT_SOURCE", c.EventSource)

	c.WatchInterval = getEnvDuration("WATCH_INTERVAL", c.WatchInterval)
	c.WatchRatePerSecond = getEnvFloat("WATCH_RATE_PER_SECOND", c.WatchRatePerSecond)
	c.ChangeFeedURL = getEnv("CHANGE_FEED_URL", c.ChangeFeedURL)
	c.ChangeFeedReconnect = getEnvDuration("CHANGE_FEED_RECONNECT", c.ChangeFeedReconnect)

	c.OfflineStorage = getEnv("OFFLINE_STORAGE", c.OfflineStorage)
	c.OfflineFile = getEnv("OFFLINE_FILE", c.OfflineFile)
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = getEnvInt("REDIS_DB", c.RedisDB)
	c.RedisPrefix = getEnv("REDIS_PREFIX", c.RedisPrefix)

	c.ProbeURL = getEnv("PROBE_URL", c.ProbeURL)
	c.ProbeInterval = getEnvDuration("PROBE_INTERVAL", c.ProbeInterval)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.EnableMetrics = getEnvBool("ENABLE_METRICS", c.EnableMetrics)
	c.EnableTracing = getEnvBool("ENABLE_TRACING", c.EnableTracing)
	c.EnableCORS = getEnvBool("ENABLE_CORS", c.EnableCORS)
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.CORSAllowedOrigins = splitList(v)
	}
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case "dynamodb":
		if c.DynamoDBTable == "" {
			return fmt.Errorf("DYNAMODB_TABLE is required")
		}
		if c.GSI1IndexName == "" || c.GSI2IndexName == "" {
			return fmt.Errorf("GSI1_INDEX_NAME and GSI2_INDEX_NAME are required")
		}
	case "memory":
		if c.IsProduction() {
			return fmt.Errorf("STORE_BACKEND=memory is not allowed in production")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.OfflineStorage {
	case "file":
		if c.OfflineFile == "" {
			return fmt.Errorf("OFFLINE_FILE is required")
		}
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown OFFLINE_STORAGE %q", c.OfflineStorage)
	}

	if c.WatchInterval <= 0 {
		return fmt.Errorf("WATCH_INTERVAL must be positive")
	}
	if c.WatchRatePerSecond <= 0 {
		return fmt.Errorf("WATCH_RATE_PER_SECOND must be positive")
	}

	if c.Domain != nil {
		if err := c.Domain.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
