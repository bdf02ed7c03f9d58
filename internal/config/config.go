// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	Host string `envconfig:"MEDIC_HOST" yaml:"host"`
	Port int    `envconfig:"MEDIC_PORT" yaml:"port"`

	// Qdrant configuration
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Embedding provider configuration
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Result cache configuration
	ResultCache ResultCacheConfig `yaml:"result_cache"`

	// Search pipeline configuration
	Search SearchConfig `yaml:"search"`

	// Latency monitor configuration
	Latency LatencyConfig `yaml:"latency"`

	// Bus configuration
	Bus BusConfig `yaml:"bus"`

	// Logging configuration
	Log LogConfig `yaml:"log"`

	// Security configuration
	Security SecurityConfig `yaml:"security"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	URL        string `envconfig:"QDRANT_URL" yaml:"url"`
	APIKey     string `envconfig:"QDRANT_API_KEY" yaml:"api_key"`
	Collection string `envconfig:"QDRANT_COLLECTION" yaml:"collection"`
	TimeoutMs  int    `envconfig:"QDRANT_TIMEOUT_MS" yaml:"timeout_ms"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey     string `envconfig:"MEDIC_EMBED_API_KEY" yaml:"api_key"`
	BaseURL    string `envconfig:"MEDIC_EMBED_BASE_URL" yaml:"base_url"`
	Model      string `envconfig:"MEDIC_EMBED_MODEL" yaml:"model"`
	Dimensions int    `envconfig:"MEDIC_EMBED_DIM" yaml:"dimensions"`
	TimeoutMs  int    `envconfig:"MEDIC_EMBED_TIMEOUT_MS" yaml:"timeout_ms"`
	CacheSize  int    `envconfig:"MEDIC_EMBED_CACHE_SIZE" yaml:"cache_size"`
	CacheTTL   int    `envconfig:"MEDIC_EMBED_CACHE_TTL" yaml:"cache_ttl"` // seconds
}

// ResultCacheConfig holds result cache settings.
type ResultCacheConfig struct {
	Type        string `envconfig:"MEDIC_RESULT_CACHE_TYPE" yaml:"type"`
	TTL         int    `envconfig:"MEDIC_RESULT_CACHE_TTL" yaml:"ttl"`                   // seconds
	DegradedTTL int    `envconfig:"MEDIC_RESULT_CACHE_DEGRADED_TTL" yaml:"degraded_ttl"` // seconds
	RedisURL    string `envconfig:"MEDIC_REDIS_URL" yaml:"redis_url"`
}

// SearchConfig holds search pipeline settings.
type SearchConfig struct {
	DefaultLimit int `envconfig:"MEDIC_DEFAULT_LIMIT" yaml:"default_limit"`
	MaxLimit     int `envconfig:"MEDIC_MAX_LIMIT" yaml:"max_limit"`
	MaxQueryLen  int `envconfig:"MEDIC_MAX_QUERY_LEN" yaml:"max_query_len"`
}

// LatencyConfig holds latency monitor settings.
type LatencyConfig struct {
	WindowSize int `envconfig:"MEDIC_LATENCY_WINDOW" yaml:"window_size"`
	BudgetMs   int `envconfig:"MEDIC_LATENCY_BUDGET_MS" yaml:"budget_ms"`
}

// BusConfig holds event bus settings.
type BusConfig struct {
	Type         string `envconfig:"MEDIC_BUS_TYPE" yaml:"type"`
	KafkaBrokers string `envconfig:"MEDIC_KAFKA_BROKERS" yaml:"kafka_brokers"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"MEDIC_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"MEDIC_LOG_FORMAT" yaml:"format"`
}

// SecurityConfig holds security settings.
type SecurityConfig struct {
	APIKey    string `envconfig:"MEDIC_API_KEY" yaml:"api_key"`
	RateLimit int    `envconfig:"MEDIC_RATE_LIMIT" yaml:"rate_limit"` // 0 = disabled
}

// ObservabilityConfig holds observability settings.
type ObservabilityConfig struct {
	MetricsEnabled bool   `envconfig:"MEDIC_METRICS_ENABLED" yaml:"metrics_enabled"`
	MetricsPath    string `envconfig:"MEDIC_METRICS_PATH" yaml:"metrics_path"`
}

// Load loads configuration from environment variables and optional config file.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Set defaults first
	setDefaults(cfg)

	// Load from YAML file if provided (overrides defaults)
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func setDefaults(cfg *Config) {
	cfg.Host = "0.0.0.0"
	cfg.Port = 8080

	cfg.Qdrant = QdrantConfig{
		URL:        "http://localhost:6333",
		Collection: "protocols",
		TimeoutMs:  5000,
	}

	cfg.Embedding = EmbeddingConfig{
		Model:      "text-embedding-3-small",
		Dimensions: 1536,
		TimeoutMs:  5000,
		CacheSize:  10000,
		CacheTTL:   6 * 60 * 60, // 6 hours
	}

	cfg.ResultCache = ResultCacheConfig{
		Type:        "memory",
		TTL:         300,
		DegradedTTL: 75,
		RedisURL:    "redis://localhost:6379",
	}

	cfg.Search = SearchConfig{
		DefaultLimit: 10,
		MaxLimit:     50,
		MaxQueryLen:  500,
	}

	cfg.Latency = LatencyConfig{
		WindowSize: 200,
		BudgetMs:   800,
	}

	cfg.Bus = BusConfig{
		Type: "memory",
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}

	cfg.Security = SecurityConfig{
		RateLimit: 0,
	}

	cfg.Observability = ObservabilityConfig{
		MetricsEnabled: true,
		MetricsPath:    "/metrics",
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}

	if c.Qdrant.Collection == "" {
		errs = append(errs, "qdrant collection must not be empty")
	}

	if c.Embedding.Dimensions < 1 {
		errs = append(errs, "embedding dimensions must be positive")
	}

	if c.Embedding.CacheSize < 1 {
		errs = append(errs, "embedding cache_size must be positive")
	}

	validCacheTypes := map[string]bool{"memory": true, "redis": true}
	if !validCacheTypes[c.ResultCache.Type] {
		errs = append(errs, fmt.Sprintf("invalid result cache type: %s (must be memory or redis)", c.ResultCache.Type))
	}

	if c.ResultCache.DegradedTTL > c.ResultCache.TTL {
		errs = append(errs, "degraded_ttl must not exceed ttl")
	}

	validBusTypes := map[string]bool{"memory": true, "kafka": true}
	if !validBusTypes[c.Bus.Type] {
		errs = append(errs, fmt.Sprintf("invalid bus type: %s (must be memory or kafka)", c.Bus.Type))
	}

	if c.Search.DefaultLimit < 1 || c.Search.DefaultLimit > c.Search.MaxLimit {
		errs = append(errs, "default_limit must be between 1 and max_limit")
	}

	if c.Latency.WindowSize < 1 {
		errs = append(errs, "latency window_size must be positive")
	}

	if c.Latency.BudgetMs < 1 {
		errs = append(errs, "latency budget_ms must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// Address returns the server address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// QdrantTimeout returns the Qdrant operation timeout as a duration.
func (c *Config) QdrantTimeout() time.Duration {
	return time.Duration(c.Qdrant.TimeoutMs) * time.Millisecond
}

// EmbeddingTimeout returns the embedding call timeout as a duration.
func (c *Config) EmbeddingTimeout() time.Duration {
	return time.Duration(c.Embedding.TimeoutMs) * time.Millisecond
}
