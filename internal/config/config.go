package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sawpanic/spotlift/internal/attribution"
)

// Config represents the complete spotlift configuration
type Config struct {
	Input       InputConfig       `yaml:"input"`
	Attribution AttributionConfig `yaml:"attribution"`
	Output      OutputConfig      `yaml:"output"`
	Log         LogConfig         `yaml:"log"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Cache       CacheConfig       `yaml:"cache"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	HTTP        HTTPConfig        `yaml:"http"`
}

// InputConfig selects where spots and signups are read from
type InputConfig struct {
	Path     string `yaml:"path"`     // JSON file with tvSpots/newUsers
	Campaign string `yaml:"campaign"` // campaign name when loading from postgres
}

// AttributionConfig tunes the attribution engine
type AttributionConfig struct {
	DuplicateSpots string `yaml:"duplicate_spots"` // collapse|reject
}

// OutputConfig controls result rendering
type OutputConfig struct {
	Format string `yaml:"format"` // text|json
	Path   string `yaml:"path"`   // empty writes to stdout
}

// LogConfig controls zerolog setup
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // auto|console|json
}

// PipelineConfig controls how optional collaborators affect a run
type PipelineConfig struct {
	Strict bool `yaml:"strict"` // fail the run when persistence or publishing fails
}

// CacheConfig configures the report cache
type CacheConfig struct {
	Enabled          bool          `yaml:"enabled"`
	RedisAddr        string        `yaml:"redis_addr"` // empty uses the in-memory cache
	TTL              time.Duration `yaml:"ttl"`
	OpTimeout        time.Duration `yaml:"op_timeout"`
	FailureThreshold uint32        `yaml:"failure_threshold"` // consecutive redis failures before the breaker opens
	OpenTimeout      time.Duration `yaml:"open_timeout"`      // how long the breaker stays open
}

// PostgresConfig configures the postgres loader and run repository
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
}

// KafkaConfig configures the run publisher
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// HTTPConfig configures the API server
type HTTPConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	RateLimitRPS float64       `yaml:"rate_limit_rps"`
	RateBurst    int           `yaml:"rate_burst"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
}

// Default returns a Config with sensible defaults. External services are
// disabled until configured.
func Default() Config {
	return Config{
		Input:       InputConfig{Path: "new_users.json"},
		Attribution: AttributionConfig{DuplicateSpots: string(attribution.DuplicatesCollapse)},
		Output:      OutputConfig{Format: "text"},
		Log:         LogConfig{Level: "info", Format: "auto"},
		Cache: CacheConfig{
			Enabled:          true,
			TTL:              time.Hour,
			OpTimeout:        500 * time.Millisecond,
			FailureThreshold: 3,
			OpenTimeout:      30 * time.Second,
		},
		Postgres: PostgresConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			QueryTimeout:    30 * time.Second,
		},
		Kafka: KafkaConfig{Topic: "spotlift.runs"},
		HTTP: HTTPConfig{
			Host:         "127.0.0.1",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
			RateLimitRPS: 20,
			RateBurst:    40,
			MaxBodyBytes: 16 << 20,
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// DuplicatePolicy returns the parsed duplicate spot policy
func (c Config) DuplicatePolicy() attribution.DuplicatePolicy {
	p, err := attribution.ParseDuplicatePolicy(c.Attribution.DuplicateSpots)
	if err != nil {
		return attribution.DuplicatesCollapse
	}
	return p
}

// Validate ensures the configuration is valid and consistent
func (c Config) Validate() error {
	if _, err := attribution.ParseDuplicatePolicy(c.Attribution.DuplicateSpots); err != nil {
		return fmt.Errorf("attribution: %w", err)
	}

	switch strings.ToLower(c.Output.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("output format must be text or json, got %q", c.Output.Format)
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "auto", "console", "json":
	default:
		return fmt.Errorf("log format must be auto, console or json, got %q", c.Log.Format)
	}

	if c.Cache.Enabled {
		if c.Cache.TTL < 0 {
			return fmt.Errorf("cache ttl cannot be negative, got %s", c.Cache.TTL)
		}
		if c.Cache.RedisAddr != "" && c.Cache.FailureThreshold == 0 {
			return fmt.Errorf("cache failure_threshold must be positive when redis is configured")
		}
	}

	if c.Postgres.Enabled {
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres dsn is required when enabled")
		}
		if c.Postgres.QueryTimeout <= 0 {
			return fmt.Errorf("postgres query_timeout must be positive, got %s", c.Postgres.QueryTimeout)
		}
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka brokers are required when enabled")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("kafka topic cannot be empty")
		}
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.HTTP.RateLimitRPS < 0 {
		return fmt.Errorf("http rate_limit_rps cannot be negative, got %f", c.HTTP.RateLimitRPS)
	}
	if c.HTTP.RateLimitRPS > 0 && c.HTTP.RateBurst <= 0 {
		return fmt.Errorf("http rate_burst must be positive when rate limiting, got %d", c.HTTP.RateBurst)
	}

	return nil
}
