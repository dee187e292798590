package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/spotlift/internal/attribution"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "text", cfg.Output.Format)
	assert.Equal(t, attribution.DuplicatesCollapse, cfg.DuplicatePolicy())
	assert.False(t, cfg.Postgres.Enabled)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, "127.0.0.1", cfg.HTTP.Host)
}

func TestLoad_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spotlift.yaml")
	data := `
input:
  path: data/campaign.json
attribution:
  duplicate_spots: reject
output:
  format: json
cache:
  enabled: true
  redis_addr: localhost:6379
  ttl: 10m
postgres:
  enabled: true
  dsn: postgres://localhost/spotlift?sslmode=disable
kafka:
  enabled: true
  brokers: [localhost:9092]
  topic: attribution.runs
http:
  port: 9090
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "data/campaign.json", cfg.Input.Path)
	assert.Equal(t, attribution.DuplicatesReject, cfg.DuplicatePolicy())
	assert.Equal(t, "json", cfg.Output.Format)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, uint32(3), cfg.Cache.FailureThreshold) // default kept
	assert.Equal(t, 30*time.Second, cfg.Postgres.QueryTimeout)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 9090, cfg.HTTP.Port)
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output: [nope"), 0644))
	_, err = Load(path)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"bad_duplicate_policy", func(c *Config) { c.Attribution.DuplicateSpots = "merge" }, "attribution"},
		{"bad_output_format", func(c *Config) { c.Output.Format = "csv" }, "output format"},
		{"bad_log_format", func(c *Config) { c.Log.Format = "xml" }, "log format"},
		{"postgres_without_dsn", func(c *Config) { c.Postgres.Enabled = true }, "dsn is required"},
		{"kafka_without_brokers", func(c *Config) { c.Kafka.Enabled = true }, "brokers"},
		{"kafka_without_topic", func(c *Config) {
			c.Kafka.Enabled = true
			c.Kafka.Brokers = []string{"b:9092"}
			c.Kafka.Topic = ""
		}, "topic"},
		{"redis_without_threshold", func(c *Config) {
			c.Cache.RedisAddr = "localhost:6379"
			c.Cache.FailureThreshold = 0
		}, "failure_threshold"},
		{"bad_port", func(c *Config) { c.HTTP.Port = 0 }, "port"},
		{"burst_without_limit", func(c *Config) { c.HTTP.RateBurst = 0 }, "rate_burst"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
