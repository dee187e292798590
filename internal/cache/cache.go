package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/sawpanic/spotlift/internal/attribution"
	"github.com/sawpanic/spotlift/internal/config"
)

// Cache stores finished reports keyed by dataset digest and policy
type Cache interface {
	Get(ctx context.Context, key string) (*attribution.Report, bool)
	Set(ctx context.Context, key string, report *attribution.Report)
}

// Key builds the cache key for a dataset digest under a duplicate spot policy
func Key(digest string, policy attribution.DuplicatePolicy) string {
	return fmt.Sprintf("spotlift:report:%s:%s", policy, digest)
}

// New returns the cache described by cfg: nil when disabled, redis with a
// memory fallback when an address is set, memory otherwise.
func New(cfg config.CacheConfig) Cache {
	if !cfg.Enabled {
		return nil
	}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return NewRedis(client, cfg)
	}
	return NewMemory(cfg.TTL)
}

type memory struct {
	mu  sync.Mutex
	m   map[string]entry
	ttl time.Duration
	now func() time.Time
}

type entry struct {
	b   []byte
	exp time.Time
}

// NewMemory returns an in-process cache; ttl <= 0 keeps entries forever
func NewMemory(ttl time.Duration) Cache {
	return newMemory(ttl)
}

func newMemory(ttl time.Duration) *memory {
	return &memory{m: make(map[string]entry), ttl: ttl, now: time.Now}
}

func (c *memory) Get(_ context.Context, key string) (*attribution.Report, bool) {
	b, ok := c.get(key)
	if !ok {
		return nil, false
	}
	return decode(b)
}

func (c *memory) Set(_ context.Context, key string, report *attribution.Report) {
	b, err := json.Marshal(report)
	if err != nil {
		return
	}
	c.set(key, b)
}

func (c *memory) get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok {
		return nil, false
	}
	if e.expired(c.now()) {
		delete(c.m, key)
		return nil, false
	}
	return e.b, true
}

func (c *memory) set(key string, b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, old := range c.m {
		if old.expired(now) {
			delete(c.m, k)
		}
	}

	e := entry{b: append([]byte(nil), b...)}
	if c.ttl > 0 {
		e.exp = now.Add(c.ttl)
	}
	c.m[key] = e
}

func (e entry) expired(now time.Time) bool {
	return !e.exp.IsZero() && now.After(e.exp)
}

// Redis caches reports in redis behind a circuit breaker. While the breaker
// is open, or when redis fails, the local memory cache answers.
type Redis struct {
	client    *redis.Client
	breaker   *gobreaker.CircuitBreaker
	local     *memory
	ttl       time.Duration
	opTimeout time.Duration
}

// NewRedis wraps an existing client
func NewRedis(client *redis.Client, cfg config.CacheConfig) *Redis {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 1
	}
	settings := gobreaker.Settings{
		Name:    "redis-cache",
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("component", "cache").Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("Cache circuit breaker state changed")
		},
	}

	opTimeout := cfg.OpTimeout
	if opTimeout <= 0 {
		opTimeout = 500 * time.Millisecond
	}

	return &Redis{
		client:    client,
		breaker:   gobreaker.NewCircuitBreaker(settings),
		local:     newMemory(cfg.TTL),
		ttl:       cfg.TTL,
		opTimeout: opTimeout,
	}
}

// State reports the breaker state (closed, half-open, open)
func (r *Redis) State() string {
	return r.breaker.State().String()
}

func (r *Redis) Get(ctx context.Context, key string) (*attribution.Report, bool) {
	v, err := r.breaker.Execute(func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
		defer cancel()
		b, err := r.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return []byte(nil), nil
		}
		return b, err
	})
	if err != nil {
		log.Debug().Str("component", "cache").Err(err).Msg("Redis get failed, using local cache")
		return r.local.Get(ctx, key)
	}

	b := v.([]byte)
	if b == nil {
		return nil, false
	}
	return decode(b)
}

func (r *Redis) Set(ctx context.Context, key string, report *attribution.Report) {
	b, err := json.Marshal(report)
	if err != nil {
		return
	}
	r.local.set(key, b)

	_, err = r.breaker.Execute(func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
		defer cancel()
		return nil, r.client.Set(ctx, key, b, r.ttl).Err()
	})
	if err != nil {
		log.Debug().Str("component", "cache").Err(err).Msg("Redis set failed")
	}
}

func decode(b []byte) (*attribution.Report, bool) {
	var report attribution.Report
	if err := json.Unmarshal(b, &report); err != nil {
		return nil, false
	}
	return &report, true
}
