// Package ratelimit throttles API callers with one token bucket per key.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config represents rate limiter configuration
type Config struct {
	RequestsPerSecond float64       `json:"requests_per_second" yaml:"requests_per_second"`
	BurstSize         int           `json:"burst_size" yaml:"burst_size"`
	MaxKeys           int           `json:"max_keys,omitempty" yaml:"max_keys,omitempty"`
	CleanupPeriod     time.Duration `json:"cleanup_period,omitempty" yaml:"cleanup_period,omitempty"`
}

// Validate checks the limits and fills in the cleanup defaults.
func (c *Config) Validate() error {
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests per second must be positive")
	}
	if c.BurstSize < 1 {
		return fmt.Errorf("burst size must be at least 1")
	}
	if c.MaxKeys <= 0 {
		c.MaxKeys = 10000
	}
	if c.CleanupPeriod <= 0 {
		c.CleanupPeriod = 10 * time.Minute
	}
	return nil
}

// KeyedLimiter keeps a rate.Limiter per key. Keys idle for longer than the
// cleanup period are dropped.
type KeyedLimiter struct {
	mu          sync.Mutex
	config      Config
	limiters    map[string]*limiterEntry
	lastCleanup time.Time
	now         func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// NewKeyedLimiter creates a limiter from config.
func NewKeyedLimiter(config Config) (*KeyedLimiter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &KeyedLimiter{
		config:      config,
		limiters:    make(map[string]*limiterEntry),
		lastCleanup: time.Now(),
		now:         time.Now,
	}, nil
}

// Allow reports whether a request for key may proceed now.
func (l *KeyedLimiter) Allow(key string) bool {
	return l.limiterFor(key).AllowN(l.now(), 1)
}

func (l *KeyedLimiter) limiterFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastCleanup) > l.config.CleanupPeriod {
		l.cleanup(now)
	}

	entry, ok := l.limiters[key]
	if !ok {
		entry = &limiterEntry{
			limiter: rate.NewLimiter(rate.Limit(l.config.RequestsPerSecond), l.config.BurstSize),
		}
		l.limiters[key] = entry
		if len(l.limiters) > l.config.MaxKeys {
			l.cleanup(now)
		}
	}
	entry.lastUsed = now
	return entry.limiter
}

func (l *KeyedLimiter) cleanup(now time.Time) {
	cutoff := now.Add(-l.config.CleanupPeriod)
	for key, entry := range l.limiters {
		if entry.lastUsed.Before(cutoff) {
			delete(l.limiters, key)
		}
	}
	l.lastCleanup = now
}

// ActiveKeys returns the number of keys currently tracked.
func (l *KeyedLimiter) ActiveKeys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
