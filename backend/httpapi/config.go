package httpapi

import "time"

// Config tunes the outbound transport shared by every session.
type Config struct {
	BaseURL    string
	APIVersion string
	// Timeout bounds each HTTP attempt.
	Timeout time.Duration

	Retry     RetryConfig
	Breaker   BreakerConfig
	RateLimit RateLimitConfig
}

// RetryConfig applies to idempotent reads only. Mutations are sent once.
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// BreakerConfig controls the circuit breaker guarding the content API.
type BreakerConfig struct {
	MaxFailures   int
	Timeout       time.Duration
	HalfOpenLimit int
}

// RateLimitConfig enables client-side throttling when RequestsPerSecond > 0.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// DefaultConfig returns the settings used when a field is left zero.
func DefaultConfig() Config {
	return Config{
		BaseURL:    "https://site-api.datocms.com",
		APIVersion: "3",
		Timeout:    30 * time.Second,
		Retry: RetryConfig{
			MaxAttempts:     3,
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     2 * time.Second,
		},
		Breaker: BreakerConfig{
			MaxFailures:   5,
			Timeout:       30 * time.Second,
			HalfOpenLimit: 1,
		},
		RateLimit: RateLimitConfig{Burst: 10},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BaseURL == "" {
		c.BaseURL = d.BaseURL
	}
	if c.APIVersion == "" {
		c.APIVersion = d.APIVersion
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = d.Retry.MaxAttempts
	}
	if c.Retry.InitialInterval <= 0 {
		c.Retry.InitialInterval = d.Retry.InitialInterval
	}
	if c.Retry.MaxInterval <= 0 {
		c.Retry.MaxInterval = d.Retry.MaxInterval
	}
	if c.Breaker.MaxFailures <= 0 {
		c.Breaker.MaxFailures = d.Breaker.MaxFailures
	}
	if c.Breaker.Timeout <= 0 {
		c.Breaker.Timeout = d.Breaker.Timeout
	}
	if c.Breaker.HalfOpenLimit <= 0 {
		c.Breaker.HalfOpenLimit = d.Breaker.HalfOpenLimit
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = d.RateLimit.Burst
	}
	return c
}
