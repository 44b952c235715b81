// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ggoodman/cms-mcp-server/backend/httpapi"
	"github.com/joeshaw/envdecode"
)

// Transports accepted by MCP_TRANSPORT.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Trace exporters accepted by OTEL_TRACES_EXPORTER.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// Config is the full process configuration. Defaults are provided via
// struct tags.
type Config struct {
	CMS       CMS
	Log       Log
	Transport string `env:"MCP_TRANSPORT,default=stdio"`
	HTTPAddr  string `env:"HTTP_ADDR,default=127.0.0.1:8080"`
	Telemetry Telemetry
}

// CMS configures the content backend transport.
type CMS struct {
	BaseURL    string        `env:"CMS_API_BASE_URL,default=https://site-api.datocms.com"`
	APIVersion string        `env:"CMS_API_VERSION,default=3"`
	Timeout    time.Duration `env:"CMS_TIMEOUT,default=30s"`
	// OperationTimeout bounds a whole operation, retries included.
	OperationTimeout time.Duration `env:"CMS_OPERATION_TIMEOUT,default=60s"`

	RetryMaxAttempts     int           `env:"CMS_RETRY_MAX_ATTEMPTS,default=3"`
	RetryInitialInterval time.Duration `env:"CMS_RETRY_INITIAL_INTERVAL,default=200ms"`
	RetryMaxInterval     time.Duration `env:"CMS_RETRY_MAX_INTERVAL,default=2s"`

	BreakerMaxFailures int           `env:"CMS_BREAKER_MAX_FAILURES,default=5"`
	BreakerTimeout     time.Duration `env:"CMS_BREAKER_TIMEOUT,default=30s"`

	RateLimitRPS   float64 `env:"CMS_RATE_LIMIT_RPS,default=0"`
	RateLimitBurst int     `env:"CMS_RATE_LIMIT_BURST,default=10"`
}

// Log configures the process logger.
type Log struct {
	Level  string `env:"LOG_LEVEL,default=info"`
	Format string `env:"LOG_FORMAT,default=json"`
}

// Telemetry configures OpenTelemetry export.
type Telemetry struct {
	TracesExporter string `env:"OTEL_TRACES_EXPORTER,default=none"`
	OTLPEndpoint   string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName    string `env:"OTEL_SERVICE_NAME,default=cms-mcp-server"`
}

// Load decodes the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}
	cfg.Transport = strings.ToLower(strings.TrimSpace(cfg.Transport))
	cfg.Telemetry.TracesExporter = strings.ToLower(strings.TrimSpace(cfg.Telemetry.TracesExporter))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the process cannot run with.
func (c Config) Validate() error {
	var errs []error

	switch c.Transport {
	case TransportStdio, TransportHTTP:
	default:
		errs = append(errs, fmt.Errorf("MCP_TRANSPORT: unknown transport %q", c.Transport))
	}
	if c.Transport == TransportHTTP && c.HTTPAddr == "" {
		errs = append(errs, errors.New("HTTP_ADDR: required for the http transport"))
	}

	switch c.Telemetry.TracesExporter {
	case ExporterNone, ExporterStdout:
	case ExporterOTLP:
		if c.Telemetry.OTLPEndpoint == "" {
			errs = append(errs, errors.New("OTEL_EXPORTER_OTLP_ENDPOINT: required for the otlp exporter"))
		}
	default:
		errs = append(errs, fmt.Errorf("OTEL_TRACES_EXPORTER: unknown exporter %q", c.Telemetry.TracesExporter))
	}

	if u, err := url.Parse(c.CMS.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("CMS_API_BASE_URL: invalid URL %q", c.CMS.BaseURL))
	}
	if c.CMS.RetryMaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("CMS_RETRY_MAX_ATTEMPTS: must be positive, got %d", c.CMS.RetryMaxAttempts))
	}
	if c.CMS.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("CMS_TIMEOUT: must be positive, got %s", c.CMS.Timeout))
	}
	if c.CMS.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("CMS_RATE_LIMIT_RPS: must not be negative, got %v", c.CMS.RateLimitRPS))
	}

	return errors.Join(errs...)
}

// HTTPAPI maps the backend settings onto the transport configuration.
func (c Config) HTTPAPI() httpapi.Config {
	return httpapi.Config{
		BaseURL:    c.CMS.BaseURL,
		APIVersion: c.CMS.APIVersion,
		Timeout:    c.CMS.Timeout,
		Retry: httpapi.RetryConfig{
			MaxAttempts:     c.CMS.RetryMaxAttempts,
			InitialInterval: c.CMS.RetryInitialInterval,
			MaxInterval:     c.CMS.RetryMaxInterval,
		},
		Breaker: httpapi.BreakerConfig{
			MaxFailures: c.CMS.BreakerMaxFailures,
			Timeout:     c.CMS.BreakerTimeout,
		},
		RateLimit: httpapi.RateLimitConfig{
			RequestsPerSecond: c.CMS.RateLimitRPS,
			Burst:             c.CMS.RateLimitBurst,
		},
	}
}
