package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Transport != TransportStdio {
		t.Fatalf("want transport %q, got %q", TransportStdio, cfg.Transport)
	}
	if cfg.HTTPAddr != "127.0.0.1:8080" {
		t.Fatalf("want default addr, got %q", cfg.HTTPAddr)
	}
	if cfg.CMS.BaseURL != "https://site-api.datocms.com" || cfg.CMS.APIVersion != "3" {
		t.Fatalf("unexpected backend defaults: %+v", cfg.CMS)
	}
	if cfg.CMS.Timeout != 30*time.Second || cfg.CMS.RetryInitialInterval != 200*time.Millisecond {
		t.Fatalf("unexpected durations: %+v", cfg.CMS)
	}
	if cfg.CMS.RetryMaxAttempts != 3 || cfg.CMS.BreakerMaxFailures != 5 || cfg.CMS.RateLimitBurst != 10 {
		t.Fatalf("unexpected counts: %+v", cfg.CMS)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Fatalf("unexpected log defaults: %+v", cfg.Log)
	}
	if cfg.Telemetry.TracesExporter != ExporterNone {
		t.Fatalf("want exporter %q, got %q", ExporterNone, cfg.Telemetry.TracesExporter)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MCP_TRANSPORT", "HTTP")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("CMS_API_BASE_URL", "http://localhost:4000")
	t.Setenv("CMS_TIMEOUT", "5s")
	t.Setenv("CMS_RATE_LIMIT_RPS", "2.5")
	t.Setenv("OTEL_TRACES_EXPORTER", "otlp")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Transport != TransportHTTP || cfg.HTTPAddr != ":9090" {
		t.Fatalf("unexpected transport config: %q %q", cfg.Transport, cfg.HTTPAddr)
	}

	api := cfg.HTTPAPI()
	if api.BaseURL != "http://localhost:4000" || api.Timeout != 5*time.Second {
		t.Fatalf("unexpected httpapi config: %+v", api)
	}
	if api.RateLimit.RequestsPerSecond != 2.5 || api.RateLimit.Burst != 10 {
		t.Fatalf("unexpected rate limit: %+v", api.RateLimit)
	}
	if api.Retry.MaxAttempts != 3 || api.Breaker.Timeout != 30*time.Second {
		t.Fatalf("unexpected retry/breaker: %+v %+v", api.Retry, api.Breaker)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Transport: TransportStdio,
			HTTPAddr:  "127.0.0.1:8080",
			CMS: CMS{
				BaseURL:          "https://site-api.datocms.com",
				Timeout:          time.Second,
				RetryMaxAttempts: 1,
			},
			Telemetry: Telemetry{TracesExporter: ExporterNone},
		}
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown transport", func(c *Config) { c.Transport = "grpc" }, "MCP_TRANSPORT"},
		{"unknown exporter", func(c *Config) { c.Telemetry.TracesExporter = "zipkin" }, "OTEL_TRACES_EXPORTER"},
		{"otlp without endpoint", func(c *Config) { c.Telemetry.TracesExporter = ExporterOTLP }, "OTEL_EXPORTER_OTLP_ENDPOINT"},
		{"zero attempts", func(c *Config) { c.CMS.RetryMaxAttempts = 0 }, "CMS_RETRY_MAX_ATTEMPTS"},
		{"relative base url", func(c *Config) { c.CMS.BaseURL = "/api" }, "CMS_API_BASE_URL"},
		{"negative rate", func(c *Config) { c.CMS.RateLimitRPS = -1 }, "CMS_RATE_LIMIT_RPS"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("want error mentioning %s, got %v", tc.want, err)
			}
		})
	}
}
