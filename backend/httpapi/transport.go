// Package httpapi implements backend.Client over the content management REST
// API. A Transport owns the process-wide HTTP plumbing (connection pool,
// circuit breaker, rate limiter, retry policy); Session binds it to one
// (token, environment) pair.
//
// Requests flow through:
//
//	Circuit Breaker -> Rate Limiter -> Span -> Retry (GET only) -> HTTP
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ggoodman/cms-mcp-server/backend"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	tracerName = "github.com/ggoodman/cms-mcp-server/backend/httpapi"

	// maxErrorBodySize limits how much of an error response body is read.
	maxErrorBodySize = 1 << 20
)

// Option customizes a Transport.
type Option func(*Transport)

// WithHTTPClient replaces the underlying *http.Client. Its Timeout is
// overwritten by Config.Timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transport) {
		if c != nil {
			t.http = c
		}
	}
}

// WithLogger sets the logger used for retries and breaker transitions.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) {
		if l != nil {
			t.log = l
		}
	}
}

// Transport is safe for concurrent use and is shared by every session.
type Transport struct {
	cfg     Config
	base    *url.URL
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
	limiter *rate.Limiter
	log     *slog.Logger
	tracer  trace.Tracer
}

// NewTransport validates cfg and builds a Transport.
func NewTransport(cfg Config, opts ...Option) (*Transport, error) {
	cfg = cfg.withDefaults()
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid content API base URL %q", cfg.BaseURL)
	}

	t := &Transport{
		cfg:    cfg,
		base:   base,
		http:   &http.Client{},
		log:    slog.New(slog.DiscardHandler),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.http.Timeout = cfg.Timeout

	if cfg.RateLimit.RequestsPerSecond > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst)
	}

	t.breaker = gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "content-api",
		MaxRequests: toUint32(cfg.Breaker.HalfOpenLimit),
		Timeout:     cfg.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return int(counts.ConsecutiveFailures) >= cfg.Breaker.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			// Caller mistakes (bad token, unknown id, invalid payload) say
			// nothing about backend health.
			var be *backend.Error
			if errors.As(err, &be) {
				return !retryableStatus(be.Status)
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			t.log.Warn("backend.breaker.state",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
	return t, nil
}

// Session returns a client bound to token and environment. An empty
// environment targets the primary environment. Sessions hold no connection
// state of their own; they share the Transport.
func (t *Transport) Session(token, environment string) *Client {
	return &Client{t: t, token: token, environment: environment}
}

// HealthCheck reports backend availability from the breaker state without a
// network call.
func (t *Transport) HealthCheck(_ context.Context) error {
	switch state := t.breaker.State(); state {
	case gobreaker.StateClosed:
		return nil
	case gobreaker.StateHalfOpen:
		return fmt.Errorf("content API degraded (circuit breaker half-open)")
	case gobreaker.StateOpen:
		return fmt.Errorf("content API failing (circuit breaker open)")
	default:
		return fmt.Errorf("content API: unknown breaker state %v", state)
	}
}

// Client is one authenticated session against the content API.
type Client struct {
	t           *Transport
	token       string
	environment string
}

var _ backend.Client = (*Client)(nil)

// Environment returns the environment this session targets ("" = primary).
func (c *Client) Environment() string { return c.environment }

// request describes one API call.
type request struct {
	method string
	path   string
	query  url.Values
	body   any
}

// do executes req and decodes the "data" member of the response document
// into out (when non-nil).
func (c *Client) do(ctx context.Context, req request, out any) error {
	var payload []byte
	if req.body != nil {
		b, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("marshal %s %s body: %w", req.method, req.path, err)
		}
		payload = b
	}

	resp, err := c.t.breaker.Execute(func() (*http.Response, error) {
		if c.t.limiter != nil {
			if err := c.t.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		spanCtx, span := c.t.tracer.Start(ctx, "content-api "+req.method,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("http.method", req.method),
				attribute.String("http.route", req.path),
				attribute.String("cms.environment", c.environment),
			),
		)
		defer span.End()

		var (
			resp *http.Response
			err  error
		)
		if req.method == http.MethodGet {
			resp, err = c.sendWithRetry(spanCtx, req, payload)
		} else {
			resp, err = c.send(spanCtx, req, payload)
		}
		if resp != nil {
			span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return resp, err
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("content API unavailable: %w", err)
		}
		return err
	}
	defer resp.Body.Close()

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	var doc struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("decode %s %s response: %w", req.method, req.path, err)
	}
	if len(doc.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(doc.Data, out); err != nil {
		return fmt.Errorf("decode %s %s data: %w", req.method, req.path, err)
	}
	return nil
}

// sendWithRetry retries idempotent reads on network failures, 429 and 5xx
// with exponential backoff.
func (c *Client) sendWithRetry(ctx context.Context, req request, payload []byte) (*http.Response, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.t.cfg.Retry.InitialInterval
	policy.MaxInterval = c.t.cfg.Retry.MaxInterval

	attempt := 0
	return backoff.Retry(ctx, func() (*http.Response, error) {
		attempt++
		resp, err := c.send(ctx, req, payload)
		if err == nil {
			return resp, nil
		}
		if !retryable(ctx, err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(c.t.cfg.Retry.MaxAttempts)),
		backoff.WithNotify(func(err error, d time.Duration) {
			c.t.log.WarnContext(ctx, "backend.retry",
				slog.String("method", req.method),
				slog.String("path", req.path),
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", c.t.cfg.Retry.MaxAttempts),
				slog.Duration("backoff", d),
				slog.Any("error", err),
			)
		}),
	)
}

// send performs exactly one HTTP exchange. Non-2xx responses are translated
// into *backend.Error and the body is consumed.
func (c *Client) send(ctx context.Context, req request, payload []byte) (*http.Response, error) {
	u := *c.t.base
	u.Path = u.Path + req.path
	if len(req.query) > 0 {
		u.RawQuery = req.query.Encode()
	}

	var body io.Reader = http.NoBody
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	hreq, err := http.NewRequestWithContext(ctx, req.method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create %s %s request: %w", req.method, req.path, err)
	}
	hreq.Header.Set("Authorization", "Bearer "+c.token)
	hreq.Header.Set("Accept", "application/json")
	hreq.Header.Set("X-Api-Version", c.t.cfg.APIVersion)
	if payload != nil {
		hreq.Header.Set("Content-Type", "application/vnd.api+json")
	}
	if c.environment != "" {
		hreq.Header.Set("X-Environment", c.environment)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(hreq.Header))

	resp, err := c.t.http.Do(hreq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp, nil
}

// apiErrorDocument is the error body shape of the content API.
type apiErrorDocument struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"attributes"`
	} `json:"data"`
}

func decodeError(resp *http.Response) *backend.Error {
	be := &backend.Error{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err != nil || len(raw) == 0 {
		return be
	}
	var doc apiErrorDocument
	if err := json.Unmarshal(raw, &doc); err != nil || len(doc.Data) == 0 {
		be.Details = strings.TrimSpace(string(raw))
		return be
	}
	first := doc.Data[0].Attributes
	be.Code = first.Code
	if len(first.Details) > 0 {
		be.Details = first.Details
		if m, ok := first.Details["message"].(string); ok && m != "" {
			be.Message = m
		}
	}
	if len(doc.Data) > 1 {
		all := make([]any, 0, len(doc.Data))
		for _, d := range doc.Data {
			all = append(all, map[string]any{"code": d.Attributes.Code, "details": d.Attributes.Details})
		}
		be.Details = all
	}
	return be
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var be *backend.Error
	if errors.As(err, &be) {
		return retryableStatus(be.Status)
	}
	return true
}

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// target records the resource an error refers to so not-found messages can
// name it.
func target(err error, resource, id string) error {
	var be *backend.Error
	if errors.As(err, &be) {
		if be.Resource == "" {
			be.Resource = resource
		}
		if be.ID == "" {
			be.ID = id
		}
	}
	return err
}

func toUint32(v int) uint32 {
	if v <= 0 {
		return 0
	}
	if v > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(v)
}
