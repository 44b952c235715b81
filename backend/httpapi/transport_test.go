package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ggoodman/cms-mcp-server/backend"
	"github.com/ggoodman/cms-mcp-server/envelope"
)

func newTestTransport(t *testing.T, h http.Handler) *Transport {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.Timeout = 5 * time.Second
	cfg.Retry.InitialInterval = time.Millisecond
	cfg.Retry.MaxInterval = 5 * time.Millisecond
	tr, err := NewTransport(cfg)
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}
	return tr
}

func TestSessionSendsCredentialHeaders(t *testing.T) {
	var gotAuth, gotEnv, gotVersion string
	tr := newTestTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotEnv = r.Header.Get("X-Environment")
		gotVersion = r.Header.Get("X-Api-Version")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"id":"rec-1","type":"item","attributes":{"title":"x"}}}`))
	}))

	res, err := tr.Session("tok-primary-0001", "staging").FindRecord(context.Background(), "rec-1")
	if err != nil {
		t.Fatalf("FindRecord: %v", err)
	}
	if res.ID != "rec-1" || res.Attributes["title"] != "x" {
		t.Fatalf("unexpected resource: %+v", res)
	}
	if gotAuth != "Bearer tok-primary-0001" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if gotEnv != "staging" {
		t.Fatalf("X-Environment = %q", gotEnv)
	}
	if gotVersion != "3" {
		t.Fatalf("X-Api-Version = %q", gotVersion)
	}
}

func TestPrimaryEnvironmentOmitsHeader(t *testing.T) {
	var present atomic.Bool
	tr := newTestTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := r.Header["X-Environment"]
		present.Store(ok)
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))

	out, err := tr.Session("tok-primary-0001", "").ListWebhooks(context.Background())
	if err != nil {
		t.Fatalf("ListWebhooks: %v", err)
	}
	if out == nil || len(out) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", out)
	}
	if present.Load() {
		t.Fatalf("X-Environment must not be sent for the primary environment")
	}
}

func TestReadsAreRetried(t *testing.T) {
	var calls atomic.Int32
	tr := newTestTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"id":"site-1","attributes":{"name":"Demo","locales":["en","it"]}}}`))
	}))

	site, err := tr.Session("tok-primary-0001", "").FindSite(context.Background())
	if err != nil {
		t.Fatalf("FindSite: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
	if len(site.Locales) != 2 || site.Locales[0] != "en" {
		t.Fatalf("unexpected locales: %v", site.Locales)
	}
}

func TestMutationsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	tr := newTestTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := tr.Session("tok-primary-0001", "").CreateWebhook(context.Background(), map[string]any{"name": "hook"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected exactly one attempt, got %d", got)
	}
	if k := envelope.Classify(err); k != envelope.KindRemoteFailure {
		t.Fatalf("Classify = %s", k)
	}
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	tr := newTestTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"data":[{"id":"e1","type":"api_error","attributes":{"code":"NOT_FOUND","details":{}}}]}`))
	}))

	_, err := tr.Session("tok-primary-0001", "").FindRecord(context.Background(), "missing-id")
	if err == nil {
		t.Fatalf("expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected one attempt, got %d", got)
	}
	var be *backend.Error
	if !errors.As(err, &be) {
		t.Fatalf("expected *backend.Error, got %T", err)
	}
	if be.Code != "NOT_FOUND" || be.ID != "missing-id" || be.Resource != "Record" {
		t.Fatalf("unexpected error fields: %+v", be)
	}
	env := envelope.FromError(err, envelope.Target{})
	if env.Code() != envelope.KindNotFound {
		t.Fatalf("code = %s", env.Code())
	}
	if want := `Record with id "missing-id" not found.`; env.Error.Message != want {
		t.Fatalf("message = %q, want %q", env.Error.Message, want)
	}
}

func TestUnauthorizedDecoding(t *testing.T) {
	tr := newTestTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"data":[{"attributes":{"code":"INVALID_AUTHORIZATION_HEADER","details":{}}}]}`))
	}))

	_, err := tr.Session("tok-revoked-0001", "").ListModels(context.Background())
	if k := envelope.Classify(err); k != envelope.KindUnauthorized {
		t.Fatalf("Classify = %s (%v)", k, err)
	}
}

func TestBulkBody(t *testing.T) {
	var path string
	tr := newTestTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if ct := r.Header.Get("Content-Type"); ct != "application/vnd.api+json" {
			t.Errorf("Content-Type = %q", ct)
		}
		_, _ = w.Write([]byte(`{"data":{"id":"job-7","type":"job","attributes":{"status":"pending"}}}`))
	}))

	job, err := tr.Session("tok-primary-0001", "").PublishRecords(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("PublishRecords: %v", err)
	}
	if path != "/items/bulk/publish" {
		t.Fatalf("path = %q", path)
	}
	if job.ID != "job-7" || job.Status != "pending" || job.Count != 2 {
		t.Fatalf("job = %+v", job)
	}
}

func TestHealthCheckReflectsBreaker(t *testing.T) {
	tr := newTestTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	if err := tr.HealthCheck(context.Background()); err != nil {
		t.Fatalf("fresh transport unhealthy: %v", err)
	}

	c := tr.Session("tok-primary-0001", "")
	for i := 0; i < tr.cfg.Breaker.MaxFailures; i++ {
		_, _ = c.CreateModel(context.Background(), map[string]any{"name": "m"})
	}
	if err := tr.HealthCheck(context.Background()); err == nil {
		t.Fatalf("expected breaker to be open")
	}
}

func TestInvalidBaseURL(t *testing.T) {
	if _, err := NewTransport(Config{BaseURL: "not a url"}); err == nil {
		t.Fatalf("expected error")
	}
}
