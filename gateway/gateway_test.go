package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ggoodman/cms-mcp-server/backend"
	"github.com/ggoodman/cms-mcp-server/backend/backendtest"
	"github.com/ggoodman/cms-mcp-server/envelope"
	"github.com/ggoodman/cms-mcp-server/handler"
	"github.com/ggoodman/cms-mcp-server/registry"
	"github.com/ggoodman/cms-mcp-server/router"
	"github.com/ggoodman/cms-mcp-server/session"
	"github.com/ggoodman/cms-mcp-server/tools"
)

const token = "tok-primary-0001"

type healthFunc func(context.Context) error

func (f healthFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func newGateway(t *testing.T, opts ...Option) (*httptest.Server, *backendtest.Fake) {
	t.Helper()
	fake := backendtest.New()
	reg := registry.New()
	sessions := session.NewManager(func(string, string) (backend.Client, error) { return fake, nil })
	r := router.New(reg)
	if err := tools.Register(r, handler.Deps{Registry: reg, Sessions: sessions}); err != nil {
		t.Fatalf("register: %v", err)
	}
	srv := httptest.NewServer(New(r, opts...))
	t.Cleanup(srv.Close)
	return srv, fake
}

func post(t *testing.T, srv *httptest.Server, path, contentType, body string) (*http.Response, envelope.Envelope) {
	t.Helper()
	resp, err := http.Post(srv.URL+path, contentType, strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()

	var env envelope.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return resp, env
}

func TestDispatchStatuses(t *testing.T) {
	srv, fake := newGateway(t)
	fake.AddTags("banner")

	ids := make([]string, 201)
	for i := range ids {
		ids[i] = fmt.Sprintf("id-%d", i)
	}
	bulk, _ := json.Marshal(map[string]any{"apiToken": token, "itemIds": ids})

	cases := []struct {
		name   string
		path   string
		body   string
		status int
		code   envelope.Kind
	}{
		{"success", "/v1/uploads/list_tags", `{"apiToken":"` + token + `"}`, http.StatusOK, ""},
		{"missing token", "/v1/uploads/list_tags", `{}`, http.StatusUnprocessableEntity, envelope.KindValidationFailed},
		{"bulk limit", "/v1/records/publish", string(bulk), http.StatusUnprocessableEntity, envelope.KindBulkLimitExceeded},
		{"not found", "/v1/records/retrieve", `{"apiToken":"` + token + `","itemId":"missing-id"}`, http.StatusNotFound, envelope.KindNotFound},
		{"unknown domain", "/v1/nope/list", `{}`, http.StatusInternalServerError, envelope.KindInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, env := post(t, srv, tc.path, "application/json", tc.body)
			if resp.StatusCode != tc.status {
				t.Fatalf("want status %d, got %d (%+v)", tc.status, resp.StatusCode, env)
			}
			if env.Code() != tc.code {
				t.Fatalf("want code %q, got %q", tc.code, env.Code())
			}
			if resp.Header.Get(requestIDHeader) == "" {
				t.Fatalf("missing %s header", requestIDHeader)
			}
		})
	}

	if n := fake.Calls("PublishRecords"); n != 0 {
		t.Fatalf("bulk limit violation reached the backend %d times", n)
	}
}

func TestDispatchRejectsNonJSON(t *testing.T) {
	srv, fake := newGateway(t)

	resp, err := http.Post(srv.URL+"/v1/uploads/list_tags", "text/plain", strings.NewReader("apiToken="+token))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Fatalf("want 415, got %d", resp.StatusCode)
	}
	if fake.TotalCalls() != 0 {
		t.Fatalf("rejected request reached the backend")
	}
}

func TestDispatchRejectsMalformedBody(t *testing.T) {
	srv, _ := newGateway(t)

	resp, err := http.Post(srv.URL+"/v1/uploads/list_tags", "application/json; charset=utf-8", strings.NewReader(`{"apiToken":`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", resp.StatusCode)
	}
}

func TestDomains(t *testing.T) {
	srv, _ := newGateway(t)

	resp, err := http.Get(srv.URL + "/v1/domains")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var got map[string][]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, domain := range []string{tools.Records, tools.Uploads, tools.Schema, tools.Environments, tools.Webhooks} {
		if len(got[domain]) == 0 {
			t.Fatalf("domain %q missing from %v", domain, got)
		}
	}
	if strings.Join(got[tools.Webhooks], ",") != "create,delete,list,retrieve,update" {
		t.Fatalf("webhooks actions = %v", got[tools.Webhooks])
	}
}

func TestHealth(t *testing.T) {
	var down atomic.Bool
	srv, _ := newGateway(t, WithHealthCheck(healthFunc(func(context.Context) error {
		if down.Load() {
			return errors.New("circuit breaker open")
		}
		return nil
	})))

	check := func(want int) {
		t.Helper()
		resp, err := http.Get(srv.URL + "/healthz")
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Fatalf("want %d, got %d", want, resp.StatusCode)
		}
	}

	check(http.StatusOK)
	down.Store(true)
	check(http.StatusServiceUnavailable)
}

func TestStatusFor(t *testing.T) {
	cases := map[envelope.Kind]int{
		envelope.KindUnauthorized:      http.StatusUnauthorized,
		envelope.KindNotFound:          http.StatusNotFound,
		envelope.KindValidationFailed:  http.StatusUnprocessableEntity,
		envelope.KindBulkLimitExceeded: http.StatusUnprocessableEntity,
		envelope.KindRemoteFailure:     http.StatusBadGateway,
		envelope.KindInternal:          http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := StatusFor(envelope.Failure(kind, "x", nil)); got != want {
			t.Fatalf("%s: want %d, got %d", kind, want, got)
		}
	}
	if got := StatusFor(envelope.Success(nil)); got != http.StatusOK {
		t.Fatalf("success: want 200, got %d", got)
	}
}
