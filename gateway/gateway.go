// Package gateway exposes the action router over plain HTTP for callers that
// do not speak MCP. Every dispatch answers with the same envelope the MCP
// tools return; the HTTP status is derived from the envelope's error code.
//
//	GET  /healthz                 backend availability
//	GET  /v1/domains              domain -> action names
//	POST /v1/{domain}/{action}    JSON args in, envelope out
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/ggoodman/cms-mcp-server/envelope"
	"github.com/ggoodman/cms-mcp-server/internal/logctx"
	"github.com/ggoodman/cms-mcp-server/router"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	defaultMaxBodyBytes = 4 << 20
	requestIDHeader     = "X-Request-Id"
)

var jsonMediaType = contenttype.NewMediaType("application/json")

// HealthChecker reports whether the content backend is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Option configures a gateway Handler.
type Option func(*Handler)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithHealthCheck wires the /healthz probe. Without one the probe always
// reports ok.
func WithHealthCheck(hc HealthChecker) Option {
	return func(h *Handler) { h.health = hc }
}

// WithMaxBodyBytes bounds the request body accepted by dispatch.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBody = n
		}
	}
}

// Handler is an http.Handler serving the gateway routes.
type Handler struct {
	router  *router.Router
	health  HealthChecker
	log     *slog.Logger
	maxBody int64
	mux     chi.Router
}

// New builds the gateway over r.
func New(r *router.Router, opts ...Option) *Handler {
	h := &Handler{
		router:  r,
		log:     slog.New(slog.DiscardHandler),
		maxBody: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(h)
	}

	mux := chi.NewRouter()
	mux.Use(h.requestContext)
	mux.Get("/healthz", h.handleHealth)
	mux.Route("/v1", func(v1 chi.Router) {
		v1.Get("/domains", h.handleDomains)
		v1.Post("/{domain}/{action}", h.handleDispatch)
	})
	mux.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusNotFound, "route not found")
	})
	mux.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	h.mux = mux
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// requestContext tags the request with an id and attaches the request log
// attributes.
func (h *Handler) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		ctx := logctx.WithRequestData(r.Context(), &logctx.RequestData{
			RequestID:  id,
			Method:     r.Method,
			Path:       r.URL.Path,
			RemoteAddr: r.RemoteAddr,
		})

		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		h.log.DebugContext(ctx, "gateway.request", slog.Duration("elapsed", time.Since(start)))
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.HealthCheck(r.Context()); err != nil {
			h.log.WarnContext(r.Context(), "gateway.health.unavailable", slog.Any("error", err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) handleDomains(w http.ResponseWriter, _ *http.Request) {
	out := make(map[string][]string)
	for _, domain := range h.router.Domains() {
		actions := h.router.Actions(domain)
		names := make([]string, 0, len(actions))
		for _, a := range actions {
			names = append(names, a.Name)
		}
		out[domain] = names
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleDispatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		writeJSONError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(body) == 0 {
		body = []byte("{}")
	}
	if !json.Valid(body) {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	domain, action := chi.URLParam(r, "domain"), chi.URLParam(r, "action")
	env := h.router.Dispatch(ctx, domain, action, body)
	status := StatusFor(env)
	if status >= http.StatusInternalServerError {
		h.log.WarnContext(ctx, "gateway.dispatch.failed",
			slog.String("domain", domain),
			slog.String("action", action),
			slog.String("code", string(env.Code())),
		)
	}

	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_, _ = w.Write(env.JSON())
}

// StatusFor maps an envelope onto an HTTP status code.
func StatusFor(env envelope.Envelope) int {
	if env.Success {
		return http.StatusOK
	}
	switch env.Code() {
	case envelope.KindValidationFailed, envelope.KindBulkLimitExceeded:
		return http.StatusUnprocessableEntity
	case envelope.KindUnauthorized:
		return http.StatusUnauthorized
	case envelope.KindNotFound:
		return http.StatusNotFound
	case envelope.KindRemoteFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError emits a minimal JSON body for HTTP-layer rejections that
// happen before an envelope exists.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": map[string]any{"code": status, "message": msg}})
}
