// Package router is the per-domain entry point of the dispatch core. A
// domain is registered with a table of handlers; each invocation of
// {domain, action, args} is validated against the registry and routed to the
// matching handler. Every outcome, including panics inside handlers, is an
// envelope.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ggoodman/cms-mcp-server/envelope"
	"github.com/ggoodman/cms-mcp-server/handler"
	"github.com/ggoodman/cms-mcp-server/internal/logctx"
	"github.com/ggoodman/cms-mcp-server/registry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/ggoodman/cms-mcp-server/router"

// Table maps action names to handlers for one domain.
type Table map[string]*handler.Handler

// Action describes one routable action.
type Action struct {
	Name        string          `json:"name"`
	Variant     string          `json:"variant"`
	Description string          `json:"description,omitempty"`
	Schema      json.RawMessage `json:"schema,omitempty"`
}

// ChangeFunc is notified after a domain is registered or removed.
type ChangeFunc func(domain string, registered bool)

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.log = l
		}
	}
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Router) {
		if tp != nil {
			r.tracer = tp.Tracer(instrumentationName)
		}
	}
}

// WithMeterProvider overrides the global meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(r *Router) {
		if mp != nil {
			r.meter = mp.Meter(instrumentationName)
		}
	}
}

// Router dispatches invocations to registered domains.
type Router struct {
	reg    *registry.Registry
	log    *slog.Logger
	tracer trace.Tracer
	meter  metric.Meter

	dispatched metric.Int64Counter
	duration   metric.Float64Histogram

	mu       sync.RWMutex
	domains  map[string]Table
	watchers []ChangeFunc
}

// New returns a Router backed by reg. The registry is shared with the
// handlers, which validate against the same contracts.
func New(reg *registry.Registry, opts ...Option) *Router {
	r := &Router{
		reg:     reg,
		log:     slog.New(slog.DiscardHandler),
		tracer:  otel.Tracer(instrumentationName),
		meter:   otel.Meter(instrumentationName),
		domains: make(map[string]Table),
	}
	for _, opt := range opts {
		opt(r)
	}

	var err error
	if r.dispatched, err = r.meter.Int64Counter("cms.dispatch.total",
		metric.WithDescription("Dispatched operations by outcome"),
		metric.WithUnit("{operation}"),
	); err != nil {
		r.log.Warn("router.metric.init", slog.String("instrument", "cms.dispatch.total"), slog.Any("error", err))
	}
	if r.duration, err = r.meter.Float64Histogram("cms.dispatch.duration",
		metric.WithDescription("Duration of dispatched operations"),
		metric.WithUnit("s"),
	); err != nil {
		r.log.Warn("router.metric.init", slog.String("instrument", "cms.dispatch.duration"), slog.Any("error", err))
	}
	return r
}

// OnChange registers fn to be called after each Register or Deregister.
func (r *Router) OnChange(fn ChangeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.watchers = append(r.watchers, fn)
}

// Register installs table as the entry point for domain, replacing a prior
// registration. Every handler's contract is installed in the registry in one
// atomic step; when the table is inconsistent nothing changes.
func (r *Router) Register(domain string, table Table) error {
	if strings.TrimSpace(domain) == "" {
		return errors.New("router: empty domain")
	}
	if len(table) == 0 {
		return fmt.Errorf("router: domain %s has no actions", domain)
	}
	contracts := make(map[string]*registry.Contract, len(table))
	own := make(Table, len(table))
	for action, h := range table {
		switch {
		case h == nil:
			return fmt.Errorf("router: %s.%s has no handler", domain, action)
		case h.Domain != domain || h.Action != action:
			return fmt.Errorf("router: handler %s.%s registered as %s.%s", h.Domain, h.Action, domain, action)
		case h.Contract == nil:
			return fmt.Errorf("router: %s.%s has no contract", domain, action)
		}
		contracts[action] = h.Contract
		own[action] = h
	}

	r.mu.Lock()
	if err := r.reg.ReplaceDomain(domain, contracts); err != nil {
		r.mu.Unlock()
		return err
	}
	r.domains[domain] = own
	watchers := append([]ChangeFunc(nil), r.watchers...)
	r.mu.Unlock()

	r.log.Info("router.domain.registered", slog.String("domain", domain), slog.Int("actions", len(own)))
	for _, fn := range watchers {
		fn(domain, true)
	}
	return nil
}

// Deregister removes domain. Removing an unknown domain is a no-op.
func (r *Router) Deregister(domain string) {
	r.mu.Lock()
	_, ok := r.domains[domain]
	if ok {
		delete(r.domains, domain)
		r.reg.RemoveDomain(domain)
	}
	watchers := append([]ChangeFunc(nil), r.watchers...)
	r.mu.Unlock()

	if !ok {
		return
	}
	r.log.Info("router.domain.deregistered", slog.String("domain", domain))
	for _, fn := range watchers {
		fn(domain, false)
	}
}

// Domains lists the registered domains in lexical order.
func (r *Router) Domains() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.domains))
	for d := range r.domains {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Has reports whether domain is registered.
func (r *Router) Has(domain string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.domains[domain]
	return ok
}

// Actions describes the actions of domain in lexical order, without schemas.
func (r *Router) Actions(domain string) []Action {
	r.mu.RLock()
	table := r.domains[domain]
	r.mu.RUnlock()

	out := make([]Action, 0, len(table))
	for _, name := range r.reg.Actions(domain) {
		h, ok := table[name]
		if !ok {
			continue
		}
		out = append(out, Action{Name: name, Variant: h.Variant.String(), Description: h.Description})
	}
	return out
}

// Describe returns the action of domain with its argument schema.
func (r *Router) Describe(domain, action string) (Action, error) {
	r.mu.RLock()
	h, ok := r.domains[domain][action]
	r.mu.RUnlock()
	if !ok {
		return Action{}, r.unknown(domain, action)
	}
	schema, err := r.reg.Describe(domain, action)
	if err != nil {
		return Action{}, err
	}
	return Action{Name: action, Variant: h.Variant.String(), Description: h.Description, Schema: schema}, nil
}

// Dispatch routes one invocation. It never panics and always returns an
// envelope satisfying the exactly-one-of invariant.
func (r *Router) Dispatch(ctx context.Context, domain, action string, args json.RawMessage) (env envelope.Envelope) {
	start := time.Now()
	inv := &logctx.DispatchData{InvocationID: uuid.NewString(), Domain: domain, Action: action}
	ctx = logctx.WithDispatchData(ctx, inv)
	ctx, span := r.tracer.Start(ctx, "dispatch "+domain+"."+action,
		trace.WithAttributes(
			attribute.String("cms.domain", domain),
			attribute.String("cms.action", action),
			attribute.String("cms.invocation_id", inv.InvocationID),
		),
	)

	defer func() {
		if p := recover(); p != nil {
			r.log.ErrorContext(ctx, "dispatch.panic",
				slog.Any("panic", p),
				slog.String("stack", string(debug.Stack())),
			)
			env = envelope.Failuref(envelope.KindInternal, "%s.%s failed unexpectedly: %v", domain, action, p)
		}
		r.finish(ctx, span, domain, action, env, time.Since(start))
	}()

	return r.dispatch(ctx, domain, action, args)
}

func (r *Router) dispatch(ctx context.Context, domain, action string, args json.RawMessage) envelope.Envelope {
	r.mu.RLock()
	table, ok := r.domains[domain]
	r.mu.RUnlock()
	if !ok {
		return envelope.FromError(r.unknown(domain, action), envelope.Target{})
	}

	if !r.reg.Has(domain, action) {
		return envelope.FromError(r.unknown(domain, action), envelope.Target{})
	}

	parsed, err := r.reg.Validate(domain, action, args)
	if err != nil {
		var ve *envelope.ValidationError
		if errors.As(err, &ve) {
			return envelope.Validation(ve.Issues)
		}
		return envelope.FromError(err, envelope.Target{})
	}

	h, ok := table[action]
	if !ok {
		return envelope.Failuref(envelope.KindInternal, "%s.%s has a contract but no handler", domain, action)
	}

	return h.HandleParsed(ctx, parsed)
}

// unknown builds the Internal error for an unroutable (domain, action),
// enumerating what is routable.
func (r *Router) unknown(domain, action string) error {
	if !r.Has(domain) {
		return envelope.Errorf(envelope.KindInternal, "unknown domain %q. Registered domains: %s", domain, strings.Join(r.Domains(), ", "))
	}
	return envelope.Errorf(envelope.KindInternal, "unknown action %q for domain %q. Valid actions: %s", action, domain, strings.Join(r.reg.Actions(domain), ", "))
}

func (r *Router) finish(ctx context.Context, span trace.Span, domain, action string, env envelope.Envelope, elapsed time.Duration) {
	defer span.End()

	outcome := "success"
	if !env.Success {
		outcome = string(env.Code())
		span.SetStatus(codes.Error, outcome)
		if env.Error != nil {
			span.SetAttributes(attribute.String("error.code", outcome))
		}
	}

	attrs := metric.WithAttributes(
		attribute.String("cms.domain", domain),
		attribute.String("cms.action", action),
		attribute.String("result", outcome),
	)
	if r.dispatched != nil {
		r.dispatched.Add(ctx, 1, attrs)
	}
	if r.duration != nil {
		r.duration.Record(ctx, elapsed.Seconds(), attrs)
	}

	lvl := slog.LevelInfo
	switch env.Code() {
	case envelope.KindInternal:
		lvl = slog.LevelError
	case envelope.KindRemoteFailure:
		lvl = slog.LevelWarn
	}
	r.log.LogAttrs(ctx, lvl, "dispatch.done",
		slog.String("result", outcome),
		slog.Duration("elapsed", elapsed),
	)
}
