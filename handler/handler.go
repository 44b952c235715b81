// Package handler builds operation handlers from declarative configuration.
//
// Every handler produced by New runs the same pipeline: validate the raw
// arguments against the operation's registered contract, enforce structural
// limits, borrow a session, perform the remote call, reduce locales on read
// paths and wrap the outcome in an envelope. Failures never escape as Go
// errors; every exit is an envelope.
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ggoodman/cms-mcp-server/backend"
	"github.com/ggoodman/cms-mcp-server/envelope"
	"github.com/ggoodman/cms-mcp-server/locale"
	"github.com/ggoodman/cms-mcp-server/registry"
	"github.com/ggoodman/cms-mcp-server/session"
)

// MaxBulkIDs is the largest number of identifiers a bulk operation accepts.
const MaxBulkIDs = 200

// Variant is the shape of an operation.
type Variant int

const (
	Custom Variant = iota
	List
	Retrieve
	Create
	Update
	Delete
	Bulk
)

var variantNames = [...]string{"custom", "list", "retrieve", "create", "update", "delete", "bulk"}

func (v Variant) String() string {
	if int(v) < len(variantNames) {
		return variantNames[v]
	}
	return fmt.Sprintf("variant(%d)", int(v))
}

// BulkArgs is implemented by argument structs carrying a list of identifiers
// subject to MaxBulkIDs.
type BulkArgs interface {
	BulkIDs() []string
}

// Targeted is implemented by argument structs that address a single
// resource. The identifier is used in not-found messages.
type Targeted interface {
	TargetID() string
}

// Call performs the remote part of an operation.
type Call[A any] func(ctx context.Context, c backend.Client, args A) (any, error)

// LocaleSource resolves the locale declaration order used to reduce a read
// result.
type LocaleSource func(ctx context.Context, c backend.Client) ([]string, error)

// Config declares one operation.
type Config[A any] struct {
	Domain  string
	Action  string
	Variant Variant
	// Entity names the addressed resource in messages ("Record").
	Entity string
	// Description is shown to agents next to the action name.
	Description string
	Call        Call[A]
	// Reads marks a Custom operation as read-oriented. List and Retrieve
	// always are. Locale reduction applies to read-oriented operations whose
	// arguments embed registry.Localized.
	Reads bool
	// Locales supplies the locale order for reduction. Without it, locale
	// maps are recognized by their language-tag keys.
	Locales LocaleSource
	// Timeout bounds the remote call. Zero uses Deps.Timeout.
	Timeout time.Duration
}

// Deps are the collaborators shared by every handler.
type Deps struct {
	Registry *registry.Registry
	Sessions *session.Manager
	// Timeout is the default per-call deadline. Zero means none.
	Timeout time.Duration
}

// Handler is a ready-to-dispatch operation.
type Handler struct {
	Domain      string
	Action      string
	Variant     Variant
	Description string
	Contract    *registry.Contract

	serve       func(ctx context.Context, raw json.RawMessage) envelope.Envelope
	serveParsed func(ctx context.Context, parsed any) envelope.Envelope
}

// Handle runs the operation pipeline on raw arguments.
func (h *Handler) Handle(ctx context.Context, raw json.RawMessage) envelope.Envelope {
	return h.serve(ctx, raw)
}

// HandleParsed runs the pipeline on arguments already returned by
// registry.Validate for this operation, skipping validation.
func (h *Handler) HandleParsed(ctx context.Context, parsed any) envelope.Envelope {
	return h.serveParsed(ctx, parsed)
}

// New builds a handler for cfg. The argument type A is reflected into the
// handler's contract; it panics if A is not a struct, since handler tables
// are static.
func New[A any](deps Deps, cfg Config[A]) *Handler {
	h := &Handler{
		Domain:      cfg.Domain,
		Action:      cfg.Action,
		Variant:     cfg.Variant,
		Description: cfg.Description,
		Contract:    registry.MustContract[A](),
	}
	p := &pipeline[A]{deps: deps, cfg: cfg}
	h.serve = p.run
	h.serveParsed = p.serve
	return h
}

type pipeline[A any] struct {
	deps Deps
	cfg  Config[A]
}

func (p *pipeline[A]) run(ctx context.Context, raw json.RawMessage) envelope.Envelope {
	if p.deps.Registry == nil {
		return p.notWired()
	}
	parsed, err := p.deps.Registry.Validate(p.cfg.Domain, p.cfg.Action, raw)
	if err != nil {
		var ve *envelope.ValidationError
		if errors.As(err, &ve) {
			return envelope.Validation(ve.Issues)
		}
		return envelope.FromError(err, envelope.Target{})
	}
	return p.serve(ctx, parsed)
}

func (p *pipeline[A]) notWired() envelope.Envelope {
	return envelope.Failuref(envelope.KindInternal, "handler %s.%s is not wired", p.cfg.Domain, p.cfg.Action)
}

func (p *pipeline[A]) serve(ctx context.Context, parsed any) envelope.Envelope {
	if p.deps.Registry == nil || p.deps.Sessions == nil {
		return p.notWired()
	}
	if p.cfg.Call == nil {
		return envelope.Failuref(envelope.KindInternal, "handler %s.%s has no remote call", p.cfg.Domain, p.cfg.Action)
	}

	args, ok := parsed.(A)
	if !ok {
		var zero A
		return envelope.Failuref(envelope.KindInternal, "contract of %s.%s yields %T, handler expects %T", p.cfg.Domain, p.cfg.Action, parsed, zero)
	}

	if b, ok := any(args).(BulkArgs); ok {
		if n := len(b.BulkIDs()); n > MaxBulkIDs {
			return envelope.Failure(envelope.KindBulkLimitExceeded,
				fmt.Sprintf("%s.%s accepts at most %d identifiers per call, got %d. Split the request into smaller batches.", p.cfg.Domain, p.cfg.Action, MaxBulkIDs, n),
				map[string]any{"limit": MaxBulkIDs, "received": n})
		}
	}

	auth, ok := any(args).(registry.Authenticated)
	if !ok {
		return envelope.Failuref(envelope.KindInternal, "arguments of %s.%s carry no credentials", p.cfg.Domain, p.cfg.Action)
	}
	creds := auth.Auth()
	client, err := p.deps.Sessions.Get(creds.APIToken, creds.Environment)
	if err != nil {
		return envelope.FromError(err, envelope.Target{})
	}

	target := envelope.Target{Entity: p.cfg.Entity}
	if tg, ok := any(args).(Targeted); ok {
		target.ID = tg.TargetID()
	}

	callCtx := ctx
	if timeout := p.timeout(); timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := p.cfg.Call(callCtx, client, args)
	if err != nil {
		return envelope.FromError(err, target)
	}

	if p.reads() {
		result, err = p.reduce(callCtx, client, args, result)
		if err != nil {
			return envelope.FromError(err, envelope.Target{})
		}
	}
	return envelope.Success(result)
}

func (p *pipeline[A]) timeout() time.Duration {
	if p.cfg.Timeout > 0 {
		return p.cfg.Timeout
	}
	return p.deps.Timeout
}

func (p *pipeline[A]) reads() bool {
	switch p.cfg.Variant {
	case List, Retrieve:
		return true
	}
	return p.cfg.Reads
}

func (p *pipeline[A]) reduce(ctx context.Context, c backend.Client, args A, result any) (any, error) {
	sel, ok := any(args).(registry.LocaleSelector)
	if !ok || sel.AllLocales() {
		return result, nil
	}
	generic, err := toGeneric(result)
	if err != nil {
		return nil, envelope.Errorf(envelope.KindInternal, "normalize %s.%s result: %v", p.cfg.Domain, p.cfg.Action, err)
	}
	var order []string
	if p.cfg.Locales != nil {
		if order, err = p.cfg.Locales(ctx, c); err != nil {
			return nil, err
		}
	}
	return locale.Reduce(generic, locale.Options{Locales: order}), nil
}

// toGeneric converts typed results into plain JSON values so the reducer can
// walk them.
func toGeneric(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
