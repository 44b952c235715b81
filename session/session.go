// Package session caches authenticated content backend handles keyed by
// (token, environment).
//
// The cache is process scoped and grows with the number of distinct pairs
// seen. Credential rejection is not detected here: a handle is only checked
// by the backend when it is first used.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ggoodman/cms-mcp-server/backend"
	"github.com/ggoodman/cms-mcp-server/envelope"
)

// ErrMalformedToken is wrapped when a token cannot possibly be valid.
var ErrMalformedToken = errors.New("malformed API token")

// minTokenLength is the shortest token the manager accepts.
const minTokenLength = 8

// Factory builds a handle for one (token, environment) pair. An empty
// environment means the primary environment.
type Factory func(token, environment string) (backend.Client, error)

// Key identifies a cached handle. The primary environment ("") is a distinct
// key from every named environment.
type Key struct {
	Token       string
	Environment string
}

// Manager hands out one shared handle per Key.
type Manager struct {
	factory Factory
	log     *slog.Logger

	mu       sync.Mutex
	sessions map[Key]backend.Client
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used when sessions are created.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// NewManager returns a Manager that builds handles with factory.
func NewManager(factory Factory, opts ...Option) *Manager {
	m := &Manager{
		factory:  factory,
		log:      slog.New(slog.DiscardHandler),
		sessions: make(map[Key]backend.Client),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the cached handle for (token, environment), constructing it on
// first use. Concurrent callers with the same key always observe the same
// handle. Construction failures are returned as envelope.KindInternal errors
// and nothing is cached.
func (m *Manager) Get(token, environment string) (backend.Client, error) {
	if err := checkToken(token); err != nil {
		return nil, &envelope.Error{Kind: envelope.KindInternal, Message: "cannot create session", Err: err}
	}
	key := Key{Token: token, Environment: environment}

	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.sessions[key]; ok {
		return c, nil
	}
	if m.factory == nil {
		return nil, envelope.Errorf(envelope.KindInternal, "cannot create session: no backend factory configured")
	}
	c, err := m.factory(token, environment)
	if err != nil {
		return nil, &envelope.Error{Kind: envelope.KindInternal, Message: "cannot create session", Err: err}
	}
	if c == nil {
		return nil, envelope.Errorf(envelope.KindInternal, "cannot create session: backend factory returned no client")
	}
	m.sessions[key] = c
	m.log.Debug("session.created",
		slog.String("environment", environmentLabel(environment)),
		slog.Int("sessions", len(m.sessions)),
	)
	return c, nil
}

// Len reports how many handles are cached.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func environmentLabel(env string) string {
	if env == "" {
		return "(primary)"
	}
	return env
}

func checkToken(token string) error {
	if len(token) < minTokenLength {
		return fmt.Errorf("%w: shorter than %d characters", ErrMalformedToken, minTokenLength)
	}
	for _, r := range token {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return fmt.Errorf("%w: unexpected character %q", ErrMalformedToken, r)
		}
	}
	return nil
}
