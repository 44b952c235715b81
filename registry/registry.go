// Package registry holds one validation contract per (domain, action) pair.
//
// A Registry is an explicit object: the router and the handler factory receive
// it by reference. Reads are lock-free against an immutable snapshot; writes
// build a new snapshot and swap it in, so RegisterBulk either installs every
// entry or none.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ggoodman/cms-mcp-server/envelope"
)

// ErrSchemaNotFound is wrapped by lookups for an unregistered pair. It is a
// configuration defect and classifies as envelope.KindInternal.
var ErrSchemaNotFound = errors.New("schema not found")

// Key identifies an operation.
type Key struct {
	Domain string
	Action string
}

func (k Key) String() string { return k.Domain + "." + k.Action }

type snapshot map[Key]*Contract

// Registry stores operation contracts.
type Registry struct {
	writeMu sync.Mutex
	current atomic.Pointer[snapshot]
}

// New returns an empty Registry.
func New() *Registry {
	r := &Registry{}
	empty := snapshot{}
	r.current.Store(&empty)
	return r
}

// Register stores c for (domain, action), replacing any prior contract.
func (r *Registry) Register(domain, action string, c *Contract) error {
	return r.RegisterBulk(domain, map[string]*Contract{action: c})
}

// RegisterBulk installs every (domain, action) pair of m atomically. When any
// entry is invalid nothing is installed.
func (r *Registry) RegisterBulk(domain string, m map[string]*Contract) error {
	return r.install(domain, m, false)
}

// ReplaceDomain atomically swaps the whole contract set of domain for m.
// Actions of domain absent from m are dropped.
func (r *Registry) ReplaceDomain(domain string, m map[string]*Contract) error {
	return r.install(domain, m, true)
}

func (r *Registry) install(domain string, m map[string]*Contract, replace bool) error {
	if strings.TrimSpace(domain) == "" {
		return fmt.Errorf("register: empty domain")
	}
	for action, c := range m {
		if strings.TrimSpace(action) == "" {
			return fmt.Errorf("register %s: empty action", domain)
		}
		if c == nil {
			return fmt.Errorf("register %s.%s: nil contract", domain, action)
		}
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	prev := *r.current.Load()
	next := make(snapshot, len(prev)+len(m))
	for k, c := range prev {
		if replace && k.Domain == domain {
			continue
		}
		next[k] = c
	}
	for action, c := range m {
		next[Key{Domain: domain, Action: action}] = c
	}
	r.current.Store(&next)
	return nil
}

// RemoveDomain drops every contract of domain. Removing an unknown domain is
// a no-op.
func (r *Registry) RemoveDomain(domain string) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	prev := *r.current.Load()
	next := make(snapshot, len(prev))
	for k, c := range prev {
		if k.Domain != domain {
			next[k] = c
		}
	}
	r.current.Store(&next)
}

// Get returns the contract for (domain, action). A missing contract yields an
// *envelope.Error of kind Internal wrapping ErrSchemaNotFound.
func (r *Registry) Get(domain, action string) (*Contract, error) {
	if c, ok := (*r.current.Load())[Key{Domain: domain, Action: action}]; ok {
		return c, nil
	}
	return nil, &envelope.Error{
		Kind:    envelope.KindInternal,
		Message: fmt.Sprintf("no contract registered for %s.%s", domain, action),
		Err:     ErrSchemaNotFound,
	}
}

// Has reports whether a contract exists for (domain, action).
func (r *Registry) Has(domain, action string) bool {
	_, ok := (*r.current.Load())[Key{Domain: domain, Action: action}]
	return ok
}

// Validate runs args through the contract of (domain, action). It returns the
// parsed argument struct, an *envelope.ValidationError, or the Internal error
// from Get.
func (r *Registry) Validate(domain, action string, args json.RawMessage) (any, error) {
	c, err := r.Get(domain, action)
	if err != nil {
		return nil, err
	}
	v, issues := c.Parse(args)
	if len(issues) > 0 {
		return nil, &envelope.ValidationError{Issues: issues}
	}
	return v, nil
}

// Actions lists the registered actions of domain in lexical order.
func (r *Registry) Actions(domain string) []string {
	var out []string
	for k := range *r.current.Load() {
		if k.Domain == domain {
			out = append(out, k.Action)
		}
	}
	sort.Strings(out)
	return out
}

// Domains lists every domain with at least one contract.
func (r *Registry) Domains() []string {
	seen := make(map[string]struct{})
	for k := range *r.current.Load() {
		seen[k.Domain] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Describe returns the JSON schema of (domain, action).
func (r *Registry) Describe(domain, action string) (json.RawMessage, error) {
	c, err := r.Get(domain, action)
	if err != nil {
		return nil, err
	}
	return c.Schema(), nil
}
