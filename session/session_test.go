package session

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ggoodman/cms-mcp-server/backend"
	"github.com/ggoodman/cms-mcp-server/backend/backendtest"
	"github.com/ggoodman/cms-mcp-server/envelope"
)

func countingFactory(n *atomic.Int32) Factory {
	return func(token, environment string) (backend.Client, error) {
		n.Add(1)
		return backendtest.New(), nil
	}
}

func TestSameKeySameHandle(t *testing.T) {
	var built atomic.Int32
	m := NewManager(countingFactory(&built))

	a, err := m.Get("tok-primary-0001", "")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b, err := m.Get("tok-primary-0001", "")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a != b {
		t.Fatalf("expected identical handles for the same key")
	}
	if built.Load() != 1 {
		t.Fatalf("factory called %d times", built.Load())
	}
}

func TestEnvironmentIsPartOfKey(t *testing.T) {
	var built atomic.Int32
	m := NewManager(countingFactory(&built))

	primary, _ := m.Get("tok-primary-0001", "")
	sandbox, _ := m.Get("tok-primary-0001", "sandbox")
	other, _ := m.Get("tok-other-00002", "")

	if primary == sandbox {
		t.Fatalf("primary and named environment must not share a handle")
	}
	if primary == other {
		t.Fatalf("different tokens must not share a handle")
	}
	if m.Len() != 3 {
		t.Fatalf("Len = %d", m.Len())
	}
}

func TestConcurrentGetCreatesOnce(t *testing.T) {
	var built atomic.Int32
	m := NewManager(countingFactory(&built))

	const workers = 32
	handles := make([]backend.Client, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := m.Get("tok-primary-0001", "staging")
			if err != nil {
				t.Errorf("Get: %v", err)
				return
			}
			handles[i] = h
		}()
	}
	wg.Wait()

	if built.Load() != 1 {
		t.Fatalf("factory called %d times", built.Load())
	}
	for i := 1; i < workers; i++ {
		if handles[i] != handles[0] {
			t.Fatalf("worker %d got a different handle", i)
		}
	}
}

func TestMalformedTokenIsInternal(t *testing.T) {
	var built atomic.Int32
	m := NewManager(countingFactory(&built))

	for _, tok := range []string{"", "short", "has space inside", "tok/with/slash"} {
		_, err := m.Get(tok, "")
		if err == nil {
			t.Fatalf("token %q: expected error", tok)
		}
		if !errors.Is(err, ErrMalformedToken) {
			t.Fatalf("token %q: expected ErrMalformedToken, got %v", tok, err)
		}
		if k := envelope.Classify(err); k != envelope.KindInternal {
			t.Fatalf("token %q: Classify = %s", tok, k)
		}
	}
	if built.Load() != 0 {
		t.Fatalf("factory must not run for malformed tokens")
	}
}

func TestFactoryFailureIsNotCached(t *testing.T) {
	fail := true
	m := NewManager(func(token, environment string) (backend.Client, error) {
		if fail {
			return nil, errors.New("boom")
		}
		return backendtest.New(), nil
	})

	if _, err := m.Get("tok-primary-0001", ""); envelope.Classify(err) != envelope.KindInternal {
		t.Fatalf("expected Internal, got %v", err)
	}
	fail = false
	if _, err := m.Get("tok-primary-0001", ""); err != nil {
		t.Fatalf("Get after recovery: %v", err)
	}
	if m.Len() != 1 {
		t.Fatalf("Len = %d", m.Len())
	}
}
