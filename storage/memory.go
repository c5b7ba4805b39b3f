package storage

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/ruteri/credential-store/interfaces"
)

// Call records one operation issued against a MemoryBackend.
type Call struct {
	Op   string
	Path string
}

type memEntry struct {
	dir   bool
	value string
}

// MemoryBackend is an in-process hierarchical store with etcd-like semantics.
// It backs the ephemeral mode and tests. The zero value is not usable; call NewMemoryBackend.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]memEntry
	calls   []Call
}

// NewMemoryBackend creates an empty store.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]memEntry)}
}

func (m *MemoryBackend) record(op, path string) {
	m.calls = append(m.calls, Call{Op: op, Path: path})
}

// Calls returns every operation issued so far, in order.
func (m *MemoryBackend) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// Writes returns the non-Get operations issued so far.
func (m *MemoryBackend) Writes() []Call {
	var writes []Call
	for _, c := range m.Calls() {
		if c.Op != "get" {
			writes = append(writes, c)
		}
	}
	return writes
}

// ResetCalls forgets recorded operations without touching stored data.
func (m *MemoryBackend) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// ensureParents creates missing parent directories. It reports false if a
// parent exists as a leaf.
func (m *MemoryBackend) ensureParents(p string) bool {
	segs := splitPath(p)
	for i := 1; i < len(segs); i++ {
		parent := strings.Join(segs[:i], "/")
		e, ok := m.entries[parent]
		if ok && !e.dir {
			return false
		}
		if !ok {
			m.entries[parent] = memEntry{dir: true}
		}
	}
	return true
}

func (m *MemoryBackend) Get(ctx context.Context, path string) (*interfaces.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p := cleanPath(path)
	m.record("get", p)

	e, ok := m.entries[p]
	if !ok {
		return status(http.StatusNotFound), nil
	}
	if e.dir {
		return dirResponse(), nil
	}
	return leafResponse([]byte(e.value)), nil
}

func (m *MemoryBackend) Set(ctx context.Context, path string, value string, update bool) (*interfaces.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p := cleanPath(path)
	m.record("set", p)

	e, exists := m.entries[p]
	switch {
	case exists && e.dir:
		return status(http.StatusForbidden), nil
	case update && !exists:
		return status(http.StatusNotFound), nil
	}
	if !m.ensureParents(p) {
		return status(http.StatusForbidden), nil
	}

	m.entries[p] = memEntry{value: value}
	if exists {
		return status(http.StatusOK), nil
	}
	return status(http.StatusCreated), nil
}

func (m *MemoryBackend) Mkdir(ctx context.Context, path string) (*interfaces.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p := cleanPath(path)
	m.record("mkdir", p)

	if _, exists := m.entries[p]; exists {
		return status(http.StatusPreconditionFailed), nil
	}
	if !m.ensureParents(p) {
		return status(http.StatusForbidden), nil
	}

	m.entries[p] = memEntry{dir: true}
	return status(http.StatusCreated), nil
}

func (m *MemoryBackend) Delete(ctx context.Context, path string, recursive bool) (*interfaces.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p := cleanPath(path)
	m.record("delete", p)

	e, exists := m.entries[p]
	if !exists {
		return status(http.StatusNotFound), nil
	}
	if e.dir && !recursive {
		return status(http.StatusForbidden), nil
	}

	delete(m.entries, p)
	if e.dir {
		prefix := p + "/"
		for k := range m.entries {
			if strings.HasPrefix(k, prefix) {
				delete(m.entries, k)
			}
		}
	}
	return status(http.StatusOK), nil
}

// Name returns a unique identifier for this backend.
func (m *MemoryBackend) Name() string {
	return "memory"
}

// LocationURI returns the URI that identifies this backend.
func (m *MemoryBackend) LocationURI() string {
	return "memory://"
}
