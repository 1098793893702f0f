package origin

import (
	"context"
	"fmt"
	"sync"
)

// MemoryOrigin is an in-memory Origin implementation for testing.
// It records fetch counts per URL so tests can assert coalescing and cache
// behavior. Thread-safe.
type MemoryOrigin struct {
	mu       sync.Mutex
	objects  map[string][]byte
	fetches  map[string]int
	failWith error
}

// NewMemory creates a new in-memory origin.
func NewMemory() *MemoryOrigin {
	return &MemoryOrigin{
		objects: make(map[string][]byte),
		fetches: make(map[string]int),
	}
}

// Put stores an artifact body under url.
func (m *MemoryOrigin) Put(url string, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := make([]byte, len(body))
	copy(copied, body)
	m.objects[url] = copied
}

// FailWith makes every subsequent Fetch return err. Pass nil to restore
// normal behavior.
func (m *MemoryOrigin) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// Fetch retrieves the artifact at url.
func (m *MemoryOrigin) Fetch(_ context.Context, url string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fetches[url]++

	if m.failWith != nil {
		return nil, m.failWith
	}

	body, ok := m.objects[url]
	if !ok {
		return nil, fmt.Errorf("fetch %s: %w", url, ErrNotFound)
	}

	copied := make([]byte, len(body))
	copy(copied, body)
	return copied, nil
}

// Fetches returns how many times url has been fetched.
func (m *MemoryOrigin) Fetches(url string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches[url]
}

// TotalFetches returns the total fetch count across all URLs.
func (m *MemoryOrigin) TotalFetches() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := 0
	for _, n := range m.fetches {
		total += n
	}
	return total
}
