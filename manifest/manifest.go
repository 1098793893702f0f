// Package manifest fetches and caches the version manifest that names the
// currently published index data and where each resource lives on the origin.
package manifest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/addrgo/codec"
	"github.com/hupe1980/addrgo/origin"
)

var (
	// ErrUnavailable is returned when the manifest cannot be fetched from the
	// origin.
	ErrUnavailable = errors.New("manifest unavailable")

	// ErrMalformed is returned when a fetched manifest is missing required
	// fields.
	ErrMalformed = errors.New("manifest malformed")
)

// Manifest is the authoritative description of available data versions.
// It is replaced wholesale on refetch, never mutated in place.
type Manifest struct {
	GeneratedAt       string   `json:"generated_at"`
	Current           Version  `json:"current"`
	Previous          *Version `json:"previous,omitempty"`
	AvailableVersions []string `json:"available_versions,omitempty"`
}

// Version names one published data version and the origin location of each
// of its resources.
type Version struct {
	Version string            `json:"version"`
	Files   map[string]string `json:"files"`
}

// FileURL resolves the origin URL of a logical resource in the current
// version.
func (m *Manifest) FileURL(resource string) (string, bool) {
	url, ok := m.Current.Files[resource]
	return url, ok
}

// Store fetches the manifest on first need and holds it until Clear.
// There is no TTL and no retry policy: callers re-invoke Get after a failure,
// and an explicit Clear forces the next Get to refetch.
type Store struct {
	mu     sync.Mutex
	origin origin.Origin
	url    string
	codec  codec.Codec
	cached *Manifest
}

// NewStore creates a manifest store reading from url on the given origin.
func NewStore(o origin.Origin, url string, optFns ...func(o *StoreOptions)) *Store {
	opts := StoreOptions{Codec: codec.Default}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Store{
		origin: o,
		url:    url,
		codec:  opts.Codec,
	}
}

// StoreOptions configures a Store.
type StoreOptions struct {
	// Codec decodes the manifest body. Defaults to codec.Default.
	Codec codec.Codec
}

// Get returns the cached manifest if present, otherwise fetches and validates
// it. The lock is held across the fetch so concurrent first callers share one
// network round trip.
func (s *Store) Get(ctx context.Context) (*Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil {
		return s.cached, nil
	}

	body, err := s.origin.Fetch(ctx, s.url)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	var m Manifest
	if err := s.codec.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	if err := validate(&m); err != nil {
		return nil, err
	}

	s.cached = &m
	return s.cached, nil
}

// Clear drops the cached manifest so the next Get refetches.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = nil
}

func validate(m *Manifest) error {
	if m.Current.Version == "" {
		return fmt.Errorf("%w: missing current.version", ErrMalformed)
	}
	if len(m.Current.Files) == 0 {
		return fmt.Errorf("%w: missing current.files", ErrMalformed)
	}
	return nil
}
