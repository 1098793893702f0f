// Package bundle loads versioned, compressed index bundles and caches the
// built results in memory.
//
// A load walks the tiers in order: memory cache (TTL), in-flight coalescing,
// persistent tier (when configured), origin. Concurrent loads of the same
// resource share one fetch and observe the identical bundle value.
package bundle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/hupe1980/addrgo/codec"
	"github.com/hupe1980/addrgo/manifest"
	"github.com/hupe1980/addrgo/origin"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrFetchFailed is returned when the bundle body or the manifest naming
	// it cannot be retrieved.
	ErrFetchFailed = errors.New("bundle fetch failed")

	// ErrDecompressFailed is returned when the fetched body is not valid gzip
	// data.
	ErrDecompressFailed = errors.New("bundle decompress failed")

	// ErrParseFailed is returned when the decompressed body cannot be decoded
	// or the bundle cannot be built from it.
	ErrParseFailed = errors.New("bundle parse failed")
)

// Payload is the decompressed wire shape of one shard's precomputed index
// data. It is consumed once per load and not retained past bundle
// construction.
type Payload struct {
	ParcelIDs     []string `json:"parcelIds"`
	SearchStrings []string `json:"searchStrings"`
	RecordCount   int      `json:"recordCount"`
	Version       string   `json:"version"`
}

// Entry is one cached, built bundle. Entries are immutable; a version change
// produces a new entry, never an in-place patch.
type Entry struct {
	Bundle    any
	Version   string
	Timestamp time.Time
	SizeBytes int
}

// PersistentTier is an optional second cache tier consulted before the
// network, keyed by full resource URL. Both methods must fail soft.
type PersistentTier interface {
	// Cached returns the persisted body for url, if present.
	Cached(ctx context.Context, url string) ([]byte, bool)
	// Store persists a freshly fetched body. Best effort.
	Store(ctx context.Context, url string, body []byte)
}

// Options configures a Loader.
type Options struct {
	// TTL is how long a cached bundle stays fresh.
	TTL time.Duration

	// SweepInterval is how often expired entries are evicted in the
	// background. Defaults to TTL/2, floored at one second.
	SweepInterval time.Duration

	// Codec decodes decompressed payloads. Defaults to codec.Default.
	Codec codec.Codec

	// Persistent is the optional on-disk tier.
	Persistent PersistentTier

	// Logger receives sweep and load diagnostics. Defaults to slog.Default().
	Logger *slog.Logger

	// Now is the clock. Overridable in tests.
	Now func() time.Time
}

// DefaultTTL is used when Options.TTL is unset.
const DefaultTTL = time.Hour

// Loader fetches, decompresses, builds, and caches index bundles.
type Loader struct {
	manifests *manifest.Store
	origin    origin.Origin
	opts      Options

	mu    sync.Mutex
	cache map[string]*Entry
	group singleflight.Group

	done      chan struct{}
	closeOnce sync.Once
}

// NewLoader creates a Loader and starts its background eviction sweep.
// Call Close to stop the sweep.
func NewLoader(manifests *manifest.Store, o origin.Origin, optFns ...func(o *Options)) *Loader {
	opts := Options{
		TTL:   DefaultTTL,
		Codec: codec.Default,
		Now:   time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = opts.TTL / 2
		if opts.SweepInterval < time.Second {
			opts.SweepInterval = time.Second
		}
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	l := &Loader{
		manifests: manifests,
		origin:    o,
		opts:      opts,
		cache:     make(map[string]*Entry),
		done:      make(chan struct{}),
	}

	go l.sweepLoop()

	return l
}

// Config describes how to turn a decompressed payload into a domain bundle.
// Extract, Lookup, and Build are pure except Build, which may do asynchronous
// work under ctx.
type Config[B any] struct {
	// Resource is the logical resource name resolved through the manifest.
	Resource string

	// Extract decodes the decompressed body into a Payload.
	// When nil, the body is decoded directly with the loader's codec.
	Extract func(c codec.Codec, body []byte) (*Payload, error)

	// Lookup derives the id -> display string map from the payload.
	// When nil, parcel IDs map to their search strings positionally.
	Lookup func(p *Payload) map[string]string

	// Build constructs the final bundle from the payload and lookup map.
	Build func(ctx context.Context, p *Payload, lookup map[string]string) (B, error)
}

// Load returns the bundle for cfg.Resource, serving from the memory cache
// when fresh, joining an in-flight load when one exists, and otherwise
// fetching and building. All errors carry the resource name.
func Load[B any](ctx context.Context, l *Loader, cfg Config[B]) (B, error) {
	var zero B

	if cfg.Build == nil {
		return zero, fmt.Errorf("%w: resource %q: missing Build func", ErrParseFailed, cfg.Resource)
	}

	v, err := l.load(ctx, cfg.Resource, func(ctx context.Context, body []byte) (any, error) {
		extract := cfg.Extract
		if extract == nil {
			extract = defaultExtract
		}
		p, err := extract(l.opts.Codec, body)
		if err != nil {
			return nil, fmt.Errorf("%w: resource %q: %w", ErrParseFailed, cfg.Resource, err)
		}

		lookup := cfg.Lookup
		if lookup == nil {
			lookup = defaultLookup
		}

		b, err := cfg.Build(ctx, p, lookup(p))
		if err != nil {
			return nil, fmt.Errorf("%w: resource %q: %w", ErrParseFailed, cfg.Resource, err)
		}
		return b, nil
	})
	if err != nil {
		return zero, err
	}

	b, ok := v.(B)
	if !ok {
		return zero, fmt.Errorf("%w: resource %q: cached bundle has unexpected type %T", ErrParseFailed, cfg.Resource, v)
	}
	return b, nil
}

func defaultExtract(c codec.Codec, body []byte) (*Payload, error) {
	var p Payload
	if err := c.Unmarshal(body, &p); err != nil {
		return nil, err
	}
	if len(p.ParcelIDs) != len(p.SearchStrings) {
		return nil, fmt.Errorf("parcelIds/searchStrings length mismatch: %d vs %d", len(p.ParcelIDs), len(p.SearchStrings))
	}
	return &p, nil
}

func defaultLookup(p *Payload) map[string]string {
	m := make(map[string]string, len(p.ParcelIDs))
	for i, id := range p.ParcelIDs {
		if i < len(p.SearchStrings) {
			m[id] = p.SearchStrings[i]
		}
	}
	return m
}

// load implements the tiered lookup for one resource. build receives the
// decompressed body and returns the value to cache.
func (l *Loader) load(ctx context.Context, resource string, build func(ctx context.Context, body []byte) (any, error)) (any, error) {
	if e, ok := l.freshEntry(resource); ok {
		return e.Bundle, nil
	}

	// Concurrent callers for the same resource join this flight and observe
	// the same resolved value. The flight is forgotten once it settles, so a
	// failure leaves nothing behind and the next call retries cleanly.
	v, err, _ := l.group.Do(resource, func() (any, error) {
		// A racing caller may have populated the cache while we waited for
		// the flight slot.
		if e, ok := l.freshEntry(resource); ok {
			return e.Bundle, nil
		}

		m, err := l.manifests.Get(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: resource %q: %w", ErrFetchFailed, resource, err)
		}

		url, ok := m.FileURL(resource)
		if !ok {
			return nil, fmt.Errorf("%w: resource %q not in manifest version %s", ErrFetchFailed, resource, m.Current.Version)
		}

		decode := func(body []byte) (any, []byte, error) {
			raw, err := gunzip(body)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: resource %q: %w", ErrDecompressFailed, resource, err)
			}
			b, err := build(ctx, raw)
			if err != nil {
				return nil, nil, err
			}
			return b, raw, nil
		}

		var (
			bundleVal any
			raw       []byte
		)

		body, fromTier := l.fetchBody(ctx, url)
		if fromTier {
			bundleVal, raw, err = decode(body)
			if err != nil {
				// A corrupt persisted body must not pin the load; fall back to
				// the origin and let the backfill below replace the bad entry.
				l.opts.Logger.Warn("persisted bundle body unusable, refetching",
					"resource", resource,
					"url", url,
					"error", err,
				)
				body = nil
				fromTier = false
			}
		}

		if body == nil {
			fetched, ferr := l.origin.Fetch(ctx, url)
			if ferr != nil {
				return nil, fmt.Errorf("%w: resource %q: %w", ErrFetchFailed, resource, ferr)
			}
			body = fetched

			bundleVal, raw, err = decode(body)
			if err != nil {
				return nil, err
			}
		}

		l.storeEntry(resource, &Entry{
			Bundle:    bundleVal,
			Version:   m.Current.Version,
			Timestamp: l.opts.Now(),
			SizeBytes: len(raw),
		})

		if !fromTier && l.opts.Persistent != nil {
			l.opts.Persistent.Store(ctx, url, body)
		}

		return bundleVal, nil
	})
	return v, err
}

// fetchBody consults the persistent tier. The bool reports whether the body
// came from the tier.
func (l *Loader) fetchBody(ctx context.Context, url string) ([]byte, bool) {
	if l.opts.Persistent == nil {
		return nil, false
	}
	body, ok := l.opts.Persistent.Cached(ctx, url)
	if !ok {
		return nil, false
	}
	return body, true
}

func (l *Loader) freshEntry(resource string) (*Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.cache[resource]
	if !ok {
		return nil, false
	}
	if l.opts.Now().Sub(e.Timestamp) >= l.opts.TTL {
		return nil, false
	}
	return e, true
}

func (l *Loader) storeEntry(resource string, e *Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache[resource] = e
}

// CachedEntry returns a snapshot of the cache entry for resource, fresh or
// not. Introspection only.
func (l *Loader) CachedEntry(resource string) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.cache[resource]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Invalidate drops the cache entry for resource.
func (l *Loader) Invalidate(resource string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.cache, resource)
}

// Clear drops every cache entry.
func (l *Loader) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache = make(map[string]*Entry)
}

// Sweep evicts every expired entry and returns the eviction count.
// Runs periodically in the background; exported so callers can force a pass.
func (l *Loader) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.opts.Now()
	evicted := 0
	for resource, e := range l.cache {
		if now.Sub(e.Timestamp) >= l.opts.TTL {
			delete(l.cache, resource)
			evicted++
		}
	}
	return evicted
}

func (l *Loader) sweepLoop() {
	ticker := time.NewTicker(l.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				l.opts.Logger.Debug("evicted expired bundles", "count", n)
			}
		case <-l.done:
			return
		}
	}
}

// Close stops the background sweep. The cache stays readable.
func (l *Loader) Close() {
	l.closeOnce.Do(func() {
		close(l.done)
	})
}

func gunzip(body []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
