package bundle

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/addrgo/codec"
	"github.com/hupe1980/addrgo/manifest"
	"github.com/hupe1980/addrgo/origin"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	manifestURL = "https://cdn.test/manifest.json"
	resource    = "stl_city-address_index"
	resourceURL = "https://cdn.test/2026-08-01/stl_city.json.gz"
)

// builtBundle is the domain bundle type used throughout these tests; pointer
// identity matters for the caching assertions.
type builtBundle struct {
	payload *Payload
	lookup  map[string]string
}

func gzipBody(t *testing.T, body []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(body)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func testPayload() *Payload {
	return &Payload{
		ParcelIDs:     []string{"p1", "p2"},
		SearchStrings: []string{"123 MAIN ST", "42 OAK AVE"},
		RecordCount:   2,
		Version:       "2026-08-01",
	}
}

func publish(t *testing.T, o *origin.MemoryOrigin) {
	t.Helper()

	o.Put(manifestURL, codec.MustMarshal(nil, &manifest.Manifest{
		Current: manifest.Version{
			Version: "2026-08-01",
			Files:   map[string]string{resource: resourceURL},
		},
	}))
	o.Put(resourceURL, gzipBody(t, codec.MustMarshal(nil, testPayload())))
}

func testConfig() Config[*builtBundle] {
	return Config[*builtBundle]{
		Resource: resource,
		Build: func(_ context.Context, p *Payload, lookup map[string]string) (*builtBundle, error) {
			return &builtBundle{payload: p, lookup: lookup}, nil
		},
	}
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestLoader(t *testing.T, o origin.Origin, optFns ...func(o *Options)) *Loader {
	t.Helper()

	l := NewLoader(manifest.NewStore(o, manifestURL), o, optFns...)
	t.Cleanup(l.Close)
	return l
}

func TestLoad_CachesWithinTTL(t *testing.T) {
	ctx := context.Background()
	o := origin.NewMemory()
	publish(t, o)

	l := newTestLoader(t, o)

	b1, err := Load(ctx, l, testConfig())
	require.NoError(t, err)
	require.NotNil(t, b1)

	b2, err := Load(ctx, l, testConfig())
	require.NoError(t, err)

	assert.Same(t, b1, b2)
	assert.Equal(t, 1, o.Fetches(resourceURL))

	entry, ok := l.CachedEntry(resource)
	require.True(t, ok)
	assert.Equal(t, "2026-08-01", entry.Version)
	assert.Positive(t, entry.SizeBytes)
}

// gatedOrigin blocks every fetch until the gate opens, so concurrent loads
// pile up in flight.
type gatedOrigin struct {
	inner *origin.MemoryOrigin
	gate  chan struct{}
}

func (g *gatedOrigin) Fetch(ctx context.Context, url string) ([]byte, error) {
	<-g.gate
	return g.inner.Fetch(ctx, url)
}

func TestLoad_CoalescesConcurrentCalls(t *testing.T) {
	ctx := context.Background()
	inner := origin.NewMemory()
	publish(t, inner)

	gated := &gatedOrigin{inner: inner, gate: make(chan struct{})}
	l := newTestLoader(t, gated)

	const callers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		bundles []*builtBundle
	)

	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := Load(ctx, l, testConfig())
			assert.NoError(t, err)
			mu.Lock()
			bundles = append(bundles, b)
			mu.Unlock()
		}()
	}

	// Let the callers reach the flight before any fetch completes.
	time.Sleep(50 * time.Millisecond)
	close(gated.gate)
	wg.Wait()

	require.Len(t, bundles, callers)
	for _, b := range bundles {
		assert.Same(t, bundles[0], b)
	}
	assert.Equal(t, 1, inner.Fetches(resourceURL))
	assert.Equal(t, 1, inner.Fetches(manifestURL))
}

func TestLoad_TTLExpiryTriggersOneRefetch(t *testing.T) {
	ctx := context.Background()
	o := origin.NewMemory()
	publish(t, o)

	clock := newFakeClock()
	l := newTestLoader(t, o, func(opts *Options) {
		opts.TTL = time.Minute
		opts.Now = clock.Now
	})

	b1, err := Load(ctx, l, testConfig())
	require.NoError(t, err)

	clock.Advance(30 * time.Second)
	b2, err := Load(ctx, l, testConfig())
	require.NoError(t, err)
	assert.Same(t, b1, b2)

	clock.Advance(31 * time.Second)
	b3, err := Load(ctx, l, testConfig())
	require.NoError(t, err)
	assert.NotSame(t, b1, b3)
	assert.Equal(t, 2, o.Fetches(resourceURL))
}

func TestSweep_EvictsExpiredEntries(t *testing.T) {
	ctx := context.Background()
	o := origin.NewMemory()
	publish(t, o)

	clock := newFakeClock()
	l := newTestLoader(t, o, func(opts *Options) {
		opts.TTL = time.Minute
		opts.Now = clock.Now
	})

	_, err := Load(ctx, l, testConfig())
	require.NoError(t, err)

	assert.Equal(t, 0, l.Sweep())

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, l.Sweep())

	_, ok := l.CachedEntry(resource)
	assert.False(t, ok)
}

func TestLoad_ManifestUnavailableLeavesCleanRetry(t *testing.T) {
	ctx := context.Background()
	o := origin.NewMemory() // nothing published yet

	l := newTestLoader(t, o)

	_, err := Load(ctx, l, testConfig())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.ErrorIs(t, err, manifest.ErrUnavailable)
	assert.Contains(t, err.Error(), resource)

	// The failed flight must not pollute the in-flight registry: once the
	// data is published, the next call succeeds.
	publish(t, o)
	b, err := Load(ctx, l, testConfig())
	require.NoError(t, err)
	assert.NotNil(t, b)
}

func TestLoad_ResourceMissingFromManifest(t *testing.T) {
	ctx := context.Background()
	o := origin.NewMemory()
	o.Put(manifestURL, codec.MustMarshal(nil, &manifest.Manifest{
		Current: manifest.Version{
			Version: "2026-08-01",
			Files:   map[string]string{"other-resource": "https://cdn.test/other.gz"},
		},
	}))

	l := newTestLoader(t, o)

	_, err := Load(ctx, l, testConfig())
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.Contains(t, err.Error(), resource)
}

func TestLoad_DecompressFailed(t *testing.T) {
	ctx := context.Background()
	o := origin.NewMemory()
	publish(t, o)
	o.Put(resourceURL, []byte("definitely not gzip"))

	l := newTestLoader(t, o)

	_, err := Load(ctx, l, testConfig())
	assert.ErrorIs(t, err, ErrDecompressFailed)
	assert.Contains(t, err.Error(), resource)
}

func TestLoad_ParseFailed(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid json", func(t *testing.T) {
		o := origin.NewMemory()
		publish(t, o)
		o.Put(resourceURL, gzipBody(t, []byte("{not json")))

		l := newTestLoader(t, o)
		_, err := Load(ctx, l, testConfig())
		assert.ErrorIs(t, err, ErrParseFailed)
	})

	t.Run("length mismatch", func(t *testing.T) {
		o := origin.NewMemory()
		publish(t, o)
		o.Put(resourceURL, gzipBody(t, codec.MustMarshal(nil, &Payload{
			ParcelIDs:     []string{"p1"},
			SearchStrings: []string{"a", "b"},
		})))

		l := newTestLoader(t, o)
		_, err := Load(ctx, l, testConfig())
		assert.ErrorIs(t, err, ErrParseFailed)
	})

	t.Run("build hook failure", func(t *testing.T) {
		o := origin.NewMemory()
		publish(t, o)

		l := newTestLoader(t, o)
		cfg := testConfig()
		cfg.Build = func(context.Context, *Payload, map[string]string) (*builtBundle, error) {
			return nil, errors.New("boom")
		}

		_, err := Load(ctx, l, cfg)
		assert.ErrorIs(t, err, ErrParseFailed)
		assert.Contains(t, err.Error(), "boom")
	})
}

// fakeTier is an in-memory PersistentTier recording interactions.
type fakeTier struct {
	mu     sync.Mutex
	bodies map[string][]byte
	stores int
}

func newFakeTier() *fakeTier {
	return &fakeTier{bodies: make(map[string][]byte)}
}

func (f *fakeTier) Cached(_ context.Context, url string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.bodies[url]
	return body, ok
}

func (f *fakeTier) Store(_ context.Context, url string, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[url] = body
	f.stores++
}

func TestLoad_PersistentTierServesBody(t *testing.T) {
	ctx := context.Background()
	o := origin.NewMemory()
	publish(t, o)

	tier := newFakeTier()
	tier.Store(ctx, resourceURL, gzipBody(t, codec.MustMarshal(nil, testPayload())))

	l := newTestLoader(t, o, func(opts *Options) {
		opts.Persistent = tier
	})

	_, err := Load(ctx, l, testConfig())
	require.NoError(t, err)

	// Body came from the tier; only the manifest hit the origin.
	assert.Equal(t, 0, o.Fetches(resourceURL))
	assert.Equal(t, 1, o.Fetches(manifestURL))
}

func TestLoad_CorruptPersistedBodyFallsBackToOrigin(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		body []byte
	}{
		{name: "not gzip", body: []byte("corrupted persisted body")},
		{name: "gzip of invalid json", body: nil}, // filled in below
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := origin.NewMemory()
			publish(t, o)

			bad := tt.body
			if bad == nil {
				bad = gzipBody(t, []byte("{not json"))
			}

			tier := newFakeTier()
			tier.Store(ctx, resourceURL, bad)

			l := newTestLoader(t, o, func(opts *Options) {
				opts.Persistent = tier
			})

			b, err := Load(ctx, l, testConfig())
			require.NoError(t, err)
			require.NotNil(t, b)
			assert.Equal(t, 1, o.Fetches(resourceURL))

			// The bad entry was replaced with the freshly fetched body, so the
			// next cold load decodes straight from the tier.
			body, ok := tier.Cached(ctx, resourceURL)
			require.True(t, ok)
			assert.NotEqual(t, bad, body)

			l.Clear()
			_, err = Load(ctx, l, testConfig())
			require.NoError(t, err)
			assert.Equal(t, 1, o.Fetches(resourceURL))
		})
	}
}

func TestLoad_PersistentTierBackfilledOnMiss(t *testing.T) {
	ctx := context.Background()
	o := origin.NewMemory()
	publish(t, o)

	tier := newFakeTier()
	l := newTestLoader(t, o, func(opts *Options) {
		opts.Persistent = tier
	})

	_, err := Load(ctx, l, testConfig())
	require.NoError(t, err)

	assert.Equal(t, 1, o.Fetches(resourceURL))
	body, ok := tier.Cached(ctx, resourceURL)
	assert.True(t, ok)
	assert.NotEmpty(t, body)
}

func TestLoad_DefaultExtractAndLookup(t *testing.T) {
	ctx := context.Background()
	o := origin.NewMemory()
	publish(t, o)

	l := newTestLoader(t, o)

	b, err := Load(ctx, l, testConfig())
	require.NoError(t, err)

	assert.Equal(t, []string{"p1", "p2"}, b.payload.ParcelIDs)
	assert.Equal(t, map[string]string{
		"p1": "123 MAIN ST",
		"p2": "42 OAK AVE",
	}, b.lookup)
}

func TestLoad_MissingBuildFunc(t *testing.T) {
	ctx := context.Background()
	o := origin.NewMemory()
	publish(t, o)

	l := newTestLoader(t, o)

	_, err := Load(ctx, l, Config[*builtBundle]{Resource: resource})
	assert.ErrorIs(t, err, ErrParseFailed)
}

func TestLoader_InvalidateAndClear(t *testing.T) {
	ctx := context.Background()
	o := origin.NewMemory()
	publish(t, o)

	l := newTestLoader(t, o)

	_, err := Load(ctx, l, testConfig())
	require.NoError(t, err)

	l.Invalidate(resource)
	_, ok := l.CachedEntry(resource)
	assert.False(t, ok)

	_, err = Load(ctx, l, testConfig())
	require.NoError(t, err)
	l.Clear()
	_, ok = l.CachedEntry(resource)
	assert.False(t, ok)
}
