package manifest

import (
	"context"
	"testing"

	"github.com/hupe1980/addrgo/codec"
	"github.com/hupe1980/addrgo/origin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const manifestURL = "https://cdn.test/manifest.json"

func validManifest() *Manifest {
	return &Manifest{
		GeneratedAt: "2026-08-01T00:00:00Z",
		Current: Version{
			Version: "2026-08-01",
			Files: map[string]string{
				"stl_city-address_index":   "https://cdn.test/2026-08-01/stl_city.json.gz",
				"stl_county-address_index": "https://cdn.test/2026-08-01/stl_county.json.gz",
			},
		},
		AvailableVersions: []string{"2026-08-01", "2026-07-01"},
	}
}

func putManifest(o *origin.MemoryOrigin, m *Manifest) {
	o.Put(manifestURL, codec.MustMarshal(nil, m))
}

func TestStore_GetCachesUntilClear(t *testing.T) {
	ctx := context.Background()
	o := origin.NewMemory()
	putManifest(o, validManifest())

	s := NewStore(o, manifestURL)

	m1, err := s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2026-08-01", m1.Current.Version)

	m2, err := s.Get(ctx)
	require.NoError(t, err)
	assert.Same(t, m1, m2)
	assert.Equal(t, 1, o.Fetches(manifestURL))

	s.Clear()

	_, err = s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, o.Fetches(manifestURL))
}

func TestStore_GetUnavailable(t *testing.T) {
	ctx := context.Background()
	o := origin.NewMemory() // manifest never published

	s := NewStore(o, manifestURL)

	_, err := s.Get(ctx)
	assert.ErrorIs(t, err, ErrUnavailable)

	// Failure is not cached; a later publish succeeds.
	putManifest(o, validManifest())
	_, err = s.Get(ctx)
	assert.NoError(t, err)
}

func TestStore_GetMalformed(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		body []byte
	}{
		{name: "not json", body: []byte("not json at all")},
		{name: "missing version", body: codec.MustMarshal(nil, &Manifest{
			Current: Version{Files: map[string]string{"r": "u"}},
		})},
		{name: "missing files", body: codec.MustMarshal(nil, &Manifest{
			Current: Version{Version: "2026-08-01"},
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := origin.NewMemory()
			o.Put(manifestURL, tt.body)

			s := NewStore(o, manifestURL)
			_, err := s.Get(ctx)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestManifest_FileURL(t *testing.T) {
	m := validManifest()

	url, ok := m.FileURL("stl_city-address_index")
	assert.True(t, ok)
	assert.Equal(t, "https://cdn.test/2026-08-01/stl_city.json.gz", url)

	_, ok = m.FileURL("unknown-resource")
	assert.False(t, ok)
}
