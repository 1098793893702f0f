package addrgo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/addrgo/agent"
	"github.com/hupe1980/addrgo/bundle"
	"github.com/hupe1980/addrgo/codec"
	"github.com/hupe1980/addrgo/manifest"
	"github.com/hupe1980/addrgo/origin"
	"github.com/hupe1980/addrgo/preload"
	"github.com/hupe1980/addrgo/query"
	"github.com/hupe1980/addrgo/searchindex"
	"github.com/hupe1980/addrgo/shard"
	"golang.org/x/sync/errgroup"
)

// PreloadKey identifies the process-wide background preload singleton.
const PreloadKey = "addrgo.background-preload"

// DefaultSuggestionLimit caps typeahead result lists.
const DefaultSuggestionLimit = 10

// Resource maps a shard to its logical resource name in the manifest.
func Resource(id shard.ID) string {
	return strings.ReplaceAll(string(id), "-", "_") + "-address_index"
}

// Client ties the caching tiers, the manifest store, the persistent cache
// agent, and the preload singleton into one entry point.
type Client struct {
	cfg     Config
	logger  *Logger
	metrics MetricsCollector

	origin    origin.Origin
	manifests *manifest.Store
	loader    *bundle.Loader
	cache     *agent.Client
}

// Open creates a Client.
//
// With no options the manifest URL must come from the environment
// (WithEnvConfig) or WithManifestURL; the origin defaults to plain HTTP.
func Open(ctx context.Context, optFns ...Option) (*Client, error) {
	opts := options{
		codec:   codec.Default,
		metrics: NoopMetricsCollector{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.fromEnv {
		envCfg, err := ConfigFromEnv()
		if err != nil {
			return nil, fmt.Errorf("load config from environment: %w", err)
		}
		// Explicit option values win over environment values.
		merged := envCfg
		if opts.config.ManifestURL != "" {
			merged.ManifestURL = opts.config.ManifestURL
		}
		if opts.config.Environment != "" {
			merged.Environment = opts.config.Environment
		}
		if opts.config.BundleTTL > 0 {
			merged.BundleTTL = opts.config.BundleTTL
		}
		if opts.config.CacheDir != "" {
			merged.CacheDir = opts.config.CacheDir
		}
		if opts.config.Debounce > 0 {
			merged.Debounce = opts.config.Debounce
		}
		opts.config = merged
	}

	if opts.logger == nil {
		opts.logger = NewLogger(nil)
	}
	if opts.origin == nil {
		opts.origin = origin.NewHTTP()
	}
	if opts.config.ManifestURL == "" {
		return nil, errors.New("manifest url required")
	}
	if opts.config.Debounce <= 0 {
		opts.config.Debounce = DefaultDebounce
	}

	manifests := manifest.NewStore(opts.origin, opts.config.ManifestURL, func(o *manifest.StoreOptions) {
		o.Codec = opts.codec
	})

	cache := agent.NewClient(opts.config.CacheDir, opts.origin, manifests, func(o *agent.ClientOptions) {
		o.Logger = opts.logger.Logger
		o.OpenStore = opts.agentStore
		o.OnMessage = opts.metrics.RecordAgentMessage
	})
	if cache.State() != agent.StateUnsupported {
		// Best effort; an unregistered tier degrades to no-ops.
		cache.Register()
	}

	loader := bundle.NewLoader(manifests, opts.origin, func(o *bundle.Options) {
		o.TTL = opts.config.TTL()
		o.Codec = opts.codec
		o.Logger = opts.logger.Logger
		o.Persistent = cache
	})

	return &Client{
		cfg:       opts.config,
		logger:    opts.logger,
		metrics:   opts.metrics,
		origin:    opts.origin,
		manifests: manifests,
		loader:    loader,
		cache:     cache,
	}, nil
}

// LoadShard returns the ready-to-query bundle for one shard, walking the
// cache tiers before the network.
func (c *Client) LoadShard(ctx context.Context, id shard.ID) (*searchindex.Bundle, error) {
	resource := Resource(id)
	start := time.Now()

	entry, ok := c.loader.CachedEntry(resource)
	cacheHit := ok && time.Since(entry.Timestamp) < c.cfg.TTL()

	b, err := bundle.Load(ctx, c.loader, c.shardConfig(id))

	c.metrics.RecordLoad(resource, cacheHit, time.Since(start), err)
	c.logger.LogLoad(ctx, resource, cacheHit, time.Since(start), err)
	return b, err
}

func (c *Client) shardConfig(id shard.ID) bundle.Config[*searchindex.Bundle] {
	return bundle.Config[*searchindex.Bundle]{
		Resource: Resource(id),
		Build: func(_ context.Context, p *bundle.Payload, lookup map[string]string) (*searchindex.Bundle, error) {
			idx, err := searchindex.Build(p.ParcelIDs, p.SearchStrings)
			if err != nil {
				return nil, err
			}
			return &searchindex.Bundle{
				Index:       idx,
				ParcelIDs:   p.ParcelIDs,
				AddressData: lookup,
			}, nil
		},
	}
}

// Search loads the shard bundle and queries it.
func (c *Client) Search(ctx context.Context, id shard.ID, q string, limit int) ([]searchindex.Record, error) {
	if limit <= 0 {
		limit = DefaultSuggestionLimit
	}

	start := time.Now()

	b, err := c.LoadShard(ctx, id)
	if err != nil {
		c.metrics.RecordSearch(time.Since(start), 0, err)
		c.logger.LogSearch(ctx, q, 0, err)
		return nil, err
	}

	results := b.Index.Search(q, limit)
	c.metrics.RecordSearch(time.Since(start), len(results), nil)
	c.logger.LogSearch(ctx, q, len(results), nil)
	return results, nil
}

// NewTypeahead creates a debounced query controller bound to one shard.
func (c *Client) NewTypeahead(ctx context.Context, id shard.ID, optFns ...func(o *query.Options)) *query.Controller {
	opts := append([]func(o *query.Options){func(o *query.Options) {
		o.Debounce = c.cfg.Debounce
	}}, optFns...)

	search := func(ctx context.Context, q string) ([]query.Suggestion, error) {
		records, err := c.Search(ctx, id, q, DefaultSuggestionLimit)
		if err != nil {
			return nil, err
		}
		suggestions := make([]query.Suggestion, len(records))
		for i, r := range records {
			suggestions[i] = query.Suggestion{ParcelID: r.ParcelID, Address: r.Address}
		}
		return suggestions, nil
	}

	return query.NewController(ctx, search, opts...)
}

// Preloader returns the process-wide background preload controller.
func (c *Client) Preloader() *preload.Controller {
	return preload.Get(PreloadKey, c.preloadAll)
}

// StartPreload triggers the one background preload attempt this process gets.
// Returns false when an attempt already ran or is running.
func (c *Client) StartPreload(ctx context.Context) bool {
	return c.Preloader().Start(ctx)
}

// preloadAll warms every shard bundle in parallel and nudges the persistent
// tier afterwards. Errors surface in the preload status, never to the caller.
func (c *Client) preloadAll(ctx context.Context) error {
	start := time.Now()

	// The errgroup context is canceled once Wait returns, so only the shard
	// loads run under it; the warmup below needs the caller's live context.
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range shard.All() {
		g.Go(func() error {
			_, err := c.LoadShard(gctx, id)
			return err
		})
	}
	err := g.Wait()

	if err == nil {
		// Persist freshly fetched bundles for the next process. Fail-soft.
		c.cache.WarmupCache(ctx)
	}

	c.metrics.RecordPreload(time.Since(start), err)
	c.logger.LogPreload(ctx, time.Since(start), err)
	return err
}

// CacheClient exposes the persistent cache tier.
func (c *Client) CacheClient() *agent.Client {
	return c.cache
}

// Manifests exposes the manifest store.
func (c *Client) Manifests() *manifest.Store {
	return c.manifests
}

// Loader exposes the bundle loader.
func (c *Client) Loader() *bundle.Loader {
	return c.loader
}

// Close stops the loader's background sweep and shuts the cache agent down.
func (c *Client) Close() error {
	c.loader.Close()
	return c.cache.Close()
}
