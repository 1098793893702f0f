package addrgo

import (
	"time"

	"github.com/hupe1980/addrgo/agent"
	"github.com/hupe1980/addrgo/codec"
	"github.com/hupe1980/addrgo/origin"
)

type options struct {
	config     Config
	origin     origin.Origin
	codec      codec.Codec
	logger     *Logger
	metrics    MetricsCollector
	agentStore func() (agent.Store, error)
	fromEnv    bool
}

// Option configures Open behavior.
type Option func(*options)

// WithConfig supplies a complete Config, bypassing the environment.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.config = cfg
	}
}

// WithEnvConfig loads Config from process environment variables before
// applying the remaining options.
func WithEnvConfig() Option {
	return func(o *options) {
		o.fromEnv = true
	}
}

// WithManifestURL sets the manifest location on the origin.
func WithManifestURL(url string) Option {
	return func(o *options) {
		o.config.ManifestURL = url
	}
}

// WithOrigin sets the artifact origin. Defaults to a plain HTTP origin.
func WithOrigin(or origin.Origin) Option {
	return func(o *options) {
		o.origin = or
	}
}

// WithCodec configures the codec used for decoding manifests and payloads.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithLogger configures structured logging. Pass NoopLogger() to disable.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
func WithMetricsCollector(m MetricsCollector) Option {
	return func(o *options) {
		if m == nil {
			m = NoopMetricsCollector{}
		}
		o.metrics = m
	}
}

// WithCacheDir enables the persistent cache tier in dir.
func WithCacheDir(dir string) Option {
	return func(o *options) {
		o.config.CacheDir = dir
	}
}

// WithBundleTTL overrides the environment-derived bundle TTL.
func WithBundleTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.config.BundleTTL = ttl
	}
}

// WithEnvironment selects TTL defaults ("development" or "production").
func WithEnvironment(env string) Option {
	return func(o *options) {
		o.config.Environment = env
	}
}

// WithDebounce sets the typeahead quiet period.
func WithDebounce(d time.Duration) Option {
	return func(o *options) {
		o.config.Debounce = d
	}
}

// WithAgentStore overrides how the persistent store is opened. Primarily for
// tests that inject an in-memory store.
func WithAgentStore(open func() (agent.Store, error)) Option {
	return func(o *options) {
		o.agentStore = open
	}
}
