package addrgo

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Bundle freshness windows. Development favors fast iteration over cache
// efficiency; production holds bundles for an hour before refetching.
const (
	DevelopmentTTL = 30 * time.Second
	ProductionTTL  = time.Hour
)

// DefaultDebounce is the quiet period the typeahead controller waits for
// before committing a query.
const DefaultDebounce = 300 * time.Millisecond

// Config holds environment-driven settings. All fields have working defaults;
// an empty Config is valid for tests that inject a fake origin.
type Config struct {
	// ManifestURL locates the version manifest on the origin.
	ManifestURL string `env:"ADDRGO_MANIFEST_URL"`

	// Environment selects TTL defaults ("development" or "production").
	Environment string `env:"ADDRGO_ENV" envDefault:"production"`

	// BundleTTL overrides the environment-derived bundle TTL when positive.
	BundleTTL time.Duration `env:"ADDRGO_BUNDLE_TTL"`

	// CacheDir is the directory for the persistent cache tier. Empty disables
	// the tier entirely (the client reports it as unsupported).
	CacheDir string `env:"ADDRGO_CACHE_DIR"`

	// Debounce is the typeahead quiet period.
	Debounce time.Duration `env:"ADDRGO_DEBOUNCE" envDefault:"300ms"`
}

// ConfigFromEnv loads Config from process environment variables.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// TTL resolves the effective bundle TTL.
func (c Config) TTL() time.Duration {
	if c.BundleTTL > 0 {
		return c.BundleTTL
	}
	if c.Environment == "development" {
		return DevelopmentTTL
	}
	return ProductionTTL
}
