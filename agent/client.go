package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hupe1980/addrgo/manifest"
	"github.com/hupe1980/addrgo/origin"
)

var (
	// ErrUnavailable is returned when the agent is not registered or the
	// persistent tier is unsupported on this host.
	ErrUnavailable = errors.New("cache agent unavailable")

	// ErrTimeout is returned when the agent does not answer within the
	// message budget. Distinct from ErrReportedFailure: a late answer is
	// dropped, never applied.
	ErrTimeout = errors.New("cache agent timeout")

	// ErrReportedFailure is returned when the agent answered with an
	// unsuccessful response.
	ErrReportedFailure = errors.New("cache agent reported failure")
)

// DefaultMessageTimeout bounds one message round trip when the caller does
// not override it.
const DefaultMessageTimeout = 3 * time.Second

// State is the registration state of the persistent cache tier.
type State int32

const (
	// StateUnsupported means the host lacks the capability (no cache
	// directory configured); every operation degrades to a safe no-op.
	StateUnsupported State = iota
	StateUnregistered
	StateRegistering
	StateReady
	StateRegistrationFailed
)

func (s State) String() string {
	switch s {
	case StateUnsupported:
		return "unsupported"
	case StateUnregistered:
		return "unregistered"
	case StateRegistering:
		return "registering"
	case StateReady:
		return "ready"
	case StateRegistrationFailed:
		return "registration_failed"
	default:
		return "unknown"
	}
}

// CacheStatus describes the persisted cache contents.
type CacheStatus struct {
	CacheExists bool
	CachedFiles []string
	CacheSize   int64
}

// Client manages the caching agent and exposes warmup, prefetch, and
// introspection. Except for SendMessage, every method degrades to a safe
// false/empty result when the tier is unsupported or not ready; this
// component must never be a hard dependency for basic functionality.
type Client struct {
	mu      sync.Mutex
	state   State
	lastErr error

	dir       string
	origin    origin.Origin
	manifests *manifest.Store
	logger    *slog.Logger
	timeout   time.Duration

	openStore func() (Store, error)
	onMessage func(duration time.Duration, err error)
	store     Store
	agent     *Agent
}

// ClientOptions configures a Client.
type ClientOptions struct {
	// Logger receives degradation diagnostics. Defaults to slog.Default().
	Logger *slog.Logger

	// MessageTimeout is the default SendMessage budget.
	MessageTimeout time.Duration

	// OpenStore overrides how the persistent store is opened. Defaults to
	// OpenBadgerStore in the configured directory.
	OpenStore func() (Store, error)

	// OnMessage observes every SendMessage round trip with its duration and
	// outcome. Useful for metrics collection.
	OnMessage func(duration time.Duration, err error)
}

// NewClient creates a Client. An empty dir marks the tier unsupported.
// Registration is lazy; call Register before use.
func NewClient(dir string, o origin.Origin, manifests *manifest.Store, optFns ...func(o *ClientOptions)) *Client {
	opts := ClientOptions{
		MessageTimeout: DefaultMessageTimeout,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	c := &Client{
		dir:       dir,
		origin:    o,
		manifests: manifests,
		logger:    opts.Logger,
		timeout:   opts.MessageTimeout,
		openStore: opts.OpenStore,
		onMessage: opts.OnMessage,
	}

	if c.openStore == nil {
		c.openStore = func() (Store, error) {
			return OpenBadgerStore(dir)
		}
	}

	if dir == "" && opts.OpenStore == nil {
		c.state = StateUnsupported
	} else {
		c.state = StateUnregistered
	}

	return c
}

// State returns the current registration state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the most recent registration error, if any.
func (c *Client) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Register opens the persistent store and starts the agent. Returns false
// immediately when unsupported; on failure it records the error and returns
// false without throwing it at the caller. Registering twice is a no-op.
func (c *Client) Register() bool {
	c.mu.Lock()
	switch c.state {
	case StateUnsupported:
		c.mu.Unlock()
		return false
	case StateReady:
		c.mu.Unlock()
		return true
	case StateRegistering:
		c.mu.Unlock()
		return false
	}
	c.state = StateRegistering
	c.mu.Unlock()

	store, err := c.openStore()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.state = StateRegistrationFailed
		c.lastErr = err
		c.logger.Warn("cache agent registration failed", "error", err)
		return false
	}

	c.store = store
	c.agent = NewAgent(store, c.origin, c.manifests, func(o *AgentOptions) {
		o.Logger = c.logger
	})
	c.agent.Start()
	c.state = StateReady
	c.lastErr = nil
	return true
}

// SendMessage posts one request to the agent and waits for its response.
// timeout <= 0 uses the client default. This is the one low-level primitive
// that rejects instead of degrading: callers are responsible for catching.
func (c *Client) SendMessage(ctx context.Context, req Request, timeout time.Duration) (Response, error) {
	start := time.Now()
	resp, err := c.sendMessage(ctx, req, timeout)
	if c.onMessage != nil {
		c.onMessage(time.Since(start), err)
	}
	return resp, err
}

func (c *Client) sendMessage(ctx context.Context, req Request, timeout time.Duration) (Response, error) {
	c.mu.Lock()
	agent := c.agent
	ready := c.state == StateReady
	c.mu.Unlock()

	if !ready || agent == nil {
		return Response{}, ErrUnavailable
	}
	if req.reply == nil {
		req.reply = make(chan Response, 1)
	}
	if timeout <= 0 {
		timeout = c.timeout
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	select {
	case agent.requests <- req:
	case <-deadline.C:
		return Response{}, fmt.Errorf("%w: %s after %s", ErrTimeout, req.Type, timeout)
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}

	select {
	case resp := <-req.reply:
		if !resp.Success {
			return resp, fmt.Errorf("%w: %s", ErrReportedFailure, resp.Error)
		}
		return resp, nil
	case <-deadline.C:
		return Response{}, fmt.Errorf("%w: %s after %s", ErrTimeout, req.Type, timeout)
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// WarmupCache inspects the persisted contents and triggers a preload when the
// cache is empty. No-ops (returning true) when already warm; returns false
// when the tier is unavailable or the preload fails.
func (c *Client) WarmupCache(ctx context.Context) bool {
	if c.State() != StateReady {
		return false
	}

	status := c.GetCacheStatus(ctx)
	if status.CacheExists && len(status.CachedFiles) > 0 {
		return true
	}

	_, err := c.SendMessage(ctx, NewRequest(RequestPreload), 0)
	if err != nil {
		c.logger.Warn("cache warmup failed", "error", err)
		return false
	}
	return true
}

// PrefetchURL persists url unless it already is. Returns false when the tier
// is unavailable or the prefetch fails.
func (c *Client) PrefetchURL(ctx context.Context, url string) bool {
	c.mu.Lock()
	store := c.store
	ready := c.state == StateReady
	c.mu.Unlock()

	if !ready || store == nil {
		return false
	}

	if ok, err := store.Has(url); err == nil && ok {
		return true
	}

	_, err := c.SendMessage(ctx, NewPrefetchRequest(url), 0)
	if err != nil {
		c.logger.Warn("prefetch failed", "url", url, "error", err)
		return false
	}
	return true
}

// GetCacheStatus returns the persisted cache contents, failing soft (empty
// status) on any introspection error.
func (c *Client) GetCacheStatus(_ context.Context) CacheStatus {
	c.mu.Lock()
	store := c.store
	ready := c.state == StateReady
	c.mu.Unlock()

	if !ready || store == nil {
		return CacheStatus{}
	}

	keys, err := store.Keys()
	if err != nil {
		c.logger.Warn("cache status introspection failed", "error", err)
		return CacheStatus{}
	}
	size, err := store.Size()
	if err != nil {
		c.logger.Warn("cache status introspection failed", "error", err)
		return CacheStatus{}
	}

	return CacheStatus{
		CacheExists: len(keys) > 0,
		CachedFiles: keys,
		CacheSize:   size,
	}
}

// Cached implements bundle.PersistentTier. Fail-soft read of the persisted
// body for url.
func (c *Client) Cached(_ context.Context, url string) ([]byte, bool) {
	c.mu.Lock()
	store := c.store
	ready := c.state == StateReady
	c.mu.Unlock()

	if !ready || store == nil {
		return nil, false
	}

	body, ok, err := store.Get(url)
	if err != nil {
		c.logger.Warn("persistent tier read failed", "url", url, "error", err)
		return nil, false
	}
	return body, ok
}

// Store implements bundle.PersistentTier. Best-effort persist of a freshly
// fetched body.
func (c *Client) Store(_ context.Context, url string, body []byte) {
	c.mu.Lock()
	store := c.store
	ready := c.state == StateReady
	c.mu.Unlock()

	if !ready || store == nil {
		return
	}

	if err := store.Put(url, body); err != nil {
		c.logger.Warn("persistent tier write failed", "url", url, "error", err)
	}
}

// Close stops the agent and closes the store.
func (c *Client) Close() error {
	c.mu.Lock()
	agent := c.agent
	store := c.store
	c.agent = nil
	c.store = nil
	if c.state == StateReady {
		c.state = StateUnregistered
	}
	c.mu.Unlock()

	if agent != nil {
		agent.Stop()
	}
	if store != nil {
		return store.Close()
	}
	return nil
}
