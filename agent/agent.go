package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hupe1980/addrgo/manifest"
	"github.com/hupe1980/addrgo/origin"
)

// Agent serves cache requests against the persistent store. It runs a single
// request loop, so store mutations are serialized without further locking.
type Agent struct {
	store     Store
	origin    origin.Origin
	manifests *manifest.Store
	logger    *slog.Logger
	opTimeout time.Duration

	requests chan Request
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// AgentOptions configures an Agent.
type AgentOptions struct {
	// Logger receives per-request diagnostics. Defaults to slog.Default().
	Logger *slog.Logger

	// OpTimeout bounds one request's worth of fetch work. Defaults to one
	// minute; a full preload fetches every file in the manifest.
	OpTimeout time.Duration

	// QueueSize is the request channel capacity.
	QueueSize int
}

// NewAgent creates an Agent. Call Start to begin serving requests.
func NewAgent(store Store, o origin.Origin, manifests *manifest.Store, optFns ...func(o *AgentOptions)) *Agent {
	opts := AgentOptions{
		OpTimeout: time.Minute,
		QueueSize: 16,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Agent{
		store:     store,
		origin:    o,
		manifests: manifests,
		logger:    opts.Logger,
		opTimeout: opts.OpTimeout,
		requests:  make(chan Request, opts.QueueSize),
		done:      make(chan struct{}),
	}
}

// Start launches the request loop.
func (a *Agent) Start() {
	a.wg.Add(1)
	go a.run()
}

// Stop shuts the request loop down and waits for it to drain.
func (a *Agent) Stop() {
	a.stopOnce.Do(func() {
		close(a.done)
	})
	a.wg.Wait()
}

func (a *Agent) run() {
	defer a.wg.Done()

	for {
		select {
		case req := <-a.requests:
			a.handle(req)
		case <-a.done:
			return
		}
	}
}

func (a *Agent) handle(req Request) {
	ctx, cancel := context.WithTimeout(context.Background(), a.opTimeout)
	defer cancel()

	var err error
	switch req.Type {
	case RequestPreload:
		err = a.preload(ctx)
	case RequestClearCache:
		err = a.store.Clear()
	case RequestPrefetchURL:
		err = a.prefetch(ctx, req.URL)
	default:
		err = fmt.Errorf("unknown request type %q", req.Type)
	}

	if err != nil {
		a.logger.Warn("cache agent request failed",
			"id", req.ID,
			"type", string(req.Type),
			"error", err,
		)
		req.respond(Response{Success: false, Error: err.Error()})
		return
	}
	req.respond(Response{Success: true})
}

// preload fetches and persists every file named by the current manifest
// version, skipping URLs that are already present.
func (a *Agent) preload(ctx context.Context) error {
	m, err := a.manifests.Get(ctx)
	if err != nil {
		return err
	}

	for resource, url := range m.Current.Files {
		ok, err := a.store.Has(url)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		if err := a.prefetch(ctx, url); err != nil {
			return fmt.Errorf("preload %s: %w", resource, err)
		}
	}
	return nil
}

func (a *Agent) prefetch(ctx context.Context, url string) error {
	if url == "" {
		return fmt.Errorf("empty prefetch url")
	}

	body, err := a.origin.Fetch(ctx, url)
	if err != nil {
		return err
	}
	return a.store.Put(url, body)
}
