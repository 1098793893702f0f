// Package preload runs the one background warmup attempt a process gets.
//
// Controllers are process-wide singletons held in a registry keyed by a
// stable identifier; the idempotency guard lives in the registry rather than
// on the controller instance, so a second Start is a no-op even when it comes
// from a different module holding its own controller reference.
package preload

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Status is a snapshot of the preload attempt. Observers always receive a
// copy, never the live object.
type Status struct {
	IsLoading  bool
	IsComplete bool
	Error      string
	StartTime  time.Time
	EndTime    time.Time
}

// LoadFunc performs the actual warmup work.
type LoadFunc func(ctx context.Context) error

var (
	registryMu sync.Mutex
	registry   = make(map[string]*Controller)
	started    = make(map[string]bool)
)

// Controller drives one preload attempt per process lifetime.
type Controller struct {
	key    string
	loadFn LoadFunc

	mu     sync.Mutex
	status Status
	done   chan struct{}

	signals *SignalBus
}

// Get returns the controller registered under key, creating it with loadFn on
// first use. Subsequent calls ignore loadFn and return the existing instance.
func Get(key string, loadFn LoadFunc) *Controller {
	registryMu.Lock()
	defer registryMu.Unlock()

	if c, ok := registry[key]; ok {
		return c
	}

	c := &Controller{
		key:     key,
		loadFn:  loadFn,
		signals: NewSignalBus(),
	}
	registry[key] = c
	return c
}

// Start triggers the preload attempt. It is a no-op returning false when the
// attempt is already loading or complete, or when the registry guard shows a
// prior Start for this key. Returns true when this call began the attempt.
func (c *Controller) Start(ctx context.Context) bool {
	registryMu.Lock()
	if started[c.key] {
		registryMu.Unlock()
		return false
	}
	started[c.key] = true
	registryMu.Unlock()

	c.mu.Lock()
	if c.status.IsLoading || c.status.IsComplete {
		c.mu.Unlock()
		return false
	}
	c.status = Status{
		IsLoading: true,
		StartTime: time.Now(),
	}
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.run(ctx)
	return true
}

func (c *Controller) run(ctx context.Context) {
	err := c.attempt(ctx)

	c.mu.Lock()
	c.status.IsLoading = false
	c.status.EndTime = time.Now()
	if err != nil {
		c.status.Error = err.Error()
	} else {
		c.status.IsComplete = true
	}
	elapsed := c.status.EndTime.Sub(c.status.StartTime)
	done := c.done
	c.mu.Unlock()

	if err != nil {
		c.signals.emit(Event{Kind: EventFailed, Error: err.Error()})
	} else {
		c.signals.emit(Event{Kind: EventCompleted, Elapsed: elapsed})
	}

	close(done)
}

// attempt invokes the load function, coercing panics with non-error values to
// their string form. A failed preload must never crash the process.
func (c *Controller) attempt(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
			} else {
				err = fmt.Errorf("%v", r)
			}
		}
	}()
	return c.loadFn(ctx)
}

// Status returns a defensive copy of the current status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Signals returns the controller's lifecycle signal bus.
func (c *Controller) Signals() *SignalBus {
	return c.signals
}

// Wait blocks until the attempt reaches a terminal state or ctx is done.
// Returns immediately when no attempt has started.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	if done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset clears the controller state and the registry guard. Test harnesses
// only; production code paths never call it.
func (c *Controller) Reset() {
	registryMu.Lock()
	delete(started, c.key)
	registryMu.Unlock()

	c.mu.Lock()
	c.status = Status{}
	c.done = nil
	c.mu.Unlock()
}

// Unregister removes the controller registered under key. Test harnesses only.
func Unregister(key string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, key)
	delete(started, key)
}
