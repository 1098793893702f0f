// Package query drives one typeahead input session.
//
// The controller debounces keystrokes, issues searches, and guarantees that
// the suggestions it surfaces always belong to the most recently committed
// query. Every issued search carries the query string that triggered it; a
// response is applied only if that tag still matches the controller's current
// search, so an earlier query resolving late is silently discarded.
// Cancellation is cooperative: a superseded search is not aborted, just
// ignored when it resolves.
package query

import (
	"context"
	"sync"
	"time"
	"unicode"
)

// DefaultDebounce is the quiet period before a query commits.
const DefaultDebounce = 300 * time.Millisecond

// MinChars is the minimum number of significant (non-space) characters
// required before a search is scheduled.
const MinChars = 3

// Suggestion is one typeahead result.
type Suggestion struct {
	ParcelID string
	Address  string
}

// SearchFunc performs the underlying search for a committed query.
type SearchFunc func(ctx context.Context, query string) ([]Suggestion, error)

// State is a snapshot of the controller. Observers always receive a copy.
type State struct {
	Query          string
	DebouncedQuery string
	Suggestions    []Suggestion
	IsFetching     bool
	Locked         bool
	HasFetched     bool
	Error          string
}

// Options configures a Controller.
type Options struct {
	// Debounce is the quiet period before a query commits.
	Debounce time.Duration

	// MinChars overrides the significant-character floor.
	MinChars int
}

// Controller owns the search state for one input widget.
type Controller struct {
	search   SearchFunc
	ctx      context.Context
	debounce time.Duration
	minChars int

	mu    sync.Mutex
	state State
	timer *time.Timer
	token string // query tag of the current search; "" means none
}

// NewController creates a controller issuing searches via search under ctx.
func NewController(ctx context.Context, search SearchFunc, optFns ...func(o *Options)) *Controller {
	opts := Options{
		Debounce: DefaultDebounce,
		MinChars: MinChars,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.MinChars <= 0 {
		opts.MinChars = MinChars
	}

	return &Controller{
		search:   search,
		ctx:      ctx,
		debounce: opts.Debounce,
		minChars: opts.MinChars,
	}
}

// OnInput registers a keystroke. The raw query echoes immediately; a search
// is scheduled only after the debounce quiet period, and only when the input
// carries at least MinChars significant characters.
func (c *Controller) OnInput(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.Query = text
	c.state.Locked = false
	c.state.Suggestions = nil
	c.state.Error = ""

	c.cancelTimerLocked()

	if significantChars(text) < c.minChars {
		c.state.DebouncedQuery = ""
		c.state.IsFetching = false
		c.token = ""
		return
	}

	c.timer = time.AfterFunc(c.debounce, func() {
		c.commit(text)
	})
}

// commit promotes text to the debounced query and issues the search.
func (c *Controller) commit(text string) {
	c.mu.Lock()

	// Input may have moved on (or been cleared/locked) between the timer
	// firing and this lock acquisition.
	if c.state.Query != text || c.state.Locked {
		c.mu.Unlock()
		return
	}

	c.state.DebouncedQuery = text
	c.state.IsFetching = true
	c.token = text
	c.mu.Unlock()

	go c.fetch(text)
}

func (c *Controller) fetch(text string) {
	suggestions, err := c.search(c.ctx, text)

	c.mu.Lock()
	defer c.mu.Unlock()

	// Last query wins: a response whose tag no longer matches the current
	// search is discarded regardless of completion order.
	if c.token != text {
		return
	}

	c.state.IsFetching = false
	c.state.HasFetched = true
	if err != nil {
		c.state.Error = err.Error()
		c.state.Suggestions = nil
		return
	}
	c.state.Suggestions = suggestions
}

// OnSelect commits a selection: the query echoes the selected value,
// suggestions clear, and the controller locks until the next OnInput.
func (c *Controller) OnSelect(value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelTimerLocked()
	c.state.Query = value
	c.state.Suggestions = nil
	c.state.Error = ""
	c.state.IsFetching = false
	c.state.Locked = true
	c.token = ""
}

// OnClear resets all state fields to their initial values.
func (c *Controller) OnClear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelTimerLocked()
	c.state = State{}
	c.token = ""
}

// State returns a defensive copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := c.state
	if c.state.Suggestions != nil {
		snapshot.Suggestions = make([]Suggestion, len(c.state.Suggestions))
		copy(snapshot.Suggestions, c.state.Suggestions)
	}
	return snapshot
}

func (c *Controller) cancelTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func significantChars(text string) int {
	n := 0
	for _, r := range text {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
