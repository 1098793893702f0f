// Package agent provides the persistent cache tier: a long-lived caching
// agent that survives process restarts, the message protocol to drive it, and
// a client that degrades to safe no-ops whenever the tier is unavailable.
package agent

import "github.com/google/uuid"

// RequestType enumerates the operations the agent understands.
type RequestType string

const (
	// RequestPreload asks the agent to fetch and persist every file in the
	// current manifest version.
	RequestPreload RequestType = "PRELOAD_VERSIONED_INDEXES"

	// RequestClearCache drops the persisted cache contents.
	RequestClearCache RequestType = "CLEAR_CACHE"

	// RequestPrefetchURL asks the agent to fetch and persist one URL.
	RequestPrefetchURL RequestType = "PREFETCH_URL"
)

// Request is one message to the agent. Build requests with NewRequest or
// NewPrefetchRequest so the reply channel and correlation ID are wired.
type Request struct {
	ID   string
	Type RequestType
	URL  string

	reply chan Response
}

// NewRequest creates a request of the given type.
func NewRequest(t RequestType) Request {
	return Request{
		ID:    uuid.NewString(),
		Type:  t,
		reply: make(chan Response, 1),
	}
}

// NewPrefetchRequest creates a PREFETCH_URL request for url.
func NewPrefetchRequest(url string) Request {
	req := NewRequest(RequestPrefetchURL)
	req.URL = url
	return req
}

// Response is the agent's answer to one request.
type Response struct {
	Success bool
	Error   string
}

func (r Request) respond(resp Response) {
	// Buffered reply channel; the client may have timed out and walked away,
	// in which case the response is dropped here rather than applied late.
	select {
	case r.reply <- resp:
	default:
	}
}
