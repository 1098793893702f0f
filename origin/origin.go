// Package origin abstracts retrieval of raw index artifacts by URL.
//
// The manifest and every compressed index bundle live on a content-delivery
// origin. Origin is the read-only access interface; implementations exist for
// plain HTTP (the normal client path), S3 and MinIO (server-side consumers
// that bypass the CDN), and an in-memory fake for tests.
package origin

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when the named artifact does not exist on the origin.
//
// Implementations should return an error that satisfies
// `errors.Is(err, ErrNotFound)`.
var ErrNotFound = errors.New("artifact not found")

// Origin fetches whole artifacts by URL or key.
// Implementations must be safe for concurrent use and must bypass any
// intermediate HTTP caches: callers depend on seeing the published bytes, not
// a stale cached copy.
type Origin interface {
	// Fetch retrieves the full body of the artifact at url.
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// StatusError reports a non-2xx HTTP response from the origin.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("origin returned status %d for %s", e.Code, e.URL)
}
