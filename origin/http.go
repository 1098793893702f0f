package origin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// HTTPOptions configures an HTTPOrigin.
type HTTPOptions struct {
	// Client is the underlying HTTP client. Defaults to a client with a
	// 30 second timeout.
	Client *http.Client

	// RateLimit bounds outgoing requests per second. Zero disables limiting.
	RateLimit rate.Limit

	// RateBurst is the limiter burst size. Defaults to 1 when RateLimit is set.
	RateBurst int
}

// HTTPOrigin fetches artifacts over plain HTTP with cache-bypassing headers.
type HTTPOrigin struct {
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTP creates a new HTTPOrigin.
func NewHTTP(optFns ...func(o *HTTPOptions)) *HTTPOrigin {
	opts := HTTPOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(opts.RateLimit, burst)
	}

	return &HTTPOrigin{client: client, limiter: limiter}
}

// Fetch retrieves the full body at url, forcing revalidation at every
// intermediate cache along the way.
func (o *HTTPOrigin) Fetch(ctx context.Context, url string) ([]byte, error) {
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Cache-Control", "no-cache, no-store")
	req.Header.Set("Pragma", "no-cache")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("fetch %s: %w", url, errors.Join(ErrNotFound, &StatusError{URL: url, Code: resp.StatusCode}))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}

	return io.ReadAll(resp.Body)
}
