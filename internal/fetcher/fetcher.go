// Package fetcher provides the single outbound HTTP session shared by every
// request of a run: pooled connections, per-host rate limiting and a
// transparent retry policy for transient failures.
package fetcher

import (
	"context"
	"fmt"
	"io"
)

// Fetcher downloads remote documents.
type Fetcher interface {
	// Get fetches the URL and returns the response body. Any non-200 status
	// left after retries is returned as a *StatusError.
	Get(ctx context.Context, url string) (io.ReadCloser, error)
}

// StatusError reports a non-success HTTP status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}
