package layout

import (
	"context"
	"errors"
	"time"

	"hydrovalley/internal/remote"
)

// DefaultTimeout bounds one call to the layout service
const DefaultTimeout = 10 * time.Second

// Fetcher asks the layout service for the DOT description of a canonical
// model body.
type Fetcher interface {
	FetchLayout(ctx context.Context, canonical []byte) (string, error)
}

// HTTPFetcher talks to the layout service over HTTP
type HTTPFetcher struct {
	client *remote.Client
}

// NewHTTPFetcher creates a fetcher for url. A zero timeout uses DefaultTimeout.
func NewHTTPFetcher(url string, timeout time.Duration, opts ...remote.Option) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPFetcher{client: remote.New(url, timeout, opts...)}
}

// FetchLayout posts the model and returns the DOT text
func (f *HTTPFetcher) FetchLayout(ctx context.Context, canonical []byte) (string, error) {
	body, err := f.client.Post(ctx, canonical)
	if err != nil {
		return "", classify(err)
	}
	return string(body), nil
}

func classify(err error) error {
	var status *remote.StatusError
	if errors.As(err, &status) {
		return &LayoutError{Kind: KindServiceRejected, Status: status.Status, Detail: status.Excerpt, Err: err}
	}
	return &LayoutError{Kind: KindUnreachable, Detail: err.Error(), Err: err}
}
