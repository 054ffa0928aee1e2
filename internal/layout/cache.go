package layout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"hydrovalley/internal/codec"
	"hydrovalley/internal/domain"
	"hydrovalley/internal/metrics"

	"golang.org/x/sync/singleflight"
)

// Cache memoizes the layout of the most recent model. It holds at most one
// entry, keyed by the model fingerprint. Concurrent misses for the same
// fingerprint share a single remote call.
type Cache struct {
	fetcher Fetcher
	metrics *metrics.Collector
	logger  *slog.Logger
	now     func() time.Time

	mu     sync.Mutex
	entry  *domain.LayoutResult
	wanted domain.Fingerprint // fingerprint of the latest request
	group  singleflight.Group
}

// CacheOption configures a Cache
type CacheOption func(*Cache)

// WithMetrics records hits, misses and fetch latency
func WithMetrics(m *metrics.Collector) CacheOption {
	return func(c *Cache) { c.metrics = m }
}

// WithLogger sets the cache logger
func WithLogger(logger *slog.Logger) CacheOption {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// NewCache creates an empty cache in front of fetcher
func NewCache(fetcher Fetcher, opts ...CacheOption) *Cache {
	c := &Cache{
		fetcher: fetcher,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetLayout returns the layout for model, calling the service only when the
// model's fingerprint differs from the cached entry. Failures leave the
// cache unchanged.
func (c *Cache) GetLayout(ctx context.Context, model *domain.ValleyModel) (*domain.LayoutResult, error) {
	if model == nil {
		return nil, &LayoutError{Kind: KindInvalidModel, Detail: "no model"}
	}
	if model.Len() == 0 {
		return nil, &LayoutError{Kind: KindInvalidModel, Detail: "model has no entities"}
	}

	canonical, err := codec.Canonical(model)
	if err != nil {
		return nil, &LayoutError{Kind: KindInvalidModel, Detail: err.Error(), Err: err}
	}
	fp := domain.FingerprintBytes(canonical)

	c.mu.Lock()
	c.wanted = fp
	if c.entry != nil && c.entry.Fingerprint == fp {
		entry := c.entry
		c.mu.Unlock()
		c.metrics.ObserveLayout(metrics.LayoutHit)
		return entry, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(string(fp), func() (any, error) {
		return c.fetch(ctx, fp, canonical)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.LayoutResult), nil
}

func (c *Cache) fetch(ctx context.Context, fp domain.Fingerprint, canonical []byte) (*domain.LayoutResult, error) {
	c.metrics.ObserveLayout(metrics.LayoutMiss)
	c.logger.Debug("fetching layout", "fingerprint", fp.Short())

	start := time.Now()
	dot, err := c.fetcher.FetchLayout(ctx, canonical)
	c.metrics.ObserveLayoutFetch(time.Since(start))
	if err != nil {
		c.metrics.ObserveLayout(metrics.LayoutError)
		var lerr *LayoutError
		if !errors.As(err, &lerr) {
			err = &LayoutError{Kind: KindUnreachable, Detail: err.Error(), Err: err}
		}
		return nil, fmt.Errorf("fetch layout %s: %w", fp.Short(), err)
	}

	result := &domain.LayoutResult{
		Fingerprint: fp,
		DOT:         dot,
		FetchedAt:   c.now(),
	}

	c.mu.Lock()
	// A slow answer for a superseded model must not evict the newer entry.
	if c.wanted == fp || c.entry == nil {
		c.entry = result
	}
	c.mu.Unlock()

	return result, nil
}

// Current returns the cached entry, if any
func (c *Cache) Current() *domain.LayoutResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entry
}

// Invalidate drops the cached entry
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry = nil
}
