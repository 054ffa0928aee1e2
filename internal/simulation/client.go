// Package simulation runs valley models on the external simulation service
// and attaches the returned series to entities.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hydrovalley/internal/codec"
	"hydrovalley/internal/domain"
	"hydrovalley/internal/remote"
)

// DefaultTimeout bounds one simulation run
const DefaultTimeout = 30 * time.Second

// Runner runs a model and returns the normalized response
type Runner interface {
	Run(ctx context.Context, model *domain.ValleyModel) (*domain.SimulationResponse, error)
}

// Client talks to the simulation service over HTTP
type Client struct {
	client *remote.Client
}

// NewClient creates a client for url. A zero timeout uses DefaultTimeout.
func NewClient(url string, timeout time.Duration, opts ...remote.Option) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{client: remote.New(url, timeout, opts...)}
}

// Run posts the canonical model and parses the answer
func (c *Client) Run(ctx context.Context, model *domain.ValleyModel) (*domain.SimulationResponse, error) {
	if model == nil {
		return nil, fmt.Errorf("simulation: no model")
	}
	body, err := codec.Canonical(model)
	if err != nil {
		return nil, fmt.Errorf("simulation: encode model: %w", err)
	}

	data, err := c.client.Post(ctx, body)
	if err != nil {
		var status *remote.StatusError
		if errors.As(err, &status) {
			return nil, &Error{Kind: KindServiceRejected, Status: status.Status, Detail: status.Excerpt, Err: err}
		}
		return nil, &Error{Kind: KindUnreachable, Detail: err.Error(), Err: err}
	}
	return ParseResponse(data)
}
