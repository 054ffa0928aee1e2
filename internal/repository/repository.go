package repository

import (
	"context"

	"hydrovalley/internal/domain"
)

// RunStore persists simulation run history
type RunStore interface {
	// SaveRun inserts or replaces a run
	SaveRun(ctx context.Context, run *domain.Run) error
	// GetRun returns nil, nil when the run does not exist
	GetRun(ctx context.Context, id string) (*domain.Run, error)
	// ListRuns returns runs newest first, without results or model text
	ListRuns(ctx context.Context, sessionID string, limit int) ([]domain.Run, error)
	// Stats counts runs by status
	Stats(ctx context.Context) (map[domain.RunStatus]int, error)

	Close() error
}
