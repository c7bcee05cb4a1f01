package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
)

// ErrRunNotFound is returned when a run id has no record.
var ErrRunNotFound = eris.New("store: run not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status       model.RunStatus `json:"status,omitempty"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
	CreatedAfter time.Time       `json:"created_after,omitempty"`
}

// Store defines the persistence interface for run history.
type Store interface {
	CreateRun(ctx context.Context) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, report *model.RunReport) error
	FailRun(ctx context.Context, runID string, message string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
