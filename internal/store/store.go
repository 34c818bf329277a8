package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/odd-annotate/internal/model"
)

// ErrNotFound is wrapped by lookups and updates that match no row.
var ErrNotFound = eris.New("store: not found")

// defaultListLimit caps list queries without an explicit limit.
const defaultListLimit = 100

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Kind   model.RunKind   `json:"kind,omitempty"`
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// BatchFilter specifies criteria for listing batches. A zero Iteration
// matches every iteration.
type BatchFilter struct {
	Iteration int               `json:"iteration,omitempty"`
	Status    model.BatchStatus `json:"status,omitempty"`
}

// Store persists run history and submitted batches.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, kind model.RunKind, input string) (*model.Run, error)
	CompleteRun(ctx context.Context, runID, output string, summary map[string]int) error
	FailRun(ctx context.Context, runID, msg string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Batches
	SaveBatch(ctx context.Context, b *model.Batch) error
	SetBatchStatus(ctx context.Context, batchID string, status model.BatchStatus) error
	ListBatches(ctx context.Context, filter BatchFilter) ([]model.Batch, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}
