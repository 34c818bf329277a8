package model

import "time"

// RunStatus represents the current state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// RunKind identifies which pass produced a run.
type RunKind string

const (
	RunKindNormalize RunKind = "normalize"
	RunKindCheck     RunKind = "check"
	RunKindSubmit    RunKind = "batch_submit"
	RunKindCollect   RunKind = "batch_collect"
	RunKindFlatten   RunKind = "batch_flatten"
)

// Run records one invocation of a pipeline pass.
type Run struct {
	ID        string         `json:"id"`
	Kind      RunKind        `json:"kind"`
	Status    RunStatus      `json:"status"`
	Input     string         `json:"input"`
	Output    string         `json:"output,omitempty"`
	Summary   map[string]int `json:"summary,omitempty"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Duration returns how long the run took, or zero while it is still running.
func (r Run) Duration() time.Duration {
	if r.Status == RunStatusRunning {
		return 0
	}
	return r.UpdatedAt.Sub(r.CreatedAt)
}

// IssueTotal sums all counters in the run summary.
func (r Run) IssueTotal() int {
	total := 0
	for _, n := range r.Summary {
		total += n
	}
	return total
}

// BatchStatus mirrors the remote batch processing status.
type BatchStatus string

const (
	BatchStatusSubmitted BatchStatus = "submitted"
	BatchStatusEnded     BatchStatus = "ended"
	BatchStatusFailed    BatchStatus = "failed"
	BatchStatusCollected BatchStatus = "collected"
)

// Batch tracks a remote inference batch submitted during a refinement iteration.
type Batch struct {
	ID        string      `json:"id"`
	Iteration int         `json:"iteration"`
	BatchID   string      `json:"batch_id"`
	Requests  int         `json:"requests"`
	Status    BatchStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
}
