// Package runregistry is the durable record of background runs (the
// background-mode opencode_serve action, and any other action the runner
// elects to track asynchronously): lifecycle {queued, running, completed,
// failed, cancelled}, with list/get/cancel.
package runregistry

import "time"

// Status is a run's position in its lifecycle.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Run is one tracked background operation.
type Run struct {
	ID              string
	ActionType      string
	Status          Status
	Summary         string
	CreatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	ResultText      string
	ErrorText       string
	CancelRequested bool
}

// Update is a partial update applied by Store.Update; nil fields are left
// unchanged.
type Update struct {
	Status          *Status
	StartedAt       *time.Time
	CompletedAt     *time.Time
	ResultText      *string
	ErrorText       *string
	CancelRequested *bool
}
