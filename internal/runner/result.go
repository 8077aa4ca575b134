// Package runner implements the action executors and the signed-dispatch
// HTTP server: remote ssh, outbound web fetch (plain and headless-browser),
// media-transcription forwarding, and foreground/background coding tasks.
package runner

import "time"

// Result is the per-action execution record returned to the dispatcher.
type Result struct {
	ActionID   int       `json:"actionId"`
	Status     string    `json:"status"` // "ok", "blocked", "failed"
	Cause      string    `json:"cause,omitempty"`
	Stdout     string    `json:"stdout,omitempty"`
	Stderr     string    `json:"stderr,omitempty"`
	ExitCode   int       `json:"exitCode"`
	ExecutedAt time.Time `json:"executedAt"`
	DurationMs int64     `json:"durationMs"`
	ResultText string    `json:"resultText,omitempty"`
	ErrorText  string    `json:"errorText,omitempty"`
	RunID      string    `json:"runId,omitempty"`
}

func blocked(actionID int, cause string) Result {
	return Result{ActionID: actionID, Status: "blocked", Cause: cause, ExitCode: -1, ExecutedAt: time.Now().UTC()}
}

func failed(actionID int, start time.Time, err error) Result {
	return Result{
		ActionID:   actionID,
		Status:     "failed",
		ExitCode:   -1,
		ErrorText:  err.Error(),
		ExecutedAt: start,
		DurationMs: time.Since(start).Milliseconds(),
	}
}

func ok(actionID int, start time.Time) Result {
	return Result{
		ActionID:   actionID,
		Status:     "ok",
		ExitCode:   0,
		ExecutedAt: start,
		DurationMs: time.Since(start).Milliseconds(),
	}
}
