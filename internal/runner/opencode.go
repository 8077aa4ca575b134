package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nanoclaw/ops/internal/plan"
	"github.com/nanoclaw/ops/internal/runregistry"
)

// execOpencodeServe runs a long-lived coding task. Foreground mode blocks
// for the result; background mode registers a run and returns immediately,
// finishing the work in a goroutine the caller can poll or cancel via the
// run registry.
func (e *Executor) execOpencodeServe(ctx context.Context, idx int, start time.Time, a plan.OpencodeServeAction) Result {
	if a.ExecHints.ExecutionMode == "background" {
		return e.execOpencodeBackground(ctx, idx, start, a)
	}
	return e.execOpencodeForeground(ctx, idx, start, a)
}

func (e *Executor) execOpencodeForeground(ctx context.Context, idx int, start time.Time, a plan.OpencodeServeAction) Result {
	timeout := time.Duration(a.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	text, err := e.callOpencode(runCtx, a)
	if err != nil {
		return failed(idx, start, err)
	}
	r := ok(idx, start)
	r.ResultText = text
	return r
}

func (e *Executor) execOpencodeBackground(ctx context.Context, idx int, start time.Time, a plan.OpencodeServeAction) Result {
	if e.runs == nil {
		return failed(idx, start, fmt.Errorf("background opencode_serve requires a run registry"))
	}

	runID, err := e.runs.Create(string(plan.ActionOpencodeServe), a.Task)
	if err != nil {
		return failed(idx, start, err)
	}

	timeout := time.Duration(a.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(context.Background(), timeout)

	e.mu.Lock()
	e.aborts[runID] = cancel
	e.mu.Unlock()

	go e.runOpencodeBackground(runCtx, cancel, runID, a)

	r := ok(idx, start)
	r.RunID = runID
	r.ResultText = "runId=" + runID
	e.record("allow", "opencode_serve", a.Reason, a.Task)
	return r
}

func (e *Executor) runOpencodeBackground(ctx context.Context, cancel context.CancelFunc, runID string, a plan.OpencodeServeAction) {
	defer cancel()
	defer func() {
		e.mu.Lock()
		delete(e.aborts, runID)
		e.mu.Unlock()
	}()

	now := time.Now().UTC()
	running := runregistry.StatusRunning
	_ = e.runs.Update(runID, runregistry.Update{Status: &running, StartedAt: &now})

	text, err := e.callOpencode(ctx, a)

	finished := time.Now().UTC()
	if err != nil {
		failedStatus := runregistry.StatusFailed
		if ctx.Err() == context.Canceled {
			failedStatus = runregistry.StatusCancelled
		}
		errText := err.Error()
		_ = e.runs.Update(runID, runregistry.Update{Status: &failedStatus, CompletedAt: &finished, ErrorText: &errText})
		return
	}

	completed := runregistry.StatusCompleted
	_ = e.runs.Update(runID, runregistry.Update{Status: &completed, CompletedAt: &finished, ResultText: &text})
}

// callOpencode invokes the configured opencode endpoint, falling back to a
// local Docker sandbox when no endpoint is configured.
func (e *Executor) callOpencode(ctx context.Context, a plan.OpencodeServeAction) (string, error) {
	if e.cfg.OpencodeEndpointURL == "" {
		return e.runOpencodeSandbox(ctx, a)
	}

	executionMode := string(a.ExecHints.ExecutionMode)
	if executionMode == "" {
		executionMode = "foreground"
	}
	body, err := json.Marshal(map[string]string{
		"task":          a.Task,
		"cwd":           a.Cwd,
		"executionMode": executionMode,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.OpencodeEndpointURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.OpencodeBearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.OpencodeBearerToken)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("opencode endpoint returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return string(respBody), nil
}
