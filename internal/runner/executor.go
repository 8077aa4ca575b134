package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nanoclaw/ops/internal/audit"
	"github.com/nanoclaw/ops/internal/config"
	"github.com/nanoclaw/ops/internal/plan"
	"github.com/nanoclaw/ops/internal/runregistry"
)

// Executor runs one dispatch's actions according to the ordering rules in
// spec.md §4.5: ungrouped actions run serially in declaration order, then
// grouped actions run concurrently bounded by MaxParallel. Results land at
// the same index as their originating action.
type Executor struct {
	cfg     config.RunnerConfig
	hosts   map[string]string // ssh target name -> reachable address
	runs    *runregistry.Store
	auditor *audit.Auditor
	logger  *slog.Logger

	mu     sync.Mutex
	aborts map[string]context.CancelFunc // runId -> abort handle
}

func NewExecutor(cfg config.RunnerConfig, hosts map[string]string, runs *runregistry.Store, auditor *audit.Auditor, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{cfg: cfg, hosts: hosts, runs: runs, auditor: auditor, logger: logger, aborts: make(map[string]context.CancelFunc)}
}

// Execute runs every action in actions and returns positionally-aligned
// results.
func (e *Executor) Execute(ctx context.Context, actions []plan.Action) []Result {
	results := make([]Result, len(actions))

	var ungroupedIdx, groupedIdx []int
	for i, a := range actions {
		hints := execHintsOf(a)
		if hints.ParallelGroup == "" {
			ungroupedIdx = append(ungroupedIdx, i)
		} else {
			groupedIdx = append(groupedIdx, i)
		}
	}

	for _, i := range ungroupedIdx {
		results[i] = e.executeOne(ctx, i, actions[i])
	}

	if len(groupedIdx) > 0 {
		maxParallel := e.cfg.MaxParallel
		if maxParallel <= 0 {
			maxParallel = 4
		}
		sem := make(chan struct{}, maxParallel)
		var wg sync.WaitGroup
		for _, i := range groupedIdx {
			i := i
			wg.Add(1)
			sem <- struct{}{}
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				results[i] = e.executeOne(ctx, i, actions[i])
			}()
		}
		wg.Wait()
	}

	return results
}

func (e *Executor) executeOne(ctx context.Context, idx int, a plan.Action) Result {
	start := time.Now().UTC()
	switch action := a.(type) {
	case plan.SSHAction:
		return e.execSSH(ctx, idx, start, action)
	case plan.WebFetchAction:
		return e.execWebFetch(ctx, idx, start, action)
	case plan.ImageToTextAction:
		return e.execImageToText(ctx, idx, start, action)
	case plan.VoiceToTextAction:
		return e.execVoiceToText(ctx, idx, start, action)
	case plan.OpencodeServeAction:
		return e.execOpencodeServe(ctx, idx, start, action)
	case plan.ObsidianWriteAction:
		return e.execObsidianWrite(ctx, idx, start, action)
	case plan.AddonAction:
		return e.execAddon(ctx, idx, start, action)
	default:
		r := failed(idx, start, errUnsupportedAction(a.Type()))
		return r
	}
}

func (e *Executor) record(decision, capability, reason, subject string) {
	if e.auditor == nil {
		return
	}
	e.auditor.Record(decision, capability, reason, "", subject)
}

func execHintsOf(a plan.Action) plan.ExecHints {
	switch action := a.(type) {
	case plan.SSHAction:
		return action.ExecHints
	case plan.WebFetchAction:
		return action.ExecHints
	case plan.ImageToTextAction:
		return action.ExecHints
	case plan.VoiceToTextAction:
		return action.ExecHints
	case plan.OpencodeServeAction:
		return action.ExecHints
	case plan.ObsidianWriteAction:
		return action.ExecHints
	case plan.AddonAction:
		return action.ExecHints
	default:
		return plan.ExecHints{}
	}
}
