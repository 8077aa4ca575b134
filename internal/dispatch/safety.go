package dispatch

import (
	"github.com/nanoclaw/ops/internal/plan"
	"github.com/nanoclaw/ops/internal/policy"
)

// applyLocalSafetyFilters runs the ssh/web_fetch safety checks against each
// action before it ever leaves the process. A violation produces a blocked
// Result at that action's index and excludes it from the outbound batch;
// every other action still proceeds. Returns the filtered actions to send,
// a mapping from filtered index back to the original index, and the blocked
// results keyed by original index.
func applyLocalSafetyFilters(actions []plan.Action) (filtered []plan.Action, indexMap []int, blocked map[int]Result) {
	blocked = make(map[int]Result)
	for i, a := range actions {
		if cause := checkAction(a); cause != "" {
			blocked[i] = Result{Status: "blocked", Cause: cause}
			continue
		}
		filtered = append(filtered, a)
		indexMap = append(indexMap, i)
	}
	return filtered, indexMap, blocked
}

func checkAction(a plan.Action) string {
	switch action := a.(type) {
	case plan.SSHAction:
		if err := policy.CheckSSHCommand(action.Command); err != nil {
			return "command blocked by ssh safety policy: " + err.Error()
		}
	case plan.WebFetchAction:
		if err := policy.CheckWebFetchURL(action.URL, action.Mode, action.RequiresApproval); err != nil {
			return "URL blocked by web fetch safety policy: " + err.Error()
		}
	}
	return ""
}

// mergeResults combines locally blocked results with the runner's response
// for the actions that were actually dispatched, restoring the original
// positional order.
func mergeResults(total int, indexMap []int, runnerResults []Result, blocked map[int]Result) []Result {
	out := make([]Result, total)
	for i, r := range blocked {
		out[i] = r
	}
	for j, origIdx := range indexMap {
		if j < len(runnerResults) {
			out[origIdx] = runnerResults[j]
		}
	}
	return out
}
