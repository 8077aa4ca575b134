package runner

import (
	"fmt"

	"github.com/nanoclaw/ops/internal/plan"
)

func errUnsupportedAction(t plan.ActionType) error {
	return fmt.Errorf("runner: no executor registered for action type %q", t)
}
