package planner

import (
	"context"
	"strings"

	"github.com/nanoclaw/ops/internal/plan"
)

const repairSystemPrompt = `Your previous reply did not contain a valid plan. Reply with ONLY a single triple-backtick json fenced block matching this shape, no prose before or after:

` + "```json" + `
{"actions": [ {"type": "reply"|"question"|"ssh"|"obsidian_write"|"web_fetch"|"image_to_text"|"voice_to_text"|"opencode_serve"|"addon_install"|"addon_create"|"addon_run", ...type-specific fields...} ]}
` + "```" + `

An empty plan is {"actions": []} or {}.`

// ParseWithRepair parses reply into a plan, and if that fails, re-prompts
// the planner once with a fixed JSON-only repair prompt before giving up.
// A plan that still fails to parse after repair is treated as empty and its
// errors are returned for the caller to log, not to show the user.
func (c *Client) ParseWithRepair(ctx context.Context, reply string) (*plan.Plan, string, []string) {
	p, errs, rawJSON := plan.ParsePlan(reply)
	if len(errs) == 0 {
		return p, rawJSON, nil
	}

	repaired, err := c.Complete(ctx, repairSystemPrompt, strings.Join(errs, "; "), true)
	if err != nil {
		return &plan.Plan{}, "", append(errs, "repair request failed: "+err.Error())
	}

	p2, errs2, rawJSON2 := plan.ParsePlan(repaired)
	if len(errs2) == 0 {
		return p2, rawJSON2, nil
	}

	allErrs := append(errs, "repair attempt also failed:")
	allErrs = append(allErrs, errs2...)
	return &plan.Plan{}, "", allErrs
}
