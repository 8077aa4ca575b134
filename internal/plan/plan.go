package plan

import (
	"encoding/json"
	"strings"
)

// Plan is the parsed result of one planner turn: zero or more actions, in
// declaration order.
type Plan struct {
	Actions []Action
}

// Dispatchable returns the subset of Actions that are sent to the runner,
// preserving order.
func (p *Plan) Dispatchable() []Action {
	var out []Action
	for _, a := range p.Actions {
		if a.Dispatchable() {
			out = append(out, a)
		}
	}
	return out
}

type envelope struct {
	Actions []json.RawMessage `json:"actions"`
}

// ParsePlan extracts and validates a plan from a planner's free-text reply.
// It returns the parsed plan on success. On failure plan is nil and errs
// holds one message per distinct failure cause found across every action
// (an unknown type, a missing field, an out-of-range value, ...); the whole
// plan is rejected rather than partially accepted. rawJSON is the extracted
// JSON text, useful for logging and for the repair re-prompt, and is
// returned even on failure when extraction itself succeeded.
func ParsePlan(text string) (planOut *Plan, errs []string, rawJSON string) {
	rawJSON = extractJSONCandidate(text)
	if rawJSON == "" {
		return nil, []string{"no JSON object found in planner response"}, ""
	}

	// An empty object with no "actions" key at all is a valid plan with no
	// actions (the planner chose not to act and said so in prose).
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(rawJSON), &probe); err == nil {
		if _, hasActions := probe["actions"]; !hasActions {
			return &Plan{}, nil, rawJSON
		}
	}

	decoded, err := unmarshalForSchema(rawJSON)
	if err != nil {
		return nil, []string{"invalid JSON: " + err.Error()}, rawJSON
	}
	if err := validateEnvelope(decoded); err != nil {
		return nil, []string{"schema validation failed: " + err.Error()}, rawJSON
	}

	var env envelope
	if err := json.Unmarshal([]byte(rawJSON), &env); err != nil {
		return nil, []string{"invalid JSON: " + err.Error()}, rawJSON
	}

	var actions []Action
	var allErrs []string
	for i, raw := range env.Actions {
		action, actionErrs := decodeAction(raw)
		if len(actionErrs) > 0 {
			for _, e := range actionErrs {
				allErrs = append(allErrs, "action "+itoa(i)+": "+e)
			}
			continue
		}
		actions = append(actions, action)
	}

	if len(allErrs) > 0 {
		return nil, allErrs, rawJSON
	}

	return &Plan{Actions: actions}, nil, rawJSON
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// unmarshalForSchema decodes rawJSON the way the schema validator needs
// (json.Number instead of float64, so integer schema constraints compare
// correctly); it is a separate pass from the strongly-typed per-action
// decode that follows.
func unmarshalForSchema(rawJSON string) (any, error) {
	return jsonschemaUnmarshal(rawJSON)
}

// StripPlanBlock removes the fenced plan block (and any bare leftover plan
// JSON outside a fence) from a planner reply, leaving only the prose the
// human should see. It is intentionally conservative: it only strips text
// that looks exactly like the JSON this package extracted.
func StripPlanBlock(text, rawJSON string) string {
	if rawJSON == "" {
		return strings.TrimSpace(text)
	}
	stripped := text
	if idx := strings.Index(stripped, "```"); idx >= 0 {
		if end := strings.Index(stripped[idx+3:], "```"); end >= 0 {
			block := stripped[idx : idx+3+end+3]
			if strings.Contains(block, rawJSON) || strings.Contains(block, strings.TrimSpace(rawJSON)) {
				stripped = stripped[:idx] + stripped[idx+3+end+3:]
			}
		}
	}
	stripped = strings.ReplaceAll(stripped, rawJSON, "")
	return strings.TrimSpace(stripped)
}
