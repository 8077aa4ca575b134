package plan

import (
	"bytes"
	"encoding/json"
)

// FormatPlanBlock renders p back into the canonical fenced ```json block,
// the same shape ParsePlan accepts. Used when re-presenting a previously
// proposed plan (e.g. in an approval prompt) or when echoing a repaired
// plan back to logs.
func FormatPlanBlock(p *Plan) (string, error) {
	raw, err := marshalActions(p.Actions)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	buf.WriteString("```json\n")
	buf.Write(raw)
	buf.WriteString("\n```")
	return buf.String(), nil
}

// MarshalAction renders a single action to its wire JSON, "type" field
// included. Used wherever an action needs to round-trip outside a full
// plan envelope: the proposal journal, the dispatch envelope.
func MarshalAction(a Action) (json.RawMessage, error) {
	m, err := actionToMap(a)
	if err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

// UnmarshalAction decodes a single action's wire JSON. Unlike ParsePlan,
// a decode failure here is a hard error: this is used for data that was
// already validated once, when it was first parsed out of a plan.
func UnmarshalAction(raw json.RawMessage) (Action, error) {
	a, errs := decodeAction(raw)
	if len(errs) > 0 {
		return nil, &DecodeError{Messages: errs}
	}
	return a, nil
}

func marshalActions(actions []Action) ([]byte, error) {
	items := make([]map[string]any, 0, len(actions))
	for _, a := range actions {
		m, err := actionToMap(a)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	env := map[string]any{"actions": items}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(env); err != nil {
		return nil, err
	}
	out := bytes.TrimRight(buf.Bytes(), "\n")
	return out, nil
}

// actionToMap marshals a's own fields and injects "type", since the Type()
// discriminator is a method, not a struct field.
func actionToMap(a Action) (map[string]any, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	m := map[string]any{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	m["type"] = string(a.Type())
	return m, nil
}
