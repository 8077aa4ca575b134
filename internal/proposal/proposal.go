// Package proposal implements the Proposal Store: the append-only journal
// of proposed action sets awaiting human approval.
package proposal

import (
	"encoding/json"
	"time"

	"github.com/nanoclaw/ops/internal/plan"
)

// Status is the proposal's position in its state machine. Only Proposed may
// transition, and only to Approved or Denied; once decided a proposal is
// immutable except for the one terminal write that records the decision.
type Status string

const (
	StatusProposed Status = "proposed"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
)

// Proposal ties a plan's dispatchable actions to the chat that produced
// them, pending a human decision.
type Proposal struct {
	ID             string
	CreatedAt      time.Time
	Status         Status
	GroupFolder    string
	ChatID         int64
	RequestText    string
	Actions        []plan.Action
	DecidedAt      *time.Time
	DecisionReason string
	DecidedBy      string
}

// wireProposal is the JSON-serializable projection of a Proposal, used for
// both the sqlite actions_json column and the flat-file mirror. Actions is
// a slice of already-rendered action JSON (via plan.MarshalAction), decoded
// back with plan.UnmarshalAction.
type wireProposal struct {
	ID             string            `json:"id"`
	CreatedAt      time.Time         `json:"createdAt"`
	Status         Status            `json:"status"`
	GroupFolder    string            `json:"groupFolder"`
	ChatID         int64             `json:"chatId"`
	RequestText    string            `json:"requestText,omitempty"`
	Actions        []json.RawMessage `json:"actions"`
	DecidedAt      *time.Time        `json:"decidedAt,omitempty"`
	DecisionReason string            `json:"decisionReason,omitempty"`
	DecidedBy      string            `json:"decidedBy,omitempty"`
}

func toWire(p Proposal) (wireProposal, error) {
	actions := make([]json.RawMessage, 0, len(p.Actions))
	for _, a := range p.Actions {
		raw, err := plan.MarshalAction(a)
		if err != nil {
			return wireProposal{}, err
		}
		actions = append(actions, raw)
	}
	return wireProposal{
		ID:             p.ID,
		CreatedAt:      p.CreatedAt,
		Status:         p.Status,
		GroupFolder:    p.GroupFolder,
		ChatID:         p.ChatID,
		RequestText:    p.RequestText,
		Actions:        actions,
		DecidedAt:      p.DecidedAt,
		DecisionReason: p.DecisionReason,
		DecidedBy:      p.DecidedBy,
	}, nil
}

func fromWire(w wireProposal) (Proposal, error) {
	actions := make([]plan.Action, 0, len(w.Actions))
	for _, raw := range w.Actions {
		a, err := plan.UnmarshalAction(raw)
		if err != nil {
			return Proposal{}, err
		}
		actions = append(actions, a)
	}
	return Proposal{
		ID:             w.ID,
		CreatedAt:      w.CreatedAt,
		Status:         w.Status,
		GroupFolder:    w.GroupFolder,
		ChatID:         w.ChatID,
		RequestText:    w.RequestText,
		Actions:        actions,
		DecidedAt:      w.DecidedAt,
		DecisionReason: w.DecisionReason,
		DecidedBy:      w.DecidedBy,
	}, nil
}
