// Package plan implements the plan contract: the closed set of action
// variants the planner may emit, parsing of the planner's free-text output
// into a Plan, schema validation, and the canonical serializer used to
// re-render a plan back into a fenced chat block.
package plan

import "fmt"

// ActionType is the tagged-union discriminator. The set is closed: an
// unrecognized value anywhere in a plan rejects the whole plan.
type ActionType string

const (
	ActionReply          ActionType = "reply"
	ActionQuestion       ActionType = "question"
	ActionSSH            ActionType = "ssh"
	ActionObsidianWrite  ActionType = "obsidian_write"
	ActionWebFetch       ActionType = "web_fetch"
	ActionImageToText    ActionType = "image_to_text"
	ActionVoiceToText    ActionType = "voice_to_text"
	ActionOpencodeServe  ActionType = "opencode_serve"
	ActionAddonInstall   ActionType = "addon_install"
	ActionAddonCreate    ActionType = "addon_create"
	ActionAddonRun       ActionType = "addon_run"
)

// SSHTargets is the closed set of ssh action targets.
var SSHTargets = map[string]struct{}{
	"william":      {},
	"willy-ubuntu": {},
}

// ExecHints carries the two optional execution hints shared by every
// dispatchable (non reply/question) action.
type ExecHints struct {
	ExecutionMode string `json:"executionMode,omitempty"` // "foreground" | "background"
	ParallelGroup string `json:"parallelGroup,omitempty"`
}

// Action is implemented by every plan action variant. Matching on Type()
// with an exhaustive switch (not a type switch fallthrough) is how callers
// are expected to dispatch; ParsePlan never constructs a value whose Type()
// isn't one of the ActionType constants above.
type Action interface {
	Type() ActionType
	// Dispatchable reports whether this action is sent to the runner.
	// reply and question are rendered directly to chat instead.
	Dispatchable() bool
}

// ReplyAction carries no fields; the reply text is the surrounding chat
// message the planner returned, not part of the action itself.
type ReplyAction struct{}

func (ReplyAction) Type() ActionType   { return ActionReply }
func (ReplyAction) Dispatchable() bool { return false }

// QuestionAction asks the human a clarifying question instead of acting.
type QuestionAction struct {
	Question string `json:"question"`
}

func (QuestionAction) Type() ActionType   { return ActionQuestion }
func (QuestionAction) Dispatchable() bool { return false }

// SSHAction runs a read-only command on an allowlisted host.
type SSHAction struct {
	Target           string `json:"target"`
	Command          string `json:"command"`
	Reason           string `json:"reason"`
	RequiresApproval bool   `json:"requiresApproval"`
	ExecHints
}

func (SSHAction) Type() ActionType   { return ActionSSH }
func (SSHAction) Dispatchable() bool { return true }

// ObsidianWriteAction patches a note file in the memory notes directory.
type ObsidianWriteAction struct {
	Path             string `json:"path"`
	Patch            string `json:"patch"`
	Reason           string `json:"reason"`
	RequiresApproval bool   `json:"requiresApproval"`
	ExecHints
}

func (ObsidianWriteAction) Type() ActionType   { return ActionObsidianWrite }
func (ObsidianWriteAction) Dispatchable() bool { return true }

// WebFetchAction fetches a URL, either as a plain HTTP GET or via a headless
// browser navigation.
type WebFetchAction struct {
	URL              string `json:"url"`
	Reason           string `json:"reason"`
	RequiresApproval bool   `json:"requiresApproval"`
	Mode             string `json:"mode"` // "http" | "browser"
	Extract          string `json:"extract,omitempty"`
	ExecHints
}

func (WebFetchAction) Type() ActionType   { return ActionWebFetch }
func (WebFetchAction) Dispatchable() bool { return true }

// ImageToTextAction forwards an image URL to a captioning/description endpoint.
type ImageToTextAction struct {
	ImageURL         string `json:"imageUrl"`
	Reason           string `json:"reason"`
	RequiresApproval bool   `json:"requiresApproval"`
	Prompt           string `json:"prompt,omitempty"`
	ExecHints
}

func (ImageToTextAction) Type() ActionType   { return ActionImageToText }
func (ImageToTextAction) Dispatchable() bool { return true }

// VoiceToTextAction forwards an audio URL to a transcription endpoint.
type VoiceToTextAction struct {
	AudioURL         string `json:"audioUrl"`
	Reason           string `json:"reason"`
	RequiresApproval bool   `json:"requiresApproval"`
	Language         string `json:"language,omitempty"`
	ExecHints
}

func (VoiceToTextAction) Type() ActionType   { return ActionVoiceToText }
func (VoiceToTextAction) Dispatchable() bool { return true }

// OpencodeServeAction runs a long-running coding task in foreground or
// background mode.
type OpencodeServeAction struct {
	Task             string `json:"task"`
	Reason           string `json:"reason"`
	RequiresApproval bool   `json:"requiresApproval"`
	Cwd              string `json:"cwd,omitempty"`
	TimeoutSeconds   int    `json:"timeout,omitempty"` // 1-600s
	ExecHints
}

func (OpencodeServeAction) Type() ActionType   { return ActionOpencodeServe }
func (OpencodeServeAction) Dispatchable() bool { return true }

// AddonActionNameRe documents the required shape of addon names; enforced in
// validateAddon rather than via a compiled package-level regexp so the
// constant stays the single source of truth in error messages.
const AddonActionNameRe = `^[a-z0-9][a-z0-9-]{0,63}$`

// AddonAction covers addon_install, addon_create, and addon_run, which share
// an identical field set and differ only in kind.
type AddonAction struct {
	Kind             ActionType `json:"-"`
	Name             string     `json:"name"`
	Reason           string     `json:"reason"`
	RequiresApproval bool       `json:"requiresApproval"`
	Purpose          string     `json:"purpose,omitempty"`
	Input            string     `json:"input,omitempty"`
	ExecHints
}

func (a AddonAction) Type() ActionType { return a.Kind }
func (AddonAction) Dispatchable() bool { return true }

// UnknownActionError is returned when an action's "type" field does not
// match any variant in the closed set.
type UnknownActionError struct {
	Type string
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("unknown action type %q", e.Type)
}

// DecodeError wraps one or more decode/validation failures for a single
// action decoded outside of ParsePlan's whole-plan error aggregation.
type DecodeError struct {
	Messages []string
}

func (e *DecodeError) Error() string {
	if len(e.Messages) == 1 {
		return e.Messages[0]
	}
	s := "multiple errors: "
	for i, m := range e.Messages {
		if i > 0 {
			s += "; "
		}
		s += m
	}
	return s
}
