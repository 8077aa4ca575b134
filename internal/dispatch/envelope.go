// Package dispatch signs and posts approved action batches to the runner,
// applies the pre-dispatch safety filters, and interprets per-action
// results.
package dispatch

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/nanoclaw/ops/internal/plan"
)

// Envelope is the dispatch wire body. Field order matches spec.md §6's body
// grammar; json.Marshal preserves struct field order so the signature and
// the chat-visible JSON always agree.
type Envelope struct {
	Event       string          `json:"event"`
	DispatchID  string          `json:"dispatchId"`
	DispatchedAt string         `json:"dispatchedAt"`
	Source      string          `json:"source"`
	Actions     []json.RawMessage `json:"actions"`
}

const eventApprovedActionsDispatch = "approved_actions.dispatch"

// NewEnvelope builds an envelope for actions, generating a fresh dispatch id
// and timestamp.
func NewEnvelope(source string, actions []plan.Action, dispatchedAtRFC3339 string) (Envelope, error) {
	rendered := make([]json.RawMessage, 0, len(actions))
	for _, a := range actions {
		raw, err := plan.MarshalAction(a)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal action: %w", err)
		}
		rendered = append(rendered, raw)
	}
	return Envelope{
		Event:        eventApprovedActionsDispatch,
		DispatchID:   uuid.NewString(),
		DispatchedAt: dispatchedAtRFC3339,
		Source:       source,
		Actions:      rendered,
	}, nil
}

// HeaderDispatchID, HeaderSignatureTS, and HeaderSignature are the three
// signed-dispatch HTTP headers.
const (
	HeaderDispatchID  = "x-nanoclaw-dispatch-id"
	HeaderSignatureTS = "x-nanoclaw-signature-ts"
	HeaderSignature   = "x-nanoclaw-signature"
)

// Sign computes the sha256=<hex> signature for body at timestamp ts (unix
// milliseconds, as a string) under secret: HMAC-SHA256(secret, ts + "." + body).
func Sign(secret, ts string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature is the correct HMAC for ts+"."+body
// under secret, in constant time.
func Verify(secret, ts string, body []byte, signature string) bool {
	expected := Sign(secret, ts, body)
	return hmacEqual(expected, signature)
}
