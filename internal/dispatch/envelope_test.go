package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanoclaw/ops/internal/plan"
)

func TestNewEnvelope_RendersActionsAndFields(t *testing.T) {
	env, err := NewEnvelope("core", []plan.Action{
		plan.SSHAction{Target: "william", Command: "uptime", Reason: "r"},
	}, "2026-08-03T00:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, "approved_actions.dispatch", env.Event)
	assert.Equal(t, "core", env.Source)
	assert.NotEmpty(t, env.DispatchID)
	require.Len(t, env.Actions, 1)
	assert.Contains(t, string(env.Actions[0]), `"type":"ssh"`)
}

func TestSignAndVerify_RoundTrip(t *testing.T) {
	body := []byte(`{"hello":"world"}`)
	sig := Sign("secret", "12345", body)
	assert.True(t, Verify("secret", "12345", body, sig))
}

func TestVerify_RejectsTamperedBody(t *testing.T) {
	body := []byte(`{"hello":"world"}`)
	sig := Sign("secret", "12345", body)
	assert.False(t, Verify("secret", "12345", []byte(`{"hello":"mallory"}`), sig))
}

func TestVerify_RejectsWrongSecret(t *testing.T) {
	body := []byte(`{"hello":"world"}`)
	sig := Sign("secret", "12345", body)
	assert.False(t, Verify("wrong-secret", "12345", body, sig))
}
