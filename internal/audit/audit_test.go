package audit

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_AppendsJSONLEntry(t *testing.T) {
	dir := t.TempDir()
	a, err := Open(dir)
	require.NoError(t, err)
	defer a.Close()

	a.Record("allow", "ssh.exec", "uptime is allowlisted", "v1", "william")

	data, err := os.ReadFile(filepath.Join(dir, "logs", "audit.jsonl"))
	require.NoError(t, err)

	var e entry
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &e))
	assert.Equal(t, "allow", e.Decision)
	assert.Equal(t, "ssh.exec", e.Capability)
	assert.Equal(t, "william", e.Subject)
	assert.NotEmpty(t, e.Timestamp)
}

func TestRecord_IncrementsDenyCountForDenyAndBlocked(t *testing.T) {
	dir := t.TempDir()
	a, err := Open(dir)
	require.NoError(t, err)
	defer a.Close()

	a.Record("allow", "ssh.exec", "ok", "", "")
	a.Record("deny", "ssh.exec", "not allowlisted", "", "")
	a.Record("blocked", "web_fetch", "ssrf", "", "")

	assert.Equal(t, int64(2), a.DenyCount())
}

func TestRecord_RedactsSecretsInReasonAndSubject(t *testing.T) {
	dir := t.TempDir()
	a, err := Open(dir)
	require.NoError(t, err)
	defer a.Close()

	a.Record("deny", "web_fetch", `api_key="abcdefghijklmnopqrstuvwxyz"`, "", "Bearer abcdefghijklmnopqrstuvwxyz0123")

	data, err := os.ReadFile(filepath.Join(dir, "logs", "audit.jsonl"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "abcdefghijklmnopqrstuvwxyz")
}

func TestRecord_AfterCloseDoesNotPanic(t *testing.T) {
	dir := t.TempDir()
	a, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	assert.NotPanics(t, func() { a.Record("allow", "ssh.exec", "ok", "", "") })
}

func TestOpen_ReopensExistingLogAndAppends(t *testing.T) {
	dir := t.TempDir()
	a1, err := Open(dir)
	require.NoError(t, err)
	a1.Record("allow", "ssh.exec", "first", "", "")
	require.NoError(t, a1.Close())

	a2, err := Open(dir)
	require.NoError(t, err)
	defer a2.Close()
	a2.Record("allow", "ssh.exec", "second", "", "")

	data, err := os.ReadFile(filepath.Join(dir, "logs", "audit.jsonl"))
	require.NoError(t, err)
	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	assert.Len(t, lines, 2)
}
