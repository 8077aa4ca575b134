package telemetry

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_WritesJSONLinesToLogFile(t *testing.T) {
	dir := t.TempDir()
	logger, closer, err := NewLogger(dir, "core", "info", true)
	require.NoError(t, err)
	defer closer.Close()

	logger.Info("hello world", "foo", "bar")

	data, err := os.ReadFile(filepath.Join(dir, "logs", "system.jsonl"))
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "hello world", entry["msg"])
	assert.Equal(t, "core", entry["component"])
	assert.Equal(t, "bar", entry["foo"])
	assert.Contains(t, entry, "timestamp")
}

func TestNewLogger_RedactsSensitiveKeys(t *testing.T) {
	dir := t.TempDir()
	logger, closer, err := NewLogger(dir, "core", "info", true)
	require.NoError(t, err)
	defer closer.Close()

	logger.Info("auth", "api_key", "sk-verysecret", "authorization", "Bearer xyz")

	data, err := os.ReadFile(filepath.Join(dir, "logs", "system.jsonl"))
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "[REDACTED]", entry["api_key"])
	assert.Equal(t, "[REDACTED]", entry["authorization"])
}

func TestNewLogger_LevelFiltersBelowThreshold(t *testing.T) {
	dir := t.TempDir()
	logger, closer, err := NewLogger(dir, "core", "warn", true)
	require.NoError(t, err)
	defer closer.Close()

	logger.Info("should be dropped")
	logger.Warn("should appear")

	data, err := os.ReadFile(filepath.Join(dir, "logs", "system.jsonl"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "should appear")
}

func TestParseLevel_UnknownFallsBackToInfo(t *testing.T) {
	assert.Equal(t, parseLevel("debug").String(), parseLevel("DEBUG").String())
	assert.NotEqual(t, parseLevel("bogus"), parseLevel("debug"))
}

func TestShouldRedactKey_MatchesKnownSensitiveSubstrings(t *testing.T) {
	for _, key := range []string{"token", "Secret", "PASSWORD", "Authorization", "api_key", "apiKey", "bearer_token"} {
		assert.True(t, shouldRedactKey(key), "expected %q to be redacted", key)
	}
	for _, key := range []string{"component", "msg", "duration_ms"} {
		assert.False(t, shouldRedactKey(key), "expected %q to not be redacted", key)
	}
}
