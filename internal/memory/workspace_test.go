package memory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkspace_ReadWithinRoot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "note.md"), []byte("hello world"), 0o644))

	w, err := NewWorkspace(dir)
	require.NoError(t, err)

	content, err := w.Read("note.md")
	require.NoError(t, err)
	assert.Equal(t, "hello world", content)
}

func TestWorkspace_RejectsPathEscape(t *testing.T) {
	w, err := NewWorkspace(t.TempDir())
	require.NoError(t, err)

	_, err = w.Read("../outside.md")
	assert.Error(t, err)
}

func TestWorkspace_RejectsAbsolutePath(t *testing.T) {
	w, err := NewWorkspace(t.TempDir())
	require.NoError(t, err)

	_, err = w.Read("/etc/passwd")
	assert.Error(t, err)
}

func TestBuildHeader_FindsRelevantNote(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hosts.md"), []byte("william is the desktop machine\nwilly-ubuntu is the server"), 0o644))

	w, err := NewWorkspace(dir)
	require.NoError(t, err)

	header := w.BuildHeader("what is william")
	assert.Contains(t, header, "<memory>")
	assert.Contains(t, header, "william is the desktop machine")
}

func TestBuildHeader_EmptyWhenNoMatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hosts.md"), []byte("nothing relevant here"), 0o644))

	w, err := NewWorkspace(dir)
	require.NoError(t, err)

	assert.Empty(t, w.BuildHeader("zzzznomatch"))
}
