package runner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nanoclaw/ops/internal/plan"
)

// execObsidianWrite appends Patch to the note at Path under the configured
// notes directory, creating the note and any parent directories if needed.
// Path is confined to the notes dir: no absolute paths, no "..".
func (e *Executor) execObsidianWrite(ctx context.Context, idx int, start time.Time, a plan.ObsidianWriteAction) Result {
	notesDir := e.cfg.NotesDir()

	clean := filepath.Clean(a.Path)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		r := blocked(idx, "note path escapes the notes directory")
		e.record("blocked", "obsidian_write", "path escape", a.Path)
		return r
	}
	if filepath.Ext(clean) == "" {
		clean += ".md"
	}

	full := filepath.Join(notesDir, clean)
	if !strings.HasPrefix(full, filepath.Clean(notesDir)+string(filepath.Separator)) {
		r := blocked(idx, "note path escapes the notes directory")
		e.record("blocked", "obsidian_write", "path escape", a.Path)
		return r
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return failed(idx, start, err)
	}

	f, err := os.OpenFile(full, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return failed(idx, start, err)
	}
	defer f.Close()

	if _, err := f.WriteString("\n" + a.Patch + "\n"); err != nil {
		return failed(idx, start, err)
	}

	r := ok(idx, start)
	r.ResultText = "appended to " + clean
	e.record("allow", "obsidian_write", a.Reason, clean)
	return r
}
