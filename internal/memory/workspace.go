// Package memory is the external memory-retrieval collaborator: a sandboxed
// notes workspace on disk, plus the header builder that prepends the
// relevant notes to a planner prompt.
package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	maxReadBytes  = 1 * 1024 * 1024
	maxSearchHits = 20
)

// Workspace is a sandboxed file-based notes root. All paths are confined to
// rootDir via traversal protection.
type Workspace struct {
	rootDir string
}

// NewWorkspace creates a Workspace rooted at rootDir, creating it if absent.
func NewWorkspace(rootDir string) (*Workspace, error) {
	abs, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("memory: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("memory: create root dir: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("memory: eval symlinks on root: %w", err)
	}
	return &Workspace{rootDir: resolved}, nil
}

func (w *Workspace) resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("memory: empty path")
	}
	cleaned := filepath.Clean(path)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("memory: absolute paths not allowed: %s", path)
	}
	full := filepath.Join(w.rootDir, cleaned)
	abs, err := filepath.Abs(full)
	if err != nil {
		return "", fmt.Errorf("memory: resolve path: %w", err)
	}
	if abs != w.rootDir && !strings.HasPrefix(abs, w.rootDir+string(filepath.Separator)) {
		return "", fmt.Errorf("memory: path escapes workspace root: %s", path)
	}
	return abs, nil
}

// Read returns the contents of the note at path.
func (w *Workspace) Read(path string) (string, error) {
	abs, err := w.resolve(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if info.Size() > maxReadBytes {
		return "", fmt.Errorf("memory: %s exceeds max read size", path)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// searchHit is one grep-style match used to build the memory header.
type searchHit struct {
	Path    string
	Line    int
	Content string
}

// search does a simple case-insensitive substring search over all .md files
// under the workspace root, capped at maxSearchHits.
func (w *Workspace) search(query string) ([]searchHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	needle := strings.ToLower(query)
	var hits []searchHit

	err := filepath.WalkDir(w.rootDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || len(hits) >= maxSearchHits {
			return nil
		}
		if !strings.HasSuffix(path, ".md") {
			return nil
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		rel, _ := filepath.Rel(w.rootDir, path)
		for i, line := range strings.Split(string(data), "\n") {
			if len(hits) >= maxSearchHits {
				break
			}
			if strings.Contains(strings.ToLower(line), needle) {
				hits = append(hits, searchHit{Path: rel, Line: i + 1, Content: strings.TrimSpace(line)})
			}
		}
		return nil
	})
	return hits, err
}
