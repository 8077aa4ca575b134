// Package ipcwatcher implements the IPC watcher: a cooperative loop that
// scans data/ipc/<sourceGroup>/{messages,tasks}/*.json for requests from
// agents or containers running inside a registered group's workspace. The
// directory name is the authenticated source identity.
package ipcwatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/nanoclaw/ops/internal/channel"
	"github.com/nanoclaw/ops/internal/corestate"
	"github.com/nanoclaw/ops/internal/schedule"
)

const mainFolder = "main"

// ipcFile is the union of every message/*.json and tasks/*.json shape.
type ipcFile struct {
	Type          string `json:"type"`
	ChatJID       int64  `json:"chatJid,omitempty"`
	Text          string `json:"text,omitempty"`
	TaskID        string `json:"taskId,omitempty"`
	Prompt        string `json:"prompt,omitempty"`
	ScheduleType  string `json:"scheduleType,omitempty"`
	ScheduleValue string `json:"scheduleValue,omitempty"`
	Name          string `json:"name,omitempty"`
	Folder        string `json:"folder,omitempty"`
	Trigger       string `json:"trigger,omitempty"`
}

// unauthorized marks an action a source group is not entitled to perform;
// it is dropped with a warning, not treated as malformed.
type unauthorized struct{ reason string }

func (e *unauthorized) Error() string { return e.reason }

// Watcher is the single reader of the IPC directory tree.
type Watcher struct {
	root     string
	ch       channel.Channel
	state    *corestate.Store
	tasks    *schedule.Store
	loc      *time.Location
	interval time.Duration
	logger   *slog.Logger
}

func New(root string, ch channel.Channel, state *corestate.Store, tasks *schedule.Store, loc *time.Location, interval time.Duration, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Watcher{root: root, ch: ch, state: state, tasks: tasks, loc: loc, interval: interval, logger: logger}
}

// Run blocks, scanning every interval until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.tick()
		}
	}
}

func (w *Watcher) tick() {
	entries, err := os.ReadDir(w.root)
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Error("read ipc root", "error", err)
		}
		return
	}
	for _, e := range entries {
		if !e.IsDir() || e.Name() == "errors" || e.Name() == "completed" {
			continue
		}
		source := e.Name()
		if _, ok := w.sourceFolder(source); !ok {
			continue // files outside a registered folder are ignored
		}
		w.scanKind(source, "messages")
		w.scanKind(source, "tasks")
	}
}

// sourceFolder reports whether folder names a registered group (the main
// folder is always implicitly registered).
func (w *Watcher) sourceFolder(folder string) (corestate.RegisteredGroup, bool) {
	if folder == mainFolder {
		return corestate.RegisteredGroup{Folder: mainFolder}, true
	}
	return w.state.LookupGroupByFolder(folder)
}

func (w *Watcher) scanKind(source, kind string) {
	dir := filepath.Join(w.root, source, kind)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return // a source need not have both subdirectories
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names) // filenames are "<ms>-<6 base36>.json", so lexical order is chronological

	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue // raced with another process removing it; pick it up (or not) next tick
		}

		var f ipcFile
		applyErr := json.Unmarshal(data, &f)
		if applyErr == nil {
			if kind == "messages" {
				applyErr = w.applyMessage(source, f)
			} else {
				applyErr = w.applyTask(source, f)
			}
		}

		if applyErr != nil {
			var unauth *unauthorized
			if errors.As(applyErr, &unauth) {
				w.logger.Warn("unauthorized ipc action dropped", "source", source, "file", name, "reason", unauth.reason)
			} else {
				w.logger.Warn("invalid ipc file quarantined", "source", source, "file", name, "error", applyErr)
			}
			w.rotate(path, "errors", source+"-"+name)
			continue
		}
		w.rotate(path, "completed", source+"-"+name)
	}
}

func (w *Watcher) rotate(path, toDir, name string) {
	dest := filepath.Join(w.root, toDir)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		w.logger.Error("create ipc rotation dir", "error", err, "dir", dest)
		return
	}
	if err := os.Rename(path, filepath.Join(dest, name)); err != nil {
		w.logger.Error("rotate ipc file", "error", err, "path", path)
	}
}

// ownsChat reports whether source may act on chatID: true for the main
// group, or for the group folder that owns that chat.
func (w *Watcher) ownsChat(source string, chatID int64) bool {
	if source == mainFolder {
		return true
	}
	for _, g := range w.state.RegisteredGroups() {
		if g.ChatID == chatID {
			return g.Folder == source
		}
	}
	return false
}

func (w *Watcher) applyMessage(source string, f ipcFile) error {
	if f.Type != "message" {
		return fmt.Errorf("unexpected message file type %q", f.Type)
	}
	if f.ChatJID == 0 || strings.TrimSpace(f.Text) == "" {
		return fmt.Errorf("message file missing chatJid or text")
	}
	if !w.ownsChat(source, f.ChatJID) {
		return &unauthorized{reason: fmt.Sprintf("source %q may not message chat %d", source, f.ChatJID)}
	}
	return w.ch.SendText(f.ChatJID, f.Text)
}

func (w *Watcher) applyTask(source string, f ipcFile) error {
	switch f.Type {
	case "schedule_task":
		return w.scheduleTask(source, f)
	case "pause_task":
		return w.taskOwnerAction(source, f.TaskID, w.tasks.Pause)
	case "resume_task":
		return w.taskOwnerAction(source, f.TaskID, w.tasks.Resume)
	case "cancel_task":
		return w.taskOwnerAction(source, f.TaskID, w.tasks.Cancel)
	case "register_group":
		return w.registerGroup(source, f)
	case "refresh_groups":
		return nil // registered_groups.json is read fresh on every tick; nothing to do
	default:
		return fmt.Errorf("unknown task ipc type %q", f.Type)
	}
}

func (w *Watcher) scheduleTask(source string, f ipcFile) error {
	if f.ChatJID == 0 || strings.TrimSpace(f.Prompt) == "" {
		return fmt.Errorf("schedule_task missing chatJid or prompt")
	}
	if !w.ownsChat(source, f.ChatJID) {
		return &unauthorized{reason: fmt.Sprintf("source %q may not schedule a task on chat %d", source, f.ChatJID)}
	}
	_, err := w.tasks.Create(schedule.Task{
		ChatID:        f.ChatJID,
		GroupFolder:   source,
		Prompt:        f.Prompt,
		ScheduleType:  schedule.Type(f.ScheduleType),
		ScheduleValue: f.ScheduleValue,
	}, w.loc)
	return err
}

func (w *Watcher) taskOwnerAction(source, taskID string, action func(string) error) error {
	if taskID == "" {
		return fmt.Errorf("task action missing taskId")
	}
	t, err := w.tasks.Get(taskID)
	if err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("no such task %s", taskID)
	}
	if source != mainFolder && t.GroupFolder != source {
		return &unauthorized{reason: fmt.Sprintf("source %q may not act on task %s owned by %q", source, taskID, t.GroupFolder)}
	}
	return action(taskID)
}

func (w *Watcher) registerGroup(source string, f ipcFile) error {
	if source != mainFolder {
		return &unauthorized{reason: fmt.Sprintf("source %q may not register a group", source)}
	}
	if f.ChatJID == 0 || f.Folder == "" {
		return fmt.Errorf("register_group missing chatJid or folder")
	}
	return w.state.RegisterGroup(corestate.RegisteredGroup{
		ChatID:  f.ChatJID,
		Name:    f.Name,
		Folder:  f.Folder,
		Trigger: f.Trigger,
		AddedAt: time.Now().UTC(),
	})
}
