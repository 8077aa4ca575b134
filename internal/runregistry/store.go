package runregistry

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nanoclaw/ops/internal/bus"
	"github.com/nanoclaw/ops/internal/persistence"
)

// maxListLimit bounds list(limit) per spec.md §4.6: listing is capped at
// 100 regardless of what the caller asks for.
const maxListLimit = 100

// Store is the sqlite-backed run registry. The Dispatcher is the only
// mutator of run rows it spawns; everything else only reads or cancels.
type Store struct {
	db  *sql.DB
	bus *bus.Bus
	mu  sync.Mutex
}

func Open(dataDir string, b *bus.Bus) (*Store, error) {
	db, err := persistence.Open(filepath.Join(dataDir, "nanoclaw.db"))
	if err != nil {
		return nil, err
	}
	return &Store{db: db, bus: b}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Create inserts a new run in status queued and returns its id.
func (s *Store) Create(actionType, summary string) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO runs (id, action_type, summary, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, actionType, summary, string(StatusQueued), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// Update applies a partial update to the run with the given id.
func (s *Store) Update(id string, u Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	before, err := s.Get(id)
	if err != nil {
		return err
	}
	if before == nil {
		return fmt.Errorf("run %s not found", id)
	}

	sets := []string{}
	args := []any{}
	newStatus := before.Status
	if u.Status != nil {
		newStatus = *u.Status
		sets = append(sets, "status = ?")
		args = append(args, string(*u.Status))
	}
	if u.StartedAt != nil {
		sets = append(sets, "started_at = ?")
		args = append(args, u.StartedAt.Format(time.RFC3339Nano))
	}
	if u.CompletedAt != nil {
		sets = append(sets, "finished_at = ?")
		args = append(args, u.CompletedAt.Format(time.RFC3339Nano))
	}
	if u.ResultText != nil {
		sets = append(sets, "result_text = ?")
		args = append(args, *u.ResultText)
	}
	if u.ErrorText != nil {
		sets = append(sets, "error_text = ?")
		args = append(args, *u.ErrorText)
	}
	if u.CancelRequested != nil {
		sets = append(sets, "cancel_requested = ?")
		args = append(args, boolToInt(*u.CancelRequested))
	}
	if len(sets) == 0 {
		return nil
	}

	query := "UPDATE runs SET "
	for i, s := range sets {
		if i > 0 {
			query += ", "
		}
		query += s
	}
	query += " WHERE id = ?"
	args = append(args, id)

	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("update run: %w", err)
	}

	if u.Status != nil && newStatus != before.Status && s.bus != nil {
		s.bus.Publish(bus.TopicRunStateChanged, bus.RunStateChangedEvent{
			RunID:     id,
			OldStatus: string(before.Status),
			NewStatus: string(newStatus),
		})
	}
	return nil
}

// RequestCancel sets cancelRequested=true. The caller (the runner's
// background-run worker) is responsible for invoking the in-process abort
// handle and, once the operation actually stops, writing the terminal
// cancelled state via Update.
func (s *Store) RequestCancel(id string) error {
	t := true
	return s.Update(id, Update{CancelRequested: &t})
}

const runColumns = `id, action_type, summary, status, result_text, error_text, cancel_requested, created_at, started_at, finished_at`

// Get returns the run with the given id, or nil if none exists.
func (s *Store) Get(id string) (*Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// List returns up to limit runs, newest first. limit <= 0 or > 100 is
// clamped to 100.
func (s *Store) List(limit int) ([]Run, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var id, actionType, summary, status, createdAt string
	var resultText, errorText, startedAt, finishedAt sql.NullString
	var cancelRequested int
	if err := row.Scan(&id, &actionType, &summary, &status, &resultText, &errorText, &cancelRequested, &createdAt, &startedAt, &finishedAt); err != nil {
		return Run{}, err
	}

	r := Run{
		ID:              id,
		ActionType:      actionType,
		Summary:         summary,
		Status:          Status(status),
		CancelRequested: cancelRequested != 0,
	}
	if resultText.Valid {
		r.ResultText = resultText.String
	}
	if errorText.Valid {
		r.ErrorText = errorText.String
	}
	if createdAt != "" {
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			r.CreatedAt = t
		}
	}
	if startedAt.Valid && startedAt.String != "" {
		if t, err := time.Parse(time.RFC3339Nano, startedAt.String); err == nil {
			r.StartedAt = &t
		}
	}
	if finishedAt.Valid && finishedAt.String != "" {
		if t, err := time.Parse(time.RFC3339Nano, finishedAt.String); err == nil {
			r.CompletedAt = &t
		}
	}
	return r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
