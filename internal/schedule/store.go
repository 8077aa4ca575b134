package schedule

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/nanoclaw/ops/internal/persistence"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Store is the sqlite-backed scheduled-task table. The scheduler is the
// only mutator of next_run/status after creation; the IPC watcher creates,
// pauses, resumes, and cancels tasks on behalf of registered groups.
type Store struct {
	db *sql.DB
}

func Open(dataDir string) (*Store, error) {
	db, err := persistence.Open(filepath.Join(dataDir, "nanoclaw.db"))
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// ComputeNextRun validates scheduleValue against scheduleType and returns
// the next fire time strictly after from. Cron expressions must parse;
// interval must be a positive integer count of milliseconds; one-shot
// timestamps must parse as an ISO-8601 (RFC3339) instant.
func ComputeNextRun(scheduleType Type, scheduleValue string, from time.Time, loc *time.Location) (time.Time, error) {
	switch scheduleType {
	case TypeCron:
		sched, err := cronParser.Parse(scheduleValue)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", scheduleValue, err)
		}
		if loc == nil {
			loc = time.UTC
		}
		return sched.Next(from.In(loc)), nil
	case TypeInterval:
		ms, err := strconv.ParseInt(scheduleValue, 10, 64)
		if err != nil || ms <= 0 {
			return time.Time{}, fmt.Errorf("invalid interval milliseconds %q: must be a positive integer", scheduleValue)
		}
		return from.Add(time.Duration(ms) * time.Millisecond), nil
	case TypeOnce:
		t, err := time.Parse(time.RFC3339, scheduleValue)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid one-shot timestamp %q: %w", scheduleValue, err)
		}
		return t, nil
	default:
		return time.Time{}, fmt.Errorf("unknown schedule type %q", scheduleType)
	}
}

// Create validates the schedule and inserts a new active task.
func (s *Store) Create(t Task, loc *time.Location) (Task, error) {
	next, err := ComputeNextRun(t.ScheduleType, t.ScheduleValue, time.Now().UTC(), loc)
	if err != nil {
		return Task{}, err
	}
	t.ID = uuid.NewString()
	t.CreatedAt = time.Now().UTC()
	t.Status = StatusActive
	t.NextRun = next

	_, err = s.db.Exec(
		`INSERT INTO scheduled_tasks (id, chat_id, group_folder, prompt, schedule_type, schedule_value, status, next_run, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ChatID, t.GroupFolder, t.Prompt, string(t.ScheduleType), t.ScheduleValue, string(t.Status),
		t.NextRun.Format(time.RFC3339Nano), t.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Task{}, fmt.Errorf("insert scheduled task: %w", err)
	}
	return t, nil
}

// DueTasks returns active tasks whose next_run is at or before now.
func (s *Store) DueTasks(now time.Time) ([]Task, error) {
	rows, err := s.db.Query(
		`SELECT `+taskColumns+` FROM scheduled_tasks WHERE status = ? AND next_run <= ? ORDER BY next_run ASC`,
		string(StatusActive), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Reschedule recomputes next_run from "now" per the task's schedule type,
// or marks it completed for a one-shot task. Called after each tick fires
// the task, regardless of whether that tick's planner turn succeeded — a
// failing turn is retried on its next natural fire, not resubmitted early.
func (s *Store) Reschedule(t Task, loc *time.Location) error {
	if t.ScheduleType == TypeOnce {
		_, err := s.db.Exec(`UPDATE scheduled_tasks SET status = ? WHERE id = ?`, string(StatusCompleted), t.ID)
		return err
	}
	next, err := ComputeNextRun(t.ScheduleType, t.ScheduleValue, time.Now().UTC(), loc)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`UPDATE scheduled_tasks SET next_run = ? WHERE id = ?`, next.Format(time.RFC3339Nano), t.ID)
	return err
}

func (s *Store) setStatus(id string, status Status) error {
	res, err := s.db.Exec(`UPDATE scheduled_tasks SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("scheduled task %s not found", id)
	}
	return nil
}

func (s *Store) Pause(id string) error  { return s.setStatus(id, StatusPaused) }
func (s *Store) Resume(id string) error { return s.setStatus(id, StatusActive) }
func (s *Store) Cancel(id string) error { return s.setStatus(id, StatusCancelled) }

func (s *Store) Get(id string) (*Task, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM scheduled_tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

const taskColumns = `id, chat_id, group_folder, prompt, schedule_type, schedule_value, status, next_run, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (Task, error) {
	var id, groupFolder, prompt, scheduleType, scheduleValue, status, nextRun, createdAt string
	var chatID int64
	if err := row.Scan(&id, &chatID, &groupFolder, &prompt, &scheduleType, &scheduleValue, &status, &nextRun, &createdAt); err != nil {
		return Task{}, err
	}
	t := Task{
		ID:            id,
		ChatID:        chatID,
		GroupFolder:   groupFolder,
		Prompt:        prompt,
		ScheduleType:  Type(scheduleType),
		ScheduleValue: scheduleValue,
		Status:        Status(status),
	}
	if nr, err := time.Parse(time.RFC3339Nano, nextRun); err == nil {
		t.NextRun = nr
	}
	if ca, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		t.CreatedAt = ca
	}
	return t, nil
}
