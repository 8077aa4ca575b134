package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeNextRun_Interval(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	next, err := ComputeNextRun(TypeInterval, "60000", from, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, from.Add(time.Minute), next)
}

func TestComputeNextRun_RejectsNonPositiveInterval(t *testing.T) {
	_, err := ComputeNextRun(TypeInterval, "0", time.Now(), time.UTC)
	assert.Error(t, err)
	_, err = ComputeNextRun(TypeInterval, "not-a-number", time.Now(), time.UTC)
	assert.Error(t, err)
}

func TestComputeNextRun_Cron(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	next, err := ComputeNextRun(TypeCron, "0 9 * * *", from, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 9, next.Hour())
	assert.True(t, next.After(from))
}

func TestComputeNextRun_RejectsBadCron(t *testing.T) {
	_, err := ComputeNextRun(TypeCron, "not a cron expr", time.Now(), time.UTC)
	assert.Error(t, err)
}

func TestComputeNextRun_Once(t *testing.T) {
	next, err := ComputeNextRun(TypeOnce, "2026-06-01T12:00:00Z", time.Now(), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 2026, next.Year())
}

func TestComputeNextRun_RejectsUnparseableOnce(t *testing.T) {
	_, err := ComputeNextRun(TypeOnce, "not-a-timestamp", time.Now(), time.UTC)
	assert.Error(t, err)
}

func TestStore_CreateDueTasksReschedule(t *testing.T) {
	dataDir := t.TempDir()
	store, err := Open(dataDir)
	require.NoError(t, err)
	defer store.Close()

	created, err := store.Create(Task{
		ChatID:        1,
		GroupFolder:   "main",
		Prompt:        "check backups",
		ScheduleType:  TypeInterval,
		ScheduleValue: "1",
	}, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, created.Status)

	due, err := store.DueTasks(time.Now().Add(time.Second))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, created.ID, due[0].ID)

	require.NoError(t, store.Reschedule(due[0], time.UTC))
	got, err := store.Get(created.ID)
	require.NoError(t, err)
	assert.True(t, got.NextRun.After(created.NextRun) || got.NextRun.Equal(created.NextRun))
}

func TestStore_CreateRejectsInvalidSchedule(t *testing.T) {
	dataDir := t.TempDir()
	store, err := Open(dataDir)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Create(Task{ChatID: 1, ScheduleType: TypeInterval, ScheduleValue: "-5"}, time.UTC)
	assert.Error(t, err)
}

func TestStore_PauseResumeCancel(t *testing.T) {
	dataDir := t.TempDir()
	store, err := Open(dataDir)
	require.NoError(t, err)
	defer store.Close()

	task, err := store.Create(Task{ChatID: 1, ScheduleType: TypeOnce, ScheduleValue: "2030-01-01T00:00:00Z"}, time.UTC)
	require.NoError(t, err)

	require.NoError(t, store.Pause(task.ID))
	got, err := store.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, got.Status)

	require.NoError(t, store.Resume(task.ID))
	got, _ = store.Get(task.ID)
	assert.Equal(t, StatusActive, got.Status)

	require.NoError(t, store.Cancel(task.ID))
	got, _ = store.Get(task.ID)
	assert.Equal(t, StatusCancelled, got.Status)
}
