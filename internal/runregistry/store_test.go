package runregistry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanoclaw/ops/internal/bus"
)

func openTestStore(t *testing.T, b *bus.Bus) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), b)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreate_StartsInQueuedStatus(t *testing.T) {
	s := openTestStore(t, nil)
	id, err := s.Create("opencode_serve", "run the thing")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	run, err := s.Get(id)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, StatusQueued, run.Status)
	assert.Equal(t, "opencode_serve", run.ActionType)
	assert.Equal(t, "run the thing", run.Summary)
	assert.False(t, run.CreatedAt.IsZero())
}

func TestGet_ReturnsNilForUnknownID(t *testing.T) {
	s := openTestStore(t, nil)
	run, err := s.Get("does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestUpdate_AppliesPartialFieldsOnly(t *testing.T) {
	s := openTestStore(t, nil)
	id, err := s.Create("opencode_serve", "task")
	require.NoError(t, err)

	running := StatusRunning
	now := time.Now().UTC()
	require.NoError(t, s.Update(id, Update{Status: &running, StartedAt: &now}))

	run, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, run.Status)
	require.NotNil(t, run.StartedAt)
	assert.Equal(t, "task", run.Summary)

	result := "all done"
	completed := StatusCompleted
	completedAt := now.Add(time.Minute)
	require.NoError(t, s.Update(id, Update{Status: &completed, CompletedAt: &completedAt, ResultText: &result}))

	run, err = s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, run.Status)
	assert.Equal(t, "all done", run.ResultText)
	require.NotNil(t, run.CompletedAt)
}

func TestUpdate_UnknownRunReturnsError(t *testing.T) {
	s := openTestStore(t, nil)
	running := StatusRunning
	err := s.Update("does-not-exist", Update{Status: &running})
	assert.Error(t, err)
}

func TestUpdate_PublishesOnStatusTransition(t *testing.T) {
	b := bus.New()
	sub := b.Subscribe(bus.TopicRunStateChanged)
	defer b.Unsubscribe(sub)

	s := openTestStore(t, b)
	id, err := s.Create("opencode_serve", "task")
	require.NoError(t, err)

	running := StatusRunning
	require.NoError(t, s.Update(id, Update{Status: &running}))

	select {
	case ev := <-sub.Ch():
		payload, ok := ev.Payload.(bus.RunStateChangedEvent)
		require.True(t, ok)
		assert.Equal(t, id, payload.RunID)
		assert.Equal(t, string(StatusQueued), payload.OldStatus)
		assert.Equal(t, string(StatusRunning), payload.NewStatus)
	case <-time.After(time.Second):
		t.Fatal("expected a run state changed event")
	}
}

func TestUpdate_NoStatusChangeDoesNotPublish(t *testing.T) {
	b := bus.New()
	sub := b.Subscribe(bus.TopicRunStateChanged)
	defer b.Unsubscribe(sub)

	s := openTestStore(t, b)
	id, err := s.Create("opencode_serve", "task")
	require.NoError(t, err)

	result := "partial"
	require.NoError(t, s.Update(id, Update{ResultText: &result}))

	select {
	case ev := <-sub.Ch():
		t.Fatalf("unexpected event: %+v", ev)
	default:
	}
}

func TestRequestCancel_SetsCancelRequestedFlag(t *testing.T) {
	s := openTestStore(t, nil)
	id, err := s.Create("opencode_serve", "task")
	require.NoError(t, err)

	require.NoError(t, s.RequestCancel(id))

	run, err := s.Get(id)
	require.NoError(t, err)
	assert.True(t, run.CancelRequested)
}

func TestList_OrdersNewestFirstAndClampsLimit(t *testing.T) {
	s := openTestStore(t, nil)
	var ids []string
	for i := 0; i < 3; i++ {
		id, err := s.Create("opencode_serve", "task")
		require.NoError(t, err)
		ids = append(ids, id)
		time.Sleep(time.Millisecond)
	}

	runs, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[0], runs[2].ID)

	runs, err = s.List(500)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}
