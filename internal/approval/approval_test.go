package approval

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanoclaw/ops/internal/dispatch"
	"github.com/nanoclaw/ops/internal/plan"
	"github.com/nanoclaw/ops/internal/proposal"
)

func TestChunkMessage_SingleChunkWhenShort(t *testing.T) {
	assert.Equal(t, []string{"short"}, chunkMessage("short", 100))
}

func TestChunkMessage_SplitsAtLineBoundaries(t *testing.T) {
	text := "line one\nline two\nline three"
	chunks := chunkMessage(text, 18)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 18+len("line three")) // one long line may still exceed
	}
	joined := ""
	for i, c := range chunks {
		if i > 0 {
			joined += "\n"
		}
		joined += c
	}
	assert.Equal(t, text, joined)
}

func TestDecide_SecondDecisionIsToldAlreadySettled(t *testing.T) {
	dataDir := t.TempDir()
	store, err := proposal.Open(dataDir)
	require.NoError(t, err)
	defer store.Close()

	p, err := store.EnqueueProposal(proposal.Proposal{
		ChatID:      1,
		GroupFolder: "main",
		Actions:     []plan.Action{plan.SSHAction{Target: "william", Command: "uptime", Reason: "r", RequiresApproval: true}},
	})
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"dispatchId":"d1","results":[{"status":"ok"}]}`))
	}))
	defer srv.Close()

	d := dispatch.New(dispatch.Config{WebhookURL: srv.URL, Secret: "s", Timeout: 2 * time.Second}, nil)

	first, err := store.Decide(p.ID, proposal.StatusApproved, "", "user1")
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := store.Decide(p.ID, proposal.StatusDenied, "", "user2")
	require.NoError(t, err)
	assert.Nil(t, second)

	got, err := store.GetByID(p.ID)
	require.NoError(t, err)
	assert.Equal(t, proposal.StatusApproved, got.Status)
	_ = d
}
