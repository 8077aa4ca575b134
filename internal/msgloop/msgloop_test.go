package msgloop

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanoclaw/ops/internal/approval"
	"github.com/nanoclaw/ops/internal/channel"
	"github.com/nanoclaw/ops/internal/config"
	"github.com/nanoclaw/ops/internal/corestate"
	"github.com/nanoclaw/ops/internal/dispatch"
	"github.com/nanoclaw/ops/internal/planner"
	"github.com/nanoclaw/ops/internal/proposal"
)

type fakeChannel struct {
	sent    []string
	buttons []string
	sendErr error
	acked   []int64
}

func (f *fakeChannel) Name() string                         { return "fake" }
func (f *fakeChannel) Start(ctx context.Context) error      { return nil }
func (f *fakeChannel) Drain(chatID int64) []channel.Message { return nil }
func (f *fakeChannel) Ack(chatID int64, upToTimestamp int64) {
	f.acked = append(f.acked, upToTimestamp)
}
func (f *fakeChannel) Callbacks() <-chan channel.CallbackAction {
	return make(chan channel.CallbackAction)
}
func (f *fakeChannel) SendText(chatID int64, text string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, text)
	return nil
}
func (f *fakeChannel) SendWithApprovalButtons(chatID int64, text, proposalID string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.buttons = append(f.buttons, proposalID)
	f.sent = append(f.sent, text)
	return nil
}

func newTestLoop(t *testing.T, plannerReply string, cfg config.Config) (*Loop, *fakeChannel, *proposal.Store) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":` + jsonQuote(plannerReply) + `}}]}`))
	}))
	t.Cleanup(srv.Close)

	cfg.Planner = config.PlannerConfig{BaseURL: srv.URL, CompletionModel: "test-model"}
	pc := planner.New(cfg.Planner)

	dataDir := t.TempDir()
	proposals, err := proposal.Open(dataDir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = proposals.Close() })

	state, err := corestate.Open(dataDir)
	require.NoError(t, err)

	d := dispatch.New(dispatch.Config{WebhookURL: "http://unused.invalid", Secret: "s", Timeout: time.Second}, nil)
	gw := approval.New(proposals, d, nil, pc, nil, nil)

	fc := &fakeChannel{}
	l := New(cfg, fc, state, proposals, pc, nil, gw, nil)
	return l, fc, proposals
}

func jsonQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestBuildPrompt_JoinsTrimmedNonEmptyLines(t *testing.T) {
	msgs := []channel.Message{
		{Text: "  hello  "},
		{Text: ""},
		{Text: "world"},
	}
	assert.Equal(t, "hello\n\nworld", buildPrompt(msgs))
}

func TestProcessChat_EnqueuesProposalAndSendsButtons(t *testing.T) {
	reply := "On it.\n```json\n{\"actions\":[{\"type\":\"ssh\",\"target\":\"william\",\"command\":\"uptime\",\"reason\":\"check load\",\"requiresApproval\":true}]}\n```"
	l, fc, proposals := newTestLoop(t, reply, config.Config{MessageLoopMS: 2000})

	group := corestate.RegisteredGroup{ChatID: 1, Name: "main", Folder: "main"}
	l.cfg.Telegram.MainChatID = 1

	l.processChat(context.Background(), group, []channel.Message{
		{ChatID: 1, UserID: 9, Text: "uptime on william", Timestamp: 1000},
	})

	require.Len(t, fc.buttons, 1)
	pending, err := proposals.ListPendingByChat(1, 5)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, proposal.StatusProposed, pending[0].Status)
}

func TestProcessChat_DeliveryFailureLeavesWatermarkAndAckUnadvanced(t *testing.T) {
	reply := "On it.\n```json\n{\"actions\":[{\"type\":\"ssh\",\"target\":\"william\",\"command\":\"uptime\",\"reason\":\"check load\",\"requiresApproval\":true}]}\n```"
	l, fc, _ := newTestLoop(t, reply, config.Config{MessageLoopMS: 2000})
	fc.sendErr = errors.New("transport unavailable")

	group := corestate.RegisteredGroup{ChatID: 1, Name: "main", Folder: "main"}
	l.cfg.Telegram.MainChatID = 1

	l.processChat(context.Background(), group, []channel.Message{
		{ChatID: 1, UserID: 9, Text: "uptime on william", Timestamp: 1000},
	})

	assert.Empty(t, fc.sent)
	assert.Empty(t, fc.acked, "messages must not be acked until delivery succeeds, so they are retried next tick")

	assert.Zero(t, l.state.AgentTimestamp(1), "agent watermark must not advance when delivery fails")
}

func TestProcessChat_NonMainGroupWithoutTriggerIsIgnored(t *testing.T) {
	l, fc, proposals := newTestLoop(t, "irrelevant", config.Config{MessageLoopMS: 2000, TriggerPrefix: "nanoclaw"})
	l.cfg.Telegram.MainChatID = 1

	group := corestate.RegisteredGroup{ChatID: 2, Name: "other", Folder: "other"}
	l.processChat(context.Background(), group, []channel.Message{
		{ChatID: 2, UserID: 9, Text: "uptime on william", Timestamp: 1000},
	})

	assert.Empty(t, fc.sent)
	pending, err := proposals.ListPendingByChat(2, 5)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
