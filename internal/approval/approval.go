// Package approval implements the Approval Gateway: text-command and
// inline-button ingress, serialized per-proposal decisions, and result
// rendering back to chat. The gateway never executes anything itself — on
// approval it only hands actions to the Dispatcher.
package approval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/nanoclaw/ops/internal/audit"
	"github.com/nanoclaw/ops/internal/channel"
	"github.com/nanoclaw/ops/internal/dispatch"
	"github.com/nanoclaw/ops/internal/plan"
	"github.com/nanoclaw/ops/internal/planner"
	"github.com/nanoclaw/ops/internal/proposal"
)

const (
	maxApprovalsListed = 5
	maxMessageBytes    = 3500 // conservative chat-transport chunk size
)

// Gateway wires chat commands/callbacks to the Proposal Store and Dispatcher.
type Gateway struct {
	proposals  *proposal.Store
	dispatcher *dispatch.Dispatcher
	ch         channel.Channel
	planner    *planner.Client
	auditor    *audit.Auditor // may be nil; human decisions are still logged, just not audited
	logger     *slog.Logger

	// decisionMu serializes approve/deny per proposal id so a race between
	// a button press and a text command always has exactly one winner.
	decisionMu sync.Mutex
}

func New(proposals *proposal.Store, dispatcher *dispatch.Dispatcher, ch channel.Channel, plannerClient *planner.Client, auditor *audit.Auditor, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{proposals: proposals, dispatcher: dispatcher, ch: ch, planner: plannerClient, auditor: auditor, logger: logger}
}

// HandleText inspects an inbound message for an approval command
// (/approvals, /approve <id>, /deny <id> [reason]) and, if it matches,
// handles it and reports true so the caller doesn't also route the text to
// the planner.
func (g *Gateway) HandleText(ctx context.Context, chatID, userID int64, text string) bool {
	text = strings.TrimSpace(text)
	switch {
	case text == "/approvals":
		g.listApprovals(chatID)
		return true
	case strings.HasPrefix(text, "/approve "):
		id := strings.TrimSpace(strings.TrimPrefix(text, "/approve "))
		g.decide(ctx, chatID, userID, id, proposal.StatusApproved, "")
		return true
	case strings.HasPrefix(text, "/deny "):
		rest := strings.TrimSpace(strings.TrimPrefix(text, "/deny "))
		id, reason, _ := strings.Cut(rest, " ")
		g.decide(ctx, chatID, userID, id, proposal.StatusDenied, strings.TrimSpace(reason))
		return true
	default:
		return false
	}
}

// HandleCallback processes an inline-button press.
func (g *Gateway) HandleCallback(ctx context.Context, cb channel.CallbackAction) {
	switch cb.Action {
	case "approve":
		g.decide(ctx, cb.ChatID, cb.UserID, cb.ProposalID, proposal.StatusApproved, "")
	case "deny":
		g.decide(ctx, cb.ChatID, cb.UserID, cb.ProposalID, proposal.StatusDenied, "")
	case "reason":
		g.send(cb.ChatID, fmt.Sprintf("Reply with: /deny %s <reason>", cb.ProposalID))
	}
}

func (g *Gateway) listApprovals(chatID int64) {
	pending, err := g.proposals.ListPendingByChat(chatID, maxApprovalsListed)
	if err != nil {
		g.logger.Error("list pending proposals", "error", err)
		g.send(chatID, "Could not list pending approvals.")
		return
	}
	if len(pending) == 0 {
		g.send(chatID, "No pending approvals.")
		return
	}

	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })

	var b strings.Builder
	for _, p := range pending {
		fmt.Fprintf(&b, "%s — %d action(s)\n", p.ID, len(p.Actions))
	}
	g.send(chatID, b.String())
}

// decide applies decision to id, serialized so a race between two ingress
// paths (button + text command) has exactly one winner; the loser is told
// the proposal's already-settled status.
func (g *Gateway) decide(ctx context.Context, chatID, userID int64, id string, decision proposal.Status, reason string) {
	if id == "" {
		g.send(chatID, "Usage: /approve <id> or /deny <id> [reason]")
		return
	}

	g.decisionMu.Lock()
	decided, err := g.proposals.Decide(id, decision, reason, strconv.FormatInt(userID, 10))
	g.decisionMu.Unlock()

	if err != nil {
		g.logger.Error("decide proposal", "error", err, "proposalId", id)
		g.send(chatID, fmt.Sprintf("Could not decide proposal %s: %v", id, err))
		return
	}
	if decided == nil {
		existing, _ := g.proposals.GetByID(id)
		if existing == nil {
			g.send(chatID, fmt.Sprintf("No such proposal %s.", id))
			return
		}
		g.send(chatID, fmt.Sprintf("Proposal %s is already %s.", id, existing.Status))
		return
	}

	if g.auditor != nil {
		g.auditor.Record(string(decision), "proposal.decide", reason, "", id)
	}

	if decision == proposal.StatusDenied {
		g.send(chatID, fmt.Sprintf("Proposal %s denied.", id))
		return
	}

	g.send(chatID, fmt.Sprintf("Proposal %s approved, dispatching...", id))
	g.dispatchAndReport(ctx, *decided)
}

func (g *Gateway) dispatchAndReport(ctx context.Context, p proposal.Proposal) {
	outcome := g.dispatcher.Dispatch(ctx, p.Actions)
	if outcome.Err != nil && !outcome.Dispatched {
		g.send(p.ChatID, fmt.Sprintf("Dispatch failed: %v", outcome.Err))
		return
	}

	text := g.renderResults(ctx, p.Actions, outcome.Results)
	for _, chunk := range chunkMessage(text, maxMessageBytes) {
		g.send(p.ChatID, chunk)
	}
}

func (g *Gateway) send(chatID int64, text string) {
	if err := g.ch.SendText(chatID, text); err != nil {
		g.logger.Error("send chat message", "error", err, "chatId", chatID)
	}
}

// renderResults renders one compact block per action, except web_fetch
// results, which go through a dedicated planner summarization path.
func (g *Gateway) renderResults(ctx context.Context, actions []plan.Action, results []dispatch.Result) string {
	var b strings.Builder
	for i, a := range actions {
		if i >= len(results) {
			break
		}
		r := results[i]
		if wf, ok := a.(plan.WebFetchAction); ok && r.Status == "ok" {
			b.WriteString(g.summarizeWebFetch(ctx, wf, r))
			b.WriteString("\n\n")
			continue
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", a.Type(), r.Status, compactResultText(r))
	}
	return strings.TrimRight(b.String(), "\n")
}

func compactResultText(r dispatch.Result) string {
	if r.ErrorText != "" {
		return r.ErrorText
	}
	if r.Cause != "" {
		return r.Cause
	}
	if r.ResultText != "" {
		return r.ResultText
	}
	if r.Stdout != "" {
		return r.Stdout
	}
	return "(no output)"
}

func (g *Gateway) summarizeWebFetch(ctx context.Context, a plan.WebFetchAction, r dispatch.Result) string {
	if g.planner == nil || r.ResultText == "" {
		return fmt.Sprintf("[web_fetch] %s: %s", r.Status, compactResultText(r))
	}
	summary, err := g.planner.Complete(ctx,
		"Summarize the fetched page content for a chat reply in three sentences or fewer.",
		r.ResultText, false)
	if err != nil {
		g.logger.Warn("web_fetch summarization failed", "error", err, "url", a.URL)
		return fmt.Sprintf("[web_fetch] %s (summarization failed)\n%s", a.URL, truncate(r.ResultText, 500))
	}
	return fmt.Sprintf("[web_fetch] %s\n%s", a.URL, strings.TrimSpace(summary))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// chunkMessage splits text into chunks no larger than maxBytes, breaking
// only at line boundaries so a single long line is the only way a chunk
// exceeds the limit.
func chunkMessage(text string, maxBytes int) []string {
	if len(text) <= maxBytes {
		return []string{text}
	}
	lines := strings.Split(text, "\n")
	var chunks []string
	var cur strings.Builder
	for _, line := range lines {
		if cur.Len() > 0 && cur.Len()+len(line)+1 > maxBytes {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n")
		}
		cur.WriteString(line)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}
