// Package msgloop implements the message loop: the cooperative,
// fixed-interval loop that turns new inbound chat messages into planner
// turns, proposals, and chat replies. It also services inline-button
// approval callbacks, since both arrive from the same chat transport.
package msgloop

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/nanoclaw/ops/internal/approval"
	"github.com/nanoclaw/ops/internal/channel"
	"github.com/nanoclaw/ops/internal/config"
	"github.com/nanoclaw/ops/internal/corestate"
	"github.com/nanoclaw/ops/internal/memory"
	"github.com/nanoclaw/ops/internal/plan"
	"github.com/nanoclaw/ops/internal/planner"
	"github.com/nanoclaw/ops/internal/proposal"
)

const (
	systemPrompt = "You are an operations assistant. Reply in prose, then, if any action " +
		"is warranted, append a single fenced ```json``` block containing a plan object " +
		"{\"actions\": [...]}. Only propose actions the user's message actually calls for."

	fallbackReply = "could not generate a complete answer"
)

// Loop owns one tick of message-loop work.
type Loop struct {
	cfg       config.Config
	ch        channel.Channel
	state     *corestate.Store
	proposals *proposal.Store
	planner   *planner.Client
	memory    *memory.Workspace
	approvals *approval.Gateway
	logger    *slog.Logger

	triggerRe *regexp.Regexp
}

func New(cfg config.Config, ch channel.Channel, state *corestate.Store, proposals *proposal.Store, plannerClient *planner.Client, mem *memory.Workspace, approvals *approval.Gateway, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loop{cfg: cfg, ch: ch, state: state, proposals: proposals, planner: plannerClient, memory: mem, approvals: approvals, logger: logger}
	if cfg.TriggerPrefix != "" {
		l.triggerRe = regexp.MustCompile(`^@` + regexp.QuoteMeta(cfg.TriggerPrefix) + `\b`)
	}
	return l
}

// Run blocks, ticking every cfg.MessageLoopMS and servicing inline-button
// callbacks as they arrive, until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	interval := time.Duration(l.cfg.MessageLoopMS) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	callbacks := l.ch.Callbacks()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.tick(ctx)
		case cb, ok := <-callbacks:
			if !ok {
				callbacks = nil
				continue
			}
			l.approvals.HandleCallback(ctx, cb)
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	groups := l.state.RegisteredGroups()
	chatIDs := make([]int64, 0, len(groups))
	for id := range groups {
		chatIDs = append(chatIDs, id)
	}
	sort.Slice(chatIDs, func(i, j int) bool { return chatIDs[i] < chatIDs[j] })

	for _, chatID := range chatIDs {
		msgs := l.ch.Drain(chatID)
		if len(msgs) == 0 {
			continue
		}
		sort.Slice(msgs, func(i, j int) bool { return msgs[i].Timestamp < msgs[j].Timestamp })
		l.processChat(ctx, groups[chatID], msgs)
	}
}

// processChat implements the process path: gate on main-group/trigger
// membership, batch the accepted messages into one planner turn, and
// advance watermarks only after the reply is actually delivered.
func (l *Loop) processChat(ctx context.Context, group corestate.RegisteredGroup, msgs []channel.Message) {
	isMain := group.ChatID == l.cfg.Telegram.MainChatID

	var accepted []channel.Message
	var maxSeen int64
	for _, m := range msgs {
		if m.Timestamp > maxSeen {
			maxSeen = m.Timestamp
		}
		if l.approvals.HandleText(ctx, m.ChatID, m.UserID, m.Text) {
			continue
		}
		if !isMain && (l.triggerRe == nil || !l.triggerRe.MatchString(m.Text)) {
			continue
		}
		accepted = append(accepted, m)
	}
	if maxSeen > 0 {
		if err := l.state.AdvanceLastTimestamp(maxSeen); err != nil {
			l.logger.Error("advance last_timestamp", "error", err)
		}
	}
	if len(accepted) == 0 {
		l.ch.Ack(group.ChatID, maxSeen)
		return
	}

	prompt := buildPrompt(accepted)
	watermark := accepted[len(accepted)-1].Timestamp

	fullPrompt := prompt
	if l.memory != nil {
		if header := l.memory.BuildHeader(prompt); header != "" {
			fullPrompt = header + "\n\n" + prompt
		}
	}

	reply, err := l.planner.Complete(ctx, systemPrompt, fullPrompt, false)
	if err != nil {
		l.logger.Warn("planner turn failed, using fallback reply", "error", err, "chatId", group.ChatID)
		reply = fallbackReply
	}

	parsed, rawJSON, parseErrs := l.planner.ParseWithRepair(ctx, reply)
	if len(parseErrs) > 0 {
		l.logger.Warn("plan parse/repair failed", "errors", parseErrs, "chatId", group.ChatID)
	}
	plan.InjectWebFetch(parsed, prompt)

	text := plan.StripPlanBlock(reply, rawJSON)
	if text == "" {
		text = fallbackReply
	}

	var proposalID string
	if dispatchable := parsed.Dispatchable(); len(dispatchable) > 0 {
		p, err := l.proposals.EnqueueProposal(proposal.Proposal{
			GroupFolder: group.Folder,
			ChatID:      group.ChatID,
			RequestText: prompt,
			Actions:     dispatchable,
		})
		if err != nil {
			l.logger.Error("enqueue proposal", "error", err, "chatId", group.ChatID)
		} else {
			proposalID = p.ID
		}
	}

	var sendErr error
	if proposalID != "" {
		sendErr = l.ch.SendWithApprovalButtons(group.ChatID, text, proposalID)
	} else {
		sendErr = l.ch.SendText(group.ChatID, text)
	}
	if sendErr != nil {
		l.logger.Error("deliver reply, watermark not advanced, messages retained for retry", "error", sendErr, "chatId", group.ChatID)
		return
	}

	if err := l.state.AdvanceAgentTimestamp(group.ChatID, watermark); err != nil {
		l.logger.Error("advance agent watermark", "error", err, "chatId", group.ChatID)
	}
	l.ch.Ack(group.ChatID, maxSeen)
}

// buildPrompt concatenates trimmed, non-empty message texts in order,
// joined by a blank line.
func buildPrompt(msgs []channel.Message) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if t := strings.TrimSpace(m.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}
