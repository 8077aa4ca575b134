// Package scheduler periodically fires due scheduled tasks (cron,
// fixed-interval, one-shot) by running a planner turn as if the task's
// stored prompt had arrived in its owning chat, flagged as scheduled.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/nanoclaw/ops/internal/memory"
	"github.com/nanoclaw/ops/internal/plan"
	"github.com/nanoclaw/ops/internal/planner"
	"github.com/nanoclaw/ops/internal/proposal"
	"github.com/nanoclaw/ops/internal/schedule"
)

const scheduledSystemPromptSuffix = "\n\n(This turn was triggered by a scheduled task, not a live chat message.)"

// Scheduler ticks at a fixed interval and replays every due task into the
// planner, exactly as the message loop would a live message.
type Scheduler struct {
	tasks     *schedule.Store
	proposals *proposal.Store
	planner   *planner.Client
	memory    *memory.Workspace
	loc       *time.Location
	interval  time.Duration
	logger    *slog.Logger
}

func New(tasks *schedule.Store, proposals *proposal.Store, plannerClient *planner.Client, mem *memory.Workspace, loc *time.Location, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{tasks: tasks, proposals: proposals, planner: plannerClient, memory: mem, loc: loc, interval: interval, logger: logger}
}

// Run blocks, ticking every interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now().UTC()
	due, err := s.tasks.DueTasks(now)
	if err != nil {
		s.logger.Error("query due scheduled tasks", "error", err)
		return
	}
	for _, t := range due {
		s.fire(ctx, t)
	}
}

// fire runs one task's prompt through the planner and, regardless of
// outcome, reschedules it: at-least-once semantics mean a failing turn is
// simply retried on its next natural fire rather than resubmitted early.
func (s *Scheduler) fire(ctx context.Context, t schedule.Task) {
	if err := s.runTurn(ctx, t); err != nil {
		s.logger.Error("scheduled task turn failed, will retry next tick", "error", err, "taskId", t.ID)
	}
	if err := s.tasks.Reschedule(t, s.loc); err != nil {
		s.logger.Error("reschedule task", "error", err, "taskId", t.ID)
	}
}

func (s *Scheduler) runTurn(ctx context.Context, t schedule.Task) error {
	prompt := t.Prompt

	fullPrompt := prompt
	if s.memory != nil {
		if header := s.memory.BuildHeader(prompt); header != "" {
			fullPrompt = header + "\n\n" + prompt
		}
	}

	reply, err := s.planner.Complete(ctx, systemPromptWithSuffix(), fullPrompt, false)
	if err != nil {
		return err
	}

	parsed, _, parseErrs := s.planner.ParseWithRepair(ctx, reply)
	if len(parseErrs) > 0 {
		s.logger.Warn("scheduled task plan parse/repair failed", "errors", parseErrs, "taskId", t.ID)
	}
	plan.InjectWebFetch(parsed, prompt)

	if dispatchable := parsed.Dispatchable(); len(dispatchable) > 0 {
		if _, err := s.proposals.EnqueueProposal(proposal.Proposal{
			GroupFolder: t.GroupFolder,
			ChatID:      t.ChatID,
			RequestText: prompt,
			Actions:     dispatchable,
		}); err != nil {
			return err
		}
	}

	return nil
}

func systemPromptWithSuffix() string {
	return "You are an operations assistant. Reply in prose, then, if any action " +
		"is warranted, append a single fenced ```json``` block containing a plan object " +
		"{\"actions\": [...]}. Only propose actions the user's message actually calls for." +
		scheduledSystemPromptSuffix
}
