package otel

import "go.opentelemetry.io/otel/metric"

// Metrics holds the instrument set shared by the core and the runner.
type Metrics struct {
	DispatchesReceived  metric.Int64Counter
	DispatchDuration    metric.Float64Histogram
	ActionsExecuted     metric.Int64Counter // labeled by action type
	ActionErrors        metric.Int64Counter
	ActionDuration      metric.Float64Histogram
	ProposalsEnqueued   metric.Int64Counter
	ProposalDecisions   metric.Int64Counter // labeled by decision
	BackgroundRunsTotal metric.Int64Counter
	ActiveBackgroundRuns metric.Int64UpDownCounter
	SchedulerTicks      metric.Int64Counter
	MessageLoopBatches  metric.Int64Counter
}

// NewMetrics creates every instrument from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.DispatchesReceived, err = meter.Int64Counter("nanoclaw.dispatch.received",
		metric.WithDescription("Signed dispatch envelopes received by the runner")); err != nil {
		return nil, err
	}
	if m.DispatchDuration, err = meter.Float64Histogram("nanoclaw.dispatch.duration",
		metric.WithDescription("Wall-clock time to execute one dispatch batch"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.ActionsExecuted, err = meter.Int64Counter("nanoclaw.action.executed",
		metric.WithDescription("Actions executed by the runner, labeled by type")); err != nil {
		return nil, err
	}
	if m.ActionErrors, err = meter.Int64Counter("nanoclaw.action.errors",
		metric.WithDescription("Actions that returned a non-zero exit code or blocked result")); err != nil {
		return nil, err
	}
	if m.ActionDuration, err = meter.Float64Histogram("nanoclaw.action.duration",
		metric.WithDescription("Per-action execution duration"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.ProposalsEnqueued, err = meter.Int64Counter("nanoclaw.proposal.enqueued",
		metric.WithDescription("Proposals appended to the proposal store")); err != nil {
		return nil, err
	}
	if m.ProposalDecisions, err = meter.Int64Counter("nanoclaw.proposal.decisions",
		metric.WithDescription("Proposal approve/deny decisions, labeled by decision")); err != nil {
		return nil, err
	}
	if m.BackgroundRunsTotal, err = meter.Int64Counter("nanoclaw.run.total",
		metric.WithDescription("Background runs created, labeled by terminal status")); err != nil {
		return nil, err
	}
	if m.ActiveBackgroundRuns, err = meter.Int64UpDownCounter("nanoclaw.run.active",
		metric.WithDescription("Background runs currently queued or running")); err != nil {
		return nil, err
	}
	if m.SchedulerTicks, err = meter.Int64Counter("nanoclaw.scheduler.ticks",
		metric.WithDescription("Scheduler tick count")); err != nil {
		return nil, err
	}
	if m.MessageLoopBatches, err = meter.Int64Counter("nanoclaw.msgloop.batches",
		metric.WithDescription("Message loop iterations that processed at least one message")); err != nil {
		return nil, err
	}

	return m, nil
}
