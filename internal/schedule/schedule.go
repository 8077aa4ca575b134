// Package schedule is the durable record of scheduled tasks: cron,
// fixed-interval, and one-shot prompts the scheduler replays into the
// planner as if they arrived in the owning chat.
package schedule

import "time"

// Type is the closed set of schedule kinds.
type Type string

const (
	TypeCron     Type = "cron"
	TypeInterval Type = "interval"
	TypeOnce     Type = "once"
)

// Status is a task's lifecycle position.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Task is one scheduled prompt.
type Task struct {
	ID            string
	ChatID        int64
	GroupFolder   string
	Prompt        string
	ScheduleType  Type
	ScheduleValue string // cron expression, interval milliseconds, or ISO-8601 instant
	Status        Status
	NextRun       time.Time
	CreatedAt     time.Time
}
