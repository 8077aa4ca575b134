// Package channel is the chat transport boundary: inbound messages and
// approval button callbacks arrive as buffered, drainable queues; outbound
// replies and approval prompts go out through Send*.
package channel

import "context"

// Message is one inbound chat message.
type Message struct {
	ChatID    int64
	UserID    int64
	Text      string
	Timestamp int64 // unix millis
}

// CallbackAction is the parsed form of an inline-button press:
// approve:<id>, deny:<id>, or reason:<id>.
type CallbackAction struct {
	ChatID     int64
	UserID     int64
	ProposalID string
	Action     string // "approve", "deny", "reason"
}

// Channel is a messaging platform integration. The message loop drains
// buffered messages per chat on its own schedule rather than being pushed
// to directly, so the two cooperative loops never share a lock.
type Channel interface {
	Name() string

	// Start begins listening for messages and callbacks. It blocks until ctx
	// is cancelled or a fatal error occurs.
	Start(ctx context.Context) error

	// Drain returns the buffered messages for chatID, oldest first, without
	// removing them. Callers must call Ack once those messages (and nothing
	// after them) have been fully processed; an unacked message is returned
	// again by the next Drain.
	Drain(chatID int64) []Message

	// Ack removes chatID's buffered messages with Timestamp <= upToTimestamp.
	// Only messages that were successfully processed should be acked.
	Ack(chatID int64, upToTimestamp int64)

	// Callbacks returns the channel of inline-button presses.
	Callbacks() <-chan CallbackAction

	SendText(chatID int64, text string) error
	SendWithApprovalButtons(chatID int64, text, proposalID string) error
}
