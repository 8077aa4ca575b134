package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// stallTimeout guards against tgbotapi's long-poll silently going dead: it
// blocks rather than closing the channel, so we detect the stall ourselves.
const stallTimeout = 150 * time.Second

// Telegram implements Channel over the Telegram Bot API's long-poll updates.
type Telegram struct {
	token      string
	allowedIDs map[int64]struct{}
	logger     *slog.Logger

	bot *tgbotapi.BotAPI

	mu       sync.Mutex
	buffered map[int64][]Message

	callbacks chan CallbackAction
}

func NewTelegram(token string, allowedIDs []int64, logger *slog.Logger) *Telegram {
	allowed := make(map[int64]struct{}, len(allowedIDs))
	for _, id := range allowedIDs {
		allowed[id] = struct{}{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Telegram{
		token:      token,
		allowedIDs: allowed,
		logger:     logger,
		buffered:   make(map[int64][]Message),
		callbacks:  make(chan CallbackAction, 64),
	}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Callbacks() <-chan CallbackAction { return t.callbacks }

func (t *Telegram) Drain(chatID int64) []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	msgs := t.buffered[chatID]
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

func (t *Telegram) Ack(chatID int64, upToTimestamp int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var kept []Message
	for _, m := range t.buffered[chatID] {
		if m.Timestamp > upToTimestamp {
			kept = append(kept, m)
		}
	}
	if len(kept) == 0 {
		delete(t.buffered, chatID)
		return
	}
	t.buffered[chatID] = kept
}

func (t *Telegram) Start(ctx context.Context) error {
	var err error
	t.bot, err = tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram init: %w", err)
	}
	t.logger.Info("telegram channel started", "user", t.bot.Self.UserName)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return nil
		}

		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates := t.bot.GetUpdatesChan(u)

		pollErr := t.pollUpdates(ctx, updates)
		t.bot.StopReceivingUpdates()

		if pollErr == nil {
			return nil
		}

		t.logger.Warn("telegram poll disconnected, reconnecting", "error", pollErr, "backoff", backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (t *Telegram) pollUpdates(ctx context.Context, updates tgbotapi.UpdatesChannel) error {
	timer := time.NewTimer(stallTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return fmt.Errorf("update channel closed")
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(stallTimeout)

			if update.Message != nil {
				t.handleMessage(update.Message)
				continue
			}
			if update.CallbackQuery != nil {
				t.handleCallbackQuery(update.CallbackQuery)
				continue
			}
		case <-timer.C:
			return fmt.Errorf("no updates received for %v (possible disconnect)", stallTimeout)
		}
	}
}

func (t *Telegram) handleMessage(msg *tgbotapi.Message) {
	if _, ok := t.allowedIDs[msg.From.ID]; !ok {
		t.logger.Warn("telegram access denied", "user_id", msg.From.ID, "user_name", msg.From.UserName)
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	t.mu.Lock()
	t.buffered[msg.Chat.ID] = append(t.buffered[msg.Chat.ID], Message{
		ChatID:    msg.Chat.ID,
		UserID:    msg.From.ID,
		Text:      text,
		Timestamp: int64(msg.Date) * 1000,
	})
	t.mu.Unlock()
}

func (t *Telegram) handleCallbackQuery(query *tgbotapi.CallbackQuery) {
	if _, ok := t.allowedIDs[query.From.ID]; !ok {
		t.logger.Warn("telegram callback access denied", "user_id", query.From.ID)
		return
	}

	proposalID, action, err := parseApprovalCallback(query.Data)
	if err != nil {
		return
	}

	ack := tgbotapi.NewCallbackWithAlert(query.ID, fmt.Sprintf("Processing %s...", action))
	if _, err := t.bot.Request(ack); err != nil {
		t.logger.Warn("failed to ack telegram callback", "error", err)
	}

	select {
	case t.callbacks <- CallbackAction{ChatID: query.Message.Chat.ID, UserID: query.From.ID, ProposalID: proposalID, Action: action}:
	default:
		t.logger.Warn("telegram callback queue full, dropping", "proposalId", proposalID)
	}
}

// parseApprovalCallback parses "approve:<id>", "deny:<id>", or "reason:<id>".
func parseApprovalCallback(data string) (proposalID, action string, err error) {
	parts := strings.SplitN(data, ":", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("malformed callback data %q", data)
	}
	action, proposalID = parts[0], parts[1]
	if proposalID == "" {
		return "", "", fmt.Errorf("missing proposal id in callback data %q", data)
	}
	switch action {
	case "approve", "deny", "reason":
	default:
		return "", "", fmt.Errorf("unrecognized callback action %q", action)
	}
	return proposalID, action, nil
}

func (t *Telegram) SendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := t.bot.Send(msg)
	return err
}

func (t *Telegram) SendWithApprovalButtons(chatID int64, text, proposalID string) error {
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Approve", "approve:"+proposalID),
			tgbotapi.NewInlineKeyboardButtonData("Deny", "deny:"+proposalID),
		),
	)
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = keyboard
	_, err := t.bot.Send(msg)
	return err
}
