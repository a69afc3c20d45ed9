package channels

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/blufio/blufio/internal/logging"
	"github.com/blufio/blufio/internal/session"
)

const telegramChannelName = "telegram"

// TelegramListener receives Telegram updates and dispatches authorized
// messages onto the session Hub, one session per chat.
type TelegramListener struct {
	token         string
	allowedUsers  map[string]struct{}
	sendMessageFn func(context.Context, *bot.SendMessageParams) (*models.Message, error)
}

// NewTelegram creates a Telegram listener gated to the given allow-list of
// Telegram user IDs. An empty allow-list rejects every inbound message,
// matching the single-tenant trust model: only paired users can drive the
// agent from this channel.
func NewTelegram(token string, allowedUserIDs []string) *TelegramListener {
	allowed := make(map[string]struct{}, len(allowedUserIDs))
	for _, id := range allowedUserIDs {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			allowed[trimmed] = struct{}{}
		}
	}
	return &TelegramListener{token: token, allowedUsers: allowed}
}

// Listen connects to Telegram and dispatches every authorized inbound
// message to hub until ctx is canceled.
func (t *TelegramListener) Listen(ctx context.Context, hub *session.Hub) error {
	if hub == nil {
		return errors.New("session hub is required")
	}
	if strings.TrimSpace(t.token) == "" {
		return errors.New("telegram token is required")
	}
	if len(t.allowedUsers) == 0 {
		logging.Logger().Warn("no authorized telegram users configured; all inbound messages will be rejected")
	}

	defaultHandler := func(updateCtx context.Context, _ *bot.Bot, update *models.Update) {
		if update == nil || update.Message == nil || update.Message.From == nil {
			return
		}
		t.handleInboundMessage(updateCtx, hub, update.Message)
	}

	b, err := bot.New(t.token, bot.WithDefaultHandler(defaultHandler))
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}

	me, err := b.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("fetch telegram bot profile: %w", err)
	}
	logging.Logger().Info("connected to telegram bot", "username", me.Username)
	t.sendMessageFn = b.SendMessage

	go b.Start(ctx)
	<-ctx.Done()
	return nil
}

func (t *TelegramListener) handleInboundMessage(ctx context.Context, hub *session.Hub, msg *models.Message) {
	userID := strconv.FormatInt(msg.From.ID, 10)
	if !t.isAllowedUser(userID) {
		logging.Logger().Warn("rejected telegram message from unauthorized user", "user_id", userID)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	sessionID := fmt.Sprintf("%s:%d", telegramChannelName, msg.Chat.ID)
	if err := hub.Dispatch(ctx, session.Message{SessionID: sessionID, Text: text}); err != nil {
		logging.Logger().Warn("telegram dispatch failed", "user_id", userID, "err", err)
	}
}

func (t *TelegramListener) isAllowedUser(userID string) bool {
	_, ok := t.allowedUsers[userID]
	return ok
}

// TelegramWriter delivers assistant replies back to their originating chat.
// Session IDs are "telegram:<chatID>", matching how handleInboundMessage
// constructs them.
type TelegramWriter struct {
	listener *TelegramListener
}

// NewTelegramWriter builds a ResponseWriter bound to listener's live bot
// connection. It must only be used after Listen has connected.
func NewTelegramWriter(listener *TelegramListener) *TelegramWriter {
	return &TelegramWriter{listener: listener}
}

// WriteMessage implements session.ResponseWriter.
func (w *TelegramWriter) WriteMessage(ctx context.Context, sessionID, text string) error {
	if w.listener == nil || w.listener.sendMessageFn == nil {
		return errors.New("telegram listener is not connected yet")
	}
	chatID, err := chatIDFromSessionID(sessionID)
	if err != nil {
		return err
	}
	_, err = w.listener.sendMessageFn(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text})
	return err
}

func chatIDFromSessionID(sessionID string) (int64, error) {
	parts := strings.SplitN(sessionID, ":", 2)
	if len(parts) != 2 || parts[0] != telegramChannelName {
		return 0, fmt.Errorf("session id %q is not a telegram session", sessionID)
	}
	chatID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse telegram chat id from session %q: %w", sessionID, err)
	}
	return chatID, nil
}
