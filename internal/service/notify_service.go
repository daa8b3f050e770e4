package service

import (
	"context"
	"fmt"
	"strings"

	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/internal/pkg/logger"
	"ai-genbot-gateway/pkg/progress"
	"ai-genbot-gateway/pkg/telegram"

	"go.uber.org/zap"
)

type notifyOptions struct {
	inPlaceOf int64
	replyTo   int64
	userID    int64
}

type NotifyOption func(*notifyOptions)

// InPlaceOf rewrites the given message (usually a progress placeholder)
// instead of sending a new one.
func InPlaceOf(messageID int64) NotifyOption {
	return func(o *notifyOptions) { o.inPlaceOf = messageID }
}

func ReplyTo(messageID int64) NotifyOption {
	return func(o *notifyOptions) { o.replyTo = messageID }
}

// ForUser names the affected user in the admin copy of internal errors.
func ForUser(userID int64) NotifyOption {
	return func(o *notifyOptions) { o.userID = userID }
}

// INotifier is the single path by which errors reach a chat.
type INotifier interface {
	NotifyError(ctx context.Context, chatID int64, kind entity.ErrorKind, detail string, opts ...NotifyOption)
}

type notifier struct {
	messenger Messenger
	adminID   int64
	logger    logger.ILogger
}

func NewNotifier(messenger Messenger, adminIDs []int64, log logger.ILogger) INotifier {
	n := &notifier{messenger: messenger, logger: log}
	if len(adminIDs) > 0 {
		n.adminID = adminIDs[0]
	}
	return n
}

// ErrorText renders the user-facing message for an error kind.
func ErrorText(kind entity.ErrorKind, detail string) string {
	detail = strings.TrimSpace(detail)
	switch kind {
	case entity.ErrorInput:
		if detail == "" {
			return "⚠️ I couldn't use that input. Check the command and try again."
		}
		return "⚠️ " + detail
	case entity.ErrorQuota:
		if detail == "" {
			return "⛔ You've reached a usage limit. Please try again later."
		}
		return "⛔ " + detail
	case entity.ErrorTransient:
		if detail == "" {
			return "⏳ The service is busy right now. Please try again in a moment."
		}
		return "⏳ " + detail
	case entity.ErrorPermanent:
		if detail == "" {
			return "❌ The request was rejected by the provider."
		}
		return "❌ The request was rejected: " + detail
	default:
		return "❌ Sorry, something went wrong on our side. The admins have been notified."
	}
}

func (n *notifier) NotifyError(ctx context.Context, chatID int64, kind entity.ErrorKind, detail string, opts ...NotifyOption) {
	o := notifyOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	text := progress.Truncate(ErrorText(kind, detail), progress.MaxFailureText)

	if kind == entity.ErrorInternal {
		n.logger.Error("NOTIFY", "Internal error reported to user", map[string]interface{}{
			"chatId": chatID,
			"userId": o.userID,
			"detail": detail,
			"stack":  zap.Stack("stack").String,
		})
		n.forwardToAdmin(ctx, chatID, o.userID, detail)
	}

	if o.inPlaceOf != 0 {
		if err := n.messenger.EditMessageText(ctx, chatID, o.inPlaceOf, text); err == nil {
			return
		}
	}
	if _, err := n.messenger.SendMessage(ctx, chatID, text, telegram.SendOptions{ReplyTo: o.replyTo}); err != nil {
		n.logger.Warn("NOTIFY", "Failed to deliver error message", map[string]interface{}{
			"chatId": chatID,
			"kind":   string(kind),
			"error":  err.Error(),
		})
	}
}

func (n *notifier) forwardToAdmin(ctx context.Context, chatID, userID int64, detail string) {
	if n.adminID == 0 || n.adminID == chatID {
		return
	}
	if detail == "" {
		detail = "(no detail)"
	}
	text := progress.Truncate(fmt.Sprintf("🚨 Internal error\nuser: %d\nchat: %d\n%s", userID, chatID, detail), 4000)
	if _, err := n.messenger.SendMessage(ctx, n.adminID, text, telegram.SendOptions{}); err != nil {
		n.logger.Warn("NOTIFY", "Failed to forward error to admin", map[string]interface{}{"error": err.Error()})
	}
}
