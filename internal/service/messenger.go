package service

import (
	"context"

	"ai-genbot-gateway/pkg/telegram"
)

// Messenger is the part of the chat client the services use.
// *telegram.Client implements it.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string, opts telegram.SendOptions) (*telegram.Message, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text string) error
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	SendChatAction(ctx context.Context, chatID int64, action string) error
	AnswerCallbackQuery(ctx context.Context, queryID, text string) error
	SendPhoto(ctx context.Context, chatID int64, file telegram.InputFile, caption string) (*telegram.Message, error)
	SendAudio(ctx context.Context, chatID int64, file telegram.InputFile, caption string) (*telegram.Message, error)
	SendVoice(ctx context.Context, chatID int64, file telegram.InputFile, caption string) (*telegram.Message, error)
	SendVideo(ctx context.Context, chatID int64, file telegram.InputFile, caption string) (*telegram.Message, error)
	SendDocument(ctx context.Context, chatID int64, file telegram.InputFile, caption string) (*telegram.Message, error)
	DownloadFile(ctx context.Context, fileID, dstPath string, maxBytes int64) (int64, error)
}

var _ Messenger = (*telegram.Client)(nil)
