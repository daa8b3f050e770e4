package contract

import (
	"context"

	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/internal/repository/specification"
)

type ConversationRepository interface {
	Append(ctx context.Context, conversation *entity.Conversation) error
	// LastN returns the newest n rows in chronological order.
	LastN(ctx context.Context, userID int64, n int) ([]*entity.Conversation, error)
	DeleteByUser(ctx context.Context, userID int64) error
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
