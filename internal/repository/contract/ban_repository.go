package contract

import (
	"context"
	"time"

	"ai-genbot-gateway/internal/entity"
)

type BanRepository interface {
	Ban(ctx context.Context, userID int64, at time.Time) error
	Unban(ctx context.Context, userID int64) error
	IsBanned(ctx context.Context, userID int64) (bool, error)
	List(ctx context.Context) ([]*entity.BannedUser, error)
}
