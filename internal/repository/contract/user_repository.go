package contract

import (
	"context"
	"time"

	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/internal/repository/specification"
)

type UserRepository interface {
	// Touch creates the user on first sight and bumps last_seen and the
	// message counters in a single upsert.
	Touch(ctx context.Context, id int64, class entity.ModelClass, at time.Time) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.User, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.User, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
	ListIDs(ctx context.Context, specs ...specification.Specification) ([]int64, error)
	SumMessages(ctx context.Context) (int64, error)
	SetBanned(ctx context.Context, id int64, banned bool) error
}
