package contract

import (
	"context"
	"encoding/json"

	"ai-genbot-gateway/internal/entity"
)

type UserDataRepository interface {
	Put(ctx context.Context, userID int64, dataType entity.UserDataType, value json.RawMessage) error
	// Get returns nil when nothing is stored.
	Get(ctx context.Context, userID int64, dataType entity.UserDataType) (json.RawMessage, error)
}
