package contract

import (
	"context"

	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/internal/repository/specification"
)

type GenerationRepository interface {
	// Record inserts the row unless one exists for the same job id.
	// It reports whether a row was inserted.
	Record(ctx context.Context, record *entity.GenerationRecord) (bool, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.GenerationRecord, error)
	CountByKind(ctx context.Context, specs ...specification.Specification) (map[entity.GenerationKind]int64, error)
}
