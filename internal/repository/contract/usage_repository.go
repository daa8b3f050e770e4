package contract

import (
	"context"

	"ai-genbot-gateway/internal/entity"
)

type UsageRepository interface {
	// ApplyFlush adds the deltas unless the flush id was applied before.
	// Call it inside a unit of work so the ledger row and the counters
	// commit together.
	ApplyFlush(ctx context.Context, flush *entity.MetricsFlush) (bool, error)
	Totals(ctx context.Context, windows int) (*entity.UsageTotals, error)
}
