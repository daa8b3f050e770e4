package service

import (
	"context"
	"fmt"

	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/internal/repository/specification"
	"ai-genbot-gateway/internal/repository/unitofwork"
	"ai-genbot-gateway/pkg/jobqueue"
	"ai-genbot-gateway/pkg/metrics"
)

// usageSink stores metric flushes; the ledger row and the counter deltas
// commit in one transaction.
type usageSink struct {
	uowFactory unitofwork.RepositoryFactory
}

func NewUsageSink(uowFactory unitofwork.RepositoryFactory) metrics.Sink {
	return &usageSink{uowFactory: uowFactory}
}

func (s *usageSink) Apply(ctx context.Context, flush *entity.MetricsFlush) (bool, error) {
	var applied bool
	err := s.uowFactory.Transaction(ctx, func(uow unitofwork.UnitOfWork) error {
		var err error
		applied, err = uow.UsageRepository().ApplyFlush(ctx, flush)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("apply flush %s: %w", flush.ID, err)
	}
	return applied, nil
}

func (s *usageSink) Totals(ctx context.Context, windows int) (*entity.UsageTotals, error) {
	return s.uowFactory.NewUnitOfWork(ctx).UsageRepository().Totals(ctx, windows)
}

// deliveryGuard reports a durable job as delivered once its generation
// record exists.
type deliveryGuard struct {
	uowFactory unitofwork.RepositoryFactory
}

func NewDeliveryGuard(uowFactory unitofwork.RepositoryFactory) jobqueue.Guard {
	return &deliveryGuard{uowFactory: uowFactory}
}

func (g *deliveryGuard) Delivered(ctx context.Context, jobID string) (bool, error) {
	rec, err := g.uowFactory.NewUnitOfWork(ctx).GenerationRepository().FindOne(ctx, specification.ByJobID{JobID: jobID})
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}
