package unitofwork

import (
	"context"

	"ai-genbot-gateway/internal/repository/contract"
)

// RepositoryFactory hands out units of work bound to one operation.
type RepositoryFactory interface {
	NewUnitOfWork(ctx context.Context) UnitOfWork
	// Transaction runs fn in one transaction, committing when fn returns nil.
	Transaction(ctx context.Context, fn func(uow UnitOfWork) error) error
}

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	UserRepository() contract.UserRepository
	BanRepository() contract.BanRepository
	ConversationRepository() contract.ConversationRepository
	GenerationRepository() contract.GenerationRepository
	UsageRepository() contract.UsageRepository
	UserDataRepository() contract.UserDataRepository
}
