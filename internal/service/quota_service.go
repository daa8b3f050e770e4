package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ai-genbot-gateway/internal/config"
	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/internal/pkg/logger"
	"ai-genbot-gateway/internal/repository/specification"
	"ai-genbot-gateway/internal/repository/unitofwork"
)

const QuotaWindow = 24 * time.Hour

type RejectReason string

const (
	RejectBanned            RejectReason = "banned"
	RejectDailyLimitReached RejectReason = "daily_limit_reached"
	RejectUnknown           RejectReason = "unknown"
)

// Decision is the gate's answer for one request.
type Decision struct {
	Allow  bool
	Reason RejectReason
	Kind   entity.GenerationKind
	Limit  int
	Used   int64
	// Pending counts admitted jobs of the kind that have not finished yet.
	Pending int
	// RetryIn is how long until the oldest counted generation leaves the window.
	RetryIn time.Duration
}

// Message is the chat text for a rejection.
func (d Decision) Message() string {
	switch d.Reason {
	case RejectBanned:
		return "You have been banned from using this bot."
	case RejectDailyLimitReached:
		if d.Limit == 0 {
			return fmt.Sprintf("%s is disabled right now.", d.Kind)
		}
		msg := fmt.Sprintf("You've reached your daily limit of %d for %s.", d.Limit, d.Kind)
		if d.RetryIn > 0 {
			msg += fmt.Sprintf(" Try again in %s.", humanizeWait(d.RetryIn))
		}
		return msg
	case RejectUnknown:
		return "I couldn't check your usage right now. Please try again in a moment."
	default:
		return ""
	}
}

type IQuotaGate interface {
	// Admit reserves a slot of the daily limit for an allowed request. The
	// slot is held until Release, so jobs still in flight count as used.
	Admit(ctx context.Context, userID int64, kind entity.GenerationKind) Decision
	// Release returns the slot taken by Admit once the job is terminal.
	Release(userID int64, kind entity.GenerationKind)
	// Record writes the generation record for a delivered job. It reports
	// false when the job was already recorded.
	Record(ctx context.Context, job *entity.Job) (bool, error)
	IsAdmin(userID int64) bool
}

type quotaKey struct {
	userID int64
	kind   entity.GenerationKind
}

type quotaGate struct {
	uowFactory unitofwork.RepositoryFactory
	quotas     config.Quotas
	admins     map[int64]struct{}
	logger     logger.ILogger
	now        func() time.Time

	locks   sync.Map // quotaKey -> *sync.Mutex
	mu      sync.Mutex
	pending map[quotaKey]int
}

func NewQuotaGate(uowFactory unitofwork.RepositoryFactory, quotas config.Quotas, adminIDs []int64, log logger.ILogger) IQuotaGate {
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return &quotaGate{
		uowFactory: uowFactory,
		quotas:     quotas,
		admins:     admins,
		logger:     log,
		now:        time.Now,
		pending:    make(map[quotaKey]int),
	}
}

func (g *quotaGate) IsAdmin(userID int64) bool {
	_, ok := g.admins[userID]
	return ok
}

func (g *quotaGate) Admit(ctx context.Context, userID int64, kind entity.GenerationKind) Decision {
	d := Decision{Kind: kind}
	if g.IsAdmin(userID) {
		d.Allow = true
		return d
	}

	uow := g.uowFactory.NewUnitOfWork(ctx)
	banned, err := uow.BanRepository().IsBanned(ctx, userID)
	if err != nil {
		return g.unknown(d, userID, err)
	}
	if banned {
		d.Reason = RejectBanned
		return d
	}

	limit, capped := g.quotas.Limit(kind)
	if !capped {
		d.Allow = true
		return d
	}
	d.Limit = limit
	if limit == 0 {
		d.Reason = RejectDailyLimitReached
		return d
	}

	// Count and reserve under one lock so concurrent submits of the same
	// kind cannot all see the last free slot.
	key := quotaKey{userID: userID, kind: kind}
	lock, _ := g.locks.LoadOrStore(key, &sync.Mutex{})
	lock.(*sync.Mutex).Lock()
	defer lock.(*sync.Mutex).Unlock()

	since := g.now().UTC().Add(-QuotaWindow)
	used, err := uow.GenerationRepository().Count(ctx,
		specification.ByUserID{UserID: userID},
		specification.ByKind{Kind: kind},
		specification.CreatedSince{Since: since},
	)
	if err != nil {
		return g.unknown(d, userID, err)
	}
	d.Used = used
	g.mu.Lock()
	d.Pending = g.pending[key]
	if used+int64(d.Pending) < int64(limit) {
		g.pending[key]++
		g.mu.Unlock()
		d.Allow = true
		return d
	}
	g.mu.Unlock()

	d.Reason = RejectDailyLimitReached
	oldest, err := uow.GenerationRepository().FindOne(ctx,
		specification.ByUserID{UserID: userID},
		specification.ByKind{Kind: kind},
		specification.CreatedSince{Since: since},
		specification.OrderBy{Field: "created_at", Desc: false},
	)
	if err == nil && oldest != nil {
		d.RetryIn = oldest.CreatedAt.Add(QuotaWindow).Sub(g.now())
	}
	g.logger.Info("QUOTA", "Daily limit reached", map[string]interface{}{
		"userId":  userID,
		"kind":    string(kind),
		"limit":   limit,
		"used":    used,
		"pending": d.Pending,
	})
	return d
}

func (g *quotaGate) Release(userID int64, kind entity.GenerationKind) {
	key := quotaKey{userID: userID, kind: kind}
	g.mu.Lock()
	defer g.mu.Unlock()
	switch n := g.pending[key]; {
	case n > 1:
		g.pending[key] = n - 1
	case n == 1:
		delete(g.pending, key)
	}
}

func (g *quotaGate) unknown(d Decision, userID int64, err error) Decision {
	g.logger.Error("QUOTA", "Quota check failed", map[string]interface{}{
		"userId": userID,
		"kind":   string(d.Kind),
		"error":  err.Error(),
	})
	d.Reason = RejectUnknown
	return d
}

func (g *quotaGate) Record(ctx context.Context, job *entity.Job) (bool, error) {
	rec := &entity.GenerationRecord{
		UserID:       job.UserID,
		Kind:         job.Kind,
		Provider:     job.Provider,
		JobID:        job.ID,
		PromptDigest: entity.PromptDigest(job.Args.Get(entity.ArgPrompt)),
		CreatedAt:    g.now(),
	}
	inserted, err := g.uowFactory.NewUnitOfWork(ctx).GenerationRepository().Record(ctx, rec)
	if err != nil {
		return false, fmt.Errorf("record generation: %w", err)
	}
	return inserted, nil
}

func humanizeWait(d time.Duration) string {
	switch {
	case d >= time.Hour:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	case d >= time.Minute:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return "a minute"
	}
}
