package service_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ai-genbot-gateway/internal/config"
	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/internal/pkg/logger"
	"ai-genbot-gateway/internal/repository/repotest"
	"ai-genbot-gateway/internal/repository/unitofwork"
	"ai-genbot-gateway/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedGenerations(t *testing.T, uow unitofwork.RepositoryFactory, userID int64, kind entity.GenerationKind, ages ...time.Duration) {
	t.Helper()
	ctx := context.Background()
	for i, age := range ages {
		_, err := uow.NewUnitOfWork(ctx).GenerationRepository().Record(ctx, &entity.GenerationRecord{
			UserID:    userID,
			Kind:      kind,
			Provider:  "seed",
			JobID:     fmt.Sprintf("seed-%d-%s-%d", userID, kind, i),
			CreatedAt: time.Now().Add(-age),
		})
		require.NoError(t, err)
	}
}

func TestQuotaGateRejectsAtDailyLimit(t *testing.T) {
	ctx := context.Background()
	uow := unitofwork.NewRepositoryFactory(repotest.OpenSQLite(t))
	gate := service.NewQuotaGate(uow, config.Quotas{entity.KindVideoGen: 2}, nil, logger.NewNopLogger())

	assert.True(t, gate.Admit(ctx, 11, entity.KindVideoGen).Allow)

	seedGenerations(t, uow, 11, entity.KindVideoGen, 3*time.Hour, time.Hour)

	d := gate.Admit(ctx, 11, entity.KindVideoGen)
	require.False(t, d.Allow)
	assert.Equal(t, service.RejectDailyLimitReached, d.Reason)
	assert.EqualValues(t, 2, d.Used)
	assert.Contains(t, d.Message(), "daily limit of 2")
	// The oldest record leaves the window in about 21 hours.
	assert.InDelta(t, (21 * time.Hour).Seconds(), d.RetryIn.Seconds(), 60)
}

func TestQuotaGateCountsJobsStillInFlight(t *testing.T) {
	ctx := context.Background()
	uow := unitofwork.NewRepositoryFactory(repotest.OpenSQLite(t))
	gate := service.NewQuotaGate(uow, config.Quotas{entity.KindVideoGen: 2}, nil, logger.NewNopLogger())

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if gate.Admit(ctx, 14, entity.KindVideoGen).Allow {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 2, allowed.Load())

	d := gate.Admit(ctx, 14, entity.KindVideoGen)
	require.False(t, d.Allow)
	assert.EqualValues(t, 0, d.Used)
	assert.Equal(t, 2, d.Pending)

	// One job finished without producing a record: its slot frees up.
	gate.Release(14, entity.KindVideoGen)
	assert.True(t, gate.Admit(ctx, 14, entity.KindVideoGen).Allow)

	// Another one delivered: the record replaces its reservation.
	seedGenerations(t, uow, 14, entity.KindVideoGen, time.Minute)
	gate.Release(14, entity.KindVideoGen)
	d = gate.Admit(ctx, 14, entity.KindVideoGen)
	require.False(t, d.Allow)
	assert.EqualValues(t, 1, d.Used)
	assert.Equal(t, 1, d.Pending)

	// Extra releases never go below zero.
	gate.Release(14, entity.KindVideoGen)
	gate.Release(14, entity.KindVideoGen)
	gate.Release(14, entity.KindVideoGen)
	assert.True(t, gate.Admit(ctx, 14, entity.KindVideoGen).Allow)
}

func TestQuotaGateIgnoresOldAndOtherKinds(t *testing.T) {
	ctx := context.Background()
	uow := unitofwork.NewRepositoryFactory(repotest.OpenSQLite(t))
	gate := service.NewQuotaGate(uow, config.Quotas{entity.KindVideoGen: 2}, nil, logger.NewNopLogger())

	seedGenerations(t, uow, 12, entity.KindVideoGen, 30*time.Hour, 26*time.Hour)
	seedGenerations(t, uow, 12, entity.KindImageGen, time.Hour, time.Hour, time.Hour)
	seedGenerations(t, uow, 13, entity.KindVideoGen, time.Hour, time.Hour)

	d := gate.Admit(ctx, 12, entity.KindVideoGen)
	assert.True(t, d.Allow)
	assert.EqualValues(t, 0, d.Used)
}

func TestQuotaGateBannedUser(t *testing.T) {
	ctx := context.Background()
	uow := unitofwork.NewRepositoryFactory(repotest.OpenSQLite(t))
	require.NoError(t, uow.NewUnitOfWork(ctx).BanRepository().Ban(ctx, 21, time.Now()))
	gate := service.NewQuotaGate(uow, config.Quotas{}, nil, logger.NewNopLogger())

	d := gate.Admit(ctx, 21, entity.KindTextChat)
	assert.False(t, d.Allow)
	assert.Equal(t, service.RejectBanned, d.Reason)
	assert.Equal(t, "You have been banned from using this bot.", d.Message())
}

func TestQuotaGateAdminBypass(t *testing.T) {
	ctx := context.Background()
	uow := unitofwork.NewRepositoryFactory(repotest.OpenSQLite(t))
	require.NoError(t, uow.NewUnitOfWork(ctx).BanRepository().Ban(ctx, 1, time.Now()))
	seedGenerations(t, uow, 1, entity.KindVideoGen, time.Hour)
	gate := service.NewQuotaGate(uow, config.Quotas{entity.KindVideoGen: 1}, []int64{1}, logger.NewNopLogger())

	assert.True(t, gate.IsAdmin(1))
	assert.True(t, gate.Admit(ctx, 1, entity.KindVideoGen).Allow)
}

func TestQuotaGateDisabledAndUnlimitedKinds(t *testing.T) {
	ctx := context.Background()
	uow := unitofwork.NewRepositoryFactory(repotest.OpenSQLite(t))
	gate := service.NewQuotaGate(uow, config.Quotas{entity.KindMusicGen: -1, entity.KindImageGen: 0}, nil, logger.NewNopLogger())

	d := gate.Admit(ctx, 30, entity.KindMusicGen)
	assert.False(t, d.Allow)
	assert.Equal(t, "music-gen is disabled right now.", d.Message())

	seedGenerations(t, uow, 30, entity.KindImageGen, time.Hour, time.Hour, time.Hour)
	assert.True(t, gate.Admit(ctx, 30, entity.KindImageGen).Allow)
	assert.True(t, gate.Admit(ctx, 30, entity.KindTextChat).Allow)
}

func TestQuotaGateRecordIsIdempotentPerJob(t *testing.T) {
	ctx := context.Background()
	uow := unitofwork.NewRepositoryFactory(repotest.OpenSQLite(t))
	gate := service.NewQuotaGate(uow, config.Quotas{}, nil, logger.NewNopLogger())

	job := &entity.Job{ID: "job-1", UserID: 40, Kind: entity.KindImageGen, Provider: "flux", Args: entity.JobArgs{entity.ArgPrompt: "cat"}}
	inserted, err := gate.Record(ctx, job)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = gate.Record(ctx, job)
	require.NoError(t, err)
	assert.False(t, inserted)

	n, err := uow.NewUnitOfWork(ctx).GenerationRepository().Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
