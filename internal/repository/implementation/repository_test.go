package implementation_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/internal/repository/implementation"
	"ai-genbot-gateway/internal/repository/repotest"
	"ai-genbot-gateway/internal/repository/specification"
	"ai-genbot-gateway/internal/repository/unitofwork"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserTouchUpsertsCounters(t *testing.T) {
	ctx := context.Background()
	repo := implementation.NewUserRepository(repotest.OpenSQLite(t))

	first := time.Now().Add(-time.Hour)
	require.NoError(t, repo.Touch(ctx, 42, entity.ModelClassText, first))
	require.NoError(t, repo.Touch(ctx, 42, entity.ModelClassImage, first.Add(time.Minute)))
	require.NoError(t, repo.Touch(ctx, 42, entity.ModelClassNone, first.Add(2*time.Minute)))

	u, err := repo.FindOne(ctx, specification.ByID{ID: 42})
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, int64(3), u.TotalMessages)
	assert.Equal(t, int64(1), u.TextMessages)
	assert.Equal(t, int64(1), u.ImageMessages)
	assert.WithinDuration(t, first, u.FirstSeen, time.Second)
	assert.WithinDuration(t, first.Add(2*time.Minute), u.LastSeen, time.Second)

	total, err := repo.SumMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	missing, err := repo.FindOne(ctx, specification.ByID{ID: 7})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestConversationLastNIsChronological(t *testing.T) {
	ctx := context.Background()
	repo := implementation.NewConversationRepository(repotest.OpenSQLite(t))

	base := time.Now()
	for i, text := range []string{"a", "b", "c", "d"} {
		require.NoError(t, repo.Append(ctx, &entity.Conversation{
			UserID:    1,
			UserText:  "q-" + text,
			BotText:   "r-" + text,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, repo.Append(ctx, &entity.Conversation{UserID: 2, UserText: "x", BotText: "y", Timestamp: base}))

	rows, err := repo.LastN(ctx, 1, 3)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "q-b", rows[0].UserText)
	assert.Equal(t, "q-c", rows[1].UserText)
	assert.Equal(t, "r-d", rows[2].BotText)

	require.NoError(t, repo.DeleteByUser(ctx, 1))
	count, err := repo.Count(ctx, specification.ByUserID{UserID: 1})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestGenerationRecordIsOncePerJob(t *testing.T) {
	ctx := context.Background()
	repo := implementation.NewGenerationRepository(repotest.OpenSQLite(t))

	rec := &entity.GenerationRecord{UserID: 1, Kind: entity.KindVideoGen, JobID: "job-1"}
	inserted, err := repo.Record(ctx, rec)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.Record(ctx, &entity.GenerationRecord{UserID: 1, Kind: entity.KindVideoGen, JobID: "job-1"})
	require.NoError(t, err)
	assert.False(t, inserted)

	old := &entity.GenerationRecord{UserID: 1, Kind: entity.KindVideoGen, JobID: "job-0", CreatedAt: time.Now().Add(-25 * time.Hour)}
	_, err = repo.Record(ctx, old)
	require.NoError(t, err)

	count, err := repo.Count(ctx,
		specification.ByUserID{UserID: 1},
		specification.ByKind{Kind: entity.KindVideoGen},
		specification.CreatedSince{Since: time.Now().Add(-24 * time.Hour)},
	)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	byKind, err := repo.CountByKind(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), byKind[entity.KindVideoGen])
}

func TestApplyFlushTwiceIsNoop(t *testing.T) {
	ctx := context.Background()
	db := repotest.OpenSQLite(t)
	uow := unitofwork.NewRepositoryFactory(db).NewUnitOfWork(ctx)

	flush := &entity.MetricsFlush{
		ID:       "flush-1",
		Commands: map[string]int64{"/flux": 2, "/tts": 1},
		Models:   map[string]int64{"gpt-4o-mini": 3},
		Errors:   map[string]int64{"transient": 1},
		Window:   &entity.ResponseWindow{Start: time.Now().Add(-time.Hour), End: time.Now(), Samples: 2, Avg: 3, Min: 2, Max: 4},
	}

	require.NoError(t, uow.Begin(ctx))
	applied, err := uow.UsageRepository().ApplyFlush(ctx, flush)
	require.NoError(t, err)
	require.NoError(t, uow.Commit())
	assert.True(t, applied)

	applied, err = uow.UsageRepository().ApplyFlush(ctx, flush)
	require.NoError(t, err)
	assert.False(t, applied)

	second := &entity.MetricsFlush{ID: "flush-2", Commands: map[string]int64{"/flux": 1}}
	_, err = uow.UsageRepository().ApplyFlush(ctx, second)
	require.NoError(t, err)

	totals, err := uow.UsageRepository().Totals(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(3), totals.Commands["/flux"])
	assert.Equal(t, int64(1), totals.Commands["/tts"])
	assert.Equal(t, int64(3), totals.Models["gpt-4o-mini"])
	assert.Equal(t, int64(1), totals.Errors["transient"])
	require.Len(t, totals.Windows, 1)
	assert.Equal(t, 2, totals.Windows[0].Samples)
}

func TestBanAndUserData(t *testing.T) {
	ctx := context.Background()
	db := repotest.OpenSQLite(t)
	bans := implementation.NewBanRepository(db)
	data := implementation.NewUserDataRepository(db)

	require.NoError(t, bans.Ban(ctx, 9, time.Now()))
	require.NoError(t, bans.Ban(ctx, 9, time.Now()))
	banned, err := bans.IsBanned(ctx, 9)
	require.NoError(t, err)
	assert.True(t, banned)

	list, err := bans.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, bans.Unban(ctx, 9))
	banned, err = bans.IsBanned(ctx, 9)
	require.NoError(t, err)
	assert.False(t, banned)

	got, err := data.Get(ctx, 9, entity.UserDataPreferences)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, data.Put(ctx, 9, entity.UserDataPreferences, json.RawMessage(`{"voice_id":"v1"}`)))
	require.NoError(t, data.Put(ctx, 9, entity.UserDataPreferences, json.RawMessage(`{"voice_id":"v2"}`)))
	got, err = data.Get(ctx, 9, entity.UserDataPreferences)
	require.NoError(t, err)
	assert.JSONEq(t, `{"voice_id":"v2"}`, string(got))
}
