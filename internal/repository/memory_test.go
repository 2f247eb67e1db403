package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"stats-service/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

func env(id string) domain.Envelope {
	return domain.Envelope{EventID: id, Kind: domain.KindUserReputationChanged, Payload: []byte(`{}`)}
}

func TestStartStreamThenAppend(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	err := store.Within(ctx, func(ctx context.Context, uow UnitOfWork) error {
		seq, err := uow.StartStream(ctx, domain.StreamUser, "u1", env("e1"), day)
		require.NoError(t, err)
		assert.Equal(t, int64(1), seq)

		seq, err = uow.Append(ctx, domain.StreamUser, "u1", env("e2"), day)
		require.NoError(t, err)
		assert.Equal(t, int64(2), seq)
		return nil
	})
	require.NoError(t, err)

	events, err := store.ReadStream(ctx, domain.StreamUser, "u1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(1), events[0].Seq)
	assert.Equal(t, int64(2), events[1].Seq)
}

func TestStartStreamDuplicate(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Within(ctx, func(ctx context.Context, uow UnitOfWork) error {
		_, err := uow.StartStream(ctx, domain.StreamQuestion, "q1", env("e1"), day)
		return err
	}))

	err := store.Within(ctx, func(ctx context.Context, uow UnitOfWork) error {
		_, err := uow.StartStream(ctx, domain.StreamQuestion, "q1", env("e2"), day)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateStream)

	// The losing unit of work left no trace.
	events, err := store.ReadStream(ctx, domain.StreamQuestion, "q1")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestAppendWithoutStream(t *testing.T) {
	store := NewMemoryStore()

	err := store.Within(context.Background(), func(ctx context.Context, uow UnitOfWork) error {
		_, err := uow.Append(ctx, domain.StreamUser, "ghost", env("e1"), day)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrStreamNotFound)
}

func TestSameEntityDifferentKindsDoNotCollide(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Within(ctx, func(ctx context.Context, uow UnitOfWork) error {
		if _, err := uow.StartStream(ctx, domain.StreamUser, "42", env("e1"), day); err != nil {
			return err
		}
		_, err := uow.StartStream(ctx, domain.StreamAi, "42", env("e2"), day)
		return err
	}))
}

func TestFailedUnitOfWorkLeavesNoPartialEffect(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.Within(ctx, func(ctx context.Context, uow UnitOfWork) error {
		if _, err := uow.StartStream(ctx, domain.StreamUser, "u1", env("e1"), day); err != nil {
			return err
		}
		key := domain.RollupKey{Kind: domain.RollupUserReputation, EntityID: "u1", Day: day}
		if err := uow.UpsertRollup(ctx, key, 5); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	events, err := store.ReadStream(ctx, domain.StreamUser, "u1")
	require.NoError(t, err)
	assert.Empty(t, events)

	value, err := store.GetRollup(ctx, domain.RollupKey{Kind: domain.RollupUserReputation, EntityID: "u1", Day: day})
	require.NoError(t, err)
	assert.Zero(t, value)
}

func TestMarkProcessedDeduplicates(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Within(ctx, func(ctx context.Context, uow UnitOfWork) error {
		fresh, err := uow.MarkProcessed(ctx, "msg-1")
		require.NoError(t, err)
		assert.True(t, fresh)
		return nil
	}))

	require.NoError(t, store.Within(ctx, func(ctx context.Context, uow UnitOfWork) error {
		fresh, err := uow.MarkProcessed(ctx, "msg-1")
		require.NoError(t, err)
		assert.False(t, fresh)
		return nil
	}))
}

func TestUpsertRollupAccumulates(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	key := domain.RollupKey{Kind: domain.RollupTagUsage, EntityID: "go", Day: day}

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Within(ctx, func(ctx context.Context, uow UnitOfWork) error {
			return uow.UpsertRollup(ctx, key, 1)
		}))
	}

	value, err := store.GetRollup(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 3, value)
}

func TestConcurrentIncrementsConverge(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	key := domain.RollupKey{Kind: domain.RollupTagUsage, EntityID: "go", Day: day}

	const n = 64
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_ = store.Within(ctx, func(ctx context.Context, uow UnitOfWork) error {
				return uow.UpsertRollup(ctx, key, 1)
			})
		}()
	}
	wg.Wait()

	value, err := store.GetRollup(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, n, value)
}

func TestRollupsByDayWindow(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	write := func(entity string, d time.Time, v int) {
		require.NoError(t, store.Within(ctx, func(ctx context.Context, uow UnitOfWork) error {
			return uow.UpsertRollup(ctx, domain.RollupKey{Kind: domain.RollupUserReputation, EntityID: entity, Day: d}, v)
		}))
	}

	write("u1", day, 5)
	write("u1", day.AddDate(0, 0, -3), 7)
	write("u2", day.AddDate(0, 0, -8), 100) // outside the window

	rows, err := store.RollupsByDayWindow(ctx, domain.RollupUserReputation, day.AddDate(0, 0, -6), day)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, "u1", row.EntityID)
	}
}

func TestTopAiAnswerModels(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	store.SeedAiAnswer("gpt-9", 4, day.AddDate(0, 0, -1))
	store.SeedAiAnswer("gpt-9", 3, day.AddDate(0, 0, -2))
	store.SeedAiAnswer("claude", 5, day)
	store.SeedAiAnswer("claude", 9, day.AddDate(0, 0, -20)) // too old

	from := day.AddDate(0, 0, -15)
	to := day.AddDate(0, 0, 1).Add(-time.Nanosecond)

	got, err := store.TopAiAnswerModels(ctx, from, to, 8)
	require.NoError(t, err)
	require.Equal(t, []domain.AiAnswerSummary{
		{AiModel: "gpt-9", TotalVotes: 7},
		{AiModel: "claude", TotalVotes: 5},
	}, got)
}
