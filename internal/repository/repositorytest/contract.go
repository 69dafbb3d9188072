// Package repositorytest holds behaviour checks shared by every repository backend
package repositorytest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/abelzeko/water-quality/internal/entities"
	"github.com/abelzeko/water-quality/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunReadingContract exercises a ReadingRepository produced fresh by newRepo for each subtest
func RunReadingContract(t *testing.T, newRepo func(t *testing.T) repository.ReadingRepository) {
	t.Run("LatestOnEmpty", func(t *testing.T) {
		_, err := newRepo(t).Latest(context.Background())
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("InsertAssignsIDs", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		ts := time.Date(2024, time.January, 10, 8, 0, 0, 0, time.UTC)

		a, err := repo.Insert(ctx, reading(7.0, ts))
		require.NoError(t, err)
		b, err := repo.Insert(ctx, reading(7.4, ts))
		require.NoError(t, err)

		assert.NotZero(t, a.ID)
		assert.NotEqual(t, a.ID, b.ID)
		assert.True(t, a.Timestamp.Equal(ts))
	})

	t.Run("InsertStampsMissingTimestamp", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		before := time.Now().Add(-time.Second)

		inserted, err := repo.Insert(ctx, reading(7.1, time.Time{}))
		require.NoError(t, err)
		after := time.Now().Add(time.Second)

		assert.False(t, inserted.Timestamp.IsZero())
		assert.True(t, inserted.Timestamp.After(before), inserted.Timestamp)
		assert.True(t, inserted.Timestamp.Before(after), inserted.Timestamp)

		stored, err := repo.Latest(ctx)
		require.NoError(t, err)
		assert.Equal(t, inserted.ID, stored.ID)
		assert.True(t, stored.Timestamp.Equal(inserted.Timestamp), "stored %s, returned %s", stored.Timestamp, inserted.Timestamp)

		got, err := repo.RangeQuery(ctx, before, after)
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("RangeIsHalfOpen", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		start := time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC)
		end := start.Add(24 * time.Hour)

		for _, ts := range []time.Time{
			start.Add(-time.Millisecond),
			start,
			end.Add(-time.Millisecond),
			end,
		} {
			_, err := repo.Insert(ctx, reading(7, ts))
			require.NoError(t, err)
		}

		got, err := repo.RangeQuery(ctx, start, end)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.True(t, got[0].Timestamp.Equal(start))
		assert.True(t, got[1].Timestamp.Equal(end.Add(-time.Millisecond)))
	})

	t.Run("RangeOrderedByTimestamp", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		base := time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC)

		for _, h := range []int{9, 3, 6} {
			_, err := repo.Insert(ctx, reading(float64(h), base.Add(time.Duration(h)*time.Hour)))
			require.NoError(t, err)
		}

		got, err := repo.RangeQuery(ctx, base, base.Add(24*time.Hour))
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, []float64{3, 6, 9}, []float64{got[0].PH, got[1].PH, got[2].PH})
	})

	t.Run("ScanStopsOnCallbackError", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		base := time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC)
		for i := 0; i < 3; i++ {
			_, err := repo.Insert(ctx, reading(7, base.Add(time.Duration(i)*time.Minute)))
			require.NoError(t, err)
		}

		stop := assert.AnError
		visited := 0
		err := repo.ScanRange(ctx, base, base.Add(time.Hour), func(entities.Reading) error {
			visited++
			return stop
		})
		assert.ErrorIs(t, err, stop)
		assert.Equal(t, 1, visited)
	})

	t.Run("LatestByTimestampNotInsertOrder", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		base := time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC)

		_, err := repo.Insert(ctx, reading(8, base.Add(2*time.Hour)))
		require.NoError(t, err)
		_, err = repo.Insert(ctx, reading(6, base.Add(time.Hour)))
		require.NoError(t, err)

		latest, err := repo.Latest(ctx)
		require.NoError(t, err)
		assert.InDelta(t, 8.0, latest.PH, 1e-9)
	})

	t.Run("ConcurrentInserts", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		base := time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := repo.Insert(ctx, reading(7, base.Add(time.Duration(i)*time.Second)))
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		got, err := repo.RangeQuery(ctx, base, base.Add(time.Hour))
		require.NoError(t, err)
		assert.Len(t, got, 20)
	})
}

// RunPredictionContract exercises a PredictionRepository produced fresh by newRepo for each subtest
func RunPredictionContract(t *testing.T, newRepo func(t *testing.T) repository.PredictionRepository) {
	t.Run("LatestOnEmpty", func(t *testing.T) {
		_, err := newRepo(t).Latest(context.Background())
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := newRepo(t).Get(context.Background(), entities.NewDay(2024, time.January, 10))
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("UpsertInsertsThenReplaces", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		day := entities.NewDay(2024, time.January, 10)

		first, err := repo.Upsert(ctx, prediction(day, "Safe", 0.87, 2))
		require.NoError(t, err)
		assert.NotZero(t, first.ID)

		second, err := repo.Upsert(ctx, prediction(day, "Unsafe", 0.55, 5))
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)

		got, err := repo.Get(ctx, day)
		require.NoError(t, err)
		assert.Equal(t, "Unsafe", got.Label)
		assert.InDelta(t, 0.55, got.Confidence, 1e-9)
		assert.Equal(t, 5, got.ReadingCount)
		assert.Equal(t, day, got.Date)
	})

	t.Run("UpsertSameValuesIsIdempotent", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		day := entities.NewDay(2024, time.January, 10)
		p := prediction(day, "Safe", 0.87, 2)

		_, err := repo.Upsert(ctx, p)
		require.NoError(t, err)
		afterFirst, err := repo.Get(ctx, day)
		require.NoError(t, err)

		_, err = repo.Upsert(ctx, p)
		require.NoError(t, err)
		afterSecond, err := repo.Get(ctx, day)
		require.NoError(t, err)

		assert.Equal(t, afterFirst.ID, afterSecond.ID)
		assert.Equal(t, afterFirst.Label, afterSecond.Label)
		assert.True(t, afterFirst.CreatedAt.Equal(afterSecond.CreatedAt))
	})

	t.Run("RejectsEmptyDay", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Upsert(context.Background(), prediction(entities.NewDay(2024, time.January, 10), "Safe", 0.9, 0))
		assert.ErrorIs(t, err, repository.ErrInvalidInput)
	})

	t.Run("LatestByDateNotCreatedAt", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		newer := prediction(entities.NewDay(2024, time.January, 11), "Safe", 0.9, 3)
		newer.CreatedAt = time.Date(2024, time.January, 12, 0, 0, 0, 0, time.UTC)
		older := prediction(entities.NewDay(2024, time.January, 9), "Unsafe", 0.6, 3)
		older.CreatedAt = time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)

		_, err := repo.Upsert(ctx, newer)
		require.NoError(t, err)
		_, err = repo.Upsert(ctx, older)
		require.NoError(t, err)

		latest, err := repo.Latest(ctx)
		require.NoError(t, err)
		assert.Equal(t, "2024-01-11", latest.Date.String())
	})
}

func reading(ph float64, ts time.Time) entities.Reading {
	return entities.Reading{PH: ph, TDS: 300, Turbidity: 2, Temperature: 24, Timestamp: ts}
}

func prediction(day entities.Day, label string, confidence float64, count int) entities.Prediction {
	return entities.Prediction{
		Date:           day,
		AvgPH:          7.2,
		AvgTDS:         310,
		AvgTurbidity:   2.5,
		AvgTemperature: 25,
		Label:          label,
		Confidence:     confidence,
		ReadingCount:   count,
		CreatedAt:      time.Date(2024, time.January, 11, 0, 0, 0, 0, time.UTC),
	}
}
