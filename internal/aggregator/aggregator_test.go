package aggregator_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/abelzeko/water-quality/internal/aggregator"
	"github.com/abelzeko/water-quality/internal/entities"
	"github.com/abelzeko/water-quality/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReadings struct {
	*memory.ReadingRepository
	err error
}

func (f *failingReadings) ScanRange(context.Context, time.Time, time.Time, func(entities.Reading) error) error {
	return f.err
}

func insert(t *testing.T, repo *memory.ReadingRepository, ph, tds, turb, temp float64, ts time.Time) {
	t.Helper()
	_, err := repo.Insert(context.Background(), entities.Reading{
		PH: ph, TDS: tds, Turbidity: turb, Temperature: temp, Timestamp: ts,
	})
	require.NoError(t, err)
}

func TestAggregate_Means(t *testing.T) {
	repo := memory.NewReadingRepository()
	insert(t, repo, 7.0, 300, 2.0, 24.0, time.Date(2024, time.January, 10, 6, 0, 0, 0, time.UTC))
	insert(t, repo, 7.4, 320, 3.0, 26.0, time.Date(2024, time.January, 10, 18, 0, 0, 0, time.UTC))

	agg, err := aggregator.New(repo, time.UTC).Aggregate(context.Background(), entities.NewDay(2024, time.January, 10))
	require.NoError(t, err)

	assert.Equal(t, 2, agg.ReadingCount)
	assert.InDelta(t, 7.2, agg.AvgPH, 1e-9)
	assert.InDelta(t, 310.0, agg.AvgTDS, 1e-9)
	assert.InDelta(t, 2.5, agg.AvgTurbidity, 1e-9)
	assert.InDelta(t, 25.0, agg.AvgTemperature, 1e-9)
	assert.Equal(t, "2024-01-10", agg.Day.String())
}

func TestAggregate_EmptyDay(t *testing.T) {
	repo := memory.NewReadingRepository()
	insert(t, repo, 7.0, 300, 2.0, 24.0, time.Date(2024, time.January, 11, 6, 0, 0, 0, time.UTC))

	agg, err := aggregator.New(repo, time.UTC).Aggregate(context.Background(), entities.NewDay(2024, time.January, 10))
	require.NoError(t, err)

	assert.Zero(t, agg.ReadingCount)
	assert.True(t, math.IsNaN(agg.AvgPH))
	assert.True(t, math.IsNaN(agg.AvgTDS))
	assert.True(t, math.IsNaN(agg.AvgTurbidity))
	assert.True(t, math.IsNaN(agg.AvgTemperature))
}

func TestAggregate_DayBoundaries(t *testing.T) {
	repo := memory.NewReadingRepository()
	day := entities.NewDay(2024, time.January, 10)

	insert(t, repo, 1, 1, 1, 1, time.Date(2024, time.January, 9, 23, 59, 59, 999_000_000, time.UTC))
	insert(t, repo, 7, 100, 1, 20, time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC))
	insert(t, repo, 8, 200, 3, 22, time.Date(2024, time.January, 10, 23, 59, 59, 999_000_000, time.UTC))
	insert(t, repo, 14, 9000, 90, 90, time.Date(2024, time.January, 11, 0, 0, 0, 0, time.UTC))

	agg, err := aggregator.New(repo, time.UTC).Aggregate(context.Background(), day)
	require.NoError(t, err)

	assert.Equal(t, 2, agg.ReadingCount)
	assert.InDelta(t, 7.5, agg.AvgPH, 1e-9)
	assert.InDelta(t, 150.0, agg.AvgTDS, 1e-9)
}

func TestAggregate_UsesReferenceZone(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Belgrade")
	require.NoError(t, err)
	repo := memory.NewReadingRepository()

	// 23:30 UTC on the 9th is 00:30 local on the 10th
	insert(t, repo, 7, 100, 1, 20, time.Date(2024, time.January, 9, 23, 30, 0, 0, time.UTC))
	// 23:30 UTC on the 10th is already the 11th locally
	insert(t, repo, 9, 100, 1, 20, time.Date(2024, time.January, 10, 23, 30, 0, 0, time.UTC))

	agg, err := aggregator.New(repo, loc).Aggregate(context.Background(), entities.NewDay(2024, time.January, 10))
	require.NoError(t, err)
	assert.Equal(t, 1, agg.ReadingCount)
	assert.InDelta(t, 7.0, agg.AvgPH, 1e-9)

	utcAgg, err := aggregator.New(repo, time.UTC).Aggregate(context.Background(), entities.NewDay(2024, time.January, 10))
	require.NoError(t, err)
	assert.Equal(t, 1, utcAgg.ReadingCount)
	assert.InDelta(t, 9.0, utcAgg.AvgPH, 1e-9)
}

func TestAggregate_ManyReadingsStayExact(t *testing.T) {
	repo := memory.NewReadingRepository()
	base := time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 8640; i++ {
		insert(t, repo, 7.1, 333.3, 0.1, 21.7, base.Add(time.Duration(i)*10*time.Second))
	}

	agg, err := aggregator.New(repo, time.UTC).Aggregate(context.Background(), entities.NewDay(2024, time.January, 10))
	require.NoError(t, err)
	assert.Equal(t, 8640, agg.ReadingCount)
	assert.InDelta(t, 7.1, agg.AvgPH, 1e-12)
	assert.InDelta(t, 333.3, agg.AvgTDS, 1e-10)
	assert.InDelta(t, 0.1, agg.AvgTurbidity, 1e-12)
}

func TestAggregate_StoreError(t *testing.T) {
	storeErr := errors.New("database is locked")
	repo := &failingReadings{ReadingRepository: memory.NewReadingRepository(), err: storeErr}

	_, err := aggregator.New(repo, time.UTC).Aggregate(context.Background(), entities.NewDay(2024, time.January, 10))
	require.Error(t, err)
	assert.ErrorIs(t, err, storeErr)
}

func TestAggregate_RejectsUnsupportedDay(t *testing.T) {
	repo := memory.NewReadingRepository()
	insert(t, repo, 7.0, 300, 2.0, 24.0, time.Date(2024, time.January, 10, 12, 0, 0, 0, time.UTC))

	agg, err := aggregator.New(repo, time.UTC).Aggregate(context.Background(), entities.Day{Year: 2608, Month: time.July, Day: 31})
	assert.ErrorIs(t, err, entities.ErrDayOutOfRange)
	assert.Zero(t, agg.ReadingCount)
}

func TestNew_DefaultsToUTC(t *testing.T) {
	a := aggregator.New(memory.NewReadingRepository(), nil)
	assert.Equal(t, time.UTC, a.Location())
}
