package usecases_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abelzeko/water-quality/internal/aggregator"
	"github.com/abelzeko/water-quality/internal/entities"
	"github.com/abelzeko/water-quality/internal/model"
	"github.com/abelzeko/water-quality/internal/observability"
	"github.com/abelzeko/water-quality/internal/repository/memory"
	"github.com/abelzeko/water-quality/internal/usecases"
)

var jan10 = entities.NewDay(2024, time.January, 10)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubPredictor returns a fixed verdict and records what it was asked
type stubPredictor struct {
	mu     sync.Mutex
	result model.Result
	err    error
	seen   []entities.Features
}

func (s *stubPredictor) Predict(f entities.Features) (model.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, f)
	return s.result, s.err
}

func (s *stubPredictor) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

type failingAggregator struct{ err error }

func (f failingAggregator) Aggregate(context.Context, entities.Day) (entities.DailyAggregate, error) {
	return entities.DailyAggregate{}, f.err
}

type failingUpserts struct {
	*memory.PredictionRepository
	err error
}

func (f *failingUpserts) Upsert(context.Context, entities.Prediction) (entities.Prediction, error) {
	return entities.Prediction{}, f.err
}

type recordingPublisher struct {
	err       error
	published []entities.Prediction
}

func (r *recordingPublisher) Publish(_ context.Context, p entities.Prediction) error {
	r.published = append(r.published, p)
	return r.err
}

type fixture struct {
	readings    *memory.ReadingRepository
	predictions *memory.PredictionRepository
	predictor   *stubPredictor
	clock       *clockwork.FakeClock
	metrics     *observability.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		readings:    memory.NewReadingRepository(),
		predictions: memory.NewPredictionRepository(),
		predictor:   &stubPredictor{result: model.Result{Label: "Safe", Confidence: 0.87}},
		clock:       clockwork.NewFakeClockAt(time.Date(2024, time.January, 11, 0, 0, 5, 0, time.UTC)),
		metrics:     observability.NewMetricsForTesting(),
	}
}

func (f *fixture) pipeline(opts ...usecases.PipelineOption) *usecases.Pipeline {
	opts = append([]usecases.PipelineOption{usecases.WithClock(f.clock)}, opts...)
	return usecases.NewPipeline(aggregator.New(f.readings, time.UTC), f.predictor, f.predictions,
		quietLogger(), f.metrics, opts...)
}

func (f *fixture) insert(t *testing.T, ph, tds, turb, temp float64, ts time.Time) {
	t.Helper()
	_, err := f.readings.Insert(context.Background(), entities.Reading{
		PH: ph, TDS: tds, Turbidity: turb, Temperature: temp, Timestamp: ts,
	})
	require.NoError(t, err)
}

func (f *fixture) seedJan10(t *testing.T) {
	t.Helper()
	f.insert(t, 7.0, 300, 2.0, 24.0, time.Date(2024, time.January, 10, 8, 0, 0, 0, time.UTC))
	f.insert(t, 7.4, 320, 3.0, 26.0, time.Date(2024, time.January, 10, 20, 0, 0, 0, time.UTC))
}

func TestPipeline_EndToEnd(t *testing.T) {
	f := newFixture(t)
	f.seedJan10(t)

	res := f.pipeline().Run(context.Background(), jan10, entities.TriggerSchedule)

	require.Equal(t, entities.RunCompleted, res.Status, res.Error)
	assert.Equal(t, entities.StateDone, res.State)
	assert.Empty(t, res.FailedStep)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 2, res.ReadingCount)
	require.NotNil(t, res.Prediction)

	require.Len(t, f.predictor.seen, 1)
	got := f.predictor.seen[0]
	assert.InDelta(t, 7.2, got.PH, 1e-9)
	assert.InDelta(t, 310, got.TDS, 1e-9)
	assert.InDelta(t, 2.5, got.Turbidity, 1e-9)
	assert.InDelta(t, 25.0, got.Temperature, 1e-9)

	stored, err := f.predictions.Get(context.Background(), jan10)
	require.NoError(t, err)
	assert.Equal(t, *res.Prediction, stored)
	assert.Equal(t, jan10, stored.Date)
	assert.Equal(t, "Safe", stored.Label)
	assert.InDelta(t, 0.87, stored.Confidence, 1e-12)
	assert.Equal(t, 2, stored.ReadingCount)
	assert.Equal(t, f.clock.Now(), stored.CreatedAt)

	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.PipelineRuns.WithLabelValues("completed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.Predictions.WithLabelValues("Safe")), 0)
	assert.InDelta(t, float64(f.clock.Now().Unix()), testutil.ToFloat64(f.metrics.PipelineLastSuccess), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(f.metrics.PipelineRunning), 0)
}

func TestPipeline_RerunReplacesInsteadOfAppending(t *testing.T) {
	f := newFixture(t)
	f.seedJan10(t)
	p := f.pipeline()

	first := p.Run(context.Background(), jan10, entities.TriggerSchedule)
	require.Equal(t, entities.RunCompleted, first.Status)

	f.clock.Advance(3 * time.Hour)
	second := p.Run(context.Background(), jan10, entities.TriggerManual)
	require.Equal(t, entities.RunCompleted, second.Status)

	assert.Equal(t, 1, f.predictions.Len())
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, first.Prediction.ID, second.Prediction.ID)
	assert.Equal(t, first.Prediction.Label, second.Prediction.Label)
	assert.Equal(t, first.Prediction.AvgPH, second.Prediction.AvgPH)
	assert.Equal(t, first.Prediction.Confidence, second.Prediction.Confidence)
	assert.True(t, second.Prediction.CreatedAt.After(first.Prediction.CreatedAt))
}

func TestPipeline_RerunPicksUpLateReadings(t *testing.T) {
	f := newFixture(t)
	f.seedJan10(t)
	p := f.pipeline()

	require.Equal(t, entities.RunCompleted, p.Run(context.Background(), jan10, entities.TriggerSchedule).Status)
	f.insert(t, 7.2, 310, 2.5, 25.0, time.Date(2024, time.January, 10, 23, 59, 59, 999_000_000, time.UTC))

	res := p.Run(context.Background(), jan10, entities.TriggerManual)
	require.Equal(t, entities.RunCompleted, res.Status)
	assert.Equal(t, 3, res.Prediction.ReadingCount)
	assert.Equal(t, 1, f.predictions.Len())
}

func TestPipeline_EmptyDayWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.insert(t, 7.0, 300, 2.0, 24.0, time.Date(2024, time.January, 11, 0, 0, 0, 0, time.UTC))

	res := f.pipeline().Run(context.Background(), jan10, entities.TriggerSchedule)

	assert.Equal(t, entities.RunNoData, res.Status)
	assert.Equal(t, entities.StateDone, res.State)
	assert.Zero(t, res.ReadingCount)
	assert.Nil(t, res.Prediction)
	assert.Zero(t, f.predictor.calls())
	assert.Zero(t, f.predictions.Len())
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.PipelineRuns.WithLabelValues("no_data")), 0)
}

func TestPipeline_UnsupportedDayFailsWhileAggregating(t *testing.T) {
	f := newFixture(t)
	f.seedJan10(t)

	res := f.pipeline().Run(context.Background(), entities.Day{Year: 2608, Month: time.July, Day: 31}, entities.TriggerManual)

	assert.Equal(t, entities.RunFailed, res.Status)
	assert.Equal(t, entities.StateAggregating, res.FailedStep)
	assert.Contains(t, res.Error, "out of supported range")
	assert.Zero(t, f.predictor.calls())
	assert.Zero(t, f.predictions.Len())
}

func TestPipeline_FailuresLeaveStoreUnchanged(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name  string
		build func(f *fixture) *usecases.Pipeline
		step  entities.RunState
	}{
		{
			name: "aggregation",
			build: func(f *fixture) *usecases.Pipeline {
				return usecases.NewPipeline(failingAggregator{err: boom}, f.predictor, f.predictions,
					quietLogger(), f.metrics, usecases.WithClock(f.clock))
			},
			step: entities.StateAggregating,
		},
		{
			name: "inference",
			build: func(f *fixture) *usecases.Pipeline {
				f.predictor.err = boom
				return f.pipeline()
			},
			step: entities.StatePredicting,
		},
		{
			name: "confidence out of range",
			build: func(f *fixture) *usecases.Pipeline {
				f.predictor.result = model.Result{Label: "Safe", Confidence: 1.5}
				return f.pipeline()
			},
			step: entities.StatePredicting,
		},
		{
			name: "persistence",
			build: func(f *fixture) *usecases.Pipeline {
				return usecases.NewPipeline(aggregator.New(f.readings, time.UTC), f.predictor,
					&failingUpserts{PredictionRepository: f.predictions, err: boom},
					quietLogger(), f.metrics, usecases.WithClock(f.clock))
			},
			step: entities.StatePersisting,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seedJan10(t)

			// an earlier successful run must survive the failed rerun untouched
			before := f.pipeline().Run(context.Background(), jan10, entities.TriggerSchedule)
			require.Equal(t, entities.RunCompleted, before.Status)

			f.clock.Advance(time.Hour)
			res := tt.build(f).Run(context.Background(), jan10, entities.TriggerManual)

			assert.Equal(t, entities.RunFailed, res.Status)
			assert.Equal(t, entities.StateFailed, res.State)
			assert.Equal(t, tt.step, res.FailedStep)
			assert.NotEmpty(t, res.Error)
			assert.Nil(t, res.Prediction)

			stored, err := f.predictions.Get(context.Background(), jan10)
			require.NoError(t, err)
			assert.Equal(t, *before.Prediction, stored)
			assert.Equal(t, 1, f.predictions.Len())
			assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.PipelineRuns.WithLabelValues("failed")), 0)
		})
	}
}

func TestPipeline_PublishesCompletedRuns(t *testing.T) {
	f := newFixture(t)
	f.seedJan10(t)
	pub := &recordingPublisher{}

	res := f.pipeline(usecases.WithPublisher(pub)).Run(context.Background(), jan10, entities.TriggerSchedule)

	require.Equal(t, entities.RunCompleted, res.Status)
	require.Len(t, pub.published, 1)
	assert.Equal(t, *res.Prediction, pub.published[0])
}

func TestPipeline_PublishFailureDoesNotFailRun(t *testing.T) {
	f := newFixture(t)
	f.seedJan10(t)
	pub := &recordingPublisher{err: errors.New("broker down")}

	res := f.pipeline(usecases.WithPublisher(pub)).Run(context.Background(), jan10, entities.TriggerSchedule)

	assert.Equal(t, entities.RunCompleted, res.Status)
	assert.Equal(t, 1, f.predictions.Len())
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.PublishErrors), 0)
}

func TestPipeline_NoDataIsNotPublished(t *testing.T) {
	f := newFixture(t)
	pub := &recordingPublisher{}

	res := f.pipeline(usecases.WithPublisher(pub)).Run(context.Background(), jan10, entities.TriggerSchedule)

	assert.Equal(t, entities.RunNoData, res.Status)
	assert.Empty(t, pub.published)
}
