package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abelzeko/water-quality/internal/entities"
	"github.com/abelzeko/water-quality/internal/observability"
)

type call struct {
	day     entities.Day
	trigger entities.Trigger
}

// blockingRunner holds every run until release is closed
type blockingRunner struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32

	mu   sync.Mutex
	seen []call
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{started: make(chan struct{}, 8), release: make(chan struct{})}
}

func (r *blockingRunner) Run(_ context.Context, day entities.Day, trigger entities.Trigger) entities.RunResult {
	r.calls.Add(1)
	r.mu.Lock()
	r.seen = append(r.seen, call{day: day, trigger: trigger})
	r.mu.Unlock()
	r.started <- struct{}{}
	<-r.release
	return entities.RunResult{RunID: "run-1", Day: day, Trigger: trigger, Status: entities.RunCompleted, State: entities.StateDone}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func belgrade(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Belgrade")
	require.NoError(t, err)
	return loc
}

func TestRunFor_SecondTriggerIsBusy(t *testing.T) {
	runner := newBlockingRunner()
	metrics := observability.NewMetricsForTesting()
	s, err := New(runner, time.UTC, quietLogger(), metrics)
	require.NoError(t, err)

	day := entities.NewDay(2024, time.January, 10)
	first := make(chan entities.RunResult, 1)
	go func() { first <- s.RunFor(context.Background(), day) }()
	<-runner.started

	busy := s.RunFor(context.Background(), day)
	assert.Equal(t, entities.RunBusy, busy.Status)
	assert.Empty(t, busy.RunID)
	assert.Equal(t, day, busy.Day)

	close(runner.release)
	res := <-first
	assert.Equal(t, entities.RunCompleted, res.Status)
	assert.Equal(t, int32(1), runner.calls.Load())
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.PipelineRuns.WithLabelValues("busy")), 0)

	// guard is released afterwards
	runner.release = make(chan struct{})
	close(runner.release)
	again := s.RunFor(context.Background(), day)
	assert.Equal(t, entities.RunCompleted, again.Status)
}

func TestRunFor_TimerAndManualShareGuard(t *testing.T) {
	runner := newBlockingRunner()
	clock := clockwork.NewFakeClockAt(time.Date(2024, time.January, 11, 0, 0, 1, 0, time.UTC))
	s, err := New(runner, time.UTC, quietLogger(), observability.NewMetricsForTesting(), WithClock(clock))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		s.fire()
		close(done)
	}()
	<-runner.started

	res := s.RunFor(context.Background(), entities.NewDay(2024, time.January, 10))
	assert.Equal(t, entities.RunBusy, res.Status)

	close(runner.release)
	<-done
	require.Len(t, runner.seen, 1)
	assert.Equal(t, entities.TriggerSchedule, runner.seen[0].trigger)
}

func TestFire_RunsYesterdayInReferenceZone(t *testing.T) {
	loc := belgrade(t)
	// 23:00:05 UTC on the 10th is 00:00:05 on the 11th in Belgrade
	clock := clockwork.NewFakeClockAt(time.Date(2024, time.January, 10, 23, 0, 5, 0, time.UTC))
	runner := newBlockingRunner()
	close(runner.release)

	s, err := New(runner, loc, quietLogger(), observability.NewMetricsForTesting(), WithClock(clock))
	require.NoError(t, err)

	s.fire()

	require.Len(t, runner.seen, 1)
	assert.Equal(t, entities.NewDay(2024, time.January, 10), runner.seen[0].day)
	assert.Equal(t, entities.TriggerSchedule, runner.seen[0].trigger)
}

func TestYesterday(t *testing.T) {
	loc := belgrade(t)
	tests := []struct {
		name string
		now  time.Time
		want entities.Day
	}{
		{"just after midnight", time.Date(2024, time.January, 11, 0, 0, 0, 0, loc), entities.NewDay(2024, time.January, 10)},
		{"late evening", time.Date(2024, time.January, 11, 23, 59, 59, 0, loc), entities.NewDay(2024, time.January, 10)},
		{"new year", time.Date(2024, time.January, 1, 0, 30, 0, 0, loc), entities.NewDay(2023, time.December, 31)},
		{"after spring forward", time.Date(2024, time.April, 1, 0, 0, 0, 0, loc), entities.NewDay(2024, time.March, 31)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(newBlockingRunner(), loc, quietLogger(), observability.NewMetricsForTesting(),
				WithClock(clockwork.NewFakeClockAt(tt.now)))
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Yesterday())
		})
	}
}

func TestNew_InvalidSpec(t *testing.T) {
	_, err := New(newBlockingRunner(), time.UTC, quietLogger(), observability.NewMetricsForTesting(), WithSpec("at midnight"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at midnight")
}

func TestStartStop_NextIsMidnightInZone(t *testing.T) {
	loc := belgrade(t)
	s, err := New(newBlockingRunner(), loc, quietLogger(), observability.NewMetricsForTesting())
	require.NoError(t, err)

	s.Start()
	next := s.Next()
	require.False(t, next.IsZero())
	local := next.In(loc)
	assert.Equal(t, 0, local.Hour())
	assert.Equal(t, 0, local.Minute())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
