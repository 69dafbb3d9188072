// Package scheduler fires the daily pipeline at a fixed time and guards it against overlapping runs
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"

	"github.com/abelzeko/water-quality/internal/entities"
	"github.com/abelzeko/water-quality/internal/observability"
)

// DefaultSpec fires at midnight of the reference zone
const DefaultSpec = "0 0 * * *"

// Runner executes one pipeline run
type Runner interface {
	Run(ctx context.Context, day entities.Day, trigger entities.Trigger) entities.RunResult
}

// Scheduler owns the daily timer and the single-flight guard shared by timer and manual triggers
type Scheduler struct {
	runner  Runner
	loc     *time.Location
	spec    string
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	cron *cron.Cron
	// running is held for the whole of a run; TryLock failing means busy
	running sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

// Option customizes a Scheduler
type Option func(*Scheduler)

// WithClock sets the clock used to work out yesterday
func WithClock(c clockwork.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithSpec overrides the cron spec
func WithSpec(spec string) Option {
	return func(s *Scheduler) { s.spec = spec }
}

// New creates a scheduler evaluating its cron spec in loc. A nil loc means UTC.
func New(runner Runner, loc *time.Location, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	s := &Scheduler{
		runner:  runner,
		loc:     loc,
		spec:    DefaultSpec,
		clock:   clockwork.NewRealClock(),
		logger:  logger,
		metrics: metrics,
	}
	for _, opt := range opts {
		opt(s)
	}

	cl := cronLogger{logger: logger}
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl)),
	)
	if _, err := s.cron.AddFunc(s.spec, s.fire); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", s.spec, err)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// Start arms the daily timer
func (s *Scheduler) Start() {
	s.logger.Info("daily prediction scheduled", "spec", s.spec, "timezone", s.loc.String())
	s.cron.Start()
}

// Stop disarms the timer and waits for a scheduled run in flight, or for ctx to expire
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
}

// Next reports when the timer fires next. Zero before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Yesterday is the calendar day that ended at the most recent midnight of the reference zone
func (s *Scheduler) Yesterday() entities.Day {
	return entities.DayOf(s.clock.Now(), s.loc).Prev()
}

// RunFor re-drives day on operator request. It never waits: if a run is in
// flight it returns a busy result at once.
func (s *Scheduler) RunFor(ctx context.Context, day entities.Day) entities.RunResult {
	return s.run(ctx, day, entities.TriggerManual)
}

// fire is the cron job. Missed boundaries are not backfilled.
func (s *Scheduler) fire() {
	res := s.run(s.ctx, s.Yesterday(), entities.TriggerSchedule)
	if res.Status == entities.RunFailed {
		s.logger.Warn("scheduled run failed, use the manual trigger to retry",
			"day", res.Day.String(), "run_id", res.RunID)
	}
}

func (s *Scheduler) run(ctx context.Context, day entities.Day, trigger entities.Trigger) entities.RunResult {
	if !s.running.TryLock() {
		now := s.clock.Now()
		s.metrics.PipelineRuns.WithLabelValues(string(entities.RunBusy)).Inc()
		s.logger.Warn("pipeline run rejected, another run is in flight",
			"day", day.String(), "trigger", string(trigger))
		return entities.RunResult{
			Day:        day,
			Trigger:    trigger,
			Status:     entities.RunBusy,
			StartedAt:  now,
			FinishedAt: now,
		}
	}
	defer s.running.Unlock()
	return s.runner.Run(ctx, day, trigger)
}

// cronLogger routes cron's internal logging through slog
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
