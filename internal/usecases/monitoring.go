// Package usecases contains the application's business logic
package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/abelzeko/water-quality/internal/entities"
	"github.com/abelzeko/water-quality/internal/observability"
	"github.com/abelzeko/water-quality/internal/repository"
)

// RunTrigger starts a guarded pipeline run for a given day
type RunTrigger interface {
	RunFor(ctx context.Context, day entities.Day) entities.RunResult
}

// MonitoringService is what the HTTP API and the operator bot talk to
type MonitoringService struct {
	readings    repository.ReadingRepository
	predictions repository.PredictionRepository
	trigger     RunTrigger
	loc         *time.Location
	clock       clockwork.Clock
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// NewMonitoringService creates the service. A nil loc means UTC.
func NewMonitoringService(
	store repository.Store,
	trigger RunTrigger,
	loc *time.Location,
	clock clockwork.Clock,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *MonitoringService {
	if loc == nil {
		loc = time.UTC
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MonitoringService{
		readings:    store.Readings(),
		predictions: store.Predictions(),
		trigger:     trigger,
		loc:         loc,
		clock:       clock,
		logger:      logger,
		metrics:     metrics,
	}
}

// SubmitReading validates and stores one device measurement stamped with the server time.
// Validation failures wrap entities.ErrInvalidReading and are never stored.
func (s *MonitoringService) SubmitReading(ctx context.Context, in entities.ReadingInput) (entities.Reading, error) {
	if err := in.Validate(); err != nil {
		s.metrics.ReadingsRejected.Inc()
		s.logger.Debug("reading rejected", "error", err)
		return entities.Reading{}, err
	}

	stored, err := s.readings.Insert(ctx, entities.NewReading(in, s.clock.Now()))
	if err != nil {
		return entities.Reading{}, fmt.Errorf("failed to store reading: %w", err)
	}
	s.metrics.ReadingsIngested.Inc()
	return stored, nil
}

// LatestReading returns the newest reading, or nil when none exists
func (s *MonitoringService) LatestReading(ctx context.Context) (*entities.Reading, error) {
	r, err := s.readings.Latest(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest reading: %w", err)
	}
	return &r, nil
}

// LatestPrediction returns the prediction with the greatest date, or nil when none exists
func (s *MonitoringService) LatestPrediction(ctx context.Context) (*entities.Prediction, error) {
	p, err := s.predictions.Latest(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest prediction: %w", err)
	}
	return &p, nil
}

// PredictionFor returns the prediction stored for day, or nil
func (s *MonitoringService) PredictionFor(ctx context.Context, day entities.Day) (*entities.Prediction, error) {
	p, err := s.predictions.Get(ctx, day)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load prediction for %s: %w", day, err)
	}
	return &p, nil
}

// Dashboard returns the newest reading and prediction together
func (s *MonitoringService) Dashboard(ctx context.Context) (entities.DashboardSnapshot, error) {
	reading, err := s.LatestReading(ctx)
	if err != nil {
		return entities.DashboardSnapshot{}, err
	}
	prediction, err := s.LatestPrediction(ctx)
	if err != nil {
		return entities.DashboardSnapshot{}, err
	}
	return entities.DashboardSnapshot{LatestReading: reading, LatestPrediction: prediction}, nil
}

// Yesterday is the default day for a manual trigger
func (s *MonitoringService) Yesterday() entities.Day {
	return entities.DayOf(s.clock.Now(), s.loc).Prev()
}

// TriggerDailyPrediction runs the pipeline for day, or for yesterday when day is nil.
// A busy result means another run was in flight and nothing was started.
func (s *MonitoringService) TriggerDailyPrediction(ctx context.Context, day *entities.Day) entities.RunResult {
	target := s.Yesterday()
	if day != nil {
		target = *day
	}
	s.logger.Info("manual pipeline run requested", "day", target.String())
	return s.trigger.RunFor(ctx, target)
}
