package usecases

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/abelzeko/water-quality/internal/entities"
	"github.com/abelzeko/water-quality/internal/model"
	"github.com/abelzeko/water-quality/internal/observability"
	"github.com/abelzeko/water-quality/internal/repository"
)

// Aggregator summarizes one calendar day of readings
type Aggregator interface {
	Aggregate(ctx context.Context, day entities.Day) (entities.DailyAggregate, error)
}

// Predictor classifies a day's feature vector
type Predictor interface {
	Predict(f entities.Features) (model.Result, error)
}

// PredictionPublisher forwards stored predictions to downstream consumers
type PredictionPublisher interface {
	Publish(ctx context.Context, p entities.Prediction) error
}

// Pipeline runs the daily aggregate, predict and persist sequence for one day.
// It does not serialize runs itself; callers go through the scheduler for that.
type Pipeline struct {
	aggregator  Aggregator
	predictor   Predictor
	predictions repository.PredictionRepository
	publisher   PredictionPublisher
	clock       clockwork.Clock
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// PipelineOption customizes a Pipeline
type PipelineOption func(*Pipeline)

// WithClock sets the clock used for created_at and run timings
func WithClock(c clockwork.Clock) PipelineOption {
	return func(p *Pipeline) { p.clock = c }
}

// WithPublisher publishes every stored prediction
func WithPublisher(pub PredictionPublisher) PipelineOption {
	return func(p *Pipeline) { p.publisher = pub }
}

// NewPipeline wires the pipeline steps together
func NewPipeline(
	agg Aggregator,
	predictor Predictor,
	predictions repository.PredictionRepository,
	logger *slog.Logger,
	metrics *observability.Metrics,
	opts ...PipelineOption,
) *Pipeline {
	p := &Pipeline{
		aggregator:  agg,
		predictor:   predictor,
		predictions: predictions,
		clock:       clockwork.NewRealClock(),
		logger:      logger,
		metrics:     metrics,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes one pipeline run for day. Failures are reported in the result, never returned.
func (p *Pipeline) Run(ctx context.Context, day entities.Day, trigger entities.Trigger) entities.RunResult {
	res := entities.RunResult{
		RunID:     uuid.NewString(),
		Day:       day,
		Trigger:   trigger,
		StartedAt: p.clock.Now(),
	}
	log := p.logger.With("run_id", res.RunID, "day", day.String(), "trigger", string(trigger))

	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	res = p.run(ctx, res, log)

	res.FinishedAt = p.clock.Now()
	p.metrics.PipelineRuns.WithLabelValues(string(res.Status)).Inc()
	p.metrics.PipelineDuration.Observe(res.Duration().Seconds())

	switch res.Status {
	case entities.RunFailed:
		log.Error("pipeline run failed", "step", string(res.FailedStep), "error", res.Error,
			"duration", res.Duration())
	case entities.RunNoData:
		log.Warn("no readings for day, skipping prediction", "duration", res.Duration())
	default:
		p.metrics.PipelineLastSuccess.Set(float64(res.FinishedAt.Unix()))
		p.metrics.Predictions.WithLabelValues(res.Prediction.Label).Inc()
		log.Info("pipeline run completed",
			"prediction", res.Prediction.Label,
			"confidence", res.Prediction.Confidence,
			"reading_count", res.ReadingCount,
			"duration", res.Duration())
		p.publish(ctx, *res.Prediction, log)
	}
	return res
}

func (p *Pipeline) run(ctx context.Context, res entities.RunResult, log *slog.Logger) entities.RunResult {
	fail := func(step entities.RunState, err error) entities.RunResult {
		res.State = entities.StateFailed
		res.Status = entities.RunFailed
		res.FailedStep = step
		res.Error = err.Error()
		return res
	}

	res.State = entities.StateAggregating
	log.Debug("aggregating readings")
	agg, err := p.aggregator.Aggregate(ctx, res.Day)
	if err != nil {
		return fail(entities.StateAggregating, err)
	}
	res.ReadingCount = agg.ReadingCount

	if agg.ReadingCount == 0 {
		res.State = entities.StateDone
		res.Status = entities.RunNoData
		return res
	}

	res.State = entities.StatePredicting
	log.Debug("running classifier", "reading_count", agg.ReadingCount)
	verdict, err := p.predictor.Predict(agg.Features())
	if err != nil {
		return fail(entities.StatePredicting, err)
	}
	if verdict.Confidence < 0 || verdict.Confidence > 1 {
		return fail(entities.StatePredicting, fmt.Errorf("%w: confidence %v outside [0, 1]", model.ErrInvalidArtifact, verdict.Confidence))
	}

	res.State = entities.StatePersisting
	if err := ctx.Err(); err != nil {
		return fail(entities.StatePersisting, err)
	}
	prediction := entities.NewPrediction(agg, verdict.Label, verdict.Confidence, p.clock.Now())
	stored, err := p.predictions.Upsert(ctx, prediction)
	if err != nil {
		return fail(entities.StatePersisting, err)
	}

	res.State = entities.StateDone
	res.Status = entities.RunCompleted
	res.Prediction = &stored
	return res
}

func (p *Pipeline) publish(ctx context.Context, pred entities.Prediction, log *slog.Logger) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, pred); err != nil {
		p.metrics.PublishErrors.Inc()
		log.Error("failed to publish prediction", "error", err)
	}
}
