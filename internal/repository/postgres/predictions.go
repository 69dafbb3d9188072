package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abelzeko/water-quality/internal/entities"
	"github.com/abelzeko/water-quality/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PredictionRepository implements repository.PredictionRepository using PostgreSQL
type PredictionRepository struct {
	pool *pgxpool.Pool
}

var _ repository.PredictionRepository = (*PredictionRepository)(nil)

const predictionColumns = `id, date, avg_ph, avg_tds, avg_turbidity, avg_temperature,
	prediction, prediction_confidence, reading_count, created_at`

// Upsert inserts or replaces the row for p.Date in one statement
func (r *PredictionRepository) Upsert(ctx context.Context, p entities.Prediction) (entities.Prediction, error) {
	if p.ReadingCount <= 0 || p.Date.IsZero() {
		return entities.Prediction{}, repository.ErrInvalidInput
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO daily_predictions (date, avg_ph, avg_tds, avg_turbidity, avg_temperature,
			prediction, prediction_confidence, reading_count, created_at)
		VALUES ($1::date, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (date) DO UPDATE SET
			avg_ph = EXCLUDED.avg_ph,
			avg_tds = EXCLUDED.avg_tds,
			avg_turbidity = EXCLUDED.avg_turbidity,
			avg_temperature = EXCLUDED.avg_temperature,
			prediction = EXCLUDED.prediction,
			prediction_confidence = EXCLUDED.prediction_confidence,
			reading_count = EXCLUDED.reading_count,
			created_at = EXCLUDED.created_at
		RETURNING `+predictionColumns,
		p.Date.String(), p.AvgPH, p.AvgTDS, p.AvgTurbidity, p.AvgTemperature,
		p.Label, p.Confidence, p.ReadingCount, p.CreatedAt,
	)
	saved, err := scanPrediction(row)
	if err != nil {
		return entities.Prediction{}, fmt.Errorf("upsert prediction for %s: %w", p.Date, err)
	}
	return saved, nil
}

// Get returns the prediction for day
func (r *PredictionRepository) Get(ctx context.Context, day entities.Day) (entities.Prediction, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+predictionColumns+` FROM daily_predictions WHERE date = $1::date`, day.String())
	p, err := scanPrediction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return entities.Prediction{}, repository.ErrNotFound
	}
	return p, err
}

// Latest returns the prediction with the greatest date
func (r *PredictionRepository) Latest(ctx context.Context) (entities.Prediction, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+predictionColumns+` FROM daily_predictions ORDER BY date DESC LIMIT 1`)
	p, err := scanPrediction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return entities.Prediction{}, repository.ErrNotFound
	}
	return p, err
}

func scanPrediction(row pgx.Row) (entities.Prediction, error) {
	var (
		p    entities.Prediction
		date time.Time
	)
	err := row.Scan(&p.ID, &date, &p.AvgPH, &p.AvgTDS, &p.AvgTurbidity, &p.AvgTemperature,
		&p.Label, &p.Confidence, &p.ReadingCount, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return entities.Prediction{}, err
		}
		return entities.Prediction{}, fmt.Errorf("scan prediction: %w", err)
	}
	// DATE columns decode as midnight UTC
	p.Date = entities.DayOf(date, time.UTC)
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}
