package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/abelzeko/water-quality/internal/entities"
	"github.com/abelzeko/water-quality/internal/repository"
)

// PredictionRepository implements repository.PredictionRepository using SQLite
type PredictionRepository struct {
	db *sql.DB
}

var _ repository.PredictionRepository = (*PredictionRepository)(nil)

const predictionColumns = `id, date, avg_ph, avg_tds, avg_turbidity, avg_temperature,
	prediction, prediction_confidence, reading_count, created_at_unix_nano`

// Upsert writes the prediction in a single statement so a failed write never
// leaves a partially updated row behind
func (r *PredictionRepository) Upsert(ctx context.Context, p entities.Prediction) (entities.Prediction, error) {
	if p.ReadingCount <= 0 || p.Date.IsZero() {
		return entities.Prediction{}, repository.ErrInvalidInput
	}

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO daily_predictions(date, avg_ph, avg_tds, avg_turbidity, avg_temperature,
			prediction, prediction_confidence, reading_count, created_at_unix_nano)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			avg_ph=excluded.avg_ph,
			avg_tds=excluded.avg_tds,
			avg_turbidity=excluded.avg_turbidity,
			avg_temperature=excluded.avg_temperature,
			prediction=excluded.prediction,
			prediction_confidence=excluded.prediction_confidence,
			reading_count=excluded.reading_count,
			created_at_unix_nano=excluded.created_at_unix_nano
		RETURNING `+predictionColumns,
		p.Date.String(), p.AvgPH, p.AvgTDS, p.AvgTurbidity, p.AvgTemperature,
		p.Label, p.Confidence, p.ReadingCount, p.CreatedAt.UnixNano(),
	)
	saved, err := scanPrediction(row)
	if err != nil {
		return entities.Prediction{}, fmt.Errorf("failed to upsert prediction for %s: %w", p.Date, err)
	}
	return saved, nil
}

// Get returns the prediction stored for day
func (r *PredictionRepository) Get(ctx context.Context, day entities.Day) (entities.Prediction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+predictionColumns+` FROM daily_predictions WHERE date = ?`, day.String())
	p, err := scanPrediction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.Prediction{}, repository.ErrNotFound
	}
	return p, err
}

// Latest returns the prediction with the greatest date. Dates are stored as
// YYYY-MM-DD so lexical order is calendar order.
func (r *PredictionRepository) Latest(ctx context.Context) (entities.Prediction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+predictionColumns+` FROM daily_predictions ORDER BY date DESC LIMIT 1`)
	p, err := scanPrediction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.Prediction{}, repository.ErrNotFound
	}
	return p, err
}

func scanPrediction(s scanner) (entities.Prediction, error) {
	var (
		p         entities.Prediction
		date      string
		createdAt int64
	)
	err := s.Scan(&p.ID, &date, &p.AvgPH, &p.AvgTDS, &p.AvgTurbidity, &p.AvgTemperature,
		&p.Label, &p.Confidence, &p.ReadingCount, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entities.Prediction{}, err
		}
		return entities.Prediction{}, fmt.Errorf("failed to scan prediction: %w", err)
	}
	if p.Date, err = entities.ParseDay(date); err != nil {
		return entities.Prediction{}, err
	}
	p.CreatedAt = time.Unix(0, createdAt).UTC()
	return p, nil
}
