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

// ReadingRepository implements repository.ReadingRepository using PostgreSQL
type ReadingRepository struct {
	pool *pgxpool.Pool
}

var _ repository.ReadingRepository = (*ReadingRepository)(nil)

// Insert stores a reading and returns it with its assigned ID
func (r *ReadingRepository) Insert(ctx context.Context, rd entities.Reading) (entities.Reading, error) {
	if rd.Timestamp.IsZero() {
		rd.Timestamp = time.Now()
	}
	// TIMESTAMPTZ keeps microseconds; mirror what a read would return.
	rd.Timestamp = rd.Timestamp.UTC().Truncate(time.Microsecond)
	err := r.pool.QueryRow(ctx, `
		INSERT INTO sensor_readings (ph, tds, turbidity, temperature, "timestamp")
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		rd.PH, rd.TDS, rd.Turbidity, rd.Temperature, rd.Timestamp,
	).Scan(&rd.ID)
	if err != nil {
		return entities.Reading{}, fmt.Errorf("insert reading: %w", err)
	}
	return rd, nil
}

// RangeQuery returns readings with start <= timestamp < end
func (r *ReadingRepository) RangeQuery(ctx context.Context, start, end time.Time) ([]entities.Reading, error) {
	var result []entities.Reading
	err := r.ScanRange(ctx, start, end, func(rd entities.Reading) error {
		result = append(result, rd)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ScanRange streams matching readings in timestamp order
func (r *ReadingRepository) ScanRange(ctx context.Context, start, end time.Time, fn func(entities.Reading) error) error {
	rows, err := r.pool.Query(ctx, `
		SELECT id, ph, tds, turbidity, temperature, "timestamp"
		FROM sensor_readings
		WHERE "timestamp" >= $1 AND "timestamp" < $2
		ORDER BY "timestamp", id`,
		start, end,
	)
	if err != nil {
		return fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rd, err := scanReading(rows)
		if err != nil {
			return err
		}
		if err := fn(rd); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate readings: %w", err)
	}
	return nil
}

// Latest returns the reading with the greatest timestamp
func (r *ReadingRepository) Latest(ctx context.Context) (entities.Reading, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, ph, tds, turbidity, temperature, "timestamp"
		FROM sensor_readings
		ORDER BY "timestamp" DESC, id DESC
		LIMIT 1`)
	rd, err := scanReading(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return entities.Reading{}, repository.ErrNotFound
	}
	return rd, err
}

func scanReading(row pgx.Row) (entities.Reading, error) {
	var rd entities.Reading
	if err := row.Scan(&rd.ID, &rd.PH, &rd.TDS, &rd.Turbidity, &rd.Temperature, &rd.Timestamp); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return entities.Reading{}, err
		}
		return entities.Reading{}, fmt.Errorf("scan reading: %w", err)
	}
	rd.Timestamp = rd.Timestamp.UTC()
	return rd, nil
}
