package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/abelzeko/water-quality/internal/entities"
	"github.com/abelzeko/water-quality/internal/repository"
)

// ReadingRepository implements repository.ReadingRepository using SQLite.
// Timestamps are stored as UTC unix nanoseconds so range bounds compare exactly.
type ReadingRepository struct {
	db *sql.DB
}

var _ repository.ReadingRepository = (*ReadingRepository)(nil)

var (
	minStorable = time.Unix(0, math.MinInt64)
	maxStorable = time.Unix(0, math.MaxInt64)
)

// unixNano rejects instants that would overflow the ts_unix_nano column
func unixNano(t time.Time) (int64, error) {
	if t.Before(minStorable) || t.After(maxStorable) {
		return 0, fmt.Errorf("%w: timestamp %s outside storable range", repository.ErrInvalidInput, t.UTC().Format(time.RFC3339))
	}
	return t.UnixNano(), nil
}

// Insert stores a sensor reading
func (r *ReadingRepository) Insert(ctx context.Context, rd entities.Reading) (entities.Reading, error) {
	if rd.Timestamp.IsZero() {
		rd.Timestamp = time.Now()
	}
	ts, err := unixNano(rd.Timestamp)
	if err != nil {
		return entities.Reading{}, err
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO sensor_readings(ph, tds, turbidity, temperature, ts_unix_nano)
		VALUES(?, ?, ?, ?, ?)`,
		rd.PH, rd.TDS, rd.Turbidity, rd.Temperature, ts,
	)
	if err != nil {
		return entities.Reading{}, fmt.Errorf("failed to insert reading: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return entities.Reading{}, fmt.Errorf("failed to read inserted id: %w", err)
	}
	rd.ID = id
	rd.Timestamp = time.Unix(0, ts).UTC()
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

// ScanRange streams readings with start <= timestamp < end in timestamp order
func (r *ReadingRepository) ScanRange(ctx context.Context, start, end time.Time, fn func(entities.Reading) error) error {
	from, err := unixNano(start)
	if err != nil {
		return err
	}
	to, err := unixNano(end)
	if err != nil {
		return err
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, ph, tds, turbidity, temperature, ts_unix_nano
		FROM sensor_readings
		WHERE ts_unix_nano >= ? AND ts_unix_nano < ?
		ORDER BY ts_unix_nano, id`,
		from, to,
	)
	if err != nil {
		return fmt.Errorf("failed to query readings: %w", err)
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
		return fmt.Errorf("error during row iteration: %w", err)
	}
	return nil
}

// Latest returns the most recent reading by timestamp
func (r *ReadingRepository) Latest(ctx context.Context) (entities.Reading, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, ph, tds, turbidity, temperature, ts_unix_nano
		FROM sensor_readings
		ORDER BY ts_unix_nano DESC, id DESC
		LIMIT 1`)
	rd, err := scanReading(row)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.Reading{}, repository.ErrNotFound
	}
	return rd, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReading(s scanner) (entities.Reading, error) {
	var (
		rd entities.Reading
		ts int64
	)
	if err := s.Scan(&rd.ID, &rd.PH, &rd.TDS, &rd.Turbidity, &rd.Temperature, &ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entities.Reading{}, err
		}
		return entities.Reading{}, fmt.Errorf("failed to scan reading: %w", err)
	}
	rd.Timestamp = time.Unix(0, ts).UTC()
	return rd, nil
}
