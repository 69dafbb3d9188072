// Package repository provides data access for sensor readings and daily predictions
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/abelzeko/water-quality/internal/entities"
)

var (
	// ErrNotFound is returned when a requested record does not exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when a record violates a storage constraint
	ErrInvalidInput = errors.New("invalid input")
)

// ReadingRepository is the append-only store of sensor readings
type ReadingRepository interface {
	// Insert stores a reading and returns it with its assigned ID
	Insert(ctx context.Context, r entities.Reading) (entities.Reading, error)

	// RangeQuery returns readings with start <= timestamp < end, ordered by timestamp
	RangeQuery(ctx context.Context, start, end time.Time) ([]entities.Reading, error)

	// ScanRange visits the same readings as RangeQuery without materializing them.
	// Returning an error from fn stops the scan and is returned as is.
	ScanRange(ctx context.Context, start, end time.Time, fn func(entities.Reading) error) error

	// Latest returns the reading with the greatest timestamp or ErrNotFound
	Latest(ctx context.Context) (entities.Reading, error)
}

// PredictionRepository keeps one prediction per calendar date
type PredictionRepository interface {
	// Upsert inserts the prediction or atomically replaces every field of the
	// existing row for the same date. The row ID survives replacement.
	Upsert(ctx context.Context, p entities.Prediction) (entities.Prediction, error)

	// Get returns the prediction for day or ErrNotFound
	Get(ctx context.Context, day entities.Day) (entities.Prediction, error)

	// Latest returns the prediction with the greatest date or ErrNotFound
	Latest(ctx context.Context) (entities.Prediction, error)
}

// Store bundles both repositories behind one connection
type Store interface {
	Readings() ReadingRepository
	Predictions() PredictionRepository
	Ping(ctx context.Context) error
	Close() error
}
