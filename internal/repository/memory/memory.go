// Package memory provides in-memory repositories for tests and local runs
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/abelzeko/water-quality/internal/entities"
	"github.com/abelzeko/water-quality/internal/repository"
)

// Store is an in-memory implementation of repository.Store
type Store struct {
	readings    *ReadingRepository
	predictions *PredictionRepository
}

var _ repository.Store = (*Store)(nil)

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{
		readings:    NewReadingRepository(),
		predictions: NewPredictionRepository(),
	}
}

func (s *Store) Readings() repository.ReadingRepository       { return s.readings }
func (s *Store) Predictions() repository.PredictionRepository { return s.predictions }
func (s *Store) Ping(context.Context) error                   { return nil }
func (s *Store) Close() error                                 { return nil }

// ReadingRepository is an in-memory implementation of repository.ReadingRepository
type ReadingRepository struct {
	mu     sync.RWMutex
	nextID int64
	data   []entities.Reading
}

// NewReadingRepository creates an empty reading repository
func NewReadingRepository() *ReadingRepository {
	return &ReadingRepository{nextID: 1}
}

// Insert appends a reading
func (r *ReadingRepository) Insert(_ context.Context, rd entities.Reading) (entities.Reading, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rd.ID = r.nextID
	if rd.Timestamp.IsZero() {
		rd.Timestamp = time.Now()
	}
	rd.Timestamp = rd.Timestamp.UTC()
	r.nextID++
	r.data = append(r.data, rd)
	return rd, nil
}

// RangeQuery returns readings with start <= timestamp < end, ordered by timestamp
func (r *ReadingRepository) RangeQuery(ctx context.Context, start, end time.Time) ([]entities.Reading, error) {
	var result []entities.Reading
	err := r.ScanRange(ctx, start, end, func(rd entities.Reading) error {
		result = append(result, rd)
		return nil
	})
	return result, err
}

// ScanRange visits a snapshot of the matching readings taken under the read lock
func (r *ReadingRepository) ScanRange(ctx context.Context, start, end time.Time, fn func(entities.Reading) error) error {
	r.mu.RLock()
	var matched []entities.Reading
	for _, rd := range r.data {
		if !rd.Timestamp.Before(start) && rd.Timestamp.Before(end) {
			matched = append(matched, rd)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.Before(matched[j].Timestamp)
	})
	for _, rd := range matched {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(rd); err != nil {
			return err
		}
	}
	return nil
}

// Latest returns the reading with the greatest timestamp
func (r *ReadingRepository) Latest(_ context.Context) (entities.Reading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.data) == 0 {
		return entities.Reading{}, repository.ErrNotFound
	}
	latest := r.data[0]
	for _, rd := range r.data[1:] {
		if !rd.Timestamp.Before(latest.Timestamp) {
			latest = rd
		}
	}
	return latest, nil
}

// PredictionRepository is an in-memory implementation of repository.PredictionRepository
type PredictionRepository struct {
	mu     sync.RWMutex
	nextID int64
	data   map[entities.Day]entities.Prediction
}

// NewPredictionRepository creates an empty prediction repository
func NewPredictionRepository() *PredictionRepository {
	return &PredictionRepository{
		nextID: 1,
		data:   make(map[entities.Day]entities.Prediction),
	}
}

// Upsert replaces the whole record for p.Date, keeping its ID
func (r *PredictionRepository) Upsert(_ context.Context, p entities.Prediction) (entities.Prediction, error) {
	if p.ReadingCount <= 0 || p.Date.IsZero() {
		return entities.Prediction{}, repository.ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.data[p.Date]; ok {
		p.ID = existing.ID
	} else {
		p.ID = r.nextID
		r.nextID++
	}
	p.CreatedAt = p.CreatedAt.UTC()
	r.data[p.Date] = p
	return p, nil
}

// Get returns the prediction for day
func (r *PredictionRepository) Get(_ context.Context, day entities.Day) (entities.Prediction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.data[day]
	if !ok {
		return entities.Prediction{}, repository.ErrNotFound
	}
	return p, nil
}

// Latest returns the prediction with the greatest date
func (r *PredictionRepository) Latest(_ context.Context) (entities.Prediction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		latest entities.Prediction
		found  bool
	)
	for day, p := range r.data {
		if !found || latest.Date.Before(day) {
			latest = p
			found = true
		}
	}
	if !found {
		return entities.Prediction{}, repository.ErrNotFound
	}
	return latest, nil
}

// Len returns the number of stored predictions
func (r *PredictionRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}
