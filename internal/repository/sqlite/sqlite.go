// Package sqlite implements the repositories on top of SQLite
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/abelzeko/water-quality/internal/repository"
	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sensor_readings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ph REAL NOT NULL,
	tds REAL NOT NULL,
	turbidity REAL NOT NULL,
	temperature REAL NOT NULL,
	ts_unix_nano INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sensor_readings_ts ON sensor_readings(ts_unix_nano);

CREATE TABLE IF NOT EXISTS daily_predictions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	date TEXT NOT NULL UNIQUE,
	avg_ph REAL NOT NULL,
	avg_tds REAL NOT NULL,
	avg_turbidity REAL NOT NULL,
	avg_temperature REAL NOT NULL,
	prediction TEXT NOT NULL,
	prediction_confidence REAL NOT NULL,
	reading_count INTEGER NOT NULL CHECK (reading_count > 0),
	created_at_unix_nano INTEGER NOT NULL
);`

// Store owns the SQLite connection shared by both repositories
type Store struct {
	db          *sql.DB
	DBPath      string
	readings    *ReadingRepository
	predictions *PredictionRepository
}

var _ repository.Store = (*Store)(nil)

// Open opens (creating if needed) the database at dbPath and applies the schema
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if dbPath == "" {
		dbPath = filepath.Join("data", "water_quality.db")
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	logger.Info("opening sqlite database", "path", dbPath)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &Store{
		db:          db,
		DBPath:      dbPath,
		readings:    &ReadingRepository{db: db},
		predictions: &PredictionRepository{db: db},
	}, nil
}

// Readings returns the sensor reading repository
func (s *Store) Readings() repository.ReadingRepository { return s.readings }

// Predictions returns the daily prediction repository
func (s *Store) Predictions() repository.PredictionRepository { return s.predictions }

// Ping checks the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
