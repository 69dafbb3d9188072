// Package entities contains the core domain objects for the water-quality service
package entities

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidReading is wrapped by every ValidationError
var ErrInvalidReading = errors.New("invalid sensor reading")

// Accepted sensor ranges. Values outside are rejected at ingestion.
const (
	MinPH          = 0.0
	MaxPH          = 14.0
	MaxTDS         = 10000.0 // ppm
	MaxTurbidity   = 4000.0  // NTU
	MinTemperature = -5.0    // °C
	MaxTemperature = 100.0
)

// Reading represents a single measurement submitted by a field device
type Reading struct {
	ID          int64     `json:"id"`
	PH          float64   `json:"ph"`
	TDS         float64   `json:"tds"`         // Total dissolved solids in ppm
	Turbidity   float64   `json:"turbidity"`   // Turbidity in NTU
	Temperature float64   `json:"temperature"` // Water temperature in °C
	Timestamp   time.Time `json:"timestamp"`
}

// ReadingInput is the payload a device submits
type ReadingInput struct {
	PH          float64 `json:"ph"`
	TDS         float64 `json:"tds"`
	Turbidity   float64 `json:"turbidity"`
	Temperature float64 `json:"temperature"`
}

// ValidationError describes the first field that failed validation
type ValidationError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %v", e.Field, e.Reason, e.Value)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidReading
}

// Validate checks every metric is finite and inside its physical range
func (in ReadingInput) Validate() error {
	checks := []struct {
		field    string
		value    float64
		min, max float64
	}{
		{"ph", in.PH, MinPH, MaxPH},
		{"tds", in.TDS, 0, MaxTDS},
		{"turbidity", in.Turbidity, 0, MaxTurbidity},
		{"temperature", in.Temperature, MinTemperature, MaxTemperature},
	}
	for _, c := range checks {
		if math.IsNaN(c.value) || math.IsInf(c.value, 0) {
			return &ValidationError{Field: c.field, Value: c.value, Reason: "must be a finite number, got"}
		}
		if c.value < c.min || c.value > c.max {
			return &ValidationError{
				Field:  c.field,
				Value:  c.value,
				Reason: fmt.Sprintf("must be within [%g, %g], got", c.min, c.max),
			}
		}
	}
	return nil
}

// NewReading builds an unsaved Reading stamped at ts
func NewReading(in ReadingInput, ts time.Time) Reading {
	return Reading{
		PH:          in.PH,
		TDS:         in.TDS,
		Turbidity:   in.Turbidity,
		Temperature: in.Temperature,
		Timestamp:   ts,
	}
}
