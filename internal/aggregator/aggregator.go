// Package aggregator reduces one calendar day of readings to per-metric means
package aggregator

import (
	"context"
	"fmt"
	"time"

	"github.com/abelzeko/water-quality/internal/entities"
	"github.com/abelzeko/water-quality/internal/repository"
)

// Aggregator computes daily summaries. Day boundaries are taken in loc, which
// must be the same location the scheduler uses.
type Aggregator struct {
	readings repository.ReadingRepository
	loc      *time.Location
}

// New creates an Aggregator over the given reading repository
func New(readings repository.ReadingRepository, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{readings: readings, loc: loc}
}

// Location returns the reference zone used for day boundaries
func (a *Aggregator) Location() *time.Location {
	return a.loc
}

// Aggregate returns the means and count of all readings in [start of day, start of next day).
// A day without readings is not an error: ReadingCount is 0 and the means are NaN.
func (a *Aggregator) Aggregate(ctx context.Context, day entities.Day) (entities.DailyAggregate, error) {
	if err := day.Validate(); err != nil {
		return entities.DailyAggregate{}, err
	}
	start, end := day.Bounds(a.loc)

	var acc accumulator
	err := a.readings.ScanRange(ctx, start, end, func(rd entities.Reading) error {
		acc.add(rd)
		return nil
	})
	if err != nil {
		return entities.DailyAggregate{}, fmt.Errorf("failed to aggregate readings for %s: %w", day, err)
	}

	return acc.result(day), nil
}

// accumulator keeps running sums with Kahan compensation so long days of
// near-identical values do not drift
type accumulator struct {
	n                       int
	ph, tds, turb, temp     float64
	phC, tdsC, turbC, tempC float64
}

func (a *accumulator) add(rd entities.Reading) {
	a.n++
	kahan(&a.ph, &a.phC, rd.PH)
	kahan(&a.tds, &a.tdsC, rd.TDS)
	kahan(&a.turb, &a.turbC, rd.Turbidity)
	kahan(&a.temp, &a.tempC, rd.Temperature)
}

func (a *accumulator) result(day entities.Day) entities.DailyAggregate {
	if a.n == 0 {
		return entities.EmptyAggregate(day)
	}
	n := float64(a.n)
	return entities.DailyAggregate{
		Day:            day,
		AvgPH:          a.ph / n,
		AvgTDS:         a.tds / n,
		AvgTurbidity:   a.turb / n,
		AvgTemperature: a.temp / n,
		ReadingCount:   a.n,
	}
}

func kahan(sum, comp *float64, v float64) {
	y := v - *comp
	t := *sum + y
	*comp = (t - *sum) - y
	*sum = t
}
