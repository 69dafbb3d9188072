package entities

import (
	"math"
	"time"
)

// Features is the vector fed to the classifier, in training column order
type Features struct {
	PH          float64 `json:"avg_ph"`
	TDS         float64 `json:"avg_tds"`
	Turbidity   float64 `json:"avg_turbidity"`
	Temperature float64 `json:"avg_temperature"`
}

// Vector returns the features as ph, tds, turbidity, temperature
func (f Features) Vector() []float64 {
	return []float64{f.PH, f.TDS, f.Turbidity, f.Temperature}
}

// DailyAggregate summarizes one calendar day of readings.
// With ReadingCount == 0 every mean is NaN.
type DailyAggregate struct {
	Day            Day
	AvgPH          float64
	AvgTDS         float64
	AvgTurbidity   float64
	AvgTemperature float64
	ReadingCount   int
}

// EmptyAggregate returns the aggregate of a day without readings
func EmptyAggregate(day Day) DailyAggregate {
	nan := math.NaN()
	return DailyAggregate{
		Day:            day,
		AvgPH:          nan,
		AvgTDS:         nan,
		AvgTurbidity:   nan,
		AvgTemperature: nan,
	}
}

// Features returns the four means as a feature vector
func (a DailyAggregate) Features() Features {
	return Features{
		PH:          a.AvgPH,
		TDS:         a.AvgTDS,
		Turbidity:   a.AvgTurbidity,
		Temperature: a.AvgTemperature,
	}
}

// Prediction is the persisted risk assessment for one calendar day
type Prediction struct {
	ID             int64     `json:"id"`
	Date           Day       `json:"date"`
	AvgPH          float64   `json:"avg_ph"`
	AvgTDS         float64   `json:"avg_tds"`
	AvgTurbidity   float64   `json:"avg_turbidity"`
	AvgTemperature float64   `json:"avg_temperature"`
	Label          string    `json:"prediction"`
	Confidence     float64   `json:"prediction_confidence"`
	ReadingCount   int       `json:"reading_count"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewPrediction combines an aggregate with the classifier's verdict
func NewPrediction(agg DailyAggregate, label string, confidence float64, createdAt time.Time) Prediction {
	return Prediction{
		Date:           agg.Day,
		AvgPH:          agg.AvgPH,
		AvgTDS:         agg.AvgTDS,
		AvgTurbidity:   agg.AvgTurbidity,
		AvgTemperature: agg.AvgTemperature,
		Label:          label,
		Confidence:     confidence,
		ReadingCount:   agg.ReadingCount,
		CreatedAt:      createdAt,
	}
}

// DashboardSnapshot is what the dashboard shows in one request
type DashboardSnapshot struct {
	LatestReading    *Reading    `json:"latest_reading"`
	LatestPrediction *Prediction `json:"latest_prediction"`
}
