package usecases

import (
	"fmt"
	"strings"

	"github.com/abelzeko/water-quality/internal/entities"
)

const displayTime = "2006-01-02 15:04:05 MST"

// FormatReading formats a reading for chat display
func FormatReading(r *entities.Reading) string {
	if r == nil {
		return "No readings have been received yet."
	}

	var result strings.Builder
	result.WriteString("Latest reading:\n\n")
	result.WriteString(fmt.Sprintf("🧪 pH: %.2f\n", r.PH))
	result.WriteString(fmt.Sprintf("🧂 TDS: %.0f ppm\n", r.TDS))
	result.WriteString(fmt.Sprintf("🌫️ Turbidity: %.2f NTU\n", r.Turbidity))
	result.WriteString(fmt.Sprintf("🌡️ Temperature: %.1f °C\n", r.Temperature))
	result.WriteString(fmt.Sprintf("🕒 Received: %s", r.Timestamp.Format(displayTime)))
	return result.String()
}

// FormatPrediction formats a daily prediction for chat display
func FormatPrediction(p *entities.Prediction) string {
	if p == nil {
		return "No daily prediction is available yet."
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Water quality for %s: %s %s (%.0f%% confidence)\n\n",
		p.Date, riskIcon(p.Label), p.Label, p.Confidence*100))
	result.WriteString(fmt.Sprintf("Based on %d readings:\n", p.ReadingCount))
	result.WriteString(fmt.Sprintf("• avg pH %.2f\n", p.AvgPH))
	result.WriteString(fmt.Sprintf("• avg TDS %.0f ppm\n", p.AvgTDS))
	result.WriteString(fmt.Sprintf("• avg turbidity %.2f NTU\n", p.AvgTurbidity))
	result.WriteString(fmt.Sprintf("• avg temperature %.1f °C\n", p.AvgTemperature))
	result.WriteString(fmt.Sprintf("🕒 Computed: %s", p.CreatedAt.Format(displayTime)))
	return result.String()
}

// FormatDashboard formats both halves of the dashboard
func FormatDashboard(s entities.DashboardSnapshot) string {
	return FormatReading(s.LatestReading) + "\n\n" + FormatPrediction(s.LatestPrediction)
}

// FormatRunResult summarizes a pipeline run for an operator
func FormatRunResult(r entities.RunResult) string {
	switch r.Status {
	case entities.RunCompleted:
		return fmt.Sprintf("✅ Prediction for %s stored: %s (%.0f%%) from %d readings.",
			r.Day, r.Prediction.Label, r.Prediction.Confidence*100, r.ReadingCount)
	case entities.RunNoData:
		return fmt.Sprintf("ℹ️ No readings for %s, nothing was stored.", r.Day)
	case entities.RunBusy:
		return fmt.Sprintf("⏳ Another run is in progress, %s was not started. Try again shortly.", r.Day)
	default:
		return fmt.Sprintf("❌ Run for %s failed while %s: %s", r.Day, strings.ToLower(string(r.FailedStep)), r.Error)
	}
}

func riskIcon(label string) string {
	l := strings.ToLower(label)
	switch {
	case strings.Contains(l, "high"):
		return "🔴"
	case strings.Contains(l, "moderate"):
		return "🟡"
	case strings.Contains(l, "safe"):
		return "🟢"
	default:
		return "⚪"
	}
}
