package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/abelzeko/water-quality/internal/entities"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// readingRequest uses pointers so a missing metric can be told apart from zero
type readingRequest struct {
	PH          *float64 `json:"ph"`
	TDS         *float64 `json:"tds"`
	Turbidity   *float64 `json:"turbidity"`
	Temperature *float64 `json:"temperature"`
}

func (r readingRequest) input() (entities.ReadingInput, error) {
	fields := []struct {
		name string
		v    *float64
	}{{"ph", r.PH}, {"tds", r.TDS}, {"turbidity", r.Turbidity}, {"temperature", r.Temperature}}
	for _, f := range fields {
		if f.v == nil {
			return entities.ReadingInput{}, fmt.Errorf("%s is required", f.name)
		}
	}
	return entities.ReadingInput{PH: *r.PH, TDS: *r.TDS, Turbidity: *r.Turbidity, Temperature: *r.Temperature}, nil
}

func handleIndex(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Water Quality Monitoring System API",
		"status":  "running",
		"endpoints": map[string]string{
			"submit_reading":     "POST /api/readings",
			"latest_reading":     "GET /api/readings/latest",
			"latest_prediction":  "GET /api/predictions/latest",
			"prediction_by_date": "GET /api/predictions/{date}",
			"trigger_prediction": "POST /api/predictions/trigger?date=YYYY-MM-DD",
			"dashboard":          "GET /api/dashboard",
		},
	})
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func (s *Server) handleSubmitReading(w http.ResponseWriter, r *http.Request) {
	var req readingRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("malformed reading: %w", err))
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	reading, err := s.service.SubmitReading(r.Context(), in)
	switch {
	case errors.Is(err, entities.ErrInvalidReading):
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	case err != nil:
		s.logger.Error("failed to save sensor reading", "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("failed to save sensor reading"))
		return
	}

	s.logger.Info("sensor reading received", "id", reading.ID)
	writeJSON(w, http.StatusCreated, reading)
}

func (s *Server) handleLatestReading(w http.ResponseWriter, r *http.Request) {
	reading, err := s.service.LatestReading(r.Context())
	if err != nil {
		s.internalError(w, "failed to load latest reading", err)
		return
	}
	if reading == nil {
		writeError(w, http.StatusNotFound, errors.New("no sensor readings found"))
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

func (s *Server) handleLatestPrediction(w http.ResponseWriter, r *http.Request) {
	prediction, err := s.service.LatestPrediction(r.Context())
	if err != nil {
		s.internalError(w, "failed to load latest prediction", err)
		return
	}
	if prediction == nil {
		writeError(w, http.StatusNotFound, errors.New("no predictions found"))
		return
	}
	writeJSON(w, http.StatusOK, prediction)
}

func (s *Server) handlePredictionByDate(w http.ResponseWriter, r *http.Request) {
	day, err := entities.ParseDay(mux.Vars(r)["date"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	prediction, err := s.service.PredictionFor(r.Context(), day)
	if err != nil {
		s.internalError(w, "failed to load prediction", err)
		return
	}
	if prediction == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("no prediction for %s", day))
		return
	}
	writeJSON(w, http.StatusOK, prediction)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.Dashboard(r.Context())
	if err != nil {
		s.internalError(w, "failed to load dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleTrigger runs the pipeline synchronously. Busy is reported as 409 without waiting.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var day *entities.Day
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := entities.ParseDay(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		day = &d
	}

	res := s.service.TriggerDailyPrediction(r.Context(), day)
	writeJSON(w, triggerStatusCode(res.Status), res)
}

func triggerStatusCode(status entities.RunStatus) int {
	switch status {
	case entities.RunCompleted, entities.RunNoData:
		return http.StatusOK
	case entities.RunBusy:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) internalError(w http.ResponseWriter, msg string, err error) {
	s.logger.Error(msg, "error", err)
	writeError(w, http.StatusInternalServerError, errors.New(msg))
}

// decodeBody reads exactly one JSON value from the request body
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON object")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client may be gone
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: http.StatusText(status), Message: err.Error()})
}
