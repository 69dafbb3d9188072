// Package api exposes the monitoring service over HTTP and Telegram
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abelzeko/water-quality/internal/entities"
)

// MonitoringService is the application surface shared by the HTTP API and the bot
type MonitoringService interface {
	SubmitReading(ctx context.Context, in entities.ReadingInput) (entities.Reading, error)
	LatestReading(ctx context.Context) (*entities.Reading, error)
	LatestPrediction(ctx context.Context) (*entities.Prediction, error)
	PredictionFor(ctx context.Context, day entities.Day) (*entities.Prediction, error)
	Dashboard(ctx context.Context) (entities.DashboardSnapshot, error)
	TriggerDailyPrediction(ctx context.Context, day *entities.Day) entities.RunResult
}

// ReadinessChecker reports whether the backing store is reachable.
type ReadinessChecker interface {
	Ping(ctx context.Context) error
}

// Server serves the REST API plus health, readiness and metrics endpoints.
type Server struct {
	httpServer *http.Server
	service    MonitoringService
	logger     *slog.Logger
}

// NewServer creates the HTTP server and registers every route.
func NewServer(addr string, service MonitoringService, ready ReadinessChecker, logger *slog.Logger) *Server {
	router := mux.NewRouter()

	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           corsMiddleware(router),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			// manual runs aggregate a full day before responding
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		service: service,
		logger:  logger,
	}

	router.HandleFunc("/", handleIndex).Methods(http.MethodGet)
	router.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/readyz", handleReady(ready)).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/readings", s.handleSubmitReading).Methods(http.MethodPost)
	api.HandleFunc("/readings/latest", s.handleLatestReading).Methods(http.MethodGet)
	api.HandleFunc("/predictions/latest", s.handleLatestPrediction).Methods(http.MethodGet)
	api.HandleFunc("/predictions/trigger", s.handleTrigger).Methods(http.MethodPost)
	api.HandleFunc("/predictions/{date}", s.handlePredictionByDate).Methods(http.MethodGet)
	api.HandleFunc("/dashboard", s.handleDashboard).Methods(http.MethodGet)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// corsMiddleware allows any origin, the dashboard is served from elsewhere.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
