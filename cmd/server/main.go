package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/abelzeko/water-quality/internal/aggregator"
	"github.com/abelzeko/water-quality/internal/api"
	"github.com/abelzeko/water-quality/internal/config"
	"github.com/abelzeko/water-quality/internal/integration/kafka"
	"github.com/abelzeko/water-quality/internal/integration/openai"
	"github.com/abelzeko/water-quality/internal/model"
	"github.com/abelzeko/water-quality/internal/observability"
	"github.com/abelzeko/water-quality/internal/repository"
	"github.com/abelzeko/water-quality/internal/repository/postgres"
	"github.com/abelzeko/water-quality/internal/repository/sqlite"
	"github.com/abelzeko/water-quality/internal/scheduler"
	"github.com/abelzeko/water-quality/internal/usecases"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	logger.Info("starting water quality service", "timezone", cfg.Timezone, "storage", cfg.StorageDriver)

	// The classifier must load before anything is served
	classifier, err := model.Load(cfg.ModelPath, cfg.EncoderPath)
	if err != nil {
		logger.Error("failed to load model artifacts", "model", cfg.ModelPath, "encoder", cfg.EncoderPath, "error", err)
		os.Exit(1)
	}
	logger.Info("model loaded", "trees", classifier.Trees(), "classes", classifier.Classes())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	clock := clockwork.NewRealClock()
	opts := []usecases.PipelineOption{usecases.WithClock(clock)}

	var writer *kafka.Writer
	if cfg.PublishingEnabled() {
		writer = kafka.NewWriter(cfg, logger)
		opts = append(opts, usecases.WithPublisher(writer))
		logger.Info("prediction publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaPredictionsTopic)
	}

	pipeline := usecases.NewPipeline(
		aggregator.New(store.Readings(), cfg.Location),
		classifier,
		store.Predictions(),
		logger,
		metrics,
		opts...,
	)

	sched, err := scheduler.New(pipeline, cfg.Location, logger, metrics,
		scheduler.WithClock(clock), scheduler.WithSpec(cfg.ScheduleSpec))
	if err != nil {
		logger.Error("failed to set up scheduler", "error", err)
		os.Exit(1)
	}

	service := usecases.NewMonitoringService(store, sched, cfg.Location, clock, logger, metrics)
	srv := api.NewServer(cfg.HTTPAddr, service, store, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	sched.Start()
	logger.Info("next scheduled run", "at", sched.Next())

	if cfg.TelegramBotToken != "" {
		startBot(ctx, cfg, service, logger)
	} else {
		logger.Info("telegram bot disabled")
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Error("scheduler stop error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.Store, error) {
	if cfg.StorageDriver == config.DriverPostgres {
		return postgres.Open(ctx, cfg.DatabaseURL)
	}
	return sqlite.Open(cfg.SQLitePath, logger)
}

func startBot(ctx context.Context, cfg *config.Config, service *usecases.MonitoringService, logger *slog.Logger) {
	var interpreter openai.OpenAIService
	if cfg.OpenAIAPIKey != "" {
		var err error
		interpreter, err = openai.NewOpenAIService(cfg.OpenAIAPIKey, logger)
		if err != nil {
			logger.Error("failed to initialize OpenAI service", "error", err)
		}
	}

	bot, err := api.NewTelegramBot(cfg.TelegramBotToken, service,
		usecases.NewAssistant(service, interpreter, logger), cfg.TelegramAdminChatIDs, logger)
	if err != nil {
		// the API keeps serving without the bot
		logger.Error("failed to initialize telegram bot", "error", err)
		return
	}
	go bot.Start(ctx)
}
