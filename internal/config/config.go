// Package config reads service settings from the environment
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Storage drivers accepted in STORAGE_DRIVER
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Reference zone for calendar days and the cron schedule.
	Timezone     string
	Location     *time.Location
	ScheduleSpec string

	StorageDriver string
	SQLitePath    string
	DatabaseURL   string

	ModelPath   string
	EncoderPath string

	// Prediction publishing is enabled when KafkaBrokers is non-empty.
	KafkaBrokers          []string
	KafkaPredictionsTopic string

	TelegramBotToken     string
	TelegramAdminChatIDs []int64
	OpenAIAPIKey         string
}

// PublishingEnabled reports whether predictions go to Kafka
func (c *Config) PublishingEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// LoadDotEnv loads a .env file into the environment when one exists. Variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := time.ParseDuration(envOrDefault("SHUTDOWN_TIMEOUT", "10s"))
	if err != nil || shutdownTimeout <= 0 {
		return nil, errors.New("invalid SHUTDOWN_TIMEOUT")
	}

	tz := envOrDefault("TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", tz, err)
	}

	spec := envOrDefault("SCHEDULE_SPEC", "0 0 * * *")
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid SCHEDULE_SPEC %q: %w", spec, err)
	}

	adminIDs, err := parseChatIDs(os.Getenv("TELEGRAM_ADMIN_CHAT_IDS"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8000"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		Timezone:     tz,
		Location:     loc,
		ScheduleSpec: spec,

		StorageDriver: strings.ToLower(envOrDefault("STORAGE_DRIVER", DriverSQLite)),
		SQLitePath:    envOrDefault("SQLITE_PATH", "data/water_quality.db"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),

		ModelPath:   envOrDefault("MODEL_PATH", "ml_artifacts/water_quality_rf_model.json"),
		EncoderPath: envOrDefault("ENCODER_PATH", "ml_artifacts/label_encoder.json"),

		KafkaBrokers:          parseList(os.Getenv("KAFKA_BROKERS")),
		KafkaPredictionsTopic: envOrDefault("KAFKA_PREDICTIONS_TOPIC", "water-quality-predictions"),

		TelegramBotToken:     os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramAdminChatIDs: adminIDs,
		OpenAIAPIKey:         os.Getenv("OPENAI_API_KEY"),
	}

	switch cfg.StorageDriver {
	case DriverSQLite:
		if cfg.SQLitePath == "" {
			return nil, errors.New("SQLITE_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required for the postgres driver")
		}
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}
	if cfg.PublishingEnabled() && cfg.KafkaPredictionsTopic == "" {
		return nil, errors.New("KAFKA_PREDICTIONS_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseChatIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range parseList(s) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_ADMIN_CHAT_IDS entry %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
