// Package kafka publishes stored daily predictions to a Kafka topic
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/abelzeko/water-quality/internal/config"
	"github.com/abelzeko/water-quality/internal/entities"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer produces prediction messages to the configured topic.
// It implements usecases.PredictionPublisher.
type Writer struct {
	writer messageWriter
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the predictions topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaPredictionsTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		WriteTimeout: 10 * time.Second,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish writes one prediction keyed by its date, so reruns of a day land on the same partition.
func (w *Writer) Publish(ctx context.Context, p entities.Prediction) error {
	msg, err := serializeToMessage(p)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish prediction for %s: %w", p.Date, err)
	}
	w.logger.Debug("prediction published", "day", p.Date.String(), "prediction", p.Label)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a Prediction into a Kafka message.
func serializeToMessage(p entities.Prediction) (kafkago.Message, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize prediction: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(p.Date.String()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "prediction", Value: []byte(p.Label)},
			{Key: "date", Value: []byte(p.Date.String())},
			{Key: "created_at", Value: []byte(p.CreatedAt.Format(time.RFC3339))},
		},
	}, nil
}
