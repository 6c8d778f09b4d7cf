package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/couchcryptid/geodata-etl/internal/config"
	"github.com/couchcryptid/geodata-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// messageWriter is the part of kafkago.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes summary records to a Kafka topic.
// It implements pipeline.BatchLoader.
type Writer struct {
	writer     messageWriter
	logger     *slog.Logger
	maxElapsed time.Duration
}

// NewWriter creates a Kafka producer for the configured summary topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger, maxElapsed: 30 * time.Second}
}

// LoadBatch serializes and publishes the records in a single WriteMessages
// call, retrying transient broker errors with exponential backoff.
func (w *Writer) LoadBatch(ctx context.Context, records []domain.SummaryRecord) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := serializeToMessage(records[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}

	operation := func() error {
		err := w.writer.WriteMessages(ctx, msgs...)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !retriable(err) {
			return backoff.Permanent(err)
		}
		w.logger.Warn("publish summaries failed, retrying", "error", err, "batch_size", len(msgs))
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = w.maxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return fmt.Errorf("publish %d summaries: %w", len(msgs), err)
	}
	return nil
}

// retriable reports whether a write error may succeed on retry.
func retriable(err error) bool {
	var kerr kafkago.Error
	if errors.As(err, &kerr) {
		return kerr.Temporary()
	}
	var werr kafkago.WriteErrors
	if errors.As(err, &werr) {
		for _, e := range werr {
			if e != nil && !retriable(e) {
				return false
			}
		}
		return true
	}
	return true
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a SummaryRecord into a Kafka message keyed by
// province so one province's records stay ordered on a partition.
func serializeToMessage(r domain.SummaryRecord) (kafkago.Message, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize summary record: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(r.Province),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "source", Value: []byte(r.Source)},
			{Key: "run_id", Value: []byte(r.RunID)},
			{Key: "processed_at", Value: []byte(r.ProcessedAt.Format(time.RFC3339))},
		},
	}, nil
}
