package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/safar/go-sql-marketplace/internal/metrics"
	"github.com/safar/go-sql-marketplace/internal/store"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
)

type Outbox interface {
	FetchPendingEvents(ctx context.Context, limit int) ([]store.OutboxRecord, error)
	MarkEventSent(ctx context.Context, id int64) error
}

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// BreakerTimeout is how long the breaker stays open before probing
	// the broker again.
	BreakerTimeout time.Duration
}

// Relay moves outbox rows to Kafka. Delivery is at least once: a row is
// marked sent only after the broker acknowledged it, so a crash in between
// publishes it twice. Consumers dedupe on the event_id header.
type Relay struct {
	outbox  Outbox
	writer  MessageWriter
	breaker *gobreaker.CircuitBreaker[struct{}]
	cfg     RelayConfig
	log     *logrus.Logger
	metrics *metrics.Metrics
}

func NewRelay(outbox Outbox, writer MessageWriter, cfg RelayConfig, logger *logrus.Logger, m *metrics.Metrics) *Relay {
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "kafka-outbox",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return &Relay{
		outbox:  outbox,
		writer:  writer,
		breaker: breaker,
		cfg:     cfg,
		log:     logger,
		metrics: m,
	}
}

func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
				r.log.WithError(err).Warn("Outbox flush stopped")
			}
		}
	}
}

// Flush publishes one batch of pending rows in id order and returns how many
// were delivered. It stops at the first failure so later events for the
// same order are never sent ahead of earlier ones.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	records, err := r.outbox.FetchPendingEvents(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, rec := range records {
		msg := toMessage(rec)

		_, err := r.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, r.writer.WriteMessages(ctx, msg)
		})
		if err != nil {
			r.metrics.PublishFailures.Inc()
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return sent, fmt.Errorf("publish paused: %w", err)
			}
			return sent, fmt.Errorf("publish event %s: %w", rec.EventID, err)
		}

		if err := r.outbox.MarkEventSent(ctx, rec.ID); err != nil {
			return sent, err
		}
		r.metrics.EventsPublished.Inc()
		sent++
	}

	if sent > 0 {
		r.log.WithField("count", sent).Debug("Outbox events published")
	}
	return sent, nil
}

func toMessage(rec store.OutboxRecord) kafka.Message {
	headers := []kafka.Header{
		{Key: "event_id", Value: []byte(rec.EventID.String())},
	}

	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(rec.Payload, &envelope); err == nil && envelope.Type != "" {
		headers = append(headers, kafka.Header{Key: "event_type", Value: []byte(envelope.Type)})
	}

	return kafka.Message{
		Topic:   rec.Topic,
		Key:     []byte(rec.Key),
		Value:   rec.Payload,
		Headers: headers,
		Time:    rec.CreatedAt,
	}
}
