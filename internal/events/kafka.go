package events

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// NewWriter returns a writer with no fixed topic: every message names its
// own, taken from the outbox row. Keys hash to partitions so events for one
// order stay in order.
func NewWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
}
