package service

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// MessageIterator is a source of Kafka messages with explicit offset commits.
// Implementations own the consumer lifecycle and close the Messages channel
// when they stop.
type MessageIterator interface {
	Messages() <-chan kafka.Message
	CommitOffset(ctx context.Context, msg kafka.Message) error
}

// DecodeFunc turns a message payload into a T.
type DecodeFunc[T any] func(value []byte) (T, error)
