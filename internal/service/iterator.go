// Package service adapts message sources into typed streams for the
// application services.
package service

import (
	"context"
	"log"

	"github.com/segmentio/kafka-go"
)

// Iterator decodes every message of a MessageIterator into a T.
type Iterator[T any] struct {
	msgIterator MessageIterator
	decode      DecodeFunc[T]
}

// NewIterator decodes every message of iterator with decode.
func NewIterator[T any](iterator MessageIterator, decode DecodeFunc[T]) *Iterator[T] {
	return &Iterator[T]{
		msgIterator: iterator,
		decode:      decode,
	}
}

// Objects streams decoded values until the message channel closes or ctx is
// done. A message's offset is committed once its value has been handed to
// the reader of the returned channel. Messages that fail to decode are
// logged, committed, and skipped so a poison message cannot stall the topic.
func (it *Iterator[T]) Objects(ctx context.Context) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)

		for {
			var (
				msg kafka.Message
				ok  bool
			)
			select {
			case <-ctx.Done():
				return
			case msg, ok = <-it.msgIterator.Messages():
				if !ok {
					return
				}
			}

			value, err := it.decode(msg.Value)
			if err != nil {
				log.Printf("Skipping message at offset %d: %v", msg.Offset, err)
				it.commit(ctx, msg)
				continue
			}

			select {
			case out <- value:
			case <-ctx.Done():
				return
			}
			it.commit(ctx, msg)
		}
	}()
	return out
}

func (it *Iterator[T]) commit(ctx context.Context, msg kafka.Message) {
	if err := it.msgIterator.CommitOffset(ctx, msg); err != nil {
		log.Printf("Failed to commit offset: %v", err)
	}
}
