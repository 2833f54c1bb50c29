// Package queue provides the message-queue abstraction between the
// dispatcher and the task workers: an in-memory channel queue for tests and
// single-process runs, and a durable variant persisted through the store so
// queued work survives a restart.
package queue

import (
	"context"
	"time"
)

// Message is one unit of deferred work as seen by a consumer.
type Message struct {
	ID      string
	Queue   string
	Payload []byte

	// Attempt counts deliveries of this message, starting at 0.
	Attempt int
}

// Queue is consumed by the worker pool. Delivery is at-least-once: a Nack
// within the redelivery budget puts the message back after a fixed delay.
type Queue interface {
	// Enqueue adds a message to the named queue.
	Enqueue(ctx context.Context, queueName, id string, payload []byte) error

	// Consume returns the delivery channel for the named queue. The channel
	// is closed when the queue shuts down.
	Consume(queueName string) <-chan Message

	// Ack marks a delivered message as fully processed.
	Ack(ctx context.Context, msg Message) error

	// Nack schedules a redelivery, or drops the message once its attempt
	// budget is exhausted.
	Nack(ctx context.Context, msg Message) error

	// Close shuts down delivery channels and stops pending redeliveries.
	Close()
}

// Config holds queue delivery policy.
type Config struct {
	// RedeliverLimit is the number of redeliveries after the first attempt.
	RedeliverLimit int

	// RedeliverDelay is the fixed wait before a nacked message is
	// redelivered.
	RedeliverDelay time.Duration

	// Buffer is the per-queue channel capacity.
	Buffer int
}

func (c Config) withDefaults() Config {
	if c.RedeliverLimit < 0 {
		c.RedeliverLimit = 0
	}
	if c.RedeliverDelay <= 0 {
		c.RedeliverDelay = time.Minute
	}
	if c.Buffer <= 0 {
		c.Buffer = 256
	}
	return c
}
