package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Memory is an in-process queue backed by buffered channels.
type Memory struct {
	cfg Config

	mu     sync.Mutex
	chans  map[string]chan Message
	closed bool
	done   chan struct{}
	pushes sync.WaitGroup
}

// Compile-time check that Memory implements Queue.
var _ Queue = (*Memory)(nil)

// NewMemory creates an in-memory queue.
func NewMemory(cfg Config) *Memory {
	return &Memory{
		cfg:   cfg.withDefaults(),
		chans: make(map[string]chan Message),
		done:  make(chan struct{}),
	}
}

// channel returns (creating if needed) the channel for a queue name.
func (q *Memory) channel(name string) chan Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch, ok := q.chans[name]
	if !ok {
		ch = make(chan Message, q.cfg.Buffer)
		q.chans[name] = ch
	}
	return ch
}

// Enqueue adds a message to the named queue.
func (q *Memory) Enqueue(ctx context.Context, queueName, id string, payload []byte) error {
	return q.push(ctx, Message{ID: id, Queue: queueName, Payload: payload})
}

func (q *Memory) push(ctx context.Context, msg Message) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return fmt.Errorf("queue is closed")
	}
	q.pushes.Add(1)
	q.mu.Unlock()
	defer q.pushes.Done()

	select {
	case q.channel(msg.Queue) <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return fmt.Errorf("queue is closed")
	}
}

// Consume returns the delivery channel for the named queue.
func (q *Memory) Consume(queueName string) <-chan Message {
	return q.channel(queueName)
}

// Ack is a no-op for the in-memory queue.
func (q *Memory) Ack(ctx context.Context, msg Message) error {
	return nil
}

// Nack redelivers the message after the configured delay, or drops it once
// the attempt budget is exhausted.
func (q *Memory) Nack(ctx context.Context, msg Message) error {
	if msg.Attempt >= q.cfg.RedeliverLimit {
		slog.Warn("dropping message after redelivery limit",
			"job_id", msg.ID, "queue", msg.Queue, "attempts", msg.Attempt+1)
		return nil
	}

	redelivery := msg
	redelivery.Attempt++

	go func() {
		timer := time.NewTimer(q.cfg.RedeliverDelay)
		defer timer.Stop()
		select {
		case <-q.done:
			return
		case <-timer.C:
		}
		if err := q.push(context.Background(), redelivery); err != nil {
			slog.Warn("redelivery failed", "job_id", redelivery.ID, "error", err)
		}
	}()

	return nil
}

// Close shuts down all delivery channels. In-flight pushes are unblocked via
// done and must return before any channel closes.
func (q *Memory) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.done)
	q.mu.Unlock()

	q.pushes.Wait()

	q.mu.Lock()
	defer q.mu.Unlock()
	for _, ch := range q.chans {
		close(ch)
	}
}
