package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mlenz-dev/aibroker/internal/models"
)

// Store is the persistence surface the durable queue needs. Implemented by
// *store.Client.
type Store interface {
	QueryCreateJob(ctx context.Context, id, queueName, payload string) error
	QueryMarkJobClaimed(ctx context.Context, id string) error
	QueryMarkJobDone(ctx context.Context, id string) error
	QueryRequeueJob(ctx context.Context, id string) error
	QueryMarkJobDead(ctx context.Context, id string) error
	QueryIncompleteJobs(ctx context.Context) ([]models.Job, error)
}

// Durable layers job persistence over the in-memory queue. Every enqueued
// message is written to the job table before it becomes consumable, so work
// survives a process restart and can be resumed.
type Durable struct {
	mem   *Memory
	store Store
	log   *slog.Logger

	mu     sync.Mutex
	relays map[string]chan Message
}

var _ Queue = (*Durable)(nil)

// NewDurable creates a store-backed queue.
func NewDurable(store Store, cfg Config, log *slog.Logger) *Durable {
	return &Durable{
		mem:    NewMemory(cfg),
		store:  store,
		log:    log,
		relays: make(map[string]chan Message),
	}
}

// Enqueue persists the job and then makes it consumable. If the write fails
// the message is not enqueued.
func (q *Durable) Enqueue(ctx context.Context, queueName, id string, payload []byte) error {
	if err := q.store.QueryCreateJob(ctx, id, queueName, string(payload)); err != nil {
		return fmt.Errorf("persisting job %s: %w", id, err)
	}
	return q.mem.Enqueue(ctx, queueName, id, payload)
}

// Consume returns a delivery channel for the named queue. Each message is
// marked claimed as it is handed to a consumer.
func (q *Durable) Consume(queueName string) <-chan Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	if ch, ok := q.relays[queueName]; ok {
		return ch
	}
	out := make(chan Message)
	q.relays[queueName] = out
	go q.relay(q.mem.Consume(queueName), out)
	return out
}

func (q *Durable) relay(in <-chan Message, out chan<- Message) {
	defer close(out)
	for msg := range in {
		if err := q.store.QueryMarkJobClaimed(context.Background(), msg.ID); err != nil {
			q.log.Warn("failed to mark job claimed", "job_id", msg.ID, "error", err)
		}
		out <- msg
	}
}

// Ack marks the job done. The outcome row is written separately by the
// worker; Ack only settles the queue side.
func (q *Durable) Ack(ctx context.Context, msg Message) error {
	if err := q.store.QueryMarkJobDone(ctx, msg.ID); err != nil {
		return fmt.Errorf("marking job %s done: %w", msg.ID, err)
	}
	return nil
}

// Nack requeues the job for redelivery, or marks it dead once the attempt
// budget is spent.
func (q *Durable) Nack(ctx context.Context, msg Message) error {
	if msg.Attempt >= q.mem.cfg.RedeliverLimit {
		if err := q.store.QueryMarkJobDead(ctx, msg.ID); err != nil {
			q.log.Warn("failed to mark job dead", "job_id", msg.ID, "error", err)
		}
		return q.mem.Nack(ctx, msg)
	}
	if err := q.store.QueryRequeueJob(ctx, msg.ID); err != nil {
		q.log.Warn("failed to requeue job", "job_id", msg.ID, "error", err)
	}
	return q.mem.Nack(ctx, msg)
}

// Resume re-enqueues jobs that were queued or claimed when the process last
// stopped. Call once at startup, before workers begin consuming.
func (q *Durable) Resume(ctx context.Context) (int, error) {
	jobs, err := q.store.QueryIncompleteJobs(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading incomplete jobs: %w", err)
	}
	resumed := 0
	for _, job := range jobs {
		id, err := models.RecordIDString(job.ID)
		if err != nil {
			q.log.Warn("skipping job with unexpected id", "error", err)
			continue
		}
		msg := Message{ID: id, Queue: job.Queue, Payload: []byte(job.Payload), Attempt: job.Attempts}
		if err := q.mem.push(ctx, msg); err != nil {
			return resumed, fmt.Errorf("resuming job %s: %w", id, err)
		}
		resumed++
	}
	if resumed > 0 {
		q.log.Info("resumed incomplete jobs", "count", resumed)
	}
	return resumed, nil
}

// Close shuts down delivery.
func (q *Durable) Close() {
	q.mem.Close()
}
