package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/mlenz-dev/aibroker/internal/models"
)

// fakeJobStore tracks job rows in memory.
type fakeJobStore struct {
	mu   sync.Mutex
	jobs map[string]*models.Job

	failCreate bool
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[string]*models.Job)}
}

func (s *fakeJobStore) QueryCreateJob(ctx context.Context, id, queueName, payload string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate {
		return fmt.Errorf("store unavailable")
	}
	s.jobs[id] = &models.Job{
		ID:        surrealmodels.NewRecordID("job", id),
		Queue:     queueName,
		Payload:   payload,
		Status:    models.JobQueued,
		CreatedAt: time.Now(),
	}
	return nil
}

func (s *fakeJobStore) setStatus(id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	job.Status = status
	return nil
}

func (s *fakeJobStore) QueryMarkJobClaimed(ctx context.Context, id string) error {
	return s.setStatus(id, models.JobClaimed)
}

func (s *fakeJobStore) QueryMarkJobDone(ctx context.Context, id string) error {
	return s.setStatus(id, models.JobDone)
}

func (s *fakeJobStore) QueryRequeueJob(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	job.Status = models.JobQueued
	job.Attempts++
	return nil
}

func (s *fakeJobStore) QueryMarkJobDead(ctx context.Context, id string) error {
	return s.setStatus(id, models.JobDead)
}

func (s *fakeJobStore) QueryIncompleteJobs(ctx context.Context) ([]models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Job
	for _, job := range s.jobs {
		if job.Status == models.JobQueued || job.Status == models.JobClaimed {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (s *fakeJobStore) attempts(t *testing.T, id string) int {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	require.True(t, ok)
	return job.Attempts
}

func (s *fakeJobStore) status(t *testing.T, id string) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	require.True(t, ok)
	return job.Status
}

func waitForStatus(t *testing.T, store *fakeJobStore, id, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if store.status(t, id) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %s (got %s)", id, want, store.status(t, id))
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestDurable_EnqueuePersistsBeforeDelivery(t *testing.T) {
	store := newFakeJobStore()
	q := NewDurable(store, Config{}, testLogger())
	defer q.Close()

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "work", "job-1", []byte("p")))
	assert.Equal(t, models.JobQueued, store.status(t, "job-1"))

	msg := receive(t, q.Consume("work"), time.Second)
	assert.Equal(t, "job-1", msg.ID)
	waitForStatus(t, store, "job-1", models.JobClaimed)
}

func TestDurable_EnqueueFailsWhenStoreFails(t *testing.T) {
	store := newFakeJobStore()
	store.failCreate = true
	q := NewDurable(store, Config{}, testLogger())
	defer q.Close()

	err := q.Enqueue(context.Background(), "work", "job-1", nil)
	require.Error(t, err)

	select {
	case msg := <-q.Consume("work"):
		t.Fatalf("nothing should be delivered, got %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDurable_AckMarksDone(t *testing.T) {
	store := newFakeJobStore()
	q := NewDurable(store, Config{}, testLogger())
	defer q.Close()

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "work", "job-1", nil))
	msg := receive(t, q.Consume("work"), time.Second)

	require.NoError(t, q.Ack(ctx, msg))
	assert.Equal(t, models.JobDone, store.status(t, "job-1"))
}

func TestDurable_NackRequeuesThenKills(t *testing.T) {
	store := newFakeJobStore()
	q := NewDurable(store, Config{RedeliverLimit: 1, RedeliverDelay: 10 * time.Millisecond}, testLogger())
	defer q.Close()

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "work", "job-1", nil))

	msg := receive(t, q.Consume("work"), time.Second)
	require.NoError(t, q.Nack(ctx, msg))
	assert.Equal(t, 1, store.attempts(t, "job-1"))

	msg = receive(t, q.Consume("work"), time.Second)
	assert.Equal(t, 1, msg.Attempt)

	require.NoError(t, q.Nack(ctx, msg))
	assert.Equal(t, models.JobDead, store.status(t, "job-1"))
}

func TestDurable_ResumeReenqueuesIncompleteJobs(t *testing.T) {
	store := newFakeJobStore()

	// Simulate leftovers from a previous run.
	ctx := context.Background()
	require.NoError(t, store.QueryCreateJob(ctx, "queued-job", "work", "p1"))
	require.NoError(t, store.QueryCreateJob(ctx, "claimed-job", "work", "p2"))
	require.NoError(t, store.QueryMarkJobClaimed(ctx, "claimed-job"))
	require.NoError(t, store.QueryCreateJob(ctx, "done-job", "work", "p3"))
	require.NoError(t, store.QueryMarkJobDone(ctx, "done-job"))

	q := NewDurable(store, Config{}, testLogger())
	defer q.Close()

	resumed, err := q.Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, resumed)

	got := map[string]bool{}
	ch := q.Consume("work")
	for i := 0; i < 2; i++ {
		got[receive(t, ch, time.Second).ID] = true
	}
	assert.True(t, got["queued-job"])
	assert.True(t, got["claimed-job"])
	assert.False(t, got["done-job"])
}
