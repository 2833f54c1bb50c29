package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlenz-dev/aibroker/internal/provider"
	"github.com/mlenz-dev/aibroker/internal/queue"
	"github.com/mlenz-dev/aibroker/internal/router"
)

type recordedOutcome struct {
	content, errMsg, providerName, model *string
}

// fakeOutcomeStore records upserts; the first failCount writes fail.
type fakeOutcomeStore struct {
	mu        sync.Mutex
	outcomes  map[string]recordedOutcome
	failCount int
}

func newFakeOutcomeStore() *fakeOutcomeStore {
	return &fakeOutcomeStore{outcomes: make(map[string]recordedOutcome)}
}

func (s *fakeOutcomeStore) QueryUpsertOutcome(ctx context.Context, id string, content, errMsg, providerName, model *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCount > 0 {
		s.failCount--
		return fmt.Errorf("store unavailable")
	}
	s.outcomes[id] = recordedOutcome{content, errMsg, providerName, model}
	return nil
}

func (s *fakeOutcomeStore) get(id string) (recordedOutcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.outcomes[id]
	return o, ok
}

func (s *fakeOutcomeStore) waitFor(t *testing.T, id string) recordedOutcome {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if o, ok := s.get(id); ok {
			return o
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no outcome recorded for %s", id)
	return recordedOutcome{}
}

func enqueueJob(t *testing.T, q queue.Queue, queueName, id string, env envelope) {
	t.Helper()
	payload, err := json.Marshal(env)
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(context.Background(), queueName, id, payload))
}

func startPool(t *testing.T, q queue.Queue, store OutcomeStore, adapters ...provider.Adapter) {
	t.Helper()
	r := router.New(provider.NewRegistry(adapters...), router.Config{
		RetryAttempts: 0,
		Backoff:       time.Millisecond,
	}, nil)
	pool := NewWorkerPool(r, q, store, WorkerConfig{
		Queues:      []string{"work"},
		Concurrency: 1,
		TimeLimit:   time.Minute,
	}, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	t.Cleanup(func() {
		cancel()
		pool.Wait()
	})
}

func TestWorker_WritesSuccessOutcome(t *testing.T) {
	q := queue.NewMemory(queue.Config{})
	defer q.Close()
	store := newFakeOutcomeStore()
	startPool(t, q, store, &stubAdapter{name: "a", result: provider.Result{Content: "done", Model: "m1"}})

	enqueueJob(t, q, "work", "job-1", envelope{Request: userRequest()})

	outcome := store.waitFor(t, "job-1")
	require.NotNil(t, outcome.content)
	assert.Equal(t, "done", *outcome.content)
	assert.Nil(t, outcome.errMsg)
	require.NotNil(t, outcome.providerName)
	assert.Equal(t, "a", *outcome.providerName)
}

func TestWorker_WritesFailureOutcome(t *testing.T) {
	q := queue.NewMemory(queue.Config{})
	defer q.Close()
	store := newFakeOutcomeStore()
	startPool(t, q, store, &stubAdapter{name: "a", result: provider.Result{Err: "upstream down"}})

	enqueueJob(t, q, "work", "job-1", envelope{Request: userRequest()})

	outcome := store.waitFor(t, "job-1")
	assert.Nil(t, outcome.content)
	require.NotNil(t, outcome.errMsg)
	assert.Contains(t, *outcome.errMsg, "upstream down")
}

func TestWorker_MalformedPayloadBecomesFailure(t *testing.T) {
	q := queue.NewMemory(queue.Config{})
	defer q.Close()
	store := newFakeOutcomeStore()
	startPool(t, q, store, &stubAdapter{name: "a", result: provider.Result{Content: "x"}})

	require.NoError(t, q.Enqueue(context.Background(), "work", "job-bad", []byte("{not json")))

	outcome := store.waitFor(t, "job-bad")
	require.NotNil(t, outcome.errMsg)
	assert.Contains(t, *outcome.errMsg, "malformed job payload")
}

func TestWorker_EmptyPayloadBecomesFailure(t *testing.T) {
	q := queue.NewMemory(queue.Config{})
	defer q.Close()
	store := newFakeOutcomeStore()
	startPool(t, q, store, &stubAdapter{name: "a", result: provider.Result{Content: "x"}})

	enqueueJob(t, q, "work", "job-empty", envelope{})

	outcome := store.waitFor(t, "job-empty")
	require.NotNil(t, outcome.errMsg)
	assert.Contains(t, *outcome.errMsg, "invalid job payload")
}

func TestWorker_RetriesWhenOutcomeWriteFails(t *testing.T) {
	q := queue.NewMemory(queue.Config{RedeliverLimit: 2, RedeliverDelay: 10 * time.Millisecond})
	defer q.Close()
	store := newFakeOutcomeStore()
	store.failCount = 1
	startPool(t, q, store, &stubAdapter{name: "a", result: provider.Result{Content: "eventually"}})

	enqueueJob(t, q, "work", "job-1", envelope{Request: userRequest()})

	outcome := store.waitFor(t, "job-1")
	require.NotNil(t, outcome.content)
	assert.Equal(t, "eventually", *outcome.content)
}

func TestWorker_HonorsExplicitProvider(t *testing.T) {
	q := queue.NewMemory(queue.Config{})
	defer q.Close()
	store := newFakeOutcomeStore()
	startPool(t, q, store,
		&stubAdapter{name: "alpha", result: provider.Result{Content: "from alpha"}},
		&stubAdapter{name: "beta", result: provider.Result{Content: "from beta"}},
	)

	enqueueJob(t, q, "work", "job-1", envelope{Request: userRequest(), Provider: "beta"})

	outcome := store.waitFor(t, "job-1")
	require.NotNil(t, outcome.content)
	assert.Equal(t, "from beta", *outcome.content)
}
