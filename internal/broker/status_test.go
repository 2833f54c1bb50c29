package broker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/mlenz-dev/aibroker/internal/models"
)

type fakeStatusStore struct {
	outcomes map[string]*models.Outcome
	jobs     map[string]*models.Job
}

func (s *fakeStatusStore) QueryGetOutcome(ctx context.Context, id string) (*models.Outcome, error) {
	return s.outcomes[id], nil
}

func (s *fakeStatusStore) QueryGetJob(ctx context.Context, id string) (*models.Job, error) {
	return s.jobs[id], nil
}

func strPtr(s string) *string { return &s }

func TestPoller(t *testing.T) {
	store := &fakeStatusStore{
		outcomes: map[string]*models.Outcome{
			"done-job": {
				ID:       surrealmodels.NewRecordID("outcome", "done-job"),
				Content:  strPtr("the answer"),
				Provider: strPtr("DeepSeek"),
				Model:    strPtr("deepseek-chat"),
			},
			"failed-job": {
				ID:    surrealmodels.NewRecordID("outcome", "failed-job"),
				Error: strPtr("all attempts failed: timeout"),
			},
		},
		jobs: map[string]*models.Job{
			"pending-job": {
				ID:     surrealmodels.NewRecordID("job", "pending-job"),
				Status: models.JobQueued,
			},
		},
	}
	poller := NewPoller(store, nil)

	t.Run("succeeded", func(t *testing.T) {
		res, err := poller.Poll(context.Background(), "done-job")
		require.NoError(t, err)
		assert.Equal(t, StatusSucceeded, res.Status)
		require.NotNil(t, res.Content)
		assert.Equal(t, "the answer", *res.Content)
	})

	t.Run("failed", func(t *testing.T) {
		res, err := poller.Poll(context.Background(), "failed-job")
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, res.Status)
		require.NotNil(t, res.Error)
		assert.Contains(t, *res.Error, "timeout")
	})

	t.Run("pending", func(t *testing.T) {
		res, err := poller.Poll(context.Background(), "pending-job")
		require.NoError(t, err)
		assert.Equal(t, StatusPending, res.Status)
		assert.Nil(t, res.Content)
	})

	t.Run("not found", func(t *testing.T) {
		res, err := poller.Poll(context.Background(), "unknown")
		require.NoError(t, err)
		assert.Equal(t, StatusNotFound, res.Status)
	})

	t.Run("polling is idempotent", func(t *testing.T) {
		first, err := poller.Poll(context.Background(), "done-job")
		require.NoError(t, err)
		second, err := poller.Poll(context.Background(), "done-job")
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
}

func TestPollResult_Result(t *testing.T) {
	res := PollResult{
		Status:   StatusSucceeded,
		Content:  strPtr("text"),
		Provider: strPtr("p"),
		Model:    strPtr("m"),
	}.Result()
	assert.True(t, res.OK())
	assert.Equal(t, "text", res.Content)
	assert.Equal(t, "p", res.Provider)

	res = PollResult{Status: StatusFailed, Error: strPtr("boom")}.Result()
	assert.False(t, res.OK())
	assert.Equal(t, "boom", res.Err)
}
