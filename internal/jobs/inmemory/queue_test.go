package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/transactions-dataflow/internal/domain"
	"github.com/dvloznov/transactions-dataflow/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func noBackoff(int) time.Duration { return time.Millisecond }

func waitForStatus(t *testing.T, s *Store, jobID string, want jobs.JobStatus) *jobs.LoadFileJob {
	t.Helper()
	var got *jobs.LoadFileJob
	require.Eventually(t, func() bool {
		j, err := s.GetJob(context.Background(), jobID)
		if err != nil {
			return false
		}
		got = j
		return j.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return got
}

func TestQueue_PublishAssignsDefaults(t *testing.T) {
	store := NewStore()
	q := NewQueue(1, store)
	defer q.Close()

	job := &jobs.LoadFileJob{GCSURI: "gs://bucket/tx.csv"}
	require.NoError(t, q.PublishLoadFile(context.Background(), job))

	assert.NotEmpty(t, job.JobID)
	assert.Equal(t, jobs.JobStatusPending, job.Status)
	assert.False(t, job.CreatedAt.IsZero())
	assert.Equal(t, defaultMaxRetries, job.MaxRetries)

	stored, err := store.GetJob(context.Background(), job.JobID)
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusPending, stored.Status)
}

func TestQueue_ProcessesJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(10, store, WithWorkerCount(2))

	var handled atomic.Int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		assert.Equal(t, jobs.JobTypeLoadFile, job.GetType())
		assert.Equal(t, jobs.JobStatusRunning, job.GetStatus())
		handled.Add(1)
		return nil
	}))

	job := &jobs.LoadFileJob{GCSURI: "gs://bucket/tx.csv"}
	require.NoError(t, q.PublishLoadFile(ctx, job))

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.CompletedAt)
	assert.Equal(t, int32(1), handled.Load())

	require.NoError(t, q.Stop(context.Background()))
}

func TestQueue_RetriesThenFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(10, store, WithBackoff(noBackoff))

	var attempts atomic.Int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		attempts.Add(1)
		return errors.New("load job failed")
	}))

	job := &jobs.LoadFileJob{GCSURI: "gs://bucket/tx.csv", MaxRetries: 2}
	require.NoError(t, q.PublishLoadFile(ctx, job))

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	assert.Equal(t, 2, failed.RetryCount)
	assert.Equal(t, "load job failed", failed.Error)
	assert.Equal(t, int32(3), attempts.Load())

	require.NoError(t, q.Stop(context.Background()))
}

func TestQueue_PartialWriteIsNotRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(10, store, WithBackoff(noBackoff))

	var attempts atomic.Int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		attempts.Add(1)
		return fmt.Errorf("Run: %w: %w", domain.ErrPartialWrite, errors.New("insert failed"))
	}))

	job := &jobs.LoadFileJob{GCSURI: "gs://bucket/tx.csv", MaxRetries: 3}
	require.NoError(t, q.PublishLoadFile(ctx, job))

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	assert.Zero(t, failed.RetryCount)
	assert.Contains(t, failed.Error, "partial write")

	require.NoError(t, q.Stop(context.Background()))
	assert.Equal(t, int32(1), attempts.Load())
}

func TestQueue_RetrySucceeds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(10, store, WithBackoff(noBackoff))

	var attempts atomic.Int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		if attempts.Add(1) == 1 {
			return errors.New("transient")
		}
		return nil
	}))

	job := &jobs.LoadFileJob{GCSURI: "gs://bucket/tx.csv"}
	require.NoError(t, q.PublishLoadFile(ctx, job))

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	assert.Equal(t, 1, done.RetryCount)
	assert.Empty(t, done.Error)

	require.NoError(t, q.Stop(context.Background()))
}

func TestQueue_ClosedRejectsWork(t *testing.T) {
	q := NewQueue(1, nil)
	require.NoError(t, q.Close())
	require.NoError(t, q.Close(), "closing twice is harmless")

	err := q.PublishLoadFile(context.Background(), &jobs.LoadFileJob{GCSURI: "gs://b/x.csv"})
	assert.ErrorIs(t, err, jobs.ErrQueueClosed)

	err = q.Start(context.Background(), func(ctx context.Context, job jobs.Job) error { return nil })
	assert.ErrorIs(t, err, jobs.ErrQueueClosed)
}

func TestQueue_PublishRespectsContext(t *testing.T) {
	q := NewQueue(0, nil)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := q.PublishLoadFile(ctx, &jobs.LoadFileJob{GCSURI: "gs://b/x.csv"})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
