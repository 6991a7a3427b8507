package queue_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wusimpl/hackernewscn/internal/model"
	"github.com/wusimpl/hackernewscn/internal/queue"
	"github.com/wusimpl/hackernewscn/internal/repository"
	"github.com/wusimpl/hackernewscn/internal/repository/testutil"
)

func newTestQueue(t *testing.T, concurrency int) (*queue.Queue, repository.JobRepository) {
	t.Helper()
	jobs := repository.NewJobRepository(testutil.NewTestDB(t))
	q := queue.New(jobs, concurrency)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = q.Shutdown(ctx)
	})
	return q, jobs
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached")
}

func TestQueue_RunsTaskAndRecordsLifecycle(t *testing.T) {
	q, jobs := newTestQueue(t, 2)

	var ran atomic.Bool
	jobID, err := q.Submit(t.Context(), 100, model.JobKindArticle, func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	waitFor(t, func() bool {
		found, err := jobs.FindByStatus(context.Background(), model.JobStatusDone)
		require.NoError(t, err)
		return len(found) == 1
	})
	require.True(t, ran.Load())
}

func TestQueue_FailedTaskMarkedError(t *testing.T) {
	q, jobs := newTestQueue(t, 1)

	_, err := q.Submit(t.Context(), 100, model.JobKindArticle, func(ctx context.Context) error {
		return context.DeadlineExceeded
	})
	require.NoError(t, err)

	waitFor(t, func() bool {
		found, err := jobs.FindByStatus(context.Background(), model.JobStatusError)
		require.NoError(t, err)
		return len(found) == 1
	})
}

func TestQueue_BoundedConcurrency(t *testing.T) {
	q, _ := newTestQueue(t, 2)

	var running, peak int32
	var mu sync.Mutex
	release := make(chan struct{})

	for i := int64(1); i <= 5; i++ {
		_, err := q.Submit(t.Context(), i, model.JobKindArticle, func(ctx context.Context) error {
			mu.Lock()
			running++
			if running > peak {
				peak = running
			}
			mu.Unlock()
			<-release
			mu.Lock()
			running--
			mu.Unlock()
			return nil
		})
		require.NoError(t, err)
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return running == 2
	})
	close(release)

	waitFor(t, func() bool { return q.Status().Pending == 0 && q.Status().InFlight == 0 })
	mu.Lock()
	require.Equal(t, int32(2), peak)
	mu.Unlock()
}

func TestQueue_DeduplicatesActiveJobs(t *testing.T) {
	q, _ := newTestQueue(t, 1)

	block := make(chan struct{})
	first, err := q.Submit(t.Context(), 7, model.JobKindArticle, func(ctx context.Context) error {
		<-block
		return nil
	})
	require.NoError(t, err)

	waitFor(t, func() bool { return q.Status().InFlight == 1 })

	second, err := q.Submit(t.Context(), 7, model.JobKindArticle, func(ctx context.Context) error {
		t.Error("duplicate task must not run")
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, first, second)

	close(block)
	waitFor(t, func() bool { return q.Status().InFlight == 0 })
}

func TestQueue_PauseResumeAndClear(t *testing.T) {
	q, _ := newTestQueue(t, 1)
	q.Pause()

	var ran atomic.Int32
	for i := int64(1); i <= 3; i++ {
		_, err := q.Submit(t.Context(), i, model.JobKindTitle, func(ctx context.Context) error {
			ran.Add(1)
			return nil
		})
		require.NoError(t, err)
	}

	require.Equal(t, 3, q.Status().Pending)
	require.True(t, q.Status().Paused)
	require.Equal(t, int32(0), ran.Load())

	dropped := q.Clear(t.Context())
	require.Equal(t, 3, dropped)
	require.Equal(t, 0, q.Status().Pending)

	_, err := q.Submit(t.Context(), 9, model.JobKindTitle, func(ctx context.Context) error {
		ran.Add(1)
		return nil
	})
	require.NoError(t, err)
	q.Resume()

	waitFor(t, func() bool { return ran.Load() == 1 })
}

func TestQueue_ResubmitsAfterAbandonedQueuedRowReset(t *testing.T) {
	jobs := repository.NewJobRepository(testutil.NewTestDB(t))

	// A previous process created this row but died before dispatching it.
	staleID, err := jobs.Create(context.Background(), 42, model.JobKindArticle)
	require.NoError(t, err)

	// Boot sequence of the next process: reset abandoned rows, then
	// start a fresh queue. Without the reset, Submit would dedup against
	// the stale queued row and the task would never run again.
	reset, err := jobs.ResetAbandoned(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, reset)

	q := queue.New(jobs, 1)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = q.Shutdown(ctx)
	})

	var ran atomic.Bool
	jobID, err := q.Submit(t.Context(), 42, model.JobKindArticle, func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	require.NoError(t, err)
	require.NotEqual(t, staleID, jobID)

	waitFor(t, func() bool { return ran.Load() })

	stale, err := jobs.FindByStatus(context.Background(), model.JobStatusError)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	require.Equal(t, staleID, stale[0].ID)
}

func TestQueue_SubmitAfterShutdownFails(t *testing.T) {
	jobs := repository.NewJobRepository(testutil.NewTestDB(t))
	q := queue.New(jobs, 1)
	require.NoError(t, q.Shutdown(t.Context()))

	_, err := q.Submit(t.Context(), 1, model.JobKindTitle, func(ctx context.Context) error { return nil })
	require.ErrorIs(t, err, queue.ErrClosed)
}
