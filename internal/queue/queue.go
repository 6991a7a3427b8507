package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/wusimpl/hackernewscn/internal/logger"
	"github.com/wusimpl/hackernewscn/internal/model"
	"github.com/wusimpl/hackernewscn/internal/repository"
)

// DefaultConcurrency bounds how many translation tasks run at once.
const DefaultConcurrency = 3

// ErrClosed is returned by Submit after Shutdown has started.
var ErrClosed = errors.New("queue closed")

// Task is the unit of queued work.
type Task func(ctx context.Context) error

// Status is a point-in-time snapshot of the queue.
type Status struct {
	Pending  int  `json:"pending"`
	InFlight int  `json:"inFlight"`
	Paused   bool `json:"paused"`
}

type pendingJob struct {
	jobID string
	task  Task
}

// Queue runs submitted tasks with bounded concurrency and mirrors each
// task's lifecycle into the translation_jobs table.
type Queue struct {
	jobs        repository.JobRepository
	concurrency int

	mu       sync.Mutex
	cond     *sync.Cond
	pending  []pendingJob
	inFlight int
	paused   bool
	closed   bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func New(jobs repository.JobRepository, concurrency int) *Queue {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		jobs:        jobs,
		concurrency: concurrency,
		ctx:         ctx,
		cancel:      cancel,
	}
	q.cond = sync.NewCond(&q.mu)
	go q.dispatch()
	return q
}

// Submit enqueues a task for the item. If a queued or running job of the
// same kind already exists for the item, its ID is returned instead of
// enqueueing a duplicate.
func (q *Queue) Submit(ctx context.Context, itemID int64, kind string, task Task) (string, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return "", ErrClosed
	}
	q.mu.Unlock()

	existing, err := q.jobs.FindByItemAndKind(ctx, itemID, kind)
	if err != nil {
		return "", err
	}
	for _, j := range existing {
		if j.Status == model.JobStatusQueued || j.Status == model.JobStatusRunning {
			return j.ID, nil
		}
	}

	jobID, err := q.jobs.Create(ctx, itemID, kind)
	if err != nil {
		return "", err
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return "", ErrClosed
	}
	q.pending = append(q.pending, pendingJob{jobID: jobID, task: task})
	q.cond.Broadcast()
	q.mu.Unlock()

	return jobID, nil
}

func (q *Queue) dispatch() {
	for {
		q.mu.Lock()
		for !q.closed && (q.paused || q.inFlight >= q.concurrency || len(q.pending) == 0) {
			q.cond.Wait()
		}
		if q.closed {
			q.mu.Unlock()
			return
		}
		job := q.pending[0]
		q.pending = q.pending[1:]
		q.inFlight++
		q.wg.Add(1)
		q.mu.Unlock()

		go q.run(job)
	}
}

func (q *Queue) run(job pendingJob) {
	defer func() {
		q.mu.Lock()
		q.inFlight--
		q.cond.Broadcast()
		q.mu.Unlock()
		q.wg.Done()
	}()

	if err := q.jobs.UpdateStatus(q.ctx, job.jobID, model.JobStatusRunning, nil); err != nil {
		logger.Error("mark job running", "module", "queue", "job_id", job.jobID, "error", err)
	}

	if err := job.task(q.ctx); err != nil {
		logger.Error("job failed", "module", "queue", "job_id", job.jobID, "error", err)
		if uerr := q.jobs.UpdateStatus(q.ctx, job.jobID, model.JobStatusError, nil); uerr != nil {
			logger.Error("mark job errored", "module", "queue", "job_id", job.jobID, "error", uerr)
		}
		return
	}

	if err := q.jobs.UpdateStatus(q.ctx, job.jobID, model.JobStatusDone, nil); err != nil {
		logger.Error("mark job done", "module", "queue", "job_id", job.jobID, "error", err)
	}
}

// Pause stops dispatching new tasks. In-flight tasks run to completion.
func (q *Queue) Pause() {
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()
}

// Resume restarts dispatching.
func (q *Queue) Resume() {
	q.mu.Lock()
	q.paused = false
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Clear drops all pending tasks and deletes their job rows. In-flight
// tasks are untouched.
func (q *Queue) Clear(ctx context.Context) int {
	q.mu.Lock()
	dropped := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, job := range dropped {
		if err := q.jobs.Delete(ctx, job.jobID); err != nil {
			logger.Error("delete cleared job", "module", "queue", "job_id", job.jobID, "error", err)
		}
	}
	return len(dropped)
}

// Status reports pending and in-flight counts.
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Status{
		Pending:  len(q.pending),
		InFlight: q.inFlight,
		Paused:   q.paused,
	}
}

// Shutdown stops accepting work and waits for in-flight tasks until the
// context expires, then cancels them.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		return ctx.Err()
	}
}
