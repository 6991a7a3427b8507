package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/wusimpl/hackernewscn/internal/logger"
)

// Task is one scheduled run. The context carries the run timeout.
type Task func(ctx context.Context) error

// Scheduler runs a task on a fixed interval. The first run fires after
// initialDelay (zero means immediately on Start).
type Scheduler struct {
	name         string
	task         Task
	interval     time.Duration
	initialDelay time.Duration

	stopCh     chan struct{}
	wg         sync.WaitGroup
	running    bool
	cancelFunc context.CancelFunc // cancels the current run
	mu         sync.Mutex         // protects running, stopCh, cancelFunc
}

func New(name string, task Task, interval time.Duration) *Scheduler {
	return &Scheduler{
		name:     name,
		task:     task,
		interval: interval,
	}
}

// WithInitialDelay delays the first run after Start.
func (s *Scheduler) WithInitialDelay(d time.Duration) *Scheduler {
	s.initialDelay = d
	return s
}

// Start launches the schedule loop. Calling Start on a running scheduler
// is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(stopCh)
	logger.Info("scheduler started", "module", "scheduler", "name", s.name, "interval_ms", s.interval.Milliseconds())
}

// Stop cancels any in-progress run and waits for the loop to exit.
// Calling Stop on a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	logger.Info("scheduler stopped", "module", "scheduler", "name", s.name)
}

// Restart applies a new interval, restarting the loop if it was running.
func (s *Scheduler) Restart(interval time.Duration) {
	s.mu.Lock()
	wasRunning := s.running
	s.mu.Unlock()

	if wasRunning {
		s.Stop()
	}
	s.mu.Lock()
	s.interval = interval
	s.mu.Unlock()
	if wasRunning {
		s.Start()
	}
}

// RunOnce triggers a single run outside the schedule.
func (s *Scheduler) RunOnce() {
	s.execute()
}

func (s *Scheduler) run(stopCh chan struct{}) {
	defer s.wg.Done()

	if s.initialDelay > 0 {
		select {
		case <-time.After(s.initialDelay):
		case <-stopCh:
			return
		}
	}

	s.execute()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.execute()
		case <-stopCh:
			return
		}
	}
}

func (s *Scheduler) execute() {
	// A run gets at most one interval before it is cut off.
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)

	s.mu.Lock()
	s.cancelFunc = cancel
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		s.cancelFunc = nil
		s.mu.Unlock()
	}()

	logger.Info("scheduled run started", "module", "scheduler", "name", s.name)
	if err := s.task(ctx); err != nil {
		if ctx.Err() != nil {
			logger.Warn("scheduled run cancelled", "module", "scheduler", "name", s.name)
			return
		}
		logger.Error("scheduled run failed", "module", "scheduler", "name", s.name, "error", err)
		return
	}
	logger.Info("scheduled run completed", "module", "scheduler", "name", s.name)
}
