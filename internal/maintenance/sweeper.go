// Package maintenance runs periodic housekeeping independent of request
// traffic: expiring tokens and pruning sessions that went quiet.
package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// defaultInterval is used when the configured interval is zero.
const defaultInterval = 30 * time.Second

// Logger defines the logging interface used by the Sweeper.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Observer records task outcomes. Metrics implement it.
type Observer interface {
	SweepTaskCompleted(task string, removed int, err error)
}

type noopObserver struct{}

func (noopObserver) SweepTaskCompleted(string, int, error) {}

// Task is one named unit of work run on every tick. Run returns how many
// items it removed.
type Task struct {
	Name string
	Run  func(ctx context.Context) (int, error)
}

// Sweeper runs its tasks on a fixed period.
type Sweeper struct {
	interval time.Duration
	tasks    []Task

	logger   Logger
	observer Observer

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a sweeper. Call Start to begin ticking.
func New(interval time.Duration, tasks ...Task) *Sweeper {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Sweeper{
		interval: interval,
		tasks:    tasks,
		logger:   noopLogger{},
		observer: noopObserver{},
		done:     make(chan struct{}),
	}
}

// SetLogger sets the logger for the sweeper.
func (s *Sweeper) SetLogger(logger Logger) {
	s.logger = logger
}

// SetObserver sets the observer notified after every task run.
func (s *Sweeper) SetObserver(o Observer) {
	s.observer = o
}

// Start begins periodic sweeping. It stops when ctx is cancelled or Stop
// is called.
func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop ends the loop and waits for an in-flight tick to finish.
// Safe to call multiple times.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
}

func (s *Sweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs every task once. A failing or panicking task is logged and
// does not prevent the others from running.
func (s *Sweeper) Sweep(ctx context.Context) {
	for _, task := range s.tasks {
		removed, err := s.runTask(ctx, task)
		s.observer.SweepTaskCompleted(task.Name, removed, err)

		switch {
		case err != nil:
			s.logger.Error("sweep task failed", "task", task.Name, "error", err)
		case removed > 0:
			s.logger.Info("sweep task removed items", "task", task.Name, "removed", removed)
		}
	}
}

func (s *Sweeper) runTask(ctx context.Context, task Task) (removed int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in sweep task %s: %v", task.Name, r)
		}
	}()
	return task.Run(ctx)
}
