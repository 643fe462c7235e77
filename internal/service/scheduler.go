package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Task is one periodic job. Runs of the same task never overlap.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler drives each task on its own ticker.
type Scheduler struct {
	tasks []Task
	log   zerolog.Logger
	wg    sync.WaitGroup
}

func NewScheduler(log zerolog.Logger) *Scheduler {
	return &Scheduler{log: log.With().Str("component", "scheduler").Logger()}
}

// Add registers a task. Tasks with a non-positive interval are ignored.
func (s *Scheduler) Add(name string, interval time.Duration, run func(ctx context.Context) error) {
	if interval <= 0 {
		s.log.Warn().Str("task", name).Msg("task disabled: no interval")
		return
	}
	s.tasks = append(s.tasks, Task{Name: name, Interval: interval, Run: run})
}

// Start launches every task. They stop when ctx is cancelled; Wait blocks until they have.
func (s *Scheduler) Start(ctx context.Context) {
	for _, t := range s.tasks {
		s.wg.Add(1)
		go s.loop(ctx, t)
	}
	s.log.Info().Int("tasks", len(s.tasks)).Msg("scheduler started")
}

func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, t Task) {
	defer s.wg.Done()
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, t)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, t Task) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("task", t.Name).Interface("panic", r).Msg("task panicked")
		}
	}()
	start := time.Now()
	if err := t.Run(ctx); err != nil {
		s.log.Error().Err(err).Str("task", t.Name).Msg("task failed")
		return
	}
	s.log.Debug().Str("task", t.Name).Dur("took", time.Since(start)).Msg("task finished")
}
