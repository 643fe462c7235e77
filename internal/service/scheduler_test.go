package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"marketplace/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestSchedulerRunsTasksUntilCancelled(t *testing.T) {
	sched := NewScheduler(zerolog.Nop())
	var ticks, failing, panicking atomic.Int32
	sched.Add("tick", 5*time.Millisecond, func(ctx context.Context) error {
		ticks.Add(1)
		return nil
	})
	sched.Add("failing", 5*time.Millisecond, func(ctx context.Context) error {
		failing.Add(1)
		return errors.New("boom")
	})
	sched.Add("panicking", 5*time.Millisecond, func(ctx context.Context) error {
		panicking.Add(1)
		panic("boom")
	})
	sched.Add("disabled", 0, func(ctx context.Context) error {
		t.Error("disabled task ran")
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	sched.Start(ctx)
	assert.Eventually(t, func() bool {
		return ticks.Load() >= 2 && failing.Load() >= 2 && panicking.Load() >= 2
	}, time.Second, 5*time.Millisecond)
	cancel()
	sched.Wait()

	after := ticks.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, ticks.Load(), "no runs after Wait returns")
}

func TestRegisterSweeps(t *testing.T) {
	h := newHarness(t)
	sched := NewScheduler(zerolog.Nop())
	RegisterSweeps(sched, h.svc, config.Default().Scheduler)

	var names []string
	for _, task := range sched.tasks {
		names = append(names, task.Name)
	}
	assert.Equal(t, []string{"pending-settlements", "retry-failed-settlements", "recover-stalled-payouts", "sync-gateway-status"}, names)
	assert.Equal(t, time.Hour, sched.tasks[0].Interval)
	assert.Equal(t, 30*time.Minute, sched.tasks[1].Interval)

	for _, task := range sched.tasks {
		assert.NoError(t, task.Run(h.ctx), task.Name)
	}
}
