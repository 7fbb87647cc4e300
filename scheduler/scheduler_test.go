package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestTasksRunAtTheirOwnPeriod(t *testing.T) {
	var fastRuns, slowRuns int32
	tasks := []Task{
		{
			Name:   "fast",
			Period: Tick,
			Run: func(ctx context.Context) error {
				atomic.AddInt32(&fastRuns, 1)
				return nil
			},
		},
		{
			Name:   "slow",
			Period: 10 * Tick,
			Run: func(ctx context.Context) error {
				atomic.AddInt32(&slowRuns, 1)
				return nil
			},
		},
	}
	s := New(tasks, nil)
	s.Start()
	time.Sleep(55 * Tick)
	s.Stop()

	if got := atomic.LoadInt32(&fastRuns); got < 20 {
		t.Fatalf("expected fast task to have run close to every tick, got %d runs", got)
	}
	if got := atomic.LoadInt32(&slowRuns); got < 3 || got > 8 {
		t.Fatalf("expected slow task to run roughly once per 10 ticks, got %d runs", got)
	}
}

func TestFailedTaskStillAdvancesLastRun(t *testing.T) {
	var runs int32
	tasks := []Task{
		{
			Name:   "always-fails",
			Period: Tick,
			Run: func(ctx context.Context) error {
				atomic.AddInt32(&runs, 1)
				return errAlwaysFails{}
			},
		},
	}
	s := New(tasks, nil)
	s.Start()
	time.Sleep(15 * Tick)
	s.Stop()

	if got := atomic.LoadInt32(&runs); got < 5 {
		t.Fatalf("expected repeated runs despite failure, got %d", got)
	}
}

type errAlwaysFails struct{}

func (errAlwaysFails) Error() string { return "always fails" }
