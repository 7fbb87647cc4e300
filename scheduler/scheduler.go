// apcore is a server framework for implementing an ActivityPub application.
// Copyright (C) 2019 Cory Slep
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package scheduler runs the fixed set of periodic background tasks
// (queue executors, retry sweeps, media cleanup) off a single ticking
// loop, rather than one goroutine and timer per task.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/logger"
)

// Tick is the loop's fixed polling period. Tasks are never run more
// often than their own Period, regardless of Tick.
const Tick = 500 * time.Millisecond

// Task is one periodic unit of work: Run fires at most once per Period,
// and is skipped (not queued up) if the previous tick's check decided it
// wasn't due yet.
type Task struct {
	Name   string
	Period time.Duration
	Run    func(ctx context.Context) error
}

// Scheduler runs a fixed registry of Tasks off one ticking loop. Tasks
// execute sequentially within a tick on the loop goroutine; a slow task
// delays its siblings in that tick, and while it runs the ticker keeps
// at most one pending tick and drops the rest.
type Scheduler struct {
	tasks       []Task
	lastRun     []time.Time
	errorLogger *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// New builds a Scheduler over tasks. errorLogger receives one Errorf
// call per failed task run; pass util.ErrorLogger in production.
func New(tasks []Task, errorLogger *logger.Logger) *Scheduler {
	return &Scheduler{
		tasks:       tasks,
		lastRun:     make([]time.Time, len(tasks)),
		errorLogger: errorLogger,
	}
}

// Start begins the ticking loop in a new goroutine. Calling Start twice
// without an intervening Stop is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.started = true
	go s.loop(ctx)
}

// Stop cancels the loop and waits for the in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	done := s.done
	s.started = false
	s.mu.Unlock()

	cancel()
	<-done
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(Tick)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			s.runDue(ctx, now)
		case <-ctx.Done():
			return
		}
	}
}

// runDue runs every task whose Period has elapsed since its last run,
// updating lastRun regardless of whether Run returned an error — a
// persistently failing task still yields its slot to the next tick
// instead of being retried immediately.
func (s *Scheduler) runDue(ctx context.Context, now time.Time) {
	for i := range s.tasks {
		t := s.tasks[i]
		if !s.lastRun[i].IsZero() && now.Sub(s.lastRun[i]) < t.Period {
			continue
		}
		s.lastRun[i] = now
		if err := t.Run(ctx); err != nil && s.errorLogger != nil {
			s.errorLogger.Errorf("scheduler: task %q failed: %s", t.Name, err)
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}
