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

// Package queue implements the five persistent job queues: a single
// jobs table, partitioned by Kind, leased with a locked_until column so
// a crash mid-execution re-exposes the job rather than losing it.
package queue

import (
	"encoding/json"
	"errors"
	"time"
)

// Kind identifies which of the five job queues a Job belongs to.
type Kind int

const (
	IncomingActivity Kind = iota
	OutgoingActivity
	Fetcher
	MediaCleanup
	DataImport
)

func (k Kind) String() string {
	switch k {
	case IncomingActivity:
		return "incoming_activity"
	case OutgoingActivity:
		return "outgoing_activity"
	case Fetcher:
		return "fetcher"
	case MediaCleanup:
		return "media_cleanup"
	case DataImport:
		return "data_import"
	default:
		return "unknown"
	}
}

// Policy is the per-kind batch/timeout/retry/backoff configuration of
// spec §4.7's table.
type Policy struct {
	Batch      int
	Timeout    time.Duration
	MaxRetries int
	// Backoff computes the delay before attempt n (1-indexed) is
	// eligible to run again. nil means jobs of this kind are never
	// retried (MaxRetries is 0).
	Backoff func(attempt int) time.Duration
	// NonRetriable reports whether err should skip the retry budget
	// entirely and be discarded immediately.
	NonRetriable func(err error) bool
}

// ErrRecursion and ErrNotFoundTerminal are the two IncomingActivity
// failure kinds the per-kind policy table excludes from retry.
var (
	ErrRecursion        = errors.New("queue: recursion limit exceeded")
	ErrNotFoundTerminal = errors.New("queue: referenced resource not found")
)

func incomingNonRetriable(err error) bool {
	return errors.Is(err, ErrRecursion) || errors.Is(err, ErrNotFoundTerminal)
}

// constantBackoff always waits d between attempts.
func constantBackoff(d time.Duration) func(int) time.Duration {
	return func(int) time.Duration { return d }
}

// outgoingBackoff implements "30·10^n" seconds with n = attempt: 300s
// (5 min), 3000s (50 min), 30000s (~8 h), matching spec §4.6's schedule,
// where attempt 1 is the first retry after the initial delivery attempt.
func outgoingBackoff(attempt int) time.Duration {
	seconds := 30.0
	for i := 0; i < attempt; i++ {
		seconds *= 10
	}
	return time.Duration(seconds) * time.Second
}

// Policies is the fixed per-kind policy table of spec §4.7.
var Policies = map[Kind]Policy{
	IncomingActivity: {
		Batch:        10,
		Timeout:      3600 * time.Second,
		MaxRetries:   2,
		Backoff:      constantBackoff(600 * time.Second),
		NonRetriable: incomingNonRetriable,
	},
	OutgoingActivity: {
		Batch:      1,
		Timeout:    3600 * time.Second,
		MaxRetries: 3,
		Backoff:    outgoingBackoff,
	},
	Fetcher: {
		Batch:      5,
		Timeout:    600 * time.Second,
		MaxRetries: 1,
		Backoff:    constantBackoff(60 * time.Second),
	},
	MediaCleanup: {
		Batch:      10,
		Timeout:    600 * time.Second,
		MaxRetries: 0,
	},
	DataImport: {
		Batch:      1,
		Timeout:    6 * 3600 * time.Second,
		MaxRetries: 0,
	},
}

// Job is one row of the jobs table.
type Job struct {
	ID           string
	Kind         Kind
	Payload      json.RawMessage
	ScheduledFor time.Time
	Attempts     int
	LockedUntil  *time.Time
}

// Store is the narrow persistence interface over the jobs table;
// PostgresStore is the only implementation.
type Store interface {
	// Enqueue inserts a new job, scheduled to run at scheduledFor.
	Enqueue(kind Kind, payload json.RawMessage, scheduledFor time.Time) (id string, err error)
	// Lease selects up to Policies[kind].Batch jobs with
	// scheduled_for <= now and locked_until null or in the past,
	// atomically setting locked_until = now + Policies[kind].Timeout.
	Lease(kind Kind, now time.Time) ([]Job, error)
	// Complete deletes a job after successful execution.
	Complete(id string) error
	// Retry re-enqueues a job for a later attempt, or deletes it (with
	// discarded=true) if its retry budget is exhausted or execErr is
	// non-retriable for its kind.
	Retry(job Job, execErr error) (discarded bool, err error)
}

// NextAttempt computes when a failed job of kind should next become
// eligible, and whether its retry budget is exhausted.
func NextAttempt(kind Kind, job Job, execErr error, now time.Time) (scheduledFor time.Time, exhausted bool) {
	p := Policies[kind]
	if p.NonRetriable != nil && p.NonRetriable(execErr) {
		return time.Time{}, true
	}
	attempt := job.Attempts + 1
	if attempt > p.MaxRetries {
		return time.Time{}, true
	}
	if p.Backoff == nil {
		return time.Time{}, true
	}
	return now.Add(p.Backoff(attempt)), false
}
