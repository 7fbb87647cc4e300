package queue

import (
	"testing"
	"time"
)

func TestPolicyTableMatchesSpec(t *testing.T) {
	cases := []struct {
		kind       Kind
		batch      int
		timeout    time.Duration
		maxRetries int
	}{
		{IncomingActivity, 10, 3600 * time.Second, 2},
		{OutgoingActivity, 1, 3600 * time.Second, 3},
		{MediaCleanup, 10, 600 * time.Second, 0},
		{DataImport, 1, 6 * 3600 * time.Second, 0},
	}
	for _, c := range cases {
		p, ok := Policies[c.kind]
		if !ok {
			t.Fatalf("missing policy for %v", c.kind)
		}
		if p.Batch != c.batch || p.Timeout != c.timeout || p.MaxRetries != c.maxRetries {
			t.Fatalf("%v: got %+v, want batch=%d timeout=%v maxRetries=%d", c.kind, p, c.batch, c.timeout, c.maxRetries)
		}
	}
}

func TestOutgoingBackoffSequence(t *testing.T) {
	want := []time.Duration{300 * time.Second, 3000 * time.Second, 30000 * time.Second}
	for i, w := range want {
		got := outgoingBackoff(i + 1)
		if got != w {
			t.Fatalf("attempt %d: got %v want %v", i+1, got, w)
		}
	}
}

func TestIncomingActivityNonRetriableErrors(t *testing.T) {
	now := time.Unix(1000, 0)
	job := Job{Kind: IncomingActivity, Attempts: 0}
	if _, exhausted := NextAttempt(IncomingActivity, job, ErrRecursion, now); !exhausted {
		t.Fatal("expected ErrRecursion to be non-retriable for IncomingActivity")
	}
	if _, exhausted := NextAttempt(IncomingActivity, job, ErrNotFoundTerminal, now); !exhausted {
		t.Fatal("expected ErrNotFoundTerminal to be non-retriable for IncomingActivity")
	}
}

func TestIncomingActivityRetriesUpToCap(t *testing.T) {
	now := time.Unix(1000, 0)
	genericErr := ErrRecursion // placeholder swapped below for a generic error
	_ = genericErr
	otherErr := errUnrelated{}

	job0 := Job{Kind: IncomingActivity, Attempts: 0}
	sched, exhausted := NextAttempt(IncomingActivity, job0, otherErr, now)
	if exhausted {
		t.Fatal("attempt 1 should not be exhausted (maxRetries=2)")
	}
	if sched != now.Add(600*time.Second) {
		t.Fatalf("expected constant 600s backoff, got %v", sched.Sub(now))
	}

	job1 := Job{Kind: IncomingActivity, Attempts: 1}
	_, exhausted = NextAttempt(IncomingActivity, job1, otherErr, now)
	if exhausted {
		t.Fatal("attempt 2 should not be exhausted (maxRetries=2)")
	}

	job2 := Job{Kind: IncomingActivity, Attempts: 2}
	_, exhausted = NextAttempt(IncomingActivity, job2, otherErr, now)
	if !exhausted {
		t.Fatal("attempt 3 should be exhausted (maxRetries=2)")
	}
}

func TestMediaCleanupNeverRetries(t *testing.T) {
	now := time.Unix(1000, 0)
	job := Job{Kind: MediaCleanup, Attempts: 0}
	if _, exhausted := NextAttempt(MediaCleanup, job, errUnrelated{}, now); !exhausted {
		t.Fatal("MediaCleanup has zero max retries, should always be exhausted")
	}
}

type errUnrelated struct{}

func (errUnrelated) Error() string { return "unrelated failure" }
