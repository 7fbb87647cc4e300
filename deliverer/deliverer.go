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

// Package deliverer implements the egress half of federation: given one
// outgoing activity and a recipient list, it signs the activity once,
// then fans out signed POSTs through a bounded worker pool that never
// has two in-flight requests against the same host, generalizing
// framework/conn/transport.go's BatchDeliver (which spawned one
// goroutine per recipient with no concurrency cap and no per-host
// ordering) to spec §4.6's contract.
package deliverer

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/relaysocial/apcore/jsonsig"
	"github.com/relaysocial/apcore/sig"
)

// DefaultConcurrency matches spec §4.6's "bounded pool (default 5
// concurrent requests)".
const DefaultConcurrency = 5

// UnreachableHorizon is how long a profile may sit in "unreachable"
// before Deliverer gives up on it permanently, per spec §4.6.
const UnreachableHorizon = 7 * 24 * time.Hour

// Recipient is one delivery target: an actor id (for dedup and the
// is_unreachable bookkeeping) mapped to the inbox URL to POST to.
type Recipient struct {
	ActorID        string
	Inbox          string
	SharedInbox    string // empty if the actor has none
	UnreachableSince *time.Time
}

// Signer holds the sender's keys. Ed25519 is preferred for the embedded
// JSON integrity proof when present and policy allows it; the RSA key
// is always used for the per-request HTTP Signature, keyed by
// ActorID + "#main-key", per spec §4.6.
type Signer struct {
	ActorID            string
	RSAKey             *rsa.PrivateKey
	Ed25519Key         ed25519.PrivateKey
	PreferEd25519Proof bool
}

func (s Signer) httpKeyID() string {
	return s.ActorID + "#main-key"
}

// Status is a recipient's terminal delivery state.
type Status int

const (
	Pending Status = iota
	Delivered
	Unreachable
)

// Result reports, per actor id, how delivery ended up.
type Result struct {
	Status map[string]Status
}

func (r Result) AllDelivered() bool {
	for _, s := range r.Status {
		if s == Pending {
			return false
		}
	}
	return true
}

// Pending returns the actor ids still Pending, in no particular order;
// the caller re-enqueues the job with just these recipients on retry.
func (r Result) Pending() []string {
	var out []string
	for id, s := range r.Status {
		if s == Pending {
			out = append(out, id)
		}
	}
	return out
}

// Deliverer is the egress worker pool. PrivateMode instances log every
// would-be delivery but never open a connection, per spec §4.6's
// "Private-mode instances log but never send."
type Deliverer struct {
	Client      *http.Client
	Concurrency int
	UserAgent   string
	PrivateMode bool
	// RateLimiter, if set, is waited on per-host immediately before each
	// request, smoothing bursts on top of the concurrency cap.
	RateLimiter *HostLimiter
	Now         func() time.Time
	Log         func(format string, args ...interface{})
}

// New returns a Deliverer with spec-default concurrency and an HTTP
// client with a bounded per-request timeout.
func New(userAgent string) *Deliverer {
	return &Deliverer{
		Client:      &http.Client{Timeout: 30 * time.Second},
		Concurrency: DefaultConcurrency,
		UserAgent:   userAgent,
		Now:         time.Now,
	}
}

func (d *Deliverer) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Deliverer) log(format string, args ...interface{}) {
	if d.Log != nil {
		d.Log(format, args...)
	}
}

// Deliver dedupes recipients by actor id (preserving the caller's sort
// order), routes each of them to the shared inbox when every recipient
// shares the same one, signs the activity once, and fans the signed
// request out through a bounded, per-host-serialized worker pool.
func (d *Deliverer) Deliver(ctx context.Context, activity map[string]interface{}, recipients []Recipient, signer Signer) (Result, error) {
	deduped := dedupeRecipients(recipients)
	targets, err := resolveTargets(deduped)
	if err != nil {
		return Result{}, err
	}

	result := Result{Status: make(map[string]Status, len(deduped))}
	now := d.now()
	var live []target
	for _, t := range targets {
		if t.recipient.UnreachableSince != nil && now.Sub(*t.recipient.UnreachableSince) > UnreachableHorizon {
			result.Status[t.recipient.ActorID] = Unreachable
			continue
		}
		result.Status[t.recipient.ActorID] = Pending
		live = append(live, t)
	}
	if len(live) == 0 {
		return result, nil
	}

	if d.PrivateMode {
		for _, t := range live {
			d.log("private mode: suppressing delivery to %s", t.inbox)
		}
		return result, nil
	}

	signedBody, err := signOnce(activity, signer, now)
	if err != nil {
		return result, fmt.Errorf("deliverer: signing activity: %w", err)
	}

	d.run(ctx, live, signedBody, signer, result)
	return result, nil
}

type target struct {
	recipient Recipient
	inbox     string
	host      string
}

func resolveTargets(recipients []Recipient) ([]target, error) {
	allShared, shared := sharedInboxForAll(recipients)
	targets := make([]target, 0, len(recipients))
	for _, r := range recipients {
		inbox := r.Inbox
		if allShared {
			inbox = shared
		}
		u, err := url.Parse(inbox)
		if err != nil {
			return nil, fmt.Errorf("deliverer: invalid inbox for %s: %w", r.ActorID, err)
		}
		targets = append(targets, target{recipient: r, inbox: inbox, host: u.Host})
	}
	return targets, nil
}

// sharedInboxForAll reports whether every recipient carries the same
// non-empty shared inbox, in which case every recipient is routed to
// that shared inbox instead of its own, per spec §4.6; each recipient
// still gets its own POST.
func sharedInboxForAll(recipients []Recipient) (bool, string) {
	if len(recipients) == 0 {
		return false, ""
	}
	first := recipients[0].SharedInbox
	if first == "" {
		return false, ""
	}
	for _, r := range recipients[1:] {
		if r.SharedInbox != first {
			return false, ""
		}
	}
	return true, first
}

// dedupeRecipients drops repeated actor ids, keeping first occurrence
// order, matching spec §4.6's "deduplicates by actor id (preserving
// sort order)".
func dedupeRecipients(recipients []Recipient) []Recipient {
	seen := make(map[string]bool, len(recipients))
	out := make([]Recipient, 0, len(recipients))
	for _, r := range recipients {
		if seen[r.ActorID] {
			continue
		}
		seen[r.ActorID] = true
		out = append(out, r)
	}
	return out
}

// signOnce embeds a JSON integrity proof in the activity, unless it
// already carries one, then marshals it. Ed25519 is used when the
// signer has a key and prefers it; RSA otherwise.
func signOnce(activity map[string]interface{}, signer Signer, now time.Time) ([]byte, error) {
	if _, err := jsonsig.Extract(activity); err == nil {
		return json.Marshal(activity)
	} else if err != jsonsig.ErrNoProof {
		return nil, err
	}

	verificationMethod := signer.httpKeyID()
	var (
		signed map[string]interface{}
		err    error
	)
	if signer.PreferEd25519Proof && signer.Ed25519Key != nil {
		signed, err = jsonsig.SignEdDSA(signer.Ed25519Key, verificationMethod, activity, now, false)
	} else if signer.RSAKey != nil {
		signed, err = jsonsig.SignRSA(signer.RSAKey, verificationMethod, activity, now)
	} else {
		return json.Marshal(activity)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(signed)
}

// run fans live targets out through a concurrency-bounded pool where a
// per-host lock guarantees no two in-flight requests share a host; the
// pool advances as soon as a slot frees, per spec §4.6.
func (d *Deliverer) run(ctx context.Context, live []target, body []byte, signer Signer, result Result) {
	concurrency := d.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	sem := make(chan struct{}, concurrency)
	hostLocks := make(map[string]*sync.Mutex)
	var hostLocksMu sync.Mutex
	lockFor := func(host string) *sync.Mutex {
		hostLocksMu.Lock()
		defer hostLocksMu.Unlock()
		l, ok := hostLocks[host]
		if !ok {
			l = &sync.Mutex{}
			hostLocks[host] = l
		}
		return l
	}

	var (
		wg       sync.WaitGroup
		resultMu sync.Mutex
	)
	for _, t := range live {
		t := t
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			l := lockFor(t.host)
			l.Lock()
			defer l.Unlock()

			if d.RateLimiter != nil {
				if err := d.RateLimiter.Wait(ctx, t.host); err != nil {
					d.log("rate limiter wait for %s aborted: %s", t.host, err)
					resultMu.Lock()
					result.Status[t.recipient.ActorID] = Pending
					resultMu.Unlock()
					return
				}
			}

			status := Pending
			if err := d.deliverOne(ctx, t, body, signer); err != nil {
				d.log("delivery to %s failed: %s", t.inbox, err)
			} else {
				status = Delivered
			}
			resultMu.Lock()
			result.Status[t.recipient.ActorID] = status
			resultMu.Unlock()
		}()
	}
	wg.Wait()
}

func (d *Deliverer) deliverOne(ctx context.Context, t target, body []byte, signer Signer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.inbox, bytes.NewReader(body))
	if err != nil {
		return err
	}
	u, err := url.Parse(t.inbox)
	if err != nil {
		return err
	}
	now := d.now()
	path := u.EscapedPath()
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	signReq := sig.SignRequest{
		KeyID:  signer.httpKeyID(),
		Method: http.MethodPost,
		Path:   path,
		Host:   u.Host,
		Date:   now,
		Body:   body,
	}
	headerName, headerValue, err := sig.Sign(signer.RSAKey, signReq)
	if err != nil {
		return fmt.Errorf("signing request: %w", err)
	}

	req.Host = u.Host
	req.Header.Set("Content-Type", `application/activity+json`)
	req.Header.Set("Accept-Charset", "utf-8")
	req.Header.Set("Date", sig.HTTPDate(now))
	req.Header.Set("User-Agent", d.UserAgent)
	req.Header.Set("Digest", sig.Digest(body))
	req.Header.Set(headerName, headerValue)

	resp, err := d.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("delivery failed with status %d", resp.StatusCode)
	}
	return nil
}
