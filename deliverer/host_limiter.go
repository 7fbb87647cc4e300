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

package deliverer

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type hostLimiterEntry struct {
	L        *rate.Limiter
	LastUsed time.Time
}

// HostLimiter complements Deliverer's per-host concurrency cap with a
// smooth steady-state rate per host: the cap bounds how many requests to
// a host are in flight, the limiter bounds how fast new ones start.
type HostLimiter struct {
	limit       rate.Limit
	burst       int
	prunePeriod time.Duration
	pruneAge    time.Duration
	wg          sync.WaitGroup

	pruneTicker *time.Ticker
	pruneCtx    context.Context
	pruneCancel context.CancelFunc
	pMu         sync.Mutex

	m  map[string]hostLimiterEntry
	mu sync.Mutex
}

// NewHostLimiter builds a HostLimiter from the global outbound QPS/burst
// policy. prunePeriod/pruneAge control how often idle per-host entries
// are swept so the map doesn't grow without bound across the lifetime of
// a long-running instance.
func NewHostLimiter(qps rate.Limit, burst int, prunePeriod, pruneAge time.Duration) *HostLimiter {
	return &HostLimiter{
		limit:       qps,
		burst:       burst,
		prunePeriod: prunePeriod,
		pruneAge:    pruneAge,
		m:           make(map[string]hostLimiterEntry),
	}
}

func (h *HostLimiter) Start() {
	h.resetMap()
	h.goPrune()
}

func (h *HostLimiter) Stop() {
	h.stopPrune()
}

// Wait blocks until host's rate limiter admits one more request, or ctx
// is done.
func (h *HostLimiter) Wait(ctx context.Context, host string) error {
	return h.get(host).Wait(ctx)
}

func (h *HostLimiter) get(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.m[host]
	if ok {
		e.LastUsed = time.Now()
		h.m[host] = e
		return e.L
	}
	e = hostLimiterEntry{
		L:        rate.NewLimiter(h.limit, h.burst),
		LastUsed: time.Now(),
	}
	h.m[host] = e
	return e.L
}

func (h *HostLimiter) resetMap() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.m = make(map[string]hostLimiterEntry)
}

func (h *HostLimiter) stopPrune() {
	h.pMu.Lock()
	defer h.pMu.Unlock()
	if h.pruneCancel == nil {
		return
	}
	h.pruneCancel()
	h.wg.Wait()
}

func (h *HostLimiter) goPrune() {
	h.pMu.Lock()
	defer h.pMu.Unlock()
	if h.pruneTicker != nil {
		return
	}
	h.pruneTicker = time.NewTicker(h.prunePeriod)
	h.pruneCtx, h.pruneCancel = context.WithCancel(context.Background())
	h.wg.Add(1)
	go func() {
		defer func() {
			h.pMu.Lock()
			defer h.pMu.Unlock()
			h.pruneTicker.Stop()
			h.pruneTicker = nil
			h.pruneCtx = nil
			h.pruneCancel = nil
			h.wg.Done()
		}()
		for {
			select {
			case <-h.pruneTicker.C:
				h.prune()
			case <-h.pruneCtx.Done():
				return
			}
		}
	}()
}

func (h *HostLimiter) prune() {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := time.Now()
	for k, v := range h.m {
		if now.Sub(v.LastUsed) > h.pruneAge {
			delete(h.m, k)
		}
	}
}
