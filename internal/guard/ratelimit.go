// Package guard holds the request-side resilience primitives: the
// per-identity rate limiter and the kill switch. Both are process-wide
// singletons, created once at startup and injected into the API server.
package guard

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ordbridge/teleburnd/internal/logging"
	"github.com/ordbridge/teleburnd/internal/util"
)

const (
	defaultSweepInterval = 5 * time.Minute
	// Identities idle for a full sweep interval past their window are
	// evicted to bound memory.
	staleGrace = 5 * time.Minute
)

// RateResult is the outcome of a rate-limit check, carrying the standard
// limit/remaining/reset metadata for response headers.
type RateResult struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// RateLimiter enforces a per-identity sliding window plus a global token
// bucket in front of it. The per-identity window is an explicit timestamp
// set because callers need exact remaining/reset metadata; the global
// limiter is x/time/rate as a cheap aggregate backstop.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time

	max    int
	window time.Duration

	global *rate.Limiter

	sweepInterval time.Duration
	running       bool
	stopCh        chan struct{}

	// now is swappable for tests.
	now func() time.Time
}

// NewRateLimiter creates a limiter allowing max requests per identity per
// window, with a global ceiling of globalPerSec requests across all
// identities (0 disables the global limiter).
func NewRateLimiter(max int, window time.Duration, globalPerSec float64) *RateLimiter {
	rl := &RateLimiter{
		windows:       make(map[string][]time.Time),
		max:           max,
		window:        window,
		sweepInterval: defaultSweepInterval,
		stopCh:        make(chan struct{}),
		now:           time.Now,
	}
	if globalPerSec > 0 {
		rl.global = rate.NewLimiter(rate.Limit(globalPerSec), int(globalPerSec*2)+1)
	}
	return rl
}

// Check prunes the identity's window, rejects if at capacity, otherwise
// records the request and allows it.
func (rl *RateLimiter) Check(identity string) RateResult {
	now := rl.now()

	if rl.global != nil && !rl.global.Allow() {
		return RateResult{
			Allowed:   false,
			Limit:     rl.max,
			Remaining: 0,
			Reset:     now.Add(time.Second),
		}
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := now.Add(-rl.window)
	kept := pruneWindow(rl.windows[identity], cutoff)

	if len(kept) >= rl.max {
		rl.windows[identity] = kept
		return RateResult{
			Allowed:   false,
			Limit:     rl.max,
			Remaining: 0,
			Reset:     kept[0].Add(rl.window),
		}
	}

	kept = append(kept, now)
	rl.windows[identity] = kept
	return RateResult{
		Allowed:   true,
		Limit:     rl.max,
		Remaining: rl.max - len(kept),
		Reset:     kept[0].Add(rl.window),
	}
}

// pruneWindow drops timestamps at or before cutoff, keeping order.
func pruneWindow(window []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(window) && !window[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return window
	}
	return append(window[:0:0], window[i:]...)
}

// Start begins the periodic sweep that evicts idle identities. Idempotent.
func (rl *RateLimiter) Start(ctx context.Context) {
	rl.mu.Lock()
	if rl.running {
		rl.mu.Unlock()
		return
	}
	rl.running = true
	rl.mu.Unlock()

	util.SafeGo("rate-limit-sweep", func() {
		ticker := time.NewTicker(rl.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-rl.stopCh:
				return
			case <-ticker.C:
				rl.sweep()
			}
		}
	})
}

// Stop stops the sweep goroutine.
func (rl *RateLimiter) Stop() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if !rl.running {
		return
	}
	rl.running = false

	select {
	case <-rl.stopCh:
	default:
		close(rl.stopCh)
	}
}

// sweep evicts identities whose entire window has gone stale.
func (rl *RateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.window - staleGrace)
	var evicted int
	for id, window := range rl.windows {
		if len(window) == 0 || !window[len(window)-1].After(cutoff) {
			delete(rl.windows, id)
			evicted++
		}
	}

	if evicted > 0 {
		logging.Debug("evicted stale rate-limit identities",
			"count", evicted,
			logging.Component("guard"))
	}
}

// Identities returns the number of tracked identities. For tests and stats.
func (rl *RateLimiter) Identities() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.windows)
}
