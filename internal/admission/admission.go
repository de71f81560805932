// Package admission gates inbound requests before any sanitization or
// model work happens. Two independent throttles are keyed by client
// identity (the remote network address): a sliding-window rate gate and
// a minimum-interval cooldown gate. Both evict idle identities inline
// so neither map grows without bound.
package admission

import (
	"sync"
	"time"
)

// Defaults match the public abuse-control contract: at most five
// requests per identity per minute, spaced at least three seconds apart.
const (
	DefaultWindow   = 60 * time.Second
	DefaultMaxHits  = 5
	DefaultCooldown = 3 * time.Second
)

// idleEviction is how long an identity may be silent before its gate
// state is dropped. Long enough to outlive both the rate window and the
// cooldown by a wide margin.
const idleEviction = 10 * time.Minute

// sweepInterval controls how often stale identities are evicted.
const sweepInterval = 10 * time.Minute

// RateGate enforces a sliding-window request cap per identity.
type RateGate struct {
	window time.Duration
	max    int

	mu        sync.Mutex
	hits      map[string][]time.Time // identity → admitted-request times
	lastSweep time.Time

	now func() time.Time // injectable for tests
}

// NewRateGate creates a rate gate. Non-positive arguments fall back to
// the defaults.
func NewRateGate(window time.Duration, max int) *RateGate {
	if window <= 0 {
		window = DefaultWindow
	}
	if max <= 0 {
		max = DefaultMaxHits
	}
	return &RateGate{
		window: window,
		max:    max,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow reports whether the identity is under its window cap, recording
// the request if admitted. A rejected request does not advance any
// state, so a caller hammering the endpoint is not penalized further
// than the window itself.
func (g *RateGate) Allow(identity string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.maybeSweep(now)

	cutoff := now.Add(-g.window)
	recent := g.hits[identity][:0]
	for _, t := range g.hits[identity] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= g.max {
		g.hits[identity] = recent
		return false
	}
	g.hits[identity] = append(recent, now)
	return true
}

// maybeSweep evicts identities whose newest hit is older than the idle
// window. Caller holds the lock.
func (g *RateGate) maybeSweep(now time.Time) {
	if now.Sub(g.lastSweep) < sweepInterval {
		return
	}
	g.lastSweep = now

	cutoff := now.Add(-idleEviction)
	for id, times := range g.hits {
		if len(times) == 0 || times[len(times)-1].Before(cutoff) {
			delete(g.hits, id)
		}
	}
}

// CooldownGate enforces a minimum interval between consecutive requests
// from the same identity.
type CooldownGate struct {
	minGap time.Duration

	mu        sync.Mutex
	last      map[string]time.Time // identity → last admitted request
	lastSweep time.Time

	now func() time.Time // injectable for tests
}

// NewCooldownGate creates a cooldown gate. A non-positive gap falls
// back to the default.
func NewCooldownGate(minGap time.Duration) *CooldownGate {
	if minGap <= 0 {
		minGap = DefaultCooldown
	}
	return &CooldownGate{
		minGap: minGap,
		last:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// Allow reports whether enough time has passed since the identity's
// last admitted request. Admitted requests update the stored timestamp;
// rejected ones leave it untouched, so waiting out the gap always works.
func (g *CooldownGate) Allow(identity string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.maybeSweep(now)

	if last, ok := g.last[identity]; ok && now.Sub(last) < g.minGap {
		return false
	}
	g.last[identity] = now
	return true
}

// maybeSweep evicts identities idle longer than the eviction window.
// Caller holds the lock.
func (g *CooldownGate) maybeSweep(now time.Time) {
	if now.Sub(g.lastSweep) < sweepInterval {
		return
	}
	g.lastSweep = now

	cutoff := now.Add(-idleEviction)
	for id, t := range g.last {
		if t.Before(cutoff) {
			delete(g.last, id)
		}
	}
}

// Verdict identifies which gate, if any, rejected a request.
type Verdict int

const (
	Admitted Verdict = iota
	RejectedRate
	RejectedCooldown
)

// Controller composes both gates. A request must pass the rate gate and
// then the cooldown gate to proceed.
type Controller struct {
	rate     *RateGate
	cooldown *CooldownGate
}

// NewController builds a controller from the given gates. Nil gates get
// defaults.
func NewController(rate *RateGate, cooldown *CooldownGate) *Controller {
	if rate == nil {
		rate = NewRateGate(0, 0)
	}
	if cooldown == nil {
		cooldown = NewCooldownGate(0)
	}
	return &Controller{rate: rate, cooldown: cooldown}
}

// Check runs both gates for the identity.
func (c *Controller) Check(identity string) Verdict {
	if !c.rate.Allow(identity) {
		return RejectedRate
	}
	if !c.cooldown.Allow(identity) {
		return RejectedCooldown
	}
	return Admitted
}
