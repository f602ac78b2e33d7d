// Package cooldown enforces a minimum holding period per account. An
// account is stamped whenever its holdings increase; any later
// holdings-reducing operation is blocked until the configured duration
// has elapsed since the last stamp. The delay makes same-window
// receive-and-resell patterns (the sandwich half of a front-run)
// unprofitable without blocking ordinary trading.
package cooldown

import (
	"fmt"
	"sync"
	"time"
)

// DefaultDuration is the holding period applied when none is configured.
const DefaultDuration = 5 * time.Minute

// CooldownError reports an operation attempted before the holding
// period elapsed.
type CooldownError struct {
	Account  string
	Elapsed  time.Duration
	Required time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("cooldown: %s must hold for %v, only %v elapsed",
		e.Account, e.Required, e.Elapsed)
}

// Guard tracks each account's last qualifying event time.
type Guard struct {
	mu       sync.RWMutex
	duration time.Duration
	stamps   map[string]time.Time
	now      func() time.Time
}

// Option configures a Guard.
type Option func(*Guard)

// WithDuration overrides the holding period.
func WithDuration(d time.Duration) Option {
	return func(g *Guard) { g.duration = d }
}

// WithClock overrides the time source. Used in tests to step time
// deterministically.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// NewGuard creates a guard with the default duration and wall clock.
func NewGuard(opts ...Option) *Guard {
	g := &Guard{
		duration: DefaultDuration,
		stamps:   make(map[string]time.Time),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Duration returns the configured holding period.
func (g *Guard) Duration() time.Duration {
	return g.duration
}

// Check returns a CooldownError if the account's last qualifying event
// is more recent than the holding period. Reaching the boundary exactly
// passes. An account never stamped carries the zero time and always
// passes.
func (g *Guard) Check(account string) error {
	g.mu.RLock()
	stamp := g.stamps[account]
	g.mu.RUnlock()

	elapsed := g.now().Sub(stamp)
	if elapsed < g.duration {
		return &CooldownError{
			Account:  account,
			Elapsed:  elapsed,
			Required: g.duration,
		}
	}
	return nil
}

// Refresh stamps the account with the current time. Stamps never move
// backwards, so a refresh against a skewed clock cannot shorten an
// active cooldown.
func (g *Guard) Refresh(account string) {
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()
	if now.After(g.stamps[account]) {
		g.stamps[account] = now
	}
}

// LastEvent returns the account's last qualifying event time; the zero
// time if never stamped.
func (g *Guard) LastEvent(account string) time.Time {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.stamps[account]
}

// Snapshot captures all stamps for later Restore.
func (g *Guard) Snapshot() map[string]time.Time {
	g.mu.RLock()
	defer g.mu.RUnlock()

	snap := make(map[string]time.Time, len(g.stamps))
	for account, stamp := range g.stamps {
		snap[account] = stamp
	}
	return snap
}

// Restore rewinds the guard to a previously captured snapshot.
func (g *Guard) Restore(snap map[string]time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.stamps = make(map[string]time.Time, len(snap))
	for account, stamp := range snap {
		g.stamps[account] = stamp
	}
}
