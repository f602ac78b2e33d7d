package cooldown_test

import (
	"errors"
	"testing"
	"time"

	"github.com/curvemint/go-curvemint/cooldown"
)

// fakeClock steps time manually.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func TestCheck(t *testing.T) {
	t.Run("NeverStampedPasses", func(t *testing.T) {
		clock := newFakeClock()
		g := cooldown.NewGuard(cooldown.WithClock(clock.Now))
		if err := g.Check("alice"); err != nil {
			t.Errorf("fresh account should pass: %v", err)
		}
	})

	t.Run("BlocksInsideWindow", func(t *testing.T) {
		clock := newFakeClock()
		g := cooldown.NewGuard(
			cooldown.WithClock(clock.Now),
			cooldown.WithDuration(5*time.Minute),
		)
		g.Refresh("alice")
		clock.Advance(2 * time.Minute)

		err := g.Check("alice")
		var cdErr *cooldown.CooldownError
		if !errors.As(err, &cdErr) {
			t.Fatalf("expected CooldownError, got %v", err)
		}
		if cdErr.Elapsed != 2*time.Minute {
			t.Errorf("elapsed: %v", cdErr.Elapsed)
		}
		if cdErr.Required != 5*time.Minute {
			t.Errorf("required: %v", cdErr.Required)
		}
	})

	t.Run("PassesAtExactBoundary", func(t *testing.T) {
		clock := newFakeClock()
		g := cooldown.NewGuard(
			cooldown.WithClock(clock.Now),
			cooldown.WithDuration(5*time.Minute),
		)
		g.Refresh("alice")
		clock.Advance(5 * time.Minute)
		if err := g.Check("alice"); err != nil {
			t.Errorf("boundary should pass: %v", err)
		}
	})

	t.Run("PassesAfterWindow", func(t *testing.T) {
		clock := newFakeClock()
		g := cooldown.NewGuard(
			cooldown.WithClock(clock.Now),
			cooldown.WithDuration(5*time.Minute),
		)
		g.Refresh("alice")
		clock.Advance(time.Hour)
		if err := g.Check("alice"); err != nil {
			t.Errorf("expired cooldown should pass: %v", err)
		}
	})

	t.Run("AccountsAreIndependent", func(t *testing.T) {
		clock := newFakeClock()
		g := cooldown.NewGuard(cooldown.WithClock(clock.Now))
		g.Refresh("alice")
		if err := g.Check("bob"); err != nil {
			t.Errorf("bob should be unaffected by alice's stamp: %v", err)
		}
	})
}

func TestRefreshMonotonic(t *testing.T) {
	clock := newFakeClock()
	g := cooldown.NewGuard(cooldown.WithClock(clock.Now))

	g.Refresh("alice")
	first := g.LastEvent("alice")

	// Rewind the clock; a refresh must not move the stamp backwards.
	clock.now = clock.now.Add(-time.Hour)
	g.Refresh("alice")
	if got := g.LastEvent("alice"); got.Before(first) {
		t.Errorf("stamp moved backwards: %v -> %v", first, got)
	}
}

func TestSnapshotRestore(t *testing.T) {
	clock := newFakeClock()
	g := cooldown.NewGuard(
		cooldown.WithClock(clock.Now),
		cooldown.WithDuration(5*time.Minute),
	)

	snap := g.Snapshot()
	g.Refresh("alice")

	if err := g.Check("alice"); err == nil {
		t.Fatal("alice should be cooling down")
	}

	g.Restore(snap)
	if err := g.Check("alice"); err != nil {
		t.Errorf("restore should clear alice's stamp: %v", err)
	}
}
