package dwell

import (
	"testing"
	"time"

	"github.com/rcliao/pulse/internal/clock/clocktest"
)

func newTestGate() (*Gate, *clocktest.Fake) {
	c := clocktest.New(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	return New(c, time.Second, DefaultUnits), c
}

func TestFirstVisitCountsDown(t *testing.T) {
	g, c := newTestGate()
	var ticks []int
	g.OnChange(func(r int) { ticks = append(ticks, r) })

	g.Enter(true)
	if !g.Active() || g.Remaining() != 3 {
		t.Fatalf("expected 3 units remaining, got %d", g.Remaining())
	}

	c.Advance(2 * time.Second)
	if !g.Active() {
		t.Fatal("gate should still be active after 2 units")
	}

	c.Advance(time.Second)
	if g.Active() {
		t.Fatalf("gate should clear after 3 units, remaining %d", g.Remaining())
	}
	if len(ticks) != 3 || ticks[2] != 0 {
		t.Errorf("expected ticks [2 1 0], got %v", ticks)
	}
	if c.Pending() != 0 {
		t.Errorf("expected no timers left, got %d", c.Pending())
	}
}

func TestRevisitHasNoWait(t *testing.T) {
	g, _ := newTestGate()
	g.Enter(false)
	if g.Active() {
		t.Error("revisited question must not be gated")
	}
}

func TestEnterCancelsPreviousCountdown(t *testing.T) {
	g, c := newTestGate()
	g.Enter(true)
	c.Advance(2 * time.Second)

	g.Enter(false)
	if g.Active() {
		t.Fatal("moving to a visited question should clear the gate")
	}
	if c.Pending() != 0 {
		t.Errorf("expected previous timer cancelled, %d pending", c.Pending())
	}

	g.Enter(true)
	c.Advance(time.Second)
	if g.Remaining() != 2 {
		t.Errorf("expected fresh countdown at 2, got %d", g.Remaining())
	}
}

func TestStaleCallbackIsIgnored(t *testing.T) {
	g, c := newTestGate()
	g.Enter(true)
	stale := g.gen

	g.Enter(true)
	g.tick(stale)
	if g.Remaining() != 3 {
		t.Errorf("stale tick changed countdown: %d", g.Remaining())
	}
	c.Advance(3 * time.Second)
	if g.Active() {
		t.Error("current countdown should still finish")
	}
}

func TestStop(t *testing.T) {
	g, c := newTestGate()
	g.Enter(true)
	g.Stop()
	if g.Active() {
		t.Error("stopped gate should not be active")
	}
	if c.Pending() != 0 {
		t.Errorf("expected no pending timers, got %d", c.Pending())
	}
}

func TestZeroUnitsNeverGates(t *testing.T) {
	c := clocktest.New(time.Now())
	g := New(c, time.Second, 0)
	g.Enter(true)
	if g.Active() {
		t.Error("gate with zero units should never be active")
	}
}
