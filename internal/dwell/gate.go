// Package dwell enforces a minimum reading time on a question's first visit.
package dwell

import (
	"sync"
	"time"

	"github.com/rcliao/pulse/internal/clock"
)

const (
	DefaultUnits = 3
	DefaultUnit  = time.Second
)

// Gate counts down a fixed number of units after a first visit. The countdown
// is a chain of one-shot timers tagged with a generation; Enter and Stop bump
// the generation so a callback left over from a previous question does nothing.
type Gate struct {
	clock clock.Clock
	unit  time.Duration
	units int

	mu        sync.Mutex
	remaining int
	gen       uint64
	timer     clock.Timer
	onChange  func(remaining int)
}

// New returns a gate counting units ticks of unit each.
func New(c clock.Clock, unit time.Duration, units int) *Gate {
	if c == nil {
		c = clock.Real()
	}
	if unit <= 0 {
		unit = DefaultUnit
	}
	if units < 0 {
		units = 0
	}
	return &Gate{clock: c, unit: unit, units: units}
}

// OnChange registers fn to be called after every countdown tick. It is not
// called from Enter or Stop.
func (g *Gate) OnChange(fn func(remaining int)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onChange = fn
}

// Enter cancels any running countdown and, if this is the question's first
// visit, starts a new one.
func (g *Gate) Enter(firstVisit bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelLocked()
	if firstVisit && g.units > 0 {
		g.remaining = g.units
		g.scheduleLocked(g.gen)
	}
}

// Stop cancels any running countdown.
func (g *Gate) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelLocked()
}

// Active reports whether forward navigation is currently refused.
func (g *Gate) Active() bool {
	return g.Remaining() > 0
}

// Remaining returns the number of units left in the countdown.
func (g *Gate) Remaining() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.remaining
}

func (g *Gate) cancelLocked() {
	g.gen++
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.remaining = 0
}

func (g *Gate) scheduleLocked(gen uint64) {
	g.timer = g.clock.AfterFunc(g.unit, func() { g.tick(gen) })
}

func (g *Gate) tick(gen uint64) {
	g.mu.Lock()
	if gen != g.gen || g.remaining == 0 {
		g.mu.Unlock()
		return
	}
	g.remaining--
	if g.remaining > 0 {
		g.scheduleLocked(gen)
	} else {
		g.timer = nil
	}
	remaining, fn := g.remaining, g.onChange
	g.mu.Unlock()

	if fn != nil {
		fn(remaining)
	}
}
