// Package looptest provides a hand-driven Scheduler for tests.
package looptest

import (
	"slices"
	"time"

	"github.com/sakif/portfolio/internal/loop"
)

// Manual is a loop.Scheduler with a fake clock. Nothing runs until the test
// calls Advance or RunIdle, and everything runs on the test goroutine.
type Manual struct {
	now    time.Duration
	timers []*manualTimer
	idle   []func()
}

var _ loop.Scheduler = (*Manual)(nil)

type manualTimer struct {
	at      time.Duration
	every   time.Duration
	fn      func()
	stopped bool
}

func (t *manualTimer) Stop() { t.stopped = true }

// New returns a scheduler at time zero.
func New() *Manual {
	return &Manual{}
}

func (m *Manual) After(d time.Duration, fn func()) loop.Handle {
	t := &manualTimer{at: m.now + d, fn: fn}
	m.timers = append(m.timers, t)
	return t
}

func (m *Manual) Every(d time.Duration, fn func()) loop.Handle {
	t := &manualTimer{at: m.now + d, every: d, fn: fn}
	m.timers = append(m.timers, t)
	return t
}

func (m *Manual) Idle(fn func()) {
	m.idle = append(m.idle, fn)
}

// RunIdle runs queued idle functions, including ones queued while running,
// and returns how many ran.
func (m *Manual) RunIdle() int {
	n := 0
	for len(m.idle) > 0 {
		fn := m.idle[0]
		m.idle = m.idle[1:]
		fn()
		n++
	}
	return n
}

// PendingIdle returns the number of idle functions waiting.
func (m *Manual) PendingIdle() int {
	return len(m.idle)
}

// Active returns the number of timers that have not been stopped or spent.
func (m *Manual) Active() int {
	n := 0
	for _, t := range m.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d, firing due timers in time order.
func (m *Manual) Advance(d time.Duration) {
	end := m.now + d
	for {
		m.timers = slices.DeleteFunc(m.timers, func(t *manualTimer) bool { return t.stopped })
		var next *manualTimer
		for _, t := range m.timers {
			if t.at <= end && (next == nil || t.at < next.at) {
				next = t
			}
		}
		if next == nil {
			break
		}
		m.now = next.at
		if next.every > 0 {
			next.at += next.every
		} else {
			next.stopped = true
		}
		next.fn()
	}
	m.now = end
}
