// Package loop runs the single logical thread of a session.
//
// Every piece of session state (slide store, session state, presenter) is
// touched only from the goroutine running Loop.Run. Other goroutines hand work
// over with Post or Do: transport readers, HTTP handlers, timers.
//
// Three kinds of work are scheduled:
//   - tasks (Post/Do) run in FIFO order as soon as possible
//   - idle functions run one at a time when no task is waiting
//   - timers (After/Every) post a task when they fire
package loop

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrStopped is returned by Do when the loop is not running anymore.
var ErrStopped = errors.New("loop: stopped")

// Handle cancels a scheduled timer.
//
// Stop must be called from the loop goroutine. A callback that already fired
// but has not run yet is skipped.
type Handle interface {
	Stop()
}

// Scheduler is the part of the loop that session components depend on.
// Tests substitute a manual clock.
type Scheduler interface {
	After(d time.Duration, fn func()) Handle
	Every(d time.Duration, fn func()) Handle
	Idle(fn func())
}

// Loop is a cooperative single-goroutine executor.
type Loop struct {
	tasks  chan func()
	wake   chan struct{}
	done   chan struct{}
	logger *slog.Logger

	mu   sync.Mutex
	idle []func()

	runOnce  sync.Once
	stopOnce sync.Once
}

var _ Scheduler = (*Loop)(nil)

// New creates a loop with room for queue pending tasks.
func New(queue int, logger *slog.Logger) *Loop {
	if queue <= 0 {
		queue = 256
	}
	return &Loop{
		tasks:  make(chan func(), queue),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Run executes work until ctx is cancelled. It must be called once.
func (l *Loop) Run(ctx context.Context) error {
	err := errors.New("loop: already running")
	l.runOnce.Do(func() {
		defer l.stopOnce.Do(func() { close(l.done) })
		err = l.run(ctx)
	})
	return err
}

func (l *Loop) run(ctx context.Context) error {
	l.logger.Debug("event loop started")
	for {
		// Tasks first; idle work only when nothing else is queued.
		select {
		case <-ctx.Done():
			l.logger.Debug("event loop stopped")
			return ctx.Err()
		case fn := <-l.tasks:
			l.exec(fn)
			continue
		default:
		}

		if fn := l.popIdle(); fn != nil {
			l.exec(fn)
			continue
		}

		select {
		case <-ctx.Done():
			l.logger.Debug("event loop stopped")
			return ctx.Err()
		case fn := <-l.tasks:
			l.exec(fn)
		case <-l.wake:
		}
	}
}

// exec runs fn and keeps the loop alive if it panics.
func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("event loop task panicked", slog.Any("panic", r))
		}
	}()
	fn()
}

// Post queues fn to run on the loop. It blocks while the queue is full and
// returns false if the loop has stopped.
// Calling Post from the loop goroutine with a full queue deadlocks; loop code
// uses Idle to defer its own work.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Do runs fn on the loop and waits for its result.
// It must not be called from the loop goroutine.
func (l *Loop) Do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	if !l.Post(func() { result <- fn() }) {
		return ErrStopped
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrStopped
	}
}

// Idle queues fn to run when no task is pending. Safe from any goroutine.
func (l *Loop) Idle(fn func()) {
	l.mu.Lock()
	l.idle = append(l.idle, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) popIdle() func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.idle) == 0 {
		return nil
	}
	fn := l.idle[0]
	l.idle[0] = nil
	l.idle = l.idle[1:]
	return fn
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// timer is the Handle for After and Every. stopped is only read and written
// on the loop goroutine.
type timer struct {
	t       *time.Timer
	stopped bool
}

func (h *timer) Stop() {
	if h == nil {
		return
	}
	h.stopped = true
	h.t.Stop()
}

// After runs fn on the loop once, d from now.
func (l *Loop) After(d time.Duration, fn func()) Handle {
	h := &timer{}
	h.t = time.AfterFunc(d, func() {
		l.Post(func() {
			if h.stopped {
				return
			}
			h.stopped = true
			fn()
		})
	})
	return h
}

// Every runs fn on the loop every d until the handle is stopped.
// The next tick is armed after fn returns, so slow ticks never pile up.
func (l *Loop) Every(d time.Duration, fn func()) Handle {
	h := &timer{}
	h.t = time.AfterFunc(d, func() {
		l.Post(func() {
			if h.stopped {
				return
			}
			fn()
			if !h.stopped {
				h.t.Reset(d)
			}
		})
	})
	return h
}
