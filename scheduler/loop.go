package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrLoopClosed is returned by Do when the loop is no longer running.
var ErrLoopClosed = errors.New("scheduler loop is closed")

// Loop is a wall-clock Scheduler that runs every callback on the goroutine
// executing Run.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	closed bool

	workers errgroup.Group
	running atomic.Bool
}

// NewLoop creates a Loop. Call Run to start processing callbacks.
func NewLoop() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
	}
}

// Now returns the wall-clock time.
func (l *Loop) Now() time.Time {
	return time.Now()
}

// Post enqueues fn. Callbacks posted after Shutdown are dropped.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// AfterFunc schedules fn on the loop after d.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Task {
	t := &timerTask{}
	t.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			if t.cancelled.Load() {
				return
			}
			fn()
		})
	})
	return t
}

// Go runs fn on a worker goroutine tracked by the loop.
func (l *Loop) Go(fn func()) {
	l.workers.Go(func() error {
		fn()
		return nil
	})
}

// Run processes callbacks until ctx is cancelled or Shutdown is called.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return errors.New("scheduler loop already running")
	}
	defer l.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}

		for {
			l.mu.Lock()
			if len(l.queue) == 0 {
				closed := l.closed
				l.mu.Unlock()
				if closed {
					return nil
				}
				break
			}
			batch := l.queue
			l.queue = nil
			l.mu.Unlock()

			for _, fn := range batch {
				fn()
			}
		}
	}
}

// Do runs fn on the loop and waits for it to finish.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return ErrLoopClosed
	}

	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting callbacks, lets Run drain what is queued, and
// waits for worker goroutines started with Go.
func (l *Loop) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}

	done := make(chan struct{})
	go func() {
		_ = l.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type timerTask struct {
	timer     *time.Timer
	cancelled atomic.Bool
}

// Cancel implements Task.
func (t *timerTask) Cancel() bool {
	if !t.cancelled.CompareAndSwap(false, true) {
		return false
	}
	t.timer.Stop()
	return true
}
