// Package scheduler serializes all voice-runtime callbacks onto one logical
// thread and owns every timer the runtime schedules.
//
// Components in this module (capture cycle, debouncer, coordinator, streaming
// manager) are not safe for concurrent use. They are driven exclusively from
// a Scheduler: device frames, network messages, HTTP replies, and speech
// completions are marshalled in with Post, and every timeout is a Task that
// can be cancelled. Two implementations are provided:
//
//   - Loop runs callbacks on a dedicated goroutine in wall-clock time.
//   - Manual runs callbacks in virtual time for deterministic tests.
package scheduler

import (
	"sync"
	"time"
)

// Task is a scheduled continuation that can be cancelled before it runs.
type Task interface {
	// Cancel prevents the task from running. It reports whether this call
	// cancelled the task (false if it already ran or was already cancelled).
	Cancel() bool
}

// Scheduler is the single cancellable scheduler abstraction shared by all
// components.
type Scheduler interface {
	// Now returns the scheduler's current time.
	Now() time.Time

	// AfterFunc runs fn on the scheduler thread after d elapses.
	AfterFunc(d time.Duration, fn func()) Task

	// Post enqueues fn to run on the scheduler thread. Safe to call from any goroutine.
	Post(fn func())

	// Go runs blocking work off the scheduler thread. The work must use Post
	// to hand results back.
	Go(fn func())
}

// Group tracks the tasks scheduled by one component so they can be cancelled
// together. A Group is safe for concurrent use.
type Group struct {
	sched Scheduler

	mu    sync.Mutex
	tasks map[*groupTask]struct{}
}

type groupTask struct {
	group *Group

	mu        sync.Mutex
	inner     Task
	cancelled bool
}

// Cancel implements Task.
func (t *groupTask) Cancel() bool {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return false
	}
	t.cancelled = true
	inner := t.inner
	t.mu.Unlock()

	t.group.remove(t)
	if inner == nil {
		return true
	}
	inner.Cancel()
	return true
}

func (t *groupTask) isCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// NewGroup creates an empty task group bound to sched.
func NewGroup(sched Scheduler) *Group {
	return &Group{
		sched: sched,
		tasks: make(map[*groupTask]struct{}),
	}
}

// Scheduler returns the scheduler the group schedules on.
func (g *Group) Scheduler() Scheduler {
	return g.sched
}

// AfterFunc schedules fn once after d and tracks it in the group.
func (g *Group) AfterFunc(d time.Duration, fn func()) Task {
	t := &groupTask{group: g}
	g.add(t)

	inner := g.sched.AfterFunc(d, func() {
		if t.isCancelled() {
			return
		}
		g.remove(t)
		fn()
	})

	t.mu.Lock()
	t.inner = inner
	t.mu.Unlock()
	return t
}

// Every runs fn repeatedly with period d until the returned Task is
// cancelled or the group is cancelled. The first run happens after d.
func (g *Group) Every(d time.Duration, fn func()) Task {
	t := &groupTask{group: g}
	g.add(t)

	var tick func()
	tick = func() {
		if t.isCancelled() {
			return
		}
		fn()
		t.mu.Lock()
		if !t.cancelled {
			t.inner = g.sched.AfterFunc(d, tick)
		}
		t.mu.Unlock()
	}

	inner := g.sched.AfterFunc(d, tick)
	t.mu.Lock()
	t.inner = inner
	t.mu.Unlock()
	return t
}

// CancelAll cancels every outstanding task in the group and returns how many
// were cancelled.
func (g *Group) CancelAll() int {
	g.mu.Lock()
	pending := make([]*groupTask, 0, len(g.tasks))
	for t := range g.tasks {
		pending = append(pending, t)
	}
	g.mu.Unlock()

	n := 0
	for _, t := range pending {
		if t.Cancel() {
			n++
		}
	}
	return n
}

// Len returns the number of outstanding tasks.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.tasks)
}

func (g *Group) add(t *groupTask) {
	g.mu.Lock()
	g.tasks[t] = struct{}{}
	g.mu.Unlock()
}

func (g *Group) remove(t *groupTask) {
	g.mu.Lock()
	delete(g.tasks, t)
	g.mu.Unlock()
}
