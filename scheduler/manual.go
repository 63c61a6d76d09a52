package scheduler

import (
	"sort"
	"sync"
	"time"
)

// Manual is a virtual-time Scheduler. Time only moves when Advance is called,
// and callbacks run on the goroutine calling Advance or RunPending.
// Go runs its work inline so results posted back are ordered deterministically.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers []*manualTask
	posted []func()
}

type manualTask struct {
	m         *Manual
	at        time.Time
	seq       uint64
	fn        func()
	cancelled bool
	fired     bool
}

// Cancel implements Task.
func (t *manualTask) Cancel() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.cancelled || t.fired {
		return false
	}
	t.cancelled = true
	t.m.removeLocked(t)
	return true
}

// NewManual creates a Manual scheduler starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the virtual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// AfterFunc schedules fn at Now()+d.
func (m *Manual) AfterFunc(d time.Duration, fn func()) Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d < 0 {
		d = 0
	}
	m.seq++
	t := &manualTask{m: m, at: m.now.Add(d), seq: m.seq, fn: fn}
	m.timers = append(m.timers, t)
	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].at.Equal(m.timers[j].at) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].at.Before(m.timers[j].at)
	})
	return t
}

// Post queues fn to run at the current virtual time.
func (m *Manual) Post(fn func()) {
	m.mu.Lock()
	m.posted = append(m.posted, fn)
	m.mu.Unlock()
}

// Go runs fn immediately on the calling goroutine.
func (m *Manual) Go(fn func()) {
	fn()
}

// Advance moves virtual time forward by d, running posted callbacks and every
// timer that falls due, in order.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.drainPosted()

		m.mu.Lock()
		if len(m.timers) == 0 || m.timers[0].at.After(target) {
			m.now = target
			m.mu.Unlock()
			break
		}
		t := m.timers[0]
		m.timers = m.timers[1:]
		t.fired = true
		if t.at.After(m.now) {
			m.now = t.at
		}
		m.mu.Unlock()

		t.fn()
	}
	m.drainPosted()
}

// RunPending runs posted callbacks and timers due at the current time
// without moving the clock.
func (m *Manual) RunPending() {
	m.Advance(0)
}

// PendingTimers returns the number of scheduled, uncancelled timers.
func (m *Manual) PendingTimers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

func (m *Manual) drainPosted() {
	for {
		m.mu.Lock()
		if len(m.posted) == 0 {
			m.mu.Unlock()
			return
		}
		batch := m.posted
		m.posted = nil
		m.mu.Unlock()

		for _, fn := range batch {
			fn()
		}
	}
}

func (m *Manual) removeLocked(t *manualTask) {
	for i, other := range m.timers {
		if other == t {
			m.timers = append(m.timers[:i], m.timers[i+1:]...)
			return
		}
	}
}
