// Package resource models single-owner devices (the microphone and the
// speech output channel) as explicit handles with acquire/release semantics.
package resource

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrBusy is returned when a resource is already held by another owner.
	ErrBusy = errors.New("resource is held by another owner")

	// ErrNotHeld is returned when releasing a resource the caller does not hold.
	ErrNotHeld = errors.New("resource is not held by caller")
)

// Exclusive is a resource that at most one owner can hold at a time.
type Exclusive struct {
	name string

	mu    sync.Mutex
	owner string
	held  bool
}

// NewExclusive creates a free resource with the given name.
func NewExclusive(name string) *Exclusive {
	return &Exclusive{name: name}
}

// Name returns the resource name.
func (e *Exclusive) Name() string {
	return e.name
}

// Acquire takes the resource for owner. Acquiring a resource the owner
// already holds is a no-op.
func (e *Exclusive) Acquire(owner string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.held {
		if e.owner == owner {
			return nil
		}
		return fmt.Errorf("%s: %w (owner %q)", e.name, ErrBusy, e.owner)
	}
	e.held = true
	e.owner = owner
	return nil
}

// Release frees the resource. Releasing a free resource returns ErrNotHeld.
func (e *Exclusive) Release(owner string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.held || e.owner != owner {
		return fmt.Errorf("%s: %w", e.name, ErrNotHeld)
	}
	e.held = false
	e.owner = ""
	return nil
}

// Held reports whether any owner holds the resource.
func (e *Exclusive) Held() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.held
}

// HeldBy reports whether owner holds the resource.
func (e *Exclusive) HeldBy(owner string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.held && e.owner == owner
}
