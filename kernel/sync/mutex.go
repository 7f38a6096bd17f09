// Package sync provides the lock used to guard the kernel's single-instance
// state.
package sync

import (
	"sync/atomic"

	"kestrel/kernel"
)

var (
	// ErrLocked is returned when a lock is already held by another
	// execution context.
	ErrLocked = &kernel.Error{Module: "sync", Message: "lock is already held"}
)

// Mutex is a non-blocking lock. A handler that interrupts the holder of a
// Mutex cannot wait for it to be released so every acquisition attempt either
// succeeds immediately or fails with ErrLocked.
type Mutex struct {
	state uint32
}

// TryLock attempts to acquire the lock. It returns ErrLocked if the lock is
// already held.
func (m *Mutex) TryLock() *kernel.Error {
	if atomic.SwapUint32(&m.state, 1) != 0 {
		return ErrLocked
	}

	return nil
}

// Unlock releases a held lock. Calling Unlock while the lock is free has no
// effect.
func (m *Mutex) Unlock() {
	atomic.StoreUint32(&m.state, 0)
}

// IsLocked returns true if the lock is currently held.
func (m *Mutex) IsLocked() bool {
	return atomic.LoadUint32(&m.state) != 0
}
