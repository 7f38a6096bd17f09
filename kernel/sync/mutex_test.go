package sync

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestMutex(t *testing.T) {
	var m Mutex

	if err := m.TryLock(); err != nil {
		t.Fatalf("expected TryLock on a free mutex to succeed; got %v", err)
	}

	if !m.IsLocked() {
		t.Fatal("expected IsLocked to return true while the lock is held")
	}

	if err := m.TryLock(); err != ErrLocked {
		t.Fatalf("expected TryLock on a held mutex to return ErrLocked; got %v", err)
	}

	m.Unlock()
	if m.IsLocked() {
		t.Fatal("expected IsLocked to return false after Unlock")
	}

	// Unlocking a free mutex is a no-op
	m.Unlock()
	if err := m.TryLock(); err != nil {
		t.Fatalf("expected TryLock after Unlock to succeed; got %v", err)
	}
}

func TestMutexExclusion(t *testing.T) {
	var (
		m          Mutex
		wg         sync.WaitGroup
		holders    int32
		numWorkers = 10
		iterations = 1000
	)

	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				if m.TryLock() != nil {
					continue
				}

				if n := atomic.AddInt32(&holders, 1); n != 1 {
					t.Errorf("expected a single lock holder; got %d", n)
				}
				atomic.AddInt32(&holders, -1)
				m.Unlock()
			}
		}()
	}

	wg.Wait()
}
