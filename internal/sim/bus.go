package sim

import (
	"sync"

	"github.com/google/btree"
	"github.com/pkg/errors"
)

// Device is a memory-mapped device exposing 32-bit registers.
type Device interface {
	// Name identifies the device in diagnostics.
	Name() string

	// ReadUint32 reads the register at offset from the device base.
	ReadUint32(offset uintptr) uint32

	// WriteUint32 writes the register at offset from the device base.
	WriteUint32(offset uintptr, v uint32)
}

type window struct {
	base, size uintptr
	dev        Device
}

func (w window) end() uintptr { return w.base + w.size }

// Bus routes physical addresses outside RAM to the device window that
// contains them. Windows are kept in a B-tree ordered by base address.
type Bus struct {
	mu      sync.RWMutex
	windows *btree.BTreeG[window]
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{
		windows: btree.NewG(8, func(a, b window) bool { return a.base < b.base }),
	}
}

// Attach maps dev at [base, base+size). Overlapping windows are rejected.
func (b *Bus) Attach(base, size uintptr, dev Device) error {
	if size == 0 {
		return errors.Errorf("sim: device %s has an empty MMIO window", dev.Name())
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	w := window{base: base, size: size, dev: dev}
	if prev, ok := b.floor(w.end() - 1); ok && prev.end() > base {
		return errors.Errorf("sim: MMIO window of %s at %#x overlaps %s at %#x", dev.Name(), base, prev.dev.Name(), prev.base)
	}

	b.windows.ReplaceOrInsert(w)
	return nil
}

// floor returns the window with the highest base address <= addr.
func (b *Bus) floor(addr uintptr) (window, bool) {
	var (
		found window
		ok    bool
	)

	b.windows.DescendLessOrEqual(window{base: addr}, func(w window) bool {
		found, ok = w, true
		return false
	})

	return found, ok
}

func (b *Bus) lookup(addr uintptr) window {
	b.mu.RLock()
	defer b.mu.RUnlock()

	w, ok := b.floor(addr)
	if !ok || addr+4 > w.end() {
		panic(errors.Errorf("sim: no device mapped at physical address %#x", addr))
	}

	return w
}

// ReadUint32 reads the device register at physical address addr.
func (b *Bus) ReadUint32(addr uintptr) uint32 {
	w := b.lookup(addr)
	return w.dev.ReadUint32(addr - w.base)
}

// WriteUint32 writes the device register at physical address addr.
func (b *Bus) WriteUint32(addr uintptr, v uint32) {
	w := b.lookup(addr)
	w.dev.WriteUint32(addr-w.base, v)
}

// Devices returns the attached devices ordered by base address.
func (b *Bus) Devices() []Device {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var devs []Device
	b.windows.Ascend(func(w window) bool {
		devs = append(devs, w.dev)
		return true
	})

	return devs
}
