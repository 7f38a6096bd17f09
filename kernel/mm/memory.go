package mm

import (
	"sync/atomic"
	"unsafe"
)

// Memory provides access to memory reachable by the kernel. Page tables,
// the frame bitmap and device registers are accessed through it so that the
// managers built on top can run against simulated memory.
type Memory interface {
	Uint8(addr uintptr) uint8
	SetUint8(addr uintptr, v uint8)
	Uint32(addr uintptr) uint32
	SetUint32(addr uintptr, v uint32)
	Uint64(addr uintptr) uint64
	SetUint64(addr uintptr, v uint64)
}

// RawMemory implements Memory with direct loads and stores. It is only
// usable in kernel context where addr is mapped in the active page tables.
type RawMemory struct{}

// Uint8 loads the byte at addr.
func (RawMemory) Uint8(addr uintptr) uint8 {
	return *(*uint8)(unsafe.Pointer(addr))
}

// SetUint8 stores v at addr.
func (RawMemory) SetUint8(addr uintptr, v uint8) {
	*(*uint8)(unsafe.Pointer(addr)) = v
}

// Uint32 loads the 32-bit word at addr. Device registers must be accessed
// with a single load so the access is performed atomically.
func (RawMemory) Uint32(addr uintptr) uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(addr)))
}

// SetUint32 stores the 32-bit word v at addr.
func (RawMemory) SetUint32(addr uintptr, v uint32) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(addr)), v)
}

// Uint64 loads the 64-bit word at addr.
func (RawMemory) Uint64(addr uintptr) uint64 {
	return atomic.LoadUint64((*uint64)(unsafe.Pointer(addr)))
}

// SetUint64 stores the 64-bit word v at addr.
func (RawMemory) SetUint64(addr uintptr, v uint64) {
	atomic.StoreUint64((*uint64)(unsafe.Pointer(addr)), v)
}

// Memset sets size bytes starting at addr to value, using 64-bit stores for
// the aligned part of the region.
func Memset(mem Memory, addr uintptr, value uint8, size uintptr) {
	for ; size != 0 && addr&7 != 0; addr, size = addr+1, size-1 {
		mem.SetUint8(addr, value)
	}

	word := uint64(value) * 0x0101010101010101
	for ; size >= 8; addr, size = addr+8, size-8 {
		mem.SetUint64(addr, word)
	}

	for ; size != 0; addr, size = addr+1, size-1 {
		mem.SetUint8(addr, value)
	}
}

var _ Memory = RawMemory{}
