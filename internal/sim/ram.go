// Package sim models the parts of an x86_64 machine touched by the kernel
// core (physical memory, MMIO devices, privileged CPU state and the 8259 PIC)
// so the kernel can be booted and exercised on a development host.
package sim

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"kestrel/kernel/mm"
)

// RAM is simulated physical memory starting at physical address zero. Accesses
// past the end of RAM are routed to the MMIO bus.
type RAM struct {
	mem []byte
	bus *Bus
}

// NewRAM maps size bytes of zeroed anonymous memory to back the simulated
// physical address space.
func NewRAM(size uintptr, bus *Bus) (*RAM, error) {
	if size == 0 || !mm.IsPageAligned(size) {
		return nil, errors.Errorf("sim: RAM size %#x is not a non-zero multiple of the page size", size)
	}

	mem, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE|unix.MAP_NORESERVE)
	if err != nil {
		return nil, errors.Wrapf(err, "sim: mapping %d bytes of RAM", size)
	}

	return &RAM{mem: mem, bus: bus}, nil
}

// Close releases the memory backing the RAM.
func (r *RAM) Close() error {
	if r.mem == nil {
		return nil
	}

	err := unix.Munmap(r.mem)
	r.mem = nil
	return errors.Wrap(err, "sim: unmapping RAM")
}

// Size returns the RAM size in bytes.
func (r *RAM) Size() uintptr {
	return uintptr(len(r.mem))
}

// Bytes returns the RAM contents in [addr, addr+size).
func (r *RAM) Bytes(addr, size uintptr) []byte {
	r.check(addr, size)
	return r.mem[addr : addr+size]
}

func (r *RAM) inRAM(addr, size uintptr) bool {
	return addr+size <= uintptr(len(r.mem)) && addr+size > addr
}

func (r *RAM) check(addr, size uintptr) {
	if !r.inRAM(addr, size) {
		panic(errors.Errorf("sim: %d byte access to physical address %#x outside RAM", size, addr))
	}
}

// Uint8 implements mm.Memory.
func (r *RAM) Uint8(addr uintptr) uint8 {
	r.check(addr, 1)
	return r.mem[addr]
}

// SetUint8 implements mm.Memory.
func (r *RAM) SetUint8(addr uintptr, v uint8) {
	r.check(addr, 1)
	r.mem[addr] = v
}

// Uint32 implements mm.Memory. Addresses outside RAM are served by the bus.
func (r *RAM) Uint32(addr uintptr) uint32 {
	if !r.inRAM(addr, 4) && r.bus != nil {
		return r.bus.ReadUint32(addr)
	}

	r.check(addr, 4)
	return binary.LittleEndian.Uint32(r.mem[addr:])
}

// SetUint32 implements mm.Memory. Addresses outside RAM are served by the bus.
func (r *RAM) SetUint32(addr uintptr, v uint32) {
	if !r.inRAM(addr, 4) && r.bus != nil {
		r.bus.WriteUint32(addr, v)
		return
	}

	r.check(addr, 4)
	binary.LittleEndian.PutUint32(r.mem[addr:], v)
}

// Uint64 implements mm.Memory.
func (r *RAM) Uint64(addr uintptr) uint64 {
	r.check(addr, 8)
	return binary.LittleEndian.Uint64(r.mem[addr:])
}

// SetUint64 implements mm.Memory.
func (r *RAM) SetUint64(addr uintptr, v uint64) {
	r.check(addr, 8)
	binary.LittleEndian.PutUint64(r.mem[addr:], v)
}

var _ mm.Memory = (*RAM)(nil)
