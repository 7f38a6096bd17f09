package irq

import "kestrel/kernel/mm"

const (
	// DefaultLocalAPICBase is the architectural reset value of the local
	// APIC base address.
	DefaultLocalAPICBase = uintptr(0xfee00000)

	lapicIDRegister  = 0x20
	lapicEOIRegister = 0xb0
)

// LocalAPIC accesses the memory mapped registers of the local APIC. The
// register page must be mapped at its physical address.
type LocalAPIC struct {
	mem  mm.Memory
	base uintptr
}

// NewLocalAPIC returns a driver for the local APIC registers at base.
func NewLocalAPIC(mem mm.Memory, base uintptr) *LocalAPIC {
	return &LocalAPIC{mem: mem, base: base}
}

// Base returns the physical address of the register page.
func (a *LocalAPIC) Base() uintptr {
	return a.base
}

// ID returns the APIC ID of the executing core.
func (a *LocalAPIC) ID() uint8 {
	return uint8(a.mem.Uint32(a.base+lapicIDRegister) >> 24)
}

// EndOfInterrupt signals completion of the current interrupt.
func (a *LocalAPIC) EndOfInterrupt() {
	a.mem.SetUint32(a.base+lapicEOIRegister, 0)
}
