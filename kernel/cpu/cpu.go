// Package cpu exposes the privileged CPU operations needed by the memory
// management and interrupt subsystems.
package cpu

// Controller provides access to the privileged CPU state. The kernel uses the
// Native implementation while host tooling and tests plug in a simulated CPU.
type Controller interface {
	// EnableInterrupts enables interrupt handling.
	EnableInterrupts()

	// DisableInterrupts disables interrupt handling.
	DisableInterrupts()

	// InterruptsEnabled returns true if the interrupt flag is set.
	InterruptsEnabled() bool

	// Halt stops instruction execution.
	Halt()

	// FlushTLBEntry flushes a TLB entry for a particular virtual address.
	FlushTLBEntry(virtAddr uintptr)

	// SwitchPDT loads the physical address of a PML4 table into CR3.
	SwitchPDT(pdtPhysAddr uintptr)

	// ActivePDT returns the contents of CR3.
	ActivePDT() uintptr

	// ReadCR2 returns the faulting address latched by the last page fault.
	ReadCR2() uint64

	// ReadCS returns the current code segment selector.
	ReadCS() uint16

	// LoadIDT points the IDTR register to the table at base.
	LoadIDT(base uintptr, limit uint16)

	// PortWriteByte writes a uint8 value to the requested port.
	PortWriteByte(port uint16, val uint8)

	// PortReadByte reads a uint8 value from the requested port.
	PortReadByte(port uint16) uint8
}

// WithInterruptsDisabled runs fn with interrupts disabled and restores the
// previous interrupt flag once fn returns or panics.
func WithInterruptsDisabled(c Controller, fn func()) {
	enabled := c.InterruptsEnabled()
	c.DisableInterrupts()
	defer func() {
		if enabled {
			c.EnableInterrupts()
		}
	}()

	fn()
}
