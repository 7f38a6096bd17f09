package sim

import (
	"sync"

	"kestrel/kernel/cpu"
)

// KernelCodeSelector is the CS value reported by a freshly created CPU.
const KernelCodeSelector = 0x08

// PortDevice is a device attached to the I/O port space.
type PortDevice interface {
	ReadPort(port uint16) uint8
	WritePort(port uint16, v uint8)
}

// PortWrite records a single OUT instruction.
type PortWrite struct {
	Port  uint16
	Value uint8
}

// CPU models the privileged register state of a single core.
type CPU struct {
	mu sync.Mutex

	cr2, cr3          uint64
	cs                uint16
	interruptsEnabled bool
	idtBase           uintptr
	idtLimit          uint16
	idtLoads          int
	tlbFlushes        int
	pdtSwitches       int
	halts             int

	ports      map[uint16]PortDevice
	portWrites []PortWrite
}

// NewCPU returns a CPU running in kernel mode with interrupts disabled.
func NewCPU() *CPU {
	return &CPU{
		cs:    KernelCodeSelector,
		ports: make(map[uint16]PortDevice),
	}
}

// AttachPorts routes the given ports to dev.
func (c *CPU) AttachPorts(dev PortDevice, ports ...uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, port := range ports {
		c.ports[port] = dev
	}
}

// EnableInterrupts implements cpu.Controller.
func (c *CPU) EnableInterrupts() {
	c.mu.Lock()
	c.interruptsEnabled = true
	c.mu.Unlock()
}

// DisableInterrupts implements cpu.Controller.
func (c *CPU) DisableInterrupts() {
	c.mu.Lock()
	c.interruptsEnabled = false
	c.mu.Unlock()
}

// InterruptsEnabled implements cpu.Controller.
func (c *CPU) InterruptsEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interruptsEnabled
}

// Halt implements cpu.Controller. The simulated CPU records the halt and
// returns so the host process keeps running.
func (c *CPU) Halt() {
	c.mu.Lock()
	c.halts++
	c.interruptsEnabled = false
	c.mu.Unlock()
}

// FlushTLBEntry implements cpu.Controller.
func (c *CPU) FlushTLBEntry(uintptr) {
	c.mu.Lock()
	c.tlbFlushes++
	c.mu.Unlock()
}

// SwitchPDT implements cpu.Controller.
func (c *CPU) SwitchPDT(pdtPhysAddr uintptr) {
	c.mu.Lock()
	c.cr3 = uint64(pdtPhysAddr)
	c.pdtSwitches++
	c.mu.Unlock()
}

// ActivePDT implements cpu.Controller.
func (c *CPU) ActivePDT() uintptr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uintptr(c.cr3)
}

// ReadCR2 implements cpu.Controller.
func (c *CPU) ReadCR2() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cr2
}

// ReadCS implements cpu.Controller.
func (c *CPU) ReadCS() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cs
}

// LoadIDT implements cpu.Controller.
func (c *CPU) LoadIDT(base uintptr, limit uint16) {
	c.mu.Lock()
	c.idtBase, c.idtLimit = base, limit
	c.idtLoads++
	c.mu.Unlock()
}

// PortWriteByte implements cpu.Controller.
func (c *CPU) PortWriteByte(port uint16, val uint8) {
	c.mu.Lock()
	c.portWrites = append(c.portWrites, PortWrite{Port: port, Value: val})
	dev := c.ports[port]
	c.mu.Unlock()

	if dev != nil {
		dev.WritePort(port, val)
	}
}

// PortReadByte implements cpu.Controller. Unconnected ports float high.
func (c *CPU) PortReadByte(port uint16) uint8 {
	c.mu.Lock()
	dev := c.ports[port]
	c.mu.Unlock()

	if dev == nil {
		return 0xff
	}

	return dev.ReadPort(port)
}

// SetCR2 latches a faulting address as the CPU would before raising a page
// fault.
func (c *CPU) SetCR2(addr uint64) {
	c.mu.Lock()
	c.cr2 = addr
	c.mu.Unlock()
}

// SetCS changes the current code segment selector.
func (c *CPU) SetCS(cs uint16) {
	c.mu.Lock()
	c.cs = cs
	c.mu.Unlock()
}

// IDTR returns the base and limit loaded by the last LIDT.
func (c *CPU) IDTR() (uintptr, uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.idtBase, c.idtLimit
}

// Stats summarizes the privileged operations executed so far.
type Stats struct {
	IDTLoads    int
	TLBFlushes  int
	PDTSwitches int
	Halts       int
	PortWrites  int
}

// Stats returns operation counters.
func (c *CPU) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		IDTLoads:    c.idtLoads,
		TLBFlushes:  c.tlbFlushes,
		PDTSwitches: c.pdtSwitches,
		Halts:       c.halts,
		PortWrites:  len(c.portWrites),
	}
}

// PortWrites returns every OUT instruction executed so far.
func (c *CPU) PortWrites() []PortWrite {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]PortWrite(nil), c.portWrites...)
}

var _ cpu.Controller = (*CPU)(nil)
