package irq

import (
	"kestrel/kernel"
	"kestrel/kernel/gate"
)

// Manager is the interrupt surface offered to device drivers. It installs
// handlers in the IDT and wraps them with the matching end-of-interrupt
// acknowledgement.
type Manager struct {
	idt   *gate.Table
	pic   *PIC
	lapic *LocalAPIC
}

// NewManager returns a manager registering handlers in idt.
func NewManager(idt *gate.Table, pic *PIC, lapic *LocalAPIC) *Manager {
	return &Manager{idt: idt, pic: pic, lapic: lapic}
}

// RegisterFixed installs handler at vec.
func (m *Manager) RegisterFixed(vec int, handler gate.Handler, gateType gate.GateType) *kernel.Error {
	return m.idt.SetHandler(vec, handler, gateType)
}

// RegisterDynamic installs handler at the first free device vector and
// returns it.
func (m *Manager) RegisterDynamic(handler gate.Handler, gateType gate.GateType) (uint8, *kernel.Error) {
	return m.idt.SetHandlerDynVec(handler, gateType)
}

// RegisterIRQ installs handler for a PIC line and unmasks it. The PIC is
// acknowledged after handler returns. Registers.Info carries the line
// number.
func (m *Manager) RegisterIRQ(irq IRQ, handler gate.Handler) *kernel.Error {
	if irq >= LineCount {
		return ErrInvalidIRQ
	}
	if handler == nil {
		return gate.ErrInvalidHandler
	}

	err := m.idt.SetHandler(int(irq.Vector()), func(regs *gate.Registers) {
		regs.Info = uint64(irq)
		handler(regs)
		m.pic.EndOfInterrupt()
	}, gate.InterruptGate)
	if err != nil {
		return err
	}

	log.WithField("irq", uint8(irq)).WithField("vector", irq.Vector()).Debug("IRQ handler installed")
	return m.pic.Unmask(irq)
}

// RegisterMSI installs handler for an APIC routed interrupt at a dynamic
// vector. The local APIC is acknowledged after handler returns.
func (m *Manager) RegisterMSI(handler gate.Handler) (uint8, *kernel.Error) {
	if handler == nil {
		return 0, gate.ErrInvalidHandler
	}

	return m.idt.SetHandlerDynVec(func(regs *gate.Registers) {
		handler(regs)
		m.lapic.EndOfInterrupt()
	}, gate.InterruptGate)
}

// RegisterTimer drives queue from the PIT timer line.
func (m *Manager) RegisterTimer(queue *PollQueue) *kernel.Error {
	return m.RegisterIRQ(Timer, func(*gate.Registers) {
		// A skipped tick is picked up by the next one.
		_ = queue.Run()
	})
}

// EndOfInterruptPIC acknowledges a PIC routed interrupt.
func (m *Manager) EndOfInterruptPIC() {
	m.pic.EndOfInterrupt()
}

// EndOfInterruptLocalAPIC acknowledges an APIC routed interrupt.
func (m *Manager) EndOfInterruptLocalAPIC() {
	m.lapic.EndOfInterrupt()
}

// PIC returns the PIC driver.
func (m *Manager) PIC() *PIC {
	return m.pic
}

// LocalAPIC returns the local APIC driver.
func (m *Manager) LocalAPIC() *LocalAPIC {
	return m.lapic
}
