// Package gate manages the interrupt descriptor table and routes interrupts,
// exceptions and traps to their registered handlers.
package gate

import (
	"unsafe"

	"kestrel/kernel"
	"kestrel/kernel/cpu"
	"kestrel/kernel/sync"
)

// EntryCount is the number of IDT slots.
const EntryCount = 256

const descriptorSize = uintptr(unsafe.Sizeof(GateDescriptor{}))

var (
	// ErrInvalidVector is returned for vectors outside the IDT.
	ErrInvalidVector = &kernel.Error{Module: "gate", Message: "invalid interrupt vector"}

	// ErrAlreadySet is returned when registering a handler for a populated
	// vector.
	ErrAlreadySet = &kernel.Error{Module: "gate", Message: "interrupt vector already has a handler"}

	// ErrNoAvailableVector is returned when every device vector is taken.
	ErrNoAvailableVector = &kernel.Error{Module: "gate", Message: "no available interrupt vector"}

	// ErrInvalidHandler is returned when registering a nil handler.
	ErrInvalidHandler = &kernel.Error{Module: "gate", Message: "invalid interrupt handler"}

	// ErrInvalidGateType is returned for gate types other than
	// InterruptGate and TrapGate.
	ErrInvalidGateType = &kernel.Error{Module: "gate", Message: "invalid gate type"}

	// activeTable receives interrupts from the entry stubs. It is set by
	// Load.
	activeTable *Table
)

// Handler is invoked with the register snapshot of the interrupted context.
// Changes to the snapshot are applied when the handler returns.
type Handler func(*Registers)

// Table is an interrupt descriptor table together with the handler attached
// to each populated slot. Slots go from empty to populated and are never
// cleared.
type Table struct {
	mu  sync.Mutex
	cpu cpu.Controller

	entries  [EntryCount]GateDescriptor
	handlers [EntryCount]Handler

	// entryAddrFn returns the address of the entry stub for a vector.
	// Tests override it to get stable addresses.
	entryAddrFn func(vec uint8) uintptr
}

// NewTable returns an empty table bound to c.
func NewTable(c cpu.Controller) *Table {
	return &Table{
		cpu:         c,
		entryAddrFn: gateEntryAddr,
	}
}

// SetHandler installs handler at vec using the requested gate type.
func (t *Table) SetHandler(vec int, handler Handler, gateType GateType) *kernel.Error {
	return t.setHandler(vec, handler, gateType, 0)
}

// SetUserHandler installs handler at vec and allows ring 3 code to invoke it
// with the INT instruction.
func (t *Table) SetUserHandler(vec int, handler Handler, gateType GateType) *kernel.Error {
	return t.setHandler(vec, handler, gateType, 3)
}

func (t *Table) setHandler(vec int, handler Handler, gateType GateType, dpl uint8) *kernel.Error {
	if err := checkHandler(handler, gateType); err != nil {
		return err
	}
	if vec < 0 || vec >= EntryCount {
		return ErrInvalidVector
	}

	if err := t.mu.TryLock(); err != nil {
		return err
	}
	defer t.mu.Unlock()

	if t.entries[vec].Present() {
		return ErrAlreadySet
	}

	t.install(uint8(vec), handler, gateType, dpl)
	return nil
}

// SetHandlerDynVec installs handler at the first empty device vector and
// returns the selected vector.
func (t *Table) SetHandlerDynVec(handler Handler, gateType GateType) (uint8, *kernel.Error) {
	if err := checkHandler(handler, gateType); err != nil {
		return 0, err
	}

	if err := t.mu.TryLock(); err != nil {
		return 0, err
	}
	defer t.mu.Unlock()

	for vec := int(FirstDeviceVector); vec < EntryCount; vec++ {
		if !t.entries[vec].Present() {
			t.install(uint8(vec), handler, gateType, 0)
			return uint8(vec), nil
		}
	}

	return 0, ErrNoAvailableVector
}

func checkHandler(handler Handler, gateType GateType) *kernel.Error {
	if handler == nil {
		return ErrInvalidHandler
	}
	if gateType != InterruptGate && gateType != TrapGate {
		return ErrInvalidGateType
	}
	return nil
}

// install must be called with t.mu held. The handler is stored before the
// descriptor becomes present so Dispatch never sees a present slot without a
// handler.
func (t *Table) install(vec uint8, handler Handler, gateType GateType, dpl uint8) {
	var desc GateDescriptor
	desc.SetOffset(uint64(t.entryAddrFn(vec)))
	desc.SetSelector(t.cpu.ReadCS())
	desc.SetType(gateType)
	desc.SetDPL(dpl)
	desc.SetPresent(true)

	t.handlers[vec] = handler
	t.entries[vec] = desc
}

// Descriptor returns a copy of the descriptor at vec.
func (t *Table) Descriptor(vec uint8) (GateDescriptor, *kernel.Error) {
	if err := t.mu.TryLock(); err != nil {
		return GateDescriptor{}, err
	}
	defer t.mu.Unlock()

	return t.entries[vec], nil
}

// VisitGates invokes visitor for each populated slot in vector order.
func (t *Table) VisitGates(visitor func(vec uint8, desc GateDescriptor)) *kernel.Error {
	if err := t.mu.TryLock(); err != nil {
		return err
	}
	entries := t.entries
	t.mu.Unlock()

	for vec, desc := range entries {
		if desc.Present() {
			visitor(uint8(vec), desc)
		}
	}
	return nil
}

// Load points the IDTR at this table and makes it the target of incoming
// interrupts. The IDTR is written with interrupts disabled.
func (t *Table) Load() *kernel.Error {
	if err := t.mu.TryLock(); err != nil {
		return err
	}
	defer t.mu.Unlock()

	base := uintptr(unsafe.Pointer(&t.entries[0]))
	limit := uint16(descriptorSize*EntryCount - 1)

	cpu.WithInterruptsDisabled(t.cpu, func() {
		t.cpu.LoadIDT(base, limit)
		activeTable = t
	})
	return nil
}

// Dispatch invokes the handler registered for regs.Vector. Interrupts for
// empty slots cause a kernel panic.
//
// Dispatch must only be called from interrupt context, which cannot run
// concurrently with the code it interrupted on a single CPU. It does not take
// the table lock: install stores the handler before setting the present bit,
// so a slot observed as present always has its handler. Host code driving a
// Table from several goroutines must not register handlers while
// dispatching.
func (t *Table) Dispatch(regs *Registers) {
	vec := uint8(regs.Vector)
	if handler := t.handlers[vec]; handler != nil && t.entries[vec].Present() {
		handler(regs)
		return
	}

	panicFn(&Fault{
		Err:       ErrUnhandledInterrupt,
		Vector:    InterruptNumber(vec),
		ErrorCode: regs.Info,
		Regs:      *regs,
	})
}

// dispatchInterrupt is called by the gate entry stubs with a pointer to the
// register snapshot stored on the interrupt stack.
//
//go:nosplit
func dispatchInterrupt(regs *Registers) {
	if t := activeTable; t != nil {
		t.Dispatch(regs)
	}
}
