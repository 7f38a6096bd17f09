// Package syscall dispatches system calls issued by user tasks.
package syscall

import (
	"kestrel/kernel"
	"kestrel/kernel/gate"
	"kestrel/kernel/kfmt"
	"kestrel/kernel/sync"
)

// Number identifies a system call. It is passed in RAX.
type Number uint64

const (
	// Exit terminates the calling task. Its status is passed in RDI.
	Exit Number = 0

	// Sbrk allocates RDI bytes of user accessible memory.
	Sbrk Number = 1

	// MaxSyscalls is the size of the dispatch table.
	MaxSyscalls = 64

	// Vector is the IDT vector used by the INT instruction to enter the
	// kernel.
	Vector = 0x80

	// Failed is returned in RAX by failed or unknown system calls.
	Failed = 0
)

var (
	// ErrInvalidSyscall is returned for numbers outside the dispatch table.
	ErrInvalidSyscall = &kernel.Error{Module: "syscall", Message: "invalid syscall number"}

	// ErrAlreadyRegistered is returned when registering a number twice.
	ErrAlreadyRegistered = &kernel.Error{Module: "syscall", Message: "syscall already registered"}

	// ErrInvalidHandler is returned when registering a nil handler.
	ErrInvalidHandler = &kernel.Error{Module: "syscall", Message: "invalid syscall handler"}

	log = kfmt.Logger("syscall")
)

// Handler implements a system call. It receives the interrupted user
// context and returns the value placed in RAX.
type Handler func(regs *gate.Registers) uint64

// Table maps system call numbers to handlers.
type Table struct {
	mu       sync.Mutex
	handlers [MaxSyscalls]Handler
}

// NewTable returns an empty dispatch table.
func NewTable() *Table {
	return &Table{}
}

// Register installs handler for num.
func (t *Table) Register(num Number, handler Handler) *kernel.Error {
	switch {
	case num >= MaxSyscalls:
		return ErrInvalidSyscall
	case handler == nil:
		return ErrInvalidHandler
	}

	if err := t.mu.TryLock(); err != nil {
		return err
	}
	defer t.mu.Unlock()

	if t.handlers[num] != nil {
		return ErrAlreadyRegistered
	}
	t.handlers[num] = handler
	return nil
}

// Dispatch runs the handler selected by RAX and stores its result in RAX.
// Unknown numbers yield Failed.
func (t *Table) Dispatch(regs *gate.Registers) {
	num := Number(regs.RAX)
	if num >= MaxSyscalls || t.handlers[num] == nil {
		log.WithField("num", uint64(num)).Warn("unknown syscall")
		regs.RAX = Failed
		return
	}

	regs.RAX = t.handlers[num](regs)
}

// Install registers Dispatch as the trap gate at Vector. The gate can be
// invoked from ring 3.
func (t *Table) Install(idt *gate.Table) *kernel.Error {
	return idt.SetUserHandler(Vector, t.Dispatch, gate.TrapGate)
}
