package gate

import (
	"io"

	"kestrel/kernel"
	"kestrel/kernel/kfmt"
)

var (
	// ErrUnhandledInterrupt is raised for interrupts on empty slots.
	ErrUnhandledInterrupt = &kernel.Error{Module: "gate", Message: "unhandled interrupt"}

	// ErrBreakpoint is raised by the breakpoint handler.
	ErrBreakpoint = &kernel.Error{Module: "gate", Message: "breakpoint"}

	// ErrDoubleFault is raised by the double fault handler.
	ErrDoubleFault = &kernel.Error{Module: "gate", Message: "double fault"}

	// panicFn is mocked by tests.
	panicFn = kfmt.Panic
)

// Fault carries the state captured when an exception cannot be handled. It
// is passed to kfmt.Panic which prints the diagnostics through DumpTo.
type Fault struct {
	Err       *kernel.Error
	Vector    InterruptNumber
	ErrorCode uint64

	// Address is the faulting address for page faults.
	Address uintptr

	// Details is an optional, already formatted explanation of the error
	// code.
	Details string

	Regs Registers
}

// Error implements the error interface.
func (f *Fault) Error() string {
	return f.Err.Message
}

// Cause returns the kernel error that triggered the fault.
func (f *Fault) Cause() *kernel.Error {
	return f.Err
}

// DumpTo outputs the fault diagnostics to w.
func (f *Fault) DumpTo(w io.Writer) {
	kfmt.Fprintf(w, "vector %d (%s), error code 0x%x\n", uint8(f.Vector), f.Vector, f.ErrorCode)
	if f.Vector == PageFaultException {
		kfmt.Fprintf(w, "fault address: 0x%16x\n", f.Address)
	}
	if f.Details != "" {
		kfmt.Fprintf(w, "reason: %s\n", f.Details)
	}
	kfmt.Fprintf(w, "\nRegisters:\n")
	f.Regs.DumpTo(w)
}

// InstallExceptionHandlers registers the breakpoint trap and the double fault
// handler. Both stop the kernel.
func InstallExceptionHandlers(t *Table) *kernel.Error {
	if err := t.SetHandler(int(Breakpoint), breakpointHandler, TrapGate); err != nil {
		return err
	}
	return t.SetHandler(int(DoubleFault), doubleFaultHandler, InterruptGate)
}

func breakpointHandler(regs *Registers) {
	panicFn(&Fault{Err: ErrBreakpoint, Vector: Breakpoint, Regs: *regs})
}

func doubleFaultHandler(regs *Registers) {
	panicFn(&Fault{Err: ErrDoubleFault, Vector: DoubleFault, ErrorCode: regs.Info, Regs: *regs})
}
