package kfmt

import (
	"io"

	"kestrel/kernel"
	"kestrel/kernel/cpu"
)

var (
	// cpuHaltFn is mocked by tests and is automatically inlined by the compiler.
	cpuHaltFn = cpu.Halt

	errRuntimePanic = &kernel.Error{Module: "rt", Message: "unknown cause"}
)

// causer is implemented by diagnostic errors that wrap a kernel error.
type causer interface {
	Cause() *kernel.Error
}

// dumper is implemented by values that carry extra diagnostic state, such as
// a register snapshot, to be printed along with the panic message.
type dumper interface {
	DumpTo(io.Writer)
}

// SetHaltFn overrides the function used by Panic to stop the CPU. Host
// tooling uses it to keep the process alive after a simulated kernel panic.
func SetHaltFn(fn func()) {
	if fn == nil {
		fn = cpu.Halt
	}
	cpuHaltFn = fn
}

// Panic outputs the supplied error (if not nil) to the console and halts the
// CPU. Calls to Panic never return on real hardware.
func Panic(e interface{}) {
	var err *kernel.Error

	switch t := e.(type) {
	case *kernel.Error:
		err = t
	case causer:
		err = t.Cause()
	case string:
		errRuntimePanic.Message = t
		err = errRuntimePanic
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	}

	Printf("\n-----------------------------------\n")
	if err != nil {
		Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	if d, ok := e.(dumper); ok {
		d.DumpTo(&PrefixWriter{Sink: OutputSink(), Prefix: []byte("  ")})
	}
	Printf("*** kernel panic: system halted ***")
	Printf("\n-----------------------------------\n")

	cpuHaltFn()
}
