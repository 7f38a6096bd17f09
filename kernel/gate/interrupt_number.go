package gate

import "strconv"

// InterruptNumber describes an x86 interrupt/exception/trap slot.
type InterruptNumber uint8

const (
	// DivideByZero occurs when dividing any number by 0 using the DIV or
	// IDIV instruction.
	DivideByZero = InterruptNumber(0)

	// Debug is raised by the debug registers and single-step mode.
	Debug = InterruptNumber(1)

	// NMI (non-maskable-interrupt) is a hardware interrupt that indicates
	// issues with RAM or unrecoverable hardware problems. It may also be
	// raised by the CPU when a watchdog timer is enabled.
	NMI = InterruptNumber(2)

	// Breakpoint is raised by the INT3 instruction.
	Breakpoint = InterruptNumber(3)

	// Overflow occurs when an overflow occurs (e.g result of division
	// cannot fit into the registers used).
	Overflow = InterruptNumber(4)

	// BoundRangeExceeded occurs when the BOUND instruction is invoked with
	// an index out of range.
	BoundRangeExceeded = InterruptNumber(5)

	// InvalidOpcode occurs when the CPU attempts to execute an invalid or
	// undefined instruction opcode.
	InvalidOpcode = InterruptNumber(6)

	// DeviceNotAvailable occurs when the CPU attempts to execute an
	// FPU/MMX/SSE instruction while no FPU is available or while
	// FPU/MMX/SSE support has been disabled by manipulating the CR0
	// register.
	DeviceNotAvailable = InterruptNumber(7)

	// DoubleFault occurs when an unhandled exception occurs or when an
	// exception occurs within a running exception handler.
	DoubleFault = InterruptNumber(8)

	// InvalidTSS occurs when the TSS points to an invalid task segment
	// selector.
	InvalidTSS = InterruptNumber(10)

	// SegmentNotPresent occurs when the CPU attempts to invoke a present
	// gate with an invalid stack segment selector.
	SegmentNotPresent = InterruptNumber(11)

	// StackSegmentFault occurs when attempting to push/pop from a
	// non-canonical stack address or when the stack base/limit (set in
	// GDT) checks fail.
	StackSegmentFault = InterruptNumber(12)

	// GPFException occurs when a general protection fault occurs.
	GPFException = InterruptNumber(13)

	// PageFaultException occurs when a page directory table (PDT) or one
	// of its entries is not present or when a privilege and/or RW
	// protection check fails.
	PageFaultException = InterruptNumber(14)

	// FloatingPointException occurs while invoking an FP instruction while:
	//  - CR0.NE = 1 OR
	//  - an unmasked FP exception is pending
	FloatingPointException = InterruptNumber(16)

	// AlignmentCheck occurs when alignment checks are enabled and an
	// unaligmed memory access is performed.
	AlignmentCheck = InterruptNumber(17)

	// MachineCheck occurs when the CPU detects internal errors such as
	// memory-, bus- or cache-related errors.
	MachineCheck = InterruptNumber(18)

	// SIMDFloatingPointException occurs when an unmasked SSE exception
	// occurs while CR4.OSXMMEXCPT is set to 1. If the OSXMMEXCPT bit is
	// not set, SIMD FP exceptions cause InvalidOpcode exceptions instead.
	SIMDFloatingPointException = InterruptNumber(19)

	// FirstDeviceVector is the first slot available to device interrupts.
	// Slots below it are reserved for CPU exceptions.
	FirstDeviceVector = InterruptNumber(32)
)

var exceptionNames = map[InterruptNumber]string{
	DivideByZero:               "divide by zero",
	Debug:                      "debug",
	NMI:                        "NMI",
	Breakpoint:                 "breakpoint",
	Overflow:                   "overflow",
	BoundRangeExceeded:         "bound range exceeded",
	InvalidOpcode:              "invalid opcode",
	DeviceNotAvailable:         "device not available",
	DoubleFault:                "double fault",
	InvalidTSS:                 "invalid TSS",
	SegmentNotPresent:          "segment not present",
	StackSegmentFault:          "stack segment fault",
	GPFException:               "general protection fault",
	PageFaultException:         "page fault",
	FloatingPointException:     "floating point exception",
	AlignmentCheck:             "alignment check",
	MachineCheck:               "machine check",
	SIMDFloatingPointException: "SIMD floating point exception",
}

// String returns the exception name for CPU exception slots and a generic
// label for everything else.
func (n InterruptNumber) String() string {
	if name, ok := exceptionNames[n]; ok {
		return name
	}
	if n < FirstDeviceVector {
		return "reserved exception " + strconv.Itoa(int(n))
	}
	return "vector " + strconv.Itoa(int(n))
}
