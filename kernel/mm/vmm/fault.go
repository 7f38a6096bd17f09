package vmm

import (
	"strings"

	"github.com/sirupsen/logrus"

	"kestrel/kernel"
	"kestrel/kernel/gate"
	"kestrel/kernel/kfmt"
	"kestrel/kernel/mm"
)

var (
	// ErrUnrecoverablePageFault is raised for page faults in kernel context.
	ErrUnrecoverablePageFault = &kernel.Error{Module: "vmm", Message: "page fault"}

	// ErrGeneralProtectionFault is raised for general protection faults in
	// kernel context.
	ErrGeneralProtectionFault = &kernel.Error{Module: "vmm", Message: "general protection fault"}

	// panicFn is mocked by tests.
	panicFn = kfmt.Panic
)

// FaultCode is the error code pushed by the CPU for page faults.
type FaultCode uint64

const (
	// FaultProtectionViolation is set when the fault was caused by a
	// permission check rather than a non-present page.
	FaultProtectionViolation FaultCode = 1 << 0

	// FaultCausedByWrite is set for write accesses.
	FaultCausedByWrite FaultCode = 1 << 1

	// FaultUserMode is set when the access originated at ring 3.
	FaultUserMode FaultCode = 1 << 2

	// FaultMalformedTable is set when a reserved bit was found set in a
	// page table entry.
	FaultMalformedTable FaultCode = 1 << 3

	// FaultInstructionFetch is set for instruction fetches.
	FaultInstructionFetch FaultCode = 1 << 4

	// FaultProtectionKey is set for protection key violations.
	FaultProtectionKey FaultCode = 1 << 5

	// FaultShadowStack is set for shadow stack accesses.
	FaultShadowStack FaultCode = 1 << 6

	// FaultSGX is set for SGX access control violations.
	FaultSGX FaultCode = 1 << 15
)

// String describes the access that triggered the fault.
func (c FaultCode) String() string {
	access := "read"
	switch {
	case c&FaultInstructionFetch != 0:
		access = "instruction fetch"
	case c&FaultCausedByWrite != 0:
		access = "write"
	}

	var b strings.Builder
	switch {
	case c&FaultProtectionViolation != 0:
		b.WriteString("page protection violation (" + access + ")")
	case c&FaultCausedByWrite != 0:
		b.WriteString("write to non-present page")
	default:
		b.WriteString(access + " from non-present page")
	}

	for _, extra := range []struct {
		bit  FaultCode
		desc string
	}{
		{FaultUserMode, "user mode"},
		{FaultMalformedTable, "page table has reserved bit set"},
		{FaultProtectionKey, "protection key"},
		{FaultShadowStack, "shadow stack"},
		{FaultSGX, "SGX"},
	} {
		if c&extra.bit != 0 {
			b.WriteString(", " + extra.desc)
		}
	}

	return b.String()
}

// TaskTracker reports whether a user task is running and aborts it when it
// faults.
type TaskTracker interface {
	UserTaskRunning() bool

	// AbortUserTask rewrites regs so the interrupt returns to the scheduler
	// with the fault exit status.
	AbortUserTask(regs *gate.Registers)
}

// InstallFaultHandlers registers the page fault and general protection fault
// handlers. Faults raised by a running user task terminate the task; faults
// in kernel context are fatal. tasks may be nil before user mode is set up.
func (m *Manager) InstallFaultHandlers(idt *gate.Table, tasks TaskTracker) *kernel.Error {
	if err := idt.SetHandler(int(gate.PageFaultException), func(regs *gate.Registers) {
		m.pageFaultHandler(regs, tasks)
	}, gate.InterruptGate); err != nil {
		return err
	}

	return idt.SetHandler(int(gate.GPFException), func(regs *gate.Registers) {
		m.generalProtectionFaultHandler(regs, tasks)
	}, gate.InterruptGate)
}

func inUserTask(regs *gate.Registers, tasks TaskTracker) bool {
	return tasks != nil && regs.UserMode() && tasks.UserTaskRunning()
}

// pageFaultHandler is invoked when a PDT or PDT-entry is not present or when a
// RW protection check fails. Faults are never resolved.
func (m *Manager) pageFaultHandler(regs *gate.Registers, tasks TaskTracker) {
	var (
		faultAddress = uintptr(m.cpu.ReadCR2())
		faultPage    = mm.PageFromAddress(faultAddress)
		code         = FaultCode(regs.Info)
		details      = code.String()
	)

	// Lookup entry for the page where the fault occurred
	if pte, err := m.EntryForAddress(faultPage.Address()); err == nil {
		details += "; entry " + kfmt.Hex(uintptr(pte)).String()
	} else {
		details += "; " + err.Message
	}

	if inUserTask(regs, tasks) {
		log.WithFields(logrus.Fields{
			"address": kfmt.Hex(faultAddress),
			"rip":     kfmt.Hex(uintptr(regs.RIP)),
			"reason":  details,
		}).Warn("terminating user task after page fault")
		tasks.AbortUserTask(regs)
		return
	}

	panicFn(&gate.Fault{
		Err:       ErrUnrecoverablePageFault,
		Vector:    gate.PageFaultException,
		ErrorCode: regs.Info,
		Address:   faultAddress,
		Details:   details,
		Regs:      *regs,
	})
}

// generalProtectionFaultHandler is invoked for various reasons:
// - segment errors (privilege, type or limit violations)
// - executing privileged instructions outside ring-0
// - attempts to access reserved or unimplemented CPU registers
func (m *Manager) generalProtectionFaultHandler(regs *gate.Registers, tasks TaskTracker) {
	if inUserTask(regs, tasks) {
		log.WithFields(logrus.Fields{
			"selector": kfmt.Hex(uintptr(regs.Info)),
			"rip":      kfmt.Hex(uintptr(regs.RIP)),
		}).Warn("terminating user task after general protection fault")
		tasks.AbortUserTask(regs)
		return
	}

	panicFn(&gate.Fault{
		Err:       ErrGeneralProtectionFault,
		Vector:    gate.GPFException,
		ErrorCode: regs.Info,
		Regs:      *regs,
	})
}
