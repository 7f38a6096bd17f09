package cpu

import "encoding/binary"

var (
	cpuidFn = ID
)

const rflagsIF = 1 << 9

// EnableInterrupts enables interrupt handling.
func EnableInterrupts()

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// Halt stops instruction execution.
func Halt()

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr)

// SwitchPDT sets the root page table directory to point to the specified
// physical address and flushes the TLB.
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT returns the physical address of the currently active page table.
func ActivePDT() uintptr

// ReadCR2 returns the value stored in the CR2 register.
func ReadCR2() uint64

// ID returns information about the CPU and its features. It
// is implemented as a CPUID instruction with EAX=leaf and
// returns the values in EAX, EBX, ECX and EDX.
func ID(leaf uint32) (uint32, uint32, uint32, uint32)

// IsIntel returns true if the code is running on an Intel processor.
func IsIntel() bool {
	_, ebx, ecx, edx := cpuidFn(0)
	return ebx == 0x756e6547 && // "Genu"
		edx == 0x49656e69 && // "ineI"
		ecx == 0x6c65746e // "ntel"
}

// PortWriteByte writes a uint8 value to the requested port.
func PortWriteByte(port uint16, val uint8)

// PortReadByte reads a uint8 value from the requested port.
func PortReadByte(port uint16) uint8

func readRFlags() uint64

func readCS() uint16

//go:noescape
func lidt(desc *[idtDescriptorLen]byte)

// idtDescriptorLen is the size of the operand expected by LIDT: a 16-bit
// limit followed by the 64-bit linear base address.
const idtDescriptorLen = 10

// encodeIDTDescriptor builds the LIDT operand for a table at base.
func encodeIDTDescriptor(base uintptr, limit uint16) [idtDescriptorLen]byte {
	var desc [idtDescriptorLen]byte
	binary.LittleEndian.PutUint16(desc[0:2], limit)
	binary.LittleEndian.PutUint64(desc[2:], uint64(base))
	return desc
}

// Native implements Controller on top of the privileged amd64 instructions.
// Its methods fault unless executed in ring 0.
type Native struct{}

// EnableInterrupts executes STI.
func (Native) EnableInterrupts() { EnableInterrupts() }

// DisableInterrupts executes CLI.
func (Native) DisableInterrupts() { DisableInterrupts() }

// InterruptsEnabled checks the IF bit of RFLAGS.
func (Native) InterruptsEnabled() bool { return readRFlags()&rflagsIF != 0 }

// Halt stops the CPU.
func (Native) Halt() { Halt() }

// FlushTLBEntry executes INVLPG for virtAddr.
func (Native) FlushTLBEntry(virtAddr uintptr) { FlushTLBEntry(virtAddr) }

// SwitchPDT writes pdtPhysAddr to CR3.
func (Native) SwitchPDT(pdtPhysAddr uintptr) { SwitchPDT(pdtPhysAddr) }

// ActivePDT reads CR3.
func (Native) ActivePDT() uintptr { return ActivePDT() }

// ReadCR2 reads CR2.
func (Native) ReadCR2() uint64 { return ReadCR2() }

// ReadCS reads the CS selector.
func (Native) ReadCS() uint16 { return readCS() }

// LoadIDT executes LIDT for the table at base.
func (Native) LoadIDT(base uintptr, limit uint16) {
	desc := encodeIDTDescriptor(base, limit)
	lidt(&desc)
}

// PortWriteByte executes OUTB.
func (Native) PortWriteByte(port uint16, val uint8) { PortWriteByte(port, val) }

// PortReadByte executes INB.
func (Native) PortReadByte(port uint16) uint8 { return PortReadByte(port) }

var _ Controller = Native{}
