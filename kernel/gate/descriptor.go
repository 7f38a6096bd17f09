package gate

// GateType selects how the CPU enters a gate.
type GateType uint8

const (
	// InterruptGate clears the interrupt flag on entry.
	InterruptGate = GateType(0xe)

	// TrapGate leaves the interrupt flag untouched.
	TrapGate = GateType(0xf)
)

// String implements fmt.Stringer.
func (t GateType) String() string {
	switch t {
	case InterruptGate:
		return "interrupt"
	case TrapGate:
		return "trap"
	default:
		return "unknown"
	}
}

const (
	descOffsetLowMask  = 0xffff
	descSelectorShift  = 16
	descISTShift       = 32
	descISTMask        = 0x7
	descTypeShift      = 40
	descTypeMask       = 0xf
	descDPLShift       = 45
	descDPLMask        = 0x3
	descPresentBit     = 1 << 47
	descOffsetMidShift = 48
)

// GateDescriptor is a 128-bit long mode IDT entry. Low holds the first eight
// bytes of the entry and High the remaining eight, which matches the in-memory
// layout expected by the CPU on a little-endian machine.
//
//	Low:  offset[0:16] | selector<<16 | ist<<32 | type<<40 | dpl<<45 | present<<47 | offset[16:32]<<48
//	High: offset[32:64]
type GateDescriptor struct {
	Low  uint64
	High uint64
}

// OffsetLow returns bits 0-15 of the handler address.
func (d GateDescriptor) OffsetLow() uint16 { return uint16(d.Low & descOffsetLowMask) }

// OffsetMiddle returns bits 16-31 of the handler address.
func (d GateDescriptor) OffsetMiddle() uint16 { return uint16(d.Low >> descOffsetMidShift) }

// OffsetHigh returns bits 32-63 of the handler address.
func (d GateDescriptor) OffsetHigh() uint32 { return uint32(d.High) }

// Offset returns the handler address.
func (d GateDescriptor) Offset() uint64 {
	return uint64(d.OffsetLow()) | uint64(d.OffsetMiddle())<<16 | uint64(d.OffsetHigh())<<32
}

// SetOffset splits addr across the three offset fields.
func (d *GateDescriptor) SetOffset(addr uint64) {
	d.Low = (d.Low &^ (descOffsetLowMask | descOffsetLowMask<<descOffsetMidShift)) |
		addr&descOffsetLowMask |
		((addr>>16)&descOffsetLowMask)<<descOffsetMidShift
	d.High = (d.High &^ 0xffffffff) | addr>>32
}

// Selector returns the code segment selector loaded on entry.
func (d GateDescriptor) Selector() uint16 { return uint16(d.Low >> descSelectorShift) }

// SetSelector sets the code segment selector.
func (d *GateDescriptor) SetSelector(sel uint16) {
	d.Low = (d.Low &^ (0xffff << descSelectorShift)) | uint64(sel)<<descSelectorShift
}

// IST returns the interrupt stack table index (0 if unused).
func (d GateDescriptor) IST() uint8 { return uint8(d.Low>>descISTShift) & descISTMask }

// SetIST sets the interrupt stack table index. Only the low 3 bits are used.
func (d *GateDescriptor) SetIST(ist uint8) {
	d.Low = (d.Low &^ (descISTMask << descISTShift)) | uint64(ist&descISTMask)<<descISTShift
}

// Type returns the gate type.
func (d GateDescriptor) Type() GateType { return GateType(d.Low>>descTypeShift) & descTypeMask }

// SetType sets the gate type.
func (d *GateDescriptor) SetType(t GateType) {
	d.Low = (d.Low &^ (descTypeMask << descTypeShift)) | uint64(t&descTypeMask)<<descTypeShift
}

// DPL returns the privilege level required to invoke the gate via INT.
func (d GateDescriptor) DPL() uint8 { return uint8(d.Low>>descDPLShift) & descDPLMask }

// SetDPL sets the descriptor privilege level. Only the low 2 bits are used.
func (d *GateDescriptor) SetDPL(dpl uint8) {
	d.Low = (d.Low &^ (descDPLMask << descDPLShift)) | uint64(dpl&descDPLMask)<<descDPLShift
}

// Present returns true if the gate is populated.
func (d GateDescriptor) Present() bool { return d.Low&descPresentBit != 0 }

// SetPresent sets or clears the present bit.
func (d *GateDescriptor) SetPresent(present bool) {
	if present {
		d.Low |= descPresentBit
		return
	}
	d.Low &^= descPresentBit
}
