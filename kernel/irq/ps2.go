package irq

import (
	"kestrel/kernel/cpu"
	"kestrel/kernel/gate"
)

// PS2DataPort is the data port of the 8042 PS/2 controller.
const PS2DataPort = 0x60

// PS2DrainHandler returns a handler that reads and discards the byte latched
// by the PS/2 controller. The controller raises no further keyboard or mouse
// interrupts until the pending byte is read.
func PS2DrainHandler(c cpu.Controller) gate.Handler {
	return func(*gate.Registers) {
		_ = c.PortReadByte(PS2DataPort)
	}
}
