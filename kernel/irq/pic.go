// Package irq routes device interrupts through the IDT and acknowledges
// them on the legacy 8259 PIC pair or the local APIC.
package irq

import (
	"github.com/sirupsen/logrus"

	"kestrel/kernel"
	"kestrel/kernel/cpu"
	"kestrel/kernel/kfmt"
	"kestrel/kernel/sync"
)

// IRQ is a legacy interrupt line of the cascaded 8259 pair.
type IRQ uint8

const (
	Timer    IRQ = 0
	Keyboard IRQ = 1
	Cascade  IRQ = 2
	COM2     IRQ = 3
	COM1     IRQ = 4
	RTC      IRQ = 8
	Mouse    IRQ = 12
	ATA1     IRQ = 14
	ATA2     IRQ = 15

	// LineCount is the number of lines served by the PIC pair.
	LineCount = 16
)

const (
	masterCommandPort = 0x20
	masterDataPort    = 0x21
	slaveCommandPort  = 0xa0
	slaveDataPort     = 0xa1

	// icw1Init starts the initialization sequence and announces ICW4.
	icw1Init = 0x11

	// icw4Mode8086 selects 8086/88 mode.
	icw4Mode8086 = 0x01

	// masterCascadeLine is the ICW3 bit mask of the master line the slave
	// is connected to.
	masterCascadeLine = 1 << 2

	// slaveCascadeID is the ICW3 cascade identity of the slave.
	slaveCascadeID = 0x02

	eoiCommand = 0x20

	// MasterVectorOffset is the vector of IRQ0 after remapping.
	MasterVectorOffset = 0x20

	// SlaveVectorOffset is the vector of IRQ8 after remapping.
	SlaveVectorOffset = 0x28
)

var (
	// ErrInvalidIRQ is returned for lines outside the PIC pair.
	ErrInvalidIRQ = &kernel.Error{Module: "irq", Message: "invalid IRQ line"}

	log = kfmt.Logger("irq")
)

// Vector returns the IDT vector the line is remapped to.
func (irq IRQ) Vector() uint8 {
	if irq < 8 {
		return MasterVectorOffset + uint8(irq)
	}
	return SlaveVectorOffset + uint8(irq-8)
}

// PIC programs a cascaded pair of 8259 controllers.
type PIC struct {
	mu  sync.Mutex
	cpu cpu.Controller

	masterMask uint8
	slaveMask  uint8
}

// NewPIC returns a PIC driver issuing port I/O through c.
func NewPIC(c cpu.Controller) *PIC {
	return &PIC{
		cpu:        c,
		masterMask: 0xff,
		slaveMask:  0xff,
	}
}

// Init masks every line, remaps IRQ0-7 to vectors 0x20-0x27 and IRQ8-15 to
// 0x28-0x2f and finally unmasks the enabled lines. The cascade line is
// unmasked whenever a slave line is enabled.
func (p *PIC) Init(enabled ...IRQ) *kernel.Error {
	for _, irq := range enabled {
		if irq >= LineCount {
			return ErrInvalidIRQ
		}
	}

	if err := p.mu.TryLock(); err != nil {
		return err
	}
	defer p.mu.Unlock()

	p.masterMask, p.slaveMask = 0xff, 0xff
	p.writeMasks()

	// ICW1-ICW4
	p.cpu.PortWriteByte(masterCommandPort, icw1Init)
	p.cpu.PortWriteByte(slaveCommandPort, icw1Init)
	p.cpu.PortWriteByte(masterDataPort, MasterVectorOffset)
	p.cpu.PortWriteByte(slaveDataPort, SlaveVectorOffset)
	p.cpu.PortWriteByte(masterDataPort, masterCascadeLine)
	p.cpu.PortWriteByte(slaveDataPort, slaveCascadeID)
	p.cpu.PortWriteByte(masterDataPort, icw4Mode8086)
	p.cpu.PortWriteByte(slaveDataPort, icw4Mode8086)

	for _, irq := range enabled {
		p.clearMask(irq)
	}
	p.writeMasks()

	log.WithFields(logrus.Fields{
		"master_mask": kfmt.Hex(p.masterMask),
		"slave_mask":  kfmt.Hex(p.slaveMask),
	}).Info("PIC initialized")
	return nil
}

func (p *PIC) clearMask(irq IRQ) {
	if irq < 8 {
		p.masterMask &^= 1 << irq
		return
	}
	p.slaveMask &^= 1 << (irq - 8)
	p.masterMask &^= masterCascadeLine
}

func (p *PIC) writeMasks() {
	p.cpu.PortWriteByte(masterDataPort, p.masterMask)
	p.cpu.PortWriteByte(slaveDataPort, p.slaveMask)
}

// Unmask enables delivery of irq.
func (p *PIC) Unmask(irq IRQ) *kernel.Error {
	if irq >= LineCount {
		return ErrInvalidIRQ
	}

	if err := p.mu.TryLock(); err != nil {
		return err
	}
	defer p.mu.Unlock()

	p.clearMask(irq)
	p.writeMasks()
	return nil
}

// Mask disables delivery of irq. The cascade line is left untouched.
func (p *PIC) Mask(irq IRQ) *kernel.Error {
	if irq >= LineCount {
		return ErrInvalidIRQ
	}

	if err := p.mu.TryLock(); err != nil {
		return err
	}
	defer p.mu.Unlock()

	if irq < 8 {
		p.masterMask |= 1 << irq
	} else {
		p.slaveMask |= 1 << (irq - 8)
	}
	p.writeMasks()
	return nil
}

// Masks returns the interrupt masks last written to the master and slave.
func (p *PIC) Masks() (master, slave uint8) {
	return p.masterMask, p.slaveMask
}

// EndOfInterrupt acknowledges the interrupt being serviced. The command is
// sent to both controllers so it covers lines routed through the slave.
func (p *PIC) EndOfInterrupt() {
	p.cpu.PortWriteByte(slaveCommandPort, eoiCommand)
	p.cpu.PortWriteByte(masterCommandPort, eoiCommand)
}
