package sim

import "sync"

// 8259 port assignments.
const (
	MasterCommandPort = 0x20
	MasterDataPort    = 0x21
	SlaveCommandPort  = 0xa0
	SlaveDataPort     = 0xa1
)

const (
	icw1Init = 0x10
	icw1ICW4 = 0x01
	ocw2EOI  = 0x20
)

// picChip tracks the programming state of one 8259 controller.
type picChip struct {
	// icwStep is the number of the next initialization word expected on the
	// data port or zero once initialization is complete.
	icwStep   int
	needsICW4 bool

	vectorOffset uint8
	cascade      uint8
	mode         uint8
	mask         uint8
	eois         int
	initialized  bool
}

func (c *picChip) writeCommand(v uint8) {
	switch {
	case v&icw1Init != 0:
		*c = picChip{icwStep: 2, needsICW4: v&icw1ICW4 != 0, eois: c.eois}
	case v == ocw2EOI:
		c.eois++
	}
}

func (c *picChip) writeData(v uint8) {
	switch c.icwStep {
	case 2:
		c.vectorOffset = v &^ 0x7
		c.icwStep = 3
	case 3:
		c.cascade = v
		c.icwStep = 0
		if c.needsICW4 {
			c.icwStep = 4
		} else {
			c.initialized = true
		}
	case 4:
		c.mode = v
		c.icwStep = 0
		c.initialized = true
	default:
		c.mask = v
	}
}

// PIC models a cascaded pair of 8259 programmable interrupt controllers.
type PIC struct {
	mu            sync.Mutex
	master, slave picChip
}

// NewPIC returns a PIC pair in its power-on state with every line masked.
func NewPIC() *PIC {
	return &PIC{
		master: picChip{mask: 0xff},
		slave:  picChip{mask: 0xff},
	}
}

// Ports returns the I/O ports decoded by the PIC pair.
func (p *PIC) Ports() []uint16 {
	return []uint16{MasterCommandPort, MasterDataPort, SlaveCommandPort, SlaveDataPort}
}

// WritePort implements PortDevice.
func (p *PIC) WritePort(port uint16, v uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch port {
	case MasterCommandPort:
		p.master.writeCommand(v)
	case MasterDataPort:
		p.master.writeData(v)
	case SlaveCommandPort:
		p.slave.writeCommand(v)
	case SlaveDataPort:
		p.slave.writeData(v)
	}
}

// ReadPort implements PortDevice. Data ports return the interrupt mask.
func (p *PIC) ReadPort(port uint16) uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch port {
	case MasterDataPort:
		return p.master.mask
	case SlaveDataPort:
		return p.slave.mask
	}

	return 0
}

// PICState is a snapshot of one controller's programming.
type PICState struct {
	Initialized  bool
	VectorOffset uint8
	Cascade      uint8
	Mode         uint8
	Mask         uint8
	EOIs         int
}

func (c *picChip) state() PICState {
	return PICState{
		Initialized:  c.initialized,
		VectorOffset: c.vectorOffset,
		Cascade:      c.cascade,
		Mode:         c.mode,
		Mask:         c.mask,
		EOIs:         c.eois,
	}
}

// State returns the master and slave controller state.
func (p *PIC) State() (master, slave PICState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.master.state(), p.slave.state()
}

var _ PortDevice = (*PIC)(nil)
