package sim

import (
	"github.com/pkg/errors"

	"kestrel/kernel/hal/bootinfo"
)

// Machine bundles the simulated components described by a profile.
type Machine struct {
	Profile *Profile
	Bus     *Bus
	RAM     *RAM
	CPU     *CPU
	PIC     *PIC
	LAPIC   *LocalAPIC
}

// NewMachine builds a machine from p.
func NewMachine(p *Profile) (*Machine, error) {
	if err := p.Validate(); err != nil {
		return nil, errors.Wrapf(err, "sim: profile %s", p.Name)
	}

	m := &Machine{
		Profile: p,
		Bus:     NewBus(),
		CPU:     NewCPU(),
		PIC:     NewPIC(),
		LAPIC:   NewLocalAPIC(p.LocalAPICID),
	}

	if err := m.Bus.Attach(uintptr(p.LocalAPICBase), LocalAPICWindowSize, m.LAPIC); err != nil {
		return nil, err
	}
	m.CPU.AttachPorts(m.PIC, m.PIC.Ports()...)

	ram, err := NewRAM(uintptr(p.RAMSize), m.Bus)
	if err != nil {
		return nil, err
	}
	m.RAM = ram

	return m, nil
}

// BootInfo returns the encoded boot information block for the machine.
func (m *Machine) BootInfo() ([]byte, error) {
	info, err := m.Profile.BootInfo()
	if err != nil {
		return nil, err
	}

	return bootinfo.Encode(info), nil
}

// Close releases the machine's RAM.
func (m *Machine) Close() error {
	return m.RAM.Close()
}
