package sim

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPICInitialization(t *testing.T) {
	var (
		pic = NewPIC()
		c   = NewCPU()
	)
	c.AttachPorts(pic, pic.Ports()...)

	master, slave := pic.State()
	require.False(t, master.Initialized)
	require.EqualValues(t, 0xff, master.Mask)
	require.EqualValues(t, 0xff, slave.Mask)

	for _, w := range []PortWrite{
		{MasterCommandPort, 0x11}, {SlaveCommandPort, 0x11},
		{MasterDataPort, 0x20}, {SlaveDataPort, 0x28},
		{MasterDataPort, 0x04}, {SlaveDataPort, 0x02},
		{MasterDataPort, 0x01}, {SlaveDataPort, 0x01},
		{MasterDataPort, 0xf9}, {SlaveDataPort, 0xef},
	} {
		c.PortWriteByte(w.Port, w.Value)
	}

	master, slave = pic.State()
	require.Equal(t, PICState{Initialized: true, VectorOffset: 0x20, Cascade: 0x04, Mode: 0x01, Mask: 0xf9}, master)
	require.Equal(t, PICState{Initialized: true, VectorOffset: 0x28, Cascade: 0x02, Mode: 0x01, Mask: 0xef}, slave)
	require.EqualValues(t, 0xf9, c.PortReadByte(MasterDataPort))
	require.EqualValues(t, 0xef, c.PortReadByte(SlaveDataPort))
	require.Len(t, c.PortWrites(), 10)

	c.PortWriteByte(MasterCommandPort, 0x20)
	c.PortWriteByte(SlaveCommandPort, 0x20)
	c.PortWriteByte(MasterCommandPort, 0x20)

	master, slave = pic.State()
	require.Equal(t, 2, master.EOIs)
	require.Equal(t, 1, slave.EOIs)
}

func TestCPUUnconnectedPort(t *testing.T) {
	c := NewCPU()
	require.EqualValues(t, 0xff, c.PortReadByte(0x60))
	c.PortWriteByte(0x80, 0)
	require.Equal(t, []PortWrite{{Port: 0x80, Value: 0}}, c.PortWrites())
}

func TestCPURegisters(t *testing.T) {
	c := NewCPU()

	require.EqualValues(t, KernelCodeSelector, c.ReadCS())
	require.False(t, c.InterruptsEnabled())

	c.EnableInterrupts()
	require.True(t, c.InterruptsEnabled())

	c.SwitchPDT(0x1000)
	require.EqualValues(t, 0x1000, c.ActivePDT())

	c.SetCR2(0xdead000)
	require.EqualValues(t, 0xdead000, c.ReadCR2())

	c.LoadIDT(0x5000, 4095)
	base, limit := c.IDTR()
	require.EqualValues(t, 0x5000, base)
	require.EqualValues(t, 4095, limit)

	c.FlushTLBEntry(0x2000)
	c.Halt()
	require.False(t, c.InterruptsEnabled())
	require.Equal(t, Stats{IDTLoads: 1, TLBFlushes: 1, PDTSwitches: 1, Halts: 1}, c.Stats())
}
