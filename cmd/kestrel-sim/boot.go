package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"kestrel/kernel/kfmt"
)

func newBootCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "boot",
		Short: "Boot the kernel and report the resulting machine state.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, k, err := bootMachine(opts)
			if err != nil {
				return err
			}
			defer m.Close()

			out := cmd.OutOrStdout()
			if err := printAllocatorStats(out, k); err != nil {
				return err
			}

			base, limit := m.CPU.IDTR()
			fmt.Fprintf(out, "idtr: base %s, limit %d\n", kfmt.Hex(base), limit)

			master, slave := k.IRQ.PIC().Masks()
			fmt.Fprintf(out, "pic masks: master 0x%02x, slave 0x%02x\n", master, slave)
			fmt.Fprintf(out, "lapic: id %d at %s\n", k.IRQ.LocalAPIC().ID(), kfmt.Hex(k.IRQ.LocalAPIC().Base()))

			stats := m.CPU.Stats()
			fmt.Fprintf(out, "cpu: %d PDT switches, %d TLB flushes, %d port writes\n", stats.PDTSwitches, stats.TLBFlushes, stats.PortWrites)
			return nil
		},
	}
}
