package main

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"kestrel/kernel"
	"kestrel/kernel/gate"
	"kestrel/kernel/kfmt"
)

func newIDTCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "idt",
		Short: "Boot the kernel and dump every populated IDT gate.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, k, err := bootMachine(opts)
			if err != nil {
				return err
			}
			defer m.Close()

			if kerr := dumpGates(cmd.OutOrStdout(), k.IDT); kerr != nil {
				return errors.Errorf("reading IDT: %s", kerr.Qualified())
			}
			return nil
		},
	}
}

func dumpGates(w io.Writer, idt *gate.Table) *kernel.Error {
	fmt.Fprintf(w, "%-4s %-26s %-15s %-8s %-3s %s\n", "VEC", "NAME", "TYPE", "SELECTOR", "DPL", "OFFSET")
	return idt.VisitGates(func(vec uint8, desc gate.GateDescriptor) {
		fmt.Fprintf(w, "%-4d %-26s %-15s 0x%04x   %-3d %s\n",
			vec, gate.InterruptNumber(vec), desc.Type(), desc.Selector(), desc.DPL(), kfmt.Hex(uintptr(desc.Offset())))
	})
}
