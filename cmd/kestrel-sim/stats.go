package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"kestrel/kernel/kfmt"
	"kestrel/kernel/mm/pmm"
)

func newStatsCmd(opts *options) *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Walk through frame allocations and releases printing allocator counters.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, k, err := bootMachine(opts)
			if err != nil {
				return err
			}
			defer m.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "after boot:")
			if err := printAllocatorStats(out, k); err != nil {
				return err
			}

			var allocated []pmm.FrameInfo
			for i := 1; i <= steps; i++ {
				fi, kerr := k.Frames.AllocFrames(uintptr(i))
				if kerr != nil {
					return errors.Errorf("allocating %d frames: %s", i, kerr.Qualified())
				}
				allocated = append(allocated, fi)

				fmt.Fprintf(out, "alloc %d frame(s) at %s:\n", i, kfmt.Hex(fi.Address))
				if err := printAllocatorStats(out, k); err != nil {
					return err
				}
			}

			for _, fi := range allocated {
				if kerr := k.Frames.FreeFrames(fi); kerr != nil {
					return errors.Errorf("freeing frames at %s: %s", kfmt.Hex(fi.Address), kerr.Qualified())
				}

				fmt.Fprintf(out, "free %d frame(s) at %s:\n", fi.FrameCount(), kfmt.Hex(fi.Address))
				if err := printAllocatorStats(out, k); err != nil {
					return err
				}
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&steps, "steps", 4, "number of allocation steps; step i allocates i contiguous frames")
	return cmd
}
