package main

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"kestrel/internal/sim"
	"kestrel/kernel/kfmt"
	"kestrel/kernel/kmain"
)

type options struct {
	logLevel    string
	profilePath string
	enableTimer bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:          "kestrel-sim",
		Short:        "Boot the kestrel kernel core on a simulated x86_64 machine.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level, err := logrus.ParseLevel(opts.logLevel)
			if err != nil {
				return errors.Wrap(err, "invalid --log-level")
			}
			kfmt.SetLevel(level)
			kfmt.SetOutputSink(cmd.ErrOrStderr())
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.logLevel, "log-level", "info", "kernel log level (panic, fatal, error, warn, info, debug, trace)")
	flags.StringVar(&opts.profilePath, "profile", "", "machine profile in TOML format; the built-in default is used when empty")
	flags.BoolVar(&opts.enableTimer, "timer", false, "unmask the PIT timer line and run the poll queue from it")

	rootCmd.AddCommand(
		newBootCmd(opts),
		newStatsCmd(opts),
		newStressCmd(opts),
		newIDTCmd(opts),
	)

	return rootCmd
}

// bootMachine builds the simulated machine described by opts and boots the
// kernel on it. The caller must close the returned machine.
func bootMachine(opts *options) (*sim.Machine, *kmain.Kernel, error) {
	profile := sim.DefaultProfile()
	if opts.profilePath != "" {
		var err error
		if profile, err = sim.LoadProfile(opts.profilePath); err != nil {
			return nil, nil, err
		}
	}

	m, err := sim.NewMachine(profile)
	if err != nil {
		return nil, nil, err
	}

	blob, err := m.BootInfo()
	if err != nil {
		_ = m.Close()
		return nil, nil, err
	}

	// Simulated panics must never reach the real HLT instruction.
	kfmt.SetHaltFn(m.CPU.Halt)

	k, kerr := kmain.Boot(kmain.Config{
		CPU:           m.CPU,
		Memory:        m.RAM,
		BootInfo:      blob,
		LocalAPICBase: uintptr(profile.LocalAPICBase),
		EnableTimer:   opts.enableTimer,
	})
	if kerr != nil {
		_ = m.Close()
		return nil, nil, errors.Errorf("boot failed: %s", kerr.Qualified())
	}

	return m, k, nil
}

func printAllocatorStats(w io.Writer, k *kmain.Kernel) error {
	stats, err := k.Frames.Stats()
	if err != nil {
		return errors.Errorf("reading allocator stats: %s", err.Qualified())
	}

	used, total, err := k.Frames.UsedAndTotalBytes()
	if err != nil {
		return errors.Errorf("reading allocator stats: %s", err.Qualified())
	}

	fmt.Fprintf(w, "frames: %d total, %d allocated, %d free\n", stats.FrameCount, stats.AllocatedFrames, stats.FreeFrames)
	fmt.Fprintf(w, "memory: %d/%d KiB in use\n", used>>10, total>>10)
	return nil
}
