package main

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"kestrel/kernel/gate"
	"kestrel/kernel/kmain"
	"kestrel/kernel/mm/pmm"
	ksync "kestrel/kernel/sync"
)

type stressCounters struct {
	allocs, frees, lookups atomic.Int64
	allocLocked            atomic.Int64
	freeLocked             atomic.Int64
	idtLocked              atomic.Int64
}

func newStressCmd(opts *options) *cobra.Command {
	var workers, iterations int

	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Hammer the frame allocator and IDT from concurrent contexts and report lock contention.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if workers < 1 || iterations < 1 {
				return errors.New("--workers and --iterations must be positive")
			}

			m, k, err := bootMachine(opts)
			if err != nil {
				return err
			}
			defer m.Close()

			var counters stressCounters
			g, ctx := errgroup.WithContext(cmd.Context())
			for w := 0; w < workers; w++ {
				g.Go(func() error {
					return allocWorker(ctx, k, iterations, &counters)
				})
			}
			g.Go(func() error {
				return interruptWorker(ctx, k, iterations, &counters)
			})

			if err := g.Wait(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "allocator: %d allocs, %d frees, %d alloc attempts and %d free attempts hit %s\n",
				counters.allocs.Load(), counters.frees.Load(),
				counters.allocLocked.Load(), counters.freeLocked.Load(), ksync.ErrLocked.Message)
			fmt.Fprintf(out, "idt: %d lookups, %d hit %s\n",
				counters.lookups.Load(), counters.idtLocked.Load(), ksync.ErrLocked.Message)
			return printAllocatorStats(out, k)
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 4, "number of goroutines allocating and freeing frames")
	cmd.Flags().IntVar(&iterations, "iterations", 10000, "allocate/free cycles per worker")
	return cmd
}

// allocWorker plays the role of foreground kernel code: it never waits on
// the allocator lock, it retries instead.
func allocWorker(ctx context.Context, k *kmain.Kernel, iterations int, c *stressCounters) error {
	for i := 0; i < iterations; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		fi, err := k.Frames.AllocFrame()
		switch err {
		case nil:
			c.allocs.Add(1)
		case ksync.ErrLocked:
			c.allocLocked.Add(1)
			continue
		default:
			return errors.Errorf("alloc: %s", err.Qualified())
		}

		if err := freeFrames(ctx, k.Frames, fi, c); err != nil {
			return err
		}
	}

	return nil
}

func freeFrames(ctx context.Context, frames *pmm.BitmapAllocator, fi pmm.FrameInfo, c *stressCounters) error {
	for {
		switch err := frames.FreeFrames(fi); err {
		case nil:
			c.frees.Add(1)
			return nil
		case ksync.ErrLocked:
			c.freeLocked.Add(1)
			if err := ctx.Err(); err != nil {
				return err
			}
		default:
			return errors.Errorf("free: %s", err.Qualified())
		}
	}
}

// interruptWorker emulates handlers that inspect the IDT while it may be
// held by another context.
func interruptWorker(ctx context.Context, k *kmain.Kernel, iterations int, c *stressCounters) error {
	for i := 0; i < iterations; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		_, err := k.IDT.Descriptor(uint8(gate.PageFaultException))
		switch err {
		case nil:
			c.lookups.Add(1)
		case ksync.ErrLocked:
			c.idtLocked.Add(1)
		default:
			return errors.Errorf("idt: %s", err.Qualified())
		}
	}

	return nil
}
