package syscall

import (
	"github.com/sirupsen/logrus"

	"kestrel/kernel"
	"kestrel/kernel/gate"
	"kestrel/kernel/kfmt"
	"kestrel/kernel/mm"
	"kestrel/kernel/mm/pmm"
	"kestrel/kernel/mm/vmm"
)

// FrameAllocator supplies the frames handed out by sbrk.
type FrameAllocator interface {
	AllocFrames(count uintptr) (pmm.FrameInfo, *kernel.Error)
	FreeFrames(fi pmm.FrameInfo) *kernel.Error
}

// PagePermissions updates the permissions of a mapped page.
type PagePermissions interface {
	SetPagePermissions(virtAddr uintptr, rw vmm.ReadWrite, mode vmm.Mode) *kernel.Error
}

// SbrkHandler returns the sbrk implementation. The requested size is rounded
// up to whole frames which are allocated contiguously and made writable from
// user mode. Physical memory is identity mapped so the frame address is
// returned as the virtual address. Failures return Failed.
func SbrkHandler(frames FrameAllocator, pages PagePermissions) Handler {
	return func(regs *gate.Registers) uint64 {
		size := uintptr(regs.RDI)
		if size == 0 {
			return Failed
		}

		fi, err := frames.AllocFrames(mm.PageCount(size))
		if err != nil {
			log.WithField("size", size).WithError(err).Warn("sbrk: allocation failed")
			return Failed
		}

		for offset := uintptr(0); offset < fi.Size; offset += mm.PageSize {
			if err = pages.SetPagePermissions(fi.Address+offset, vmm.Write, vmm.User); err != nil {
				log.WithFields(logrus.Fields{
					"address": kfmt.Hex(fi.Address + offset),
				}).WithError(err).Warn("sbrk: cannot grant user access")
				releaseFrames(frames, pages, fi, offset)
				return Failed
			}
		}

		return uint64(fi.Address)
	}
}

// releaseFrames revokes user access from the first granted bytes of fi and
// returns the frames to the allocator. Frames that cannot be revoked stay
// allocated so they are never handed out while reachable from ring 3.
func releaseFrames(frames FrameAllocator, pages PagePermissions, fi pmm.FrameInfo, granted uintptr) {
	for offset := uintptr(0); offset < granted; offset += mm.PageSize {
		if err := pages.SetPagePermissions(fi.Address+offset, vmm.Read, vmm.Supervisor); err != nil {
			log.WithFields(logrus.Fields{
				"address": kfmt.Hex(fi.Address + offset),
			}).WithError(err).Error("sbrk: cannot revoke user access; leaking frames")
			return
		}
	}

	if err := frames.FreeFrames(fi); err != nil {
		log.WithFields(logrus.Fields{
			"address": kfmt.Hex(fi.Address),
			"frames":  fi.FrameCount(),
		}).WithError(err).Error("sbrk: cannot release frames")
	}
}

// ExitHandler returns the exit implementation. exitFn rewrites regs with
// the context to resume and returns the resulting RAX.
func ExitHandler(exitFn func(regs *gate.Registers, status uint64) *kernel.Error) Handler {
	return func(regs *gate.Registers) uint64 {
		if err := exitFn(regs, regs.RDI); err != nil {
			return Failed
		}
		return regs.RAX
	}
}
