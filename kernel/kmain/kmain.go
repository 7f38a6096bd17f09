// Package kmain wires the kernel subsystems together at boot.
package kmain

import (
	"unsafe"

	"github.com/sirupsen/logrus"

	"kestrel/kernel"
	"kestrel/kernel/cpu"
	"kestrel/kernel/gate"
	"kestrel/kernel/hal/bootinfo"
	"kestrel/kernel/irq"
	"kestrel/kernel/kfmt"
	"kestrel/kernel/mm"
	"kestrel/kernel/mm/pmm"
	"kestrel/kernel/mm/vmm"
	"kestrel/kernel/proc"
	"kestrel/kernel/syscall"
)

// PollQueueSize is the capacity of the timer driven poll queue.
const PollQueueSize = 16

var (
	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

	log = kfmt.Logger("kmain")
)

// Config describes the machine the kernel boots on.
type Config struct {
	CPU      cpu.Controller
	Memory   mm.Memory
	BootInfo []byte

	// LocalAPICBase defaults to irq.DefaultLocalAPICBase.
	LocalAPICBase uintptr

	// IRQHandlers lists the drivers attached to PIC lines. Only these lines
	// are unmasked. It defaults to PS/2 drain handlers for the keyboard and
	// mouse lines.
	IRQHandlers map[irq.IRQ]gate.Handler

	// EnableTimer routes the PIT timer to the poll queue.
	EnableTimer bool
}

// Kernel holds the subsystems created by Boot.
type Kernel struct {
	BootInfo *bootinfo.Info
	Frames   *pmm.BitmapAllocator
	Pages    *vmm.Manager
	IDT      *gate.Table
	IRQ      *irq.Manager
	Poll     *irq.PollQueue
	Tasks    *proc.Tracker
	Syscalls *syscall.Table
}

// Boot brings up the memory and interrupt subsystems in dependency order:
// the frame allocator, an identity mapped address space, the IDT with the
// exception, fault and syscall gates, the PIC and finally the IDTR. Interrupts
// are enabled once Boot succeeds.
func Boot(cfg Config) (*Kernel, *kernel.Error) {
	if cfg.LocalAPICBase == 0 {
		cfg.LocalAPICBase = irq.DefaultLocalAPICBase
	}
	if cfg.IRQHandlers == nil {
		cfg.IRQHandlers = map[irq.IRQ]gate.Handler{
			irq.Keyboard: irq.PS2DrainHandler(cfg.CPU),
			irq.Mouse:    irq.PS2DrainHandler(cfg.CPU),
		}
	}

	info, err := bootinfo.Decode(cfg.BootInfo)
	if err != nil {
		return nil, err
	}

	k := &Kernel{
		BootInfo: info,
		Frames:   pmm.NewBitmapAllocator(cfg.Memory),
		IDT:      gate.NewTable(cfg.CPU),
		Tasks:    proc.NewTracker(),
		Syscalls: syscall.NewTable(),
		Poll:     irq.NewPollQueue(PollQueueSize),
	}

	if err = k.Frames.Init(info.MemoryMap); err != nil {
		return nil, err
	}

	k.Pages = vmm.NewManager(cfg.CPU, cfg.Memory, k.Frames)
	if err = setupAddressSpace(k, cfg.LocalAPICBase); err != nil {
		return nil, err
	}
	k.Frames.SetAddressTranslator(k.Pages.CalcVirtAddr)

	if err = gate.InstallExceptionHandlers(k.IDT); err != nil {
		return nil, err
	}
	if err = k.Pages.InstallFaultHandlers(k.IDT, k.Tasks); err != nil {
		return nil, err
	}

	if err = installSyscalls(k); err != nil {
		return nil, err
	}

	pic := irq.NewPIC(cfg.CPU)
	if err = pic.Init(); err != nil {
		return nil, err
	}
	k.IRQ = irq.NewManager(k.IDT, pic, irq.NewLocalAPIC(cfg.Memory, cfg.LocalAPICBase))
	if err = attachDrivers(k.IRQ, cfg.IRQHandlers); err != nil {
		return nil, err
	}
	if cfg.EnableTimer {
		if err = k.IRQ.RegisterTimer(k.Poll); err != nil {
			return nil, err
		}
	}

	if err = k.IDT.Load(); err != nil {
		return nil, err
	}
	cfg.CPU.EnableInterrupts()

	used, total, err := k.Frames.UsedAndTotalBytes()
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"used":     used,
		"total":    total,
		"lapic_id": k.IRQ.LocalAPIC().ID(),
		"intel":    cpu.IsIntel(),
	}).Info("boot complete")

	return k, nil
}

// setupAddressSpace identity maps physical memory, the local APIC register
// page and the framebuffer.
func setupAddressSpace(k *Kernel, lapicBase uintptr) *kernel.Error {
	err := k.Pages.CreateNewPageTable(0, k.Frames.TotalMemSize(), 0, vmm.Write, vmm.Supervisor, vmm.WriteBack)
	if err != nil {
		return err
	}

	err = k.Pages.UpdateMapping(vmm.MappingInfo{
		Start:        lapicBase,
		End:          lapicBase + mm.PageSize,
		PhysAddr:     lapicBase,
		RW:           vmm.Write,
		Mode:         vmm.Supervisor,
		WriteThrough: vmm.WriteThrough,
	})
	if err != nil {
		return err
	}

	fb := k.BootInfo.Framebuffer
	if fb.Size == 0 {
		return nil
	}

	base := uintptr(fb.Base) &^ (mm.PageSize - 1)
	end := (uintptr(fb.Base+fb.Size) + mm.PageSize - 1) &^ (mm.PageSize - 1)
	return k.Pages.UpdateMapping(vmm.MappingInfo{
		Start:        base,
		End:          end,
		PhysAddr:     base,
		RW:           vmm.Write,
		Mode:         vmm.Supervisor,
		WriteThrough: vmm.WriteThrough,
	})
}

// attachDrivers installs the PIC line handlers in line order. RegisterIRQ
// unmasks each line once its handler is in place.
func attachDrivers(m *irq.Manager, handlers map[irq.IRQ]gate.Handler) *kernel.Error {
	for line := range handlers {
		if line >= irq.LineCount {
			return irq.ErrInvalidIRQ
		}
	}

	for line := irq.IRQ(0); line < irq.LineCount; line++ {
		if handler, ok := handlers[line]; ok {
			if err := m.RegisterIRQ(line, handler); err != nil {
				return err
			}
		}
	}
	return nil
}

func installSyscalls(k *Kernel) *kernel.Error {
	if err := k.Syscalls.Register(syscall.Exit, syscall.ExitHandler(k.Tasks.Exit)); err != nil {
		return err
	}
	if err := k.Syscalls.Register(syscall.Sbrk, syscall.SbrkHandler(k.Frames, k.Pages)); err != nil {
		return err
	}
	return k.Syscalls.Install(k.IDT)
}

// Kmain is the only Go symbol that is visible (exported) from the rt0
// initialization code. The loader passes the physical address and length of
// the boot information block which is identity mapped at this point.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the CPU.
//
//go:noinline
func Kmain(bootInfoPtr, bootInfoLen uintptr) {
	blob := unsafe.Slice((*byte)(unsafe.Pointer(bootInfoPtr)), bootInfoLen)

	if _, err := Boot(Config{CPU: cpu.Native{}, Memory: mm.RawMemory{}, BootInfo: blob}); err != nil {
		kfmt.Panic(err)
	}

	// Use kfmt.Panic instead of panic to prevent the compiler from
	// treating kfmt.Panic as dead-code and eliminating it.
	kfmt.Panic(errKmainReturned)
}
