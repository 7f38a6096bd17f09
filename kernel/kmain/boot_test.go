package kmain

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"kestrel/internal/sim"
	"kestrel/kernel"
	"kestrel/kernel/gate"
	"kestrel/kernel/hal/bootinfo"
	"kestrel/kernel/irq"
	"kestrel/kernel/kfmt"
	"kestrel/kernel/mm/vmm"
	"kestrel/kernel/proc"
	"kestrel/kernel/syscall"
)

var _ = Describe("Boot", func() {
	var (
		machine *sim.Machine
		cfg     Config
		output  bytes.Buffer
		halts   int
	)

	BeforeEach(func() {
		var err error
		machine, err = sim.NewMachine(sim.DefaultProfile())
		Expect(err).NotTo(HaveOccurred())

		blob, err := machine.BootInfo()
		Expect(err).NotTo(HaveOccurred())

		cfg = Config{CPU: machine.CPU, Memory: machine.RAM, BootInfo: blob}

		output.Reset()
		halts = 0
		kfmt.SetOutputSink(&output)
		kfmt.SetHaltFn(func() { halts++ })
	})

	AfterEach(func() {
		kfmt.SetHaltFn(nil)
		kfmt.SetOutputSink(nil)
		Expect(machine.Close()).To(Succeed())
	})

	It("rejects a malformed boot information block", func() {
		cfg.BootInfo = []byte{0xde, 0xad}

		_, err := Boot(cfg)
		Expect(err).To(BeIdenticalTo(bootinfo.ErrInvalidBootInfo))
	})

	Context("with the default configuration", func() {
		var k *Kernel

		BeforeEach(func() {
			var err *kernel.Error
			k, err = Boot(cfg)
			Expect(err).To(BeNil())
		})

		It("loads a full IDT and enables interrupts", func() {
			_, limit := machine.CPU.IDTR()
			Expect(limit).To(Equal(uint16(gate.EntryCount*16 - 1)))
			Expect(machine.CPU.InterruptsEnabled()).To(BeTrue())
			Expect(machine.CPU.Stats().IDTLoads).To(Equal(1))
		})

		It("leaves only the keyboard, cascade and mouse lines unmasked", func() {
			master, slave := k.IRQ.PIC().Masks()
			Expect(master).To(Equal(uint8(0xf9)))
			Expect(slave).To(Equal(uint8(0xef)))

			masterState, slaveState := machine.PIC.State()
			Expect(masterState.Initialized).To(BeTrue())
			Expect(slaveState.Initialized).To(BeTrue())
			Expect(masterState.Mask).To(Equal(master))
			Expect(slaveState.Mask).To(Equal(slave))
		})

		It("acknowledges keyboard and mouse interrupts", func() {
			for _, line := range []irq.IRQ{irq.Keyboard, irq.Mouse} {
				desc, err := k.IDT.Descriptor(line.Vector())
				Expect(err).To(BeNil())
				Expect(desc.Present()).To(BeTrue())

				k.IDT.Dispatch(&gate.Registers{Vector: uint64(line.Vector())})
			}

			Expect(halts).To(BeZero())
			masterState, _ := machine.PIC.State()
			Expect(masterState.EOIs).To(Equal(2))
		})

		It("identity maps physical memory and the MMIO windows", func() {
			phys, err := k.Pages.Translate(0x200123)
			Expect(err).To(BeNil())
			Expect(phys).To(Equal(uintptr(0x200123)))

			pte, err := k.Pages.EntryForAddress(irq.DefaultLocalAPICBase)
			Expect(err).To(BeNil())
			Expect(pte.WriteThrough()).To(Equal(vmm.WriteThrough))
			Expect(pte.Address()).To(Equal(irq.DefaultLocalAPICBase))

			fb := k.BootInfo.Framebuffer
			phys, err = k.Pages.Translate(uintptr(fb.Base + fb.Size - 1))
			Expect(err).To(BeNil())
			Expect(phys).To(Equal(uintptr(fb.Base + fb.Size - 1)))

			_, err = k.Pages.Translate(0)
			Expect(err).To(BeIdenticalTo(vmm.ErrAddressNotMapped))
		})

		It("excludes MMIO from the managed memory", func() {
			used, total, err := k.Frames.UsedAndTotalBytes()
			Expect(err).To(BeNil())
			Expect(total).To(Equal(uintptr(machine.Profile.RAMSize)))
			Expect(total).To(BeNumerically("<=", uintptr(machine.Profile.LocalAPICBase)))
			Expect(total).To(BeNumerically("<=", uintptr(machine.Profile.Framebuffer.Base)))
			Expect(used).To(BeNumerically(">", 0))
		})

		It("reads the local APIC through the mapped window", func() {
			Expect(k.IRQ.LocalAPIC().ID()).To(Equal(machine.Profile.LocalAPICID))
		})

		It("serves sbrk through the syscall gate", func() {
			regs := gate.Registers{
				Vector: syscall.Vector,
				RAX:    uint64(syscall.Sbrk),
				RDI:    6000,
				CS:     0x1b,
			}
			k.IDT.Dispatch(&regs)
			Expect(regs.RAX).NotTo(Equal(uint64(syscall.Failed)))

			addr := uintptr(regs.RAX)
			for _, page := range []uintptr{addr, addr + 0x1000} {
				pte, err := k.Pages.EntryForAddress(page)
				Expect(err).To(BeNil())
				Expect(pte.Mode()).To(Equal(vmm.User))
				Expect(pte.ReadWrite()).To(Equal(vmm.Write))
			}
		})

		It("fails unknown syscalls", func() {
			regs := gate.Registers{Vector: syscall.Vector, RAX: 42}
			k.IDT.Dispatch(&regs)
			Expect(regs.RAX).To(Equal(uint64(syscall.Failed)))
		})

		It("terminates a faulting user task and resumes the kernel", func() {
			task, err := k.Tasks.NewTask("init")
			Expect(err).To(BeNil())
			Expect(k.Tasks.EnterUser(task, gate.Registers{RIP: 0xc0ffee})).To(BeNil())

			machine.CPU.SetCR2(0x40000000)
			regs := gate.Registers{
				Vector: uint64(gate.PageFaultException),
				Info:   uint64(vmm.FaultCausedByWrite | vmm.FaultUserMode),
				CS:     0x1b,
				RIP:    0x401000,
			}
			k.IDT.Dispatch(&regs)

			Expect(halts).To(BeZero())
			Expect(regs.RIP).To(Equal(uint64(0xc0ffee)))
			Expect(regs.RAX).To(Equal(uint64(proc.ExitStatusFault)))
			Expect(task.Exited).To(BeTrue())
			Expect(k.Tasks.UserTaskRunning()).To(BeFalse())
		})

		It("lets a user task exit through the syscall gate", func() {
			task, err := k.Tasks.NewTask("init")
			Expect(err).To(BeNil())
			Expect(k.Tasks.EnterUser(task, gate.Registers{RIP: 0xc0ffee})).To(BeNil())

			regs := gate.Registers{Vector: syscall.Vector, RAX: uint64(syscall.Exit), RDI: 3, CS: 0x1b}
			k.IDT.Dispatch(&regs)

			Expect(regs.RIP).To(Equal(uint64(0xc0ffee)))
			Expect(regs.RAX).To(Equal(uint64(3)))
			Expect(task.ExitStatus).To(Equal(uint64(3)))
		})

		It("panics on a kernel page fault", func() {
			machine.CPU.SetCR2(0x40000000)
			regs := gate.Registers{
				Vector: uint64(gate.PageFaultException),
				CS:     0x08,
			}
			k.IDT.Dispatch(&regs)

			Expect(halts).To(Equal(1))
			Expect(output.String()).To(ContainSubstring("unrecoverable error"))
			Expect(output.String()).To(ContainSubstring("fault address"))
		})

		It("panics on a breakpoint", func() {
			regs := gate.Registers{Vector: uint64(gate.Breakpoint)}
			k.IDT.Dispatch(&regs)

			Expect(halts).To(Equal(1))
		})

		It("hands out every free dynamic vector exactly once", func() {
			seen := make(map[uint8]bool)
			for {
				vec, err := k.IRQ.RegisterMSI(func(*gate.Registers) {})
				if err != nil {
					Expect(err).To(BeIdenticalTo(gate.ErrNoAvailableVector))
					break
				}
				Expect(seen).NotTo(HaveKey(vec))
				Expect(vec).To(BeNumerically(">=", gate.FirstDeviceVector))
				seen[vec] = true
			}

			// The syscall gate and the keyboard and mouse lines are taken.
			Expect(seen).To(HaveLen(gate.EntryCount - int(gate.FirstDeviceVector) - 3))
			Expect(seen).NotTo(HaveKey(uint8(syscall.Vector)))
			Expect(seen).NotTo(HaveKey(irq.Keyboard.Vector()))
		})
	})

	Context("without attached drivers", func() {
		It("keeps every PIC line masked", func() {
			cfg.IRQHandlers = map[irq.IRQ]gate.Handler{}
			k, err := Boot(cfg)
			Expect(err).To(BeNil())

			master, slave := k.IRQ.PIC().Masks()
			Expect(master).To(Equal(uint8(0xff)))
			Expect(slave).To(Equal(uint8(0xff)))
		})

		It("rejects handlers for lines outside the PIC pair", func() {
			cfg.IRQHandlers = map[irq.IRQ]gate.Handler{irq.LineCount: func(*gate.Registers) {}}
			_, err := Boot(cfg)
			Expect(err).To(BeIdenticalTo(irq.ErrInvalidIRQ))
		})
	})

	Context("with the timer enabled", func() {
		It("runs the poll queue on every tick", func() {
			cfg.EnableTimer = true
			k, err := Boot(cfg)
			Expect(err).To(BeNil())

			master, _ := k.IRQ.PIC().Masks()
			Expect(master).To(Equal(uint8(0xf8)))

			ticks := 0
			Expect(k.Poll.Register(func() { ticks++ })).To(BeNil())

			for i := 0; i < 3; i++ {
				k.IDT.Dispatch(&gate.Registers{Vector: uint64(irq.Timer.Vector())})
			}

			Expect(ticks).To(Equal(3))
			masterState, _ := machine.PIC.State()
			Expect(masterState.EOIs).To(Equal(3))
		})
	})
})
