package bootinfo

// MemoryType describes the firmware's classification of a physical memory
// region. Values follow the UEFI EFI_MEMORY_TYPE enumeration.
type MemoryType uint32

const (
	// Reserved regions are never usable by the kernel.
	Reserved MemoryType = iota
	// LoaderCode holds the code of the boot loader.
	LoaderCode
	// LoaderData holds the data of the boot loader, including this
	// structure.
	LoaderData
	// BootServicesCode holds firmware boot service code. It becomes free
	// memory once boot services have exited.
	BootServicesCode
	// BootServicesData holds firmware boot service data.
	BootServicesData
	// RuntimeServicesCode must be preserved for firmware runtime calls.
	RuntimeServicesCode
	// RuntimeServicesData must be preserved for firmware runtime calls.
	RuntimeServicesData
	// Conventional memory is free for general use.
	Conventional
	// Unusable memory contains errors.
	Unusable
	// AcpiReclaim holds ACPI tables that can be reclaimed once parsed.
	AcpiReclaim
	// AcpiNonVolatile must be preserved across sleep states.
	AcpiNonVolatile
	// Mmio is memory-mapped device I/O space.
	Mmio
	// MmioPortSpace is memory-mapped port I/O space.
	MmioPortSpace
	// PalCode is reserved by the processor firmware.
	PalCode
	// PersistentMemory is byte-addressable non-volatile memory.
	PersistentMemory
)

var memoryTypeNames = [...]string{
	"reserved",
	"loader code",
	"loader data",
	"boot services code",
	"boot services data",
	"runtime services code",
	"runtime services data",
	"conventional",
	"unusable",
	"ACPI reclaimable",
	"ACPI non-volatile",
	"MMIO",
	"MMIO port space",
	"PAL code",
	"persistent",
}

// String implements fmt.Stringer for MemoryType.
func (t MemoryType) String() string {
	if int(t) < len(memoryTypeNames) {
		return memoryTypeNames[t]
	}

	return "unknown"
}

// IsUsable returns true for regions the frame allocator may hand out once the
// kernel owns the machine.
func (t MemoryType) IsUsable() bool {
	return t == Conventional || t == BootServicesCode
}
