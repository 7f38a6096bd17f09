package sim

import (
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"kestrel/kernel/hal/bootinfo"
)

// DefaultLocalAPICBase is the architectural local APIC MMIO base.
const DefaultLocalAPICBase = 0xfee00000

// Region describes a memory map entry in a machine profile.
type Region struct {
	Type  string `toml:"type"`
	Start uint64 `toml:"start"`
	Pages uint64 `toml:"pages"`
}

// FramebufferConfig describes the simulated linear framebuffer.
type FramebufferConfig struct {
	Base   uint64 `toml:"base"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

// Profile describes a simulated machine.
type Profile struct {
	Name          string            `toml:"name"`
	RAMSize       uint64            `toml:"ram_size"`
	LocalAPICBase uint64            `toml:"lapic_base"`
	LocalAPICID   uint8             `toml:"lapic_id"`
	Framebuffer   FramebufferConfig `toml:"framebuffer"`
	Regions       []Region          `toml:"region"`
}

var memoryTypeByName = map[string]bootinfo.MemoryType{
	"reserved":              bootinfo.Reserved,
	"loader_code":           bootinfo.LoaderCode,
	"loader_data":           bootinfo.LoaderData,
	"boot_services_code":    bootinfo.BootServicesCode,
	"boot_services_data":    bootinfo.BootServicesData,
	"runtime_services_code": bootinfo.RuntimeServicesCode,
	"runtime_services_data": bootinfo.RuntimeServicesData,
	"conventional":          bootinfo.Conventional,
	"unusable":              bootinfo.Unusable,
	"acpi_reclaim":          bootinfo.AcpiReclaim,
	"acpi_nvs":              bootinfo.AcpiNonVolatile,
	"mmio":                  bootinfo.Mmio,
	"mmio_port_space":       bootinfo.MmioPortSpace,
	"pal_code":              bootinfo.PalCode,
	"persistent":            bootinfo.PersistentMemory,
}

// ParseMemoryType maps a profile region type name to a firmware memory type.
func ParseMemoryType(name string) (bootinfo.MemoryType, error) {
	t, ok := memoryTypeByName[strings.ToLower(name)]
	if !ok {
		return 0, errors.Errorf("sim: unknown memory region type %q", name)
	}

	return t, nil
}

// DefaultProfile describes a 16MiB machine with the usual PC memory layout:
// low memory reusable after boot services exit, the legacy video and BIOS
// hole, conventional memory from 1MiB and a block of boot services data at
// the top.
func DefaultProfile() *Profile {
	return &Profile{
		Name:          "default",
		RAMSize:       16 << 20,
		LocalAPICBase: DefaultLocalAPICBase,
		Framebuffer:   FramebufferConfig{Base: 0x80000000, Width: 800, Height: 600},
		Regions: []Region{
			{Type: "boot_services_code", Start: 0x0, Pages: 0xa0},
			{Type: "reserved", Start: 0xa0000, Pages: 0x60},
			{Type: "conventional", Start: 0x100000, Pages: 0xd00},
			{Type: "boot_services_data", Start: 0xe00000, Pages: 0x200},
			{Type: "mmio", Start: DefaultLocalAPICBase, Pages: 1},
		},
	}
}

// LoadProfile reads a machine profile from a TOML file. Unset fields keep the
// values of DefaultProfile.
func LoadProfile(path string) (*Profile, error) {
	p := DefaultProfile()
	p.Regions = nil

	md, err := toml.DecodeFile(path, p)
	if err != nil {
		return nil, errors.Wrapf(err, "sim: loading profile %s", path)
	}

	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, errors.Errorf("sim: profile %s has unknown keys: %v", path, undecoded)
	}

	if err := p.Validate(); err != nil {
		return nil, errors.Wrapf(err, "sim: profile %s", path)
	}

	return p, nil
}

// Validate checks that the profile describes a machine that can be built.
func (p *Profile) Validate() error {
	if p.RAMSize == 0 || p.RAMSize%bootinfo.FirmwarePageSize != 0 {
		return errors.Errorf("ram_size %#x must be a non-zero multiple of %d", p.RAMSize, bootinfo.FirmwarePageSize)
	}

	if len(p.Regions) == 0 {
		return errors.New("no memory regions defined")
	}

	for i, r := range p.Regions {
		t, err := ParseMemoryType(r.Type)
		if err != nil {
			return errors.Wrapf(err, "region %d", i)
		}

		end := r.Start + r.Pages*bootinfo.FirmwarePageSize
		if t != bootinfo.Mmio && t != bootinfo.MmioPortSpace && end > p.RAMSize {
			return errors.Errorf("region %d (%s) ends at %#x past the end of RAM (%#x)", i, r.Type, end, p.RAMSize)
		}
	}

	return nil
}

// BootInfo builds the boot information handed to the kernel.
func (p *Profile) BootInfo() (*bootinfo.Info, error) {
	info := &bootinfo.Info{
		Framebuffer: bootinfo.Framebuffer{
			Base:   p.Framebuffer.Base,
			Size:   uint64(p.Framebuffer.Width) * uint64(p.Framebuffer.Height) * 4,
			Width:  p.Framebuffer.Width,
			Height: p.Framebuffer.Height,
			Stride: p.Framebuffer.Width,
			Format: bootinfo.PixelBGR,
		},
	}

	for i, r := range p.Regions {
		t, err := ParseMemoryType(r.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "region %d", i)
		}

		info.MemoryMap = append(info.MemoryMap, bootinfo.MemoryDescriptor{
			Type:      t,
			PhysStart: r.Start,
			PageCount: r.Pages,
		})
	}

	return info, nil
}
