// Package bootinfo decodes the boot information block handed over by the
// loader: the firmware memory map and the framebuffer descriptor.
package bootinfo

import (
	"encoding/binary"

	"kestrel/kernel"
)

const (
	// Magic identifies a boot information block ("KBI0").
	Magic = uint32(0x3049424b)

	// Version is the only supported layout revision.
	Version = uint32(1)

	// HeaderSize is the size of the fixed header preceding the memory map.
	HeaderSize = 48

	// DescriptorSize is the minimum size of a memory map descriptor. The
	// firmware may report a larger stride; the extra bytes are skipped.
	DescriptorSize = 40

	// FirmwarePageSize is the unit used by PageCount. It is fixed at 4KiB
	// regardless of the paging mode.
	FirmwarePageSize = 4096
)

var (
	// ErrInvalidBootInfo is returned for truncated blocks or a bad magic.
	ErrInvalidBootInfo = &kernel.Error{Module: "bootinfo", Message: "invalid boot information block"}

	// ErrUnsupportedVersion is returned for an unknown layout revision.
	ErrUnsupportedVersion = &kernel.Error{Module: "bootinfo", Message: "unsupported boot information version"}

	// ErrInvalidDescriptorSize is returned when the memory map stride is
	// smaller than a descriptor.
	ErrInvalidDescriptorSize = &kernel.Error{Module: "bootinfo", Message: "memory map descriptor size too small"}
)

// MemoryDescriptor describes a physical memory region reported by the
// firmware.
type MemoryDescriptor struct {
	Type      MemoryType
	PhysStart uint64
	VirtStart uint64
	PageCount uint64
	Attribute uint64
}

// Size returns the length of the region in bytes.
func (d MemoryDescriptor) Size() uint64 {
	return d.PageCount * FirmwarePageSize
}

// End returns the first physical address past the region.
func (d MemoryDescriptor) End() uint64 {
	return d.PhysStart + d.Size()
}

// PixelFormat describes the framebuffer pixel layout.
type PixelFormat uint32

const (
	// PixelRGB stores red in the lowest byte of each pixel.
	PixelRGB PixelFormat = iota
	// PixelBGR stores blue in the lowest byte of each pixel.
	PixelBGR
)

// Framebuffer describes the linear framebuffer set up by the loader.
type Framebuffer struct {
	Base   uint64
	Size   uint64
	Width  uint32
	Height uint32
	Stride uint32
	Format PixelFormat
}

// Info holds the decoded boot information.
type Info struct {
	MemoryMap   []MemoryDescriptor
	Framebuffer Framebuffer
}

// MemRegionVisitor is invoked by VisitMemRegions for each memory region. The
// visitor must return true to continue or false to abort the scan.
type MemRegionVisitor func(*MemoryDescriptor) bool

// Decode parses a boot information block.
func Decode(blob []byte) (*Info, *kernel.Error) {
	if len(blob) < HeaderSize || binary.LittleEndian.Uint32(blob[0:]) != Magic {
		return nil, ErrInvalidBootInfo
	}

	if binary.LittleEndian.Uint32(blob[4:]) != Version {
		return nil, ErrUnsupportedVersion
	}

	var (
		count    = int(binary.LittleEndian.Uint32(blob[8:]))
		descSize = int(binary.LittleEndian.Uint32(blob[12:]))
	)

	if descSize < DescriptorSize {
		return nil, ErrInvalidDescriptorSize
	}

	if len(blob)-HeaderSize < count*descSize {
		return nil, ErrInvalidBootInfo
	}

	info := &Info{
		Framebuffer: Framebuffer{
			Base:   binary.LittleEndian.Uint64(blob[16:]),
			Size:   binary.LittleEndian.Uint64(blob[24:]),
			Width:  binary.LittleEndian.Uint32(blob[32:]),
			Height: binary.LittleEndian.Uint32(blob[36:]),
			Stride: binary.LittleEndian.Uint32(blob[40:]),
			Format: PixelFormat(binary.LittleEndian.Uint32(blob[44:])),
		},
		MemoryMap: make([]MemoryDescriptor, count),
	}

	for i := range info.MemoryMap {
		d := blob[HeaderSize+i*descSize:]
		info.MemoryMap[i] = MemoryDescriptor{
			Type:      MemoryType(binary.LittleEndian.Uint32(d[0:])),
			PhysStart: binary.LittleEndian.Uint64(d[8:]),
			VirtStart: binary.LittleEndian.Uint64(d[16:]),
			PageCount: binary.LittleEndian.Uint64(d[24:]),
			Attribute: binary.LittleEndian.Uint64(d[32:]),
		}
	}

	return info, nil
}

// Encode serializes info using the layout expected by Decode. Loaders and
// host tooling use it to build the block passed to the kernel.
func Encode(info *Info) []byte {
	blob := make([]byte, HeaderSize+len(info.MemoryMap)*DescriptorSize)

	binary.LittleEndian.PutUint32(blob[0:], Magic)
	binary.LittleEndian.PutUint32(blob[4:], Version)
	binary.LittleEndian.PutUint32(blob[8:], uint32(len(info.MemoryMap)))
	binary.LittleEndian.PutUint32(blob[12:], DescriptorSize)
	binary.LittleEndian.PutUint64(blob[16:], info.Framebuffer.Base)
	binary.LittleEndian.PutUint64(blob[24:], info.Framebuffer.Size)
	binary.LittleEndian.PutUint32(blob[32:], info.Framebuffer.Width)
	binary.LittleEndian.PutUint32(blob[36:], info.Framebuffer.Height)
	binary.LittleEndian.PutUint32(blob[40:], info.Framebuffer.Stride)
	binary.LittleEndian.PutUint32(blob[44:], uint32(info.Framebuffer.Format))

	for i, desc := range info.MemoryMap {
		d := blob[HeaderSize+i*DescriptorSize:]
		binary.LittleEndian.PutUint32(d[0:], uint32(desc.Type))
		binary.LittleEndian.PutUint64(d[8:], desc.PhysStart)
		binary.LittleEndian.PutUint64(d[16:], desc.VirtStart)
		binary.LittleEndian.PutUint64(d[24:], desc.PageCount)
		binary.LittleEndian.PutUint64(d[32:], desc.Attribute)
	}

	return blob
}

// VisitMemRegions invokes visitor for each memory map entry in the order
// reported by the firmware.
func (i *Info) VisitMemRegions(visitor MemRegionVisitor) {
	for index := range i.MemoryMap {
		if !visitor(&i.MemoryMap[index]) {
			return
		}
	}
}

// MaxPhysAddr returns the first physical address past the highest region in
// the memory map.
func (i *Info) MaxPhysAddr() uint64 {
	var max uint64
	for _, desc := range i.MemoryMap {
		if end := desc.End(); end > max {
			max = end
		}
	}

	return max
}
