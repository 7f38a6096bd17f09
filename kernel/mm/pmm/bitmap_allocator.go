// Package pmm implements the physical frame allocator.
package pmm

import (
	"kestrel/kernel"
	"kestrel/kernel/hal/bootinfo"
	"kestrel/kernel/kfmt"
	"kestrel/kernel/mm"
	"kestrel/kernel/sync"
)

var (
	// ErrNotInitialized is returned when the allocator is used before Init.
	ErrNotInitialized = &kernel.Error{Module: "pmm", Message: "frame allocator is not initialized"}

	// ErrFrameAlreadyAllocated is returned when reserving a frame that is
	// already in use.
	ErrFrameAlreadyAllocated = &kernel.Error{Module: "pmm", Message: "frame is already allocated"}

	// ErrFrameAlreadyDeallocated is returned when releasing a frame that is
	// already free.
	ErrFrameAlreadyDeallocated = &kernel.Error{Module: "pmm", Message: "frame is already deallocated"}

	// ErrInvalidLength is returned for zero-length requests.
	ErrInvalidLength = &kernel.Error{Module: "pmm", Message: "invalid frame count"}

	// ErrFreeFrameNotFound is returned when no free run of the requested
	// length exists.
	ErrFreeFrameNotFound = &kernel.Error{Module: "pmm", Message: "free frame not found"}

	// ErrFrameIndexOutOfBounds is returned for frames past the end of
	// physical memory.
	ErrFrameIndexOutOfBounds = &kernel.Error{Module: "pmm", Message: "frame index out of bounds"}

	// ErrNoBitmapRegion is returned when the memory map contains no free
	// region large enough to hold the allocation bitmap.
	ErrNoBitmapRegion = &kernel.Error{Module: "pmm", Message: "no memory region large enough for the frame bitmap"}

	log = kfmt.Logger("pmm")
)

// AddressTranslator converts the physical address of a frame into an address
// the kernel can dereference.
type AddressTranslator func(physAddr uintptr) (uintptr, *kernel.Error)

// identityTranslator is used while physical memory is identity-mapped.
func identityTranslator(physAddr uintptr) (uintptr, *kernel.Error) {
	return physAddr, nil
}

// Stats is a snapshot of the allocator counters.
type Stats struct {
	FrameCount      uintptr
	AllocatedFrames uintptr
	FreeFrames      uintptr
}

// BitmapAllocator tracks the allocation state of every physical frame with a
// single bit. Bit i of bitmap byte w (counting from the most significant bit)
// represents frame w*8+i; a set bit marks an allocated frame.
//
// The bitmap lives in physical memory inside the first conventional region
// that can hold it and is accessed through mem. All public methods acquire a
// try-lock and fail with sync.ErrLocked instead of blocking.
type BitmapAllocator struct {
	mu          sync.Mutex
	mem         mm.Memory
	translateFn AddressTranslator

	initialized bool

	bitmapAddr uintptr
	bitmapLen  uintptr

	frameLen          uintptr
	allocatedFrameLen uintptr
	freeFrameLen      uintptr
}

// NewBitmapAllocator returns an uninitialized allocator whose bitmap is
// accessed through mem.
func NewBitmapAllocator(mem mm.Memory) *BitmapAllocator {
	return &BitmapAllocator{
		mem:         mem,
		translateFn: identityTranslator,
	}
}

// SetAddressTranslator replaces the function used by ZeroFrame to reach frame
// contents. A nil fn restores the identity translation.
func (a *BitmapAllocator) SetAddressTranslator(fn AddressTranslator) {
	if fn == nil {
		fn = identityTranslator
	}
	a.translateFn = fn
}

// Init builds the bitmap from the firmware memory map. Every frame starts out
// allocated; frames of page-aligned Conventional and BootServicesCode regions
// are then released and finally the frames backing the bitmap itself are
// reserved again.
func (a *BitmapAllocator) Init(memMap []bootinfo.MemoryDescriptor) *kernel.Error {
	if err := a.mu.TryLock(); err != nil {
		return err
	}
	defer a.mu.Unlock()

	a.frameLen = uintptr(physMemEnd(memMap)) >> mm.PageShift
	a.bitmapLen = (a.frameLen + 7) >> 3

	bitmapAddr, ok := findBitmapRegion(memMap, a.bitmapLen)
	if !ok {
		return ErrNoBitmapRegion
	}
	a.bitmapAddr = bitmapAddr

	mm.Memset(a.mem, a.bitmapAddr, 0xff, a.bitmapLen)
	a.allocatedFrameLen, a.freeFrameLen = a.frameLen, 0

	for _, desc := range memMap {
		if !desc.Type.IsUsable() || !mm.IsPageAligned(uintptr(desc.PhysStart)) {
			continue
		}

		first := uintptr(desc.PhysStart) >> mm.PageShift
		for index := first; index < first+uintptr(desc.PageCount); index++ {
			if err := a.markFree(index); err != nil {
				return err
			}
		}
	}

	// Frame 0 shares its address with the null pointer and stays reserved.
	if a.frameLen != 0 && !a.isAllocated(0) {
		_ = a.markAllocated(0)
	}

	bitmapFirst := a.bitmapAddr >> mm.PageShift
	for index := bitmapFirst; index < bitmapFirst+mm.PageCount(a.bitmapLen); index++ {
		if err := a.markAllocated(index); err != nil {
			return err
		}
	}

	a.initialized = true

	log.WithField("frames", a.frameLen).
		WithField("free", a.freeFrameLen).
		WithField("bitmap", a.bitmapAddr).
		Info("frame bitmap ready")

	return nil
}

// physMemEnd returns the first address past the highest memory region.
// Device windows are not backed by frames and are ignored.
func physMemEnd(memMap []bootinfo.MemoryDescriptor) uint64 {
	var end uint64
	for _, desc := range memMap {
		if desc.Type == bootinfo.Mmio || desc.Type == bootinfo.MmioPortSpace {
			continue
		}

		if descEnd := desc.End(); descEnd > end {
			end = descEnd
		}
	}

	return end
}

// findBitmapRegion returns the address of the first page-aligned conventional
// region that can hold size bytes. The region at physical address zero is
// skipped so that a zero bitmap address never appears valid.
func findBitmapRegion(memMap []bootinfo.MemoryDescriptor, size uintptr) (uintptr, bool) {
	for _, desc := range memMap {
		if desc.Type != bootinfo.Conventional || desc.PhysStart == 0 || !mm.IsPageAligned(uintptr(desc.PhysStart)) {
			continue
		}

		if uintptr(desc.Size()) >= size {
			return uintptr(desc.PhysStart), true
		}
	}

	return 0, false
}

func (a *BitmapAllocator) isAllocated(index uintptr) bool {
	return a.mem.Uint8(a.bitmapAddr+index>>3)&(0x80>>(index&7)) != 0
}

func (a *BitmapAllocator) setBit(index uintptr, allocated bool) {
	addr := a.bitmapAddr + index>>3
	b := a.mem.Uint8(addr)
	if allocated {
		b |= 0x80 >> (index & 7)
	} else {
		b &^= 0x80 >> (index & 7)
	}
	a.mem.SetUint8(addr, b)
}

func (a *BitmapAllocator) markAllocated(index uintptr) *kernel.Error {
	if index >= a.frameLen {
		return ErrFrameIndexOutOfBounds
	}
	if a.isAllocated(index) {
		return ErrFrameAlreadyAllocated
	}

	a.setBit(index, true)
	a.allocatedFrameLen++
	a.freeFrameLen--
	return nil
}

func (a *BitmapAllocator) markFree(index uintptr) *kernel.Error {
	if index >= a.frameLen {
		return ErrFrameIndexOutOfBounds
	}
	if !a.isAllocated(index) {
		return ErrFrameAlreadyDeallocated
	}

	a.setBit(index, false)
	a.allocatedFrameLen--
	a.freeFrameLen++
	return nil
}

// AllocFrame allocates a single frame.
func (a *BitmapAllocator) AllocFrame() (FrameInfo, *kernel.Error) {
	if err := a.mu.TryLock(); err != nil {
		return FrameInfo{}, err
	}
	defer a.mu.Unlock()

	return a.allocSingle()
}

// AllocFrames allocates count physically contiguous frames.
func (a *BitmapAllocator) AllocFrames(count uintptr) (FrameInfo, *kernel.Error) {
	if err := a.mu.TryLock(); err != nil {
		return FrameInfo{}, err
	}
	defer a.mu.Unlock()

	switch {
	case !a.initialized:
		return FrameInfo{}, ErrNotInitialized
	case count == 0:
		return FrameInfo{}, ErrInvalidLength
	case count == 1:
		return a.allocSingle()
	}

	return a.allocContiguous(count)
}

func (a *BitmapAllocator) allocSingle() (FrameInfo, *kernel.Error) {
	if !a.initialized {
		return FrameInfo{}, ErrNotInitialized
	}
	if a.freeFrameLen == 0 {
		return FrameInfo{}, ErrFreeFrameNotFound
	}

	for offset := uintptr(0); offset < a.bitmapLen; offset++ {
		b := a.mem.Uint8(a.bitmapAddr + offset)
		if b == 0xff {
			continue
		}

		for bit := uintptr(0); bit < 8; bit++ {
			if b&(0x80>>bit) != 0 {
				continue
			}

			index := offset<<3 + bit
			if index >= a.frameLen {
				return FrameInfo{}, ErrFreeFrameNotFound
			}

			a.setBit(index, true)
			a.allocatedFrameLen++
			a.freeFrameLen--
			return frameRun(index, 1), nil
		}
	}

	return FrameInfo{}, ErrFreeFrameNotFound
}

// allocContiguous returns the first run of count free frames. Whole free
// bytes are consumed eight frames at a time.
func (a *BitmapAllocator) allocContiguous(count uintptr) (FrameInfo, *kernel.Error) {
	if count > a.freeFrameLen {
		return FrameInfo{}, ErrFreeFrameNotFound
	}

	var runStart, runLen uintptr
	for index := uintptr(0); index < a.frameLen && runLen < count; {
		if index&7 == 0 && index+8 <= a.frameLen {
			switch a.mem.Uint8(a.bitmapAddr + index>>3) {
			case 0x00:
				if runLen == 0 {
					runStart = index
				}
				runLen += 8
				index += 8
				continue
			case 0xff:
				runLen = 0
				index += 8
				continue
			}
		}

		if a.isAllocated(index) {
			runLen = 0
		} else {
			if runLen == 0 {
				runStart = index
			}
			runLen++
		}
		index++
	}

	if runLen < count {
		return FrameInfo{}, ErrFreeFrameNotFound
	}

	for index := runStart; index < runStart+count; index++ {
		a.setBit(index, true)
	}
	a.allocatedFrameLen += count
	a.freeFrameLen -= count

	return frameRun(runStart, count), nil
}

// validateRun checks that every frame of fi lies within physical memory and
// is in the wanted allocation state. Nothing is modified.
func (a *BitmapAllocator) validateRun(fi FrameInfo, wantAllocated bool) *kernel.Error {
	count := fi.FrameCount()
	switch {
	case !a.initialized:
		return ErrNotInitialized
	case count == 0:
		return ErrInvalidLength
	case fi.Index >= a.frameLen || count > a.frameLen-fi.Index:
		return ErrFrameIndexOutOfBounds
	}

	for index := fi.Index; index < fi.Index+count; index++ {
		if allocated := a.isAllocated(index); allocated != wantAllocated {
			if allocated {
				return ErrFrameAlreadyAllocated
			}
			return ErrFrameAlreadyDeallocated
		}
	}

	return nil
}

// Reserve marks a specific run of frames as allocated. It fails with
// ErrFrameAlreadyAllocated, leaving the bitmap untouched, if any frame of the
// run is already in use.
func (a *BitmapAllocator) Reserve(fi FrameInfo) *kernel.Error {
	if err := a.mu.TryLock(); err != nil {
		return err
	}
	defer a.mu.Unlock()

	if err := a.validateRun(fi, false); err != nil {
		return err
	}

	count := fi.FrameCount()
	for index := fi.Index; index < fi.Index+count; index++ {
		a.setBit(index, true)
	}
	a.allocatedFrameLen += count
	a.freeFrameLen -= count
	return nil
}

// FreeFrames releases a run previously returned by AllocFrame, AllocFrames
// or reserved with Reserve. It fails with ErrFrameAlreadyDeallocated, leaving
// the bitmap untouched, if any frame of the run is already free.
func (a *BitmapAllocator) FreeFrames(fi FrameInfo) *kernel.Error {
	if err := a.mu.TryLock(); err != nil {
		return err
	}
	defer a.mu.Unlock()

	if err := a.validateRun(fi, true); err != nil {
		return err
	}

	count := fi.FrameCount()
	for index := fi.Index; index < fi.Index+count; index++ {
		a.setBit(index, false)
	}
	a.allocatedFrameLen -= count
	a.freeFrameLen += count
	return nil
}

// ZeroFrame clears the contents of every frame in fi using 64-bit stores.
func (a *BitmapAllocator) ZeroFrame(fi FrameInfo) *kernel.Error {
	if err := a.mu.TryLock(); err != nil {
		return err
	}

	count := fi.FrameCount()
	switch {
	case !a.initialized:
		a.mu.Unlock()
		return ErrNotInitialized
	case count == 0:
		a.mu.Unlock()
		return ErrInvalidLength
	case fi.Index >= a.frameLen || count > a.frameLen-fi.Index:
		a.mu.Unlock()
		return ErrFrameIndexOutOfBounds
	}
	translateFn := a.translateFn
	a.mu.Unlock()

	// The translator may need other subsystem locks so the allocator lock
	// is not held while clearing.
	for index := fi.Index; index < fi.Index+count; index++ {
		addr, err := translateFn(index << mm.PageShift)
		if err != nil {
			return err
		}

		for offset := uintptr(0); offset < mm.PageSize; offset += 8 {
			a.mem.SetUint64(addr+offset, 0)
		}
	}

	return nil
}

// FrameInfo returns the address, size and allocation state of the frame at
// index.
func (a *BitmapAllocator) FrameInfo(index uintptr) (FrameInfo, *kernel.Error) {
	if err := a.mu.TryLock(); err != nil {
		return FrameInfo{}, err
	}
	defer a.mu.Unlock()

	switch {
	case !a.initialized:
		return FrameInfo{}, ErrNotInitialized
	case index >= a.frameLen:
		return FrameInfo{}, ErrFrameIndexOutOfBounds
	}

	fi := frameRun(index, 1)
	fi.Allocated = a.isAllocated(index)
	return fi, nil
}

// Stats returns the allocator counters.
func (a *BitmapAllocator) Stats() (Stats, *kernel.Error) {
	if err := a.mu.TryLock(); err != nil {
		return Stats{}, err
	}
	defer a.mu.Unlock()

	return Stats{
		FrameCount:      a.frameLen,
		AllocatedFrames: a.allocatedFrameLen,
		FreeFrames:      a.freeFrameLen,
	}, nil
}

// UsedAndTotalBytes returns the number of allocated bytes and the size of
// physical memory.
func (a *BitmapAllocator) UsedAndTotalBytes() (uintptr, uintptr, *kernel.Error) {
	stats, err := a.Stats()
	if err != nil {
		return 0, 0, err
	}

	return stats.AllocatedFrames << mm.PageShift, stats.FrameCount << mm.PageShift, nil
}

// TotalMemSize returns the size of physical memory tracked by the bitmap. The
// value is fixed once Init returns.
func (a *BitmapAllocator) TotalMemSize() uintptr {
	return a.frameLen << mm.PageShift
}

// FrameSize returns the size of a frame in bytes.
func (a *BitmapAllocator) FrameSize() uintptr {
	return mm.PageSize
}

// BitmapRegion returns the frames holding the allocation bitmap.
func (a *BitmapAllocator) BitmapRegion() FrameInfo {
	return frameRun(a.bitmapAddr>>mm.PageShift, mm.PageCount(a.bitmapLen))
}
