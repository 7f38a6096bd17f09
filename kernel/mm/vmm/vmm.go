// Package vmm manages the 4-level page tables of the kernel address space.
package vmm

import (
	"github.com/sirupsen/logrus"

	"kestrel/kernel"
	"kestrel/kernel/cpu"
	"kestrel/kernel/kfmt"
	"kestrel/kernel/mm"
	"kestrel/kernel/mm/pmm"
	"kestrel/kernel/sync"
)

var (
	// ErrAddressNotMapped is returned when no present entry covers an address.
	ErrAddressNotMapped = &kernel.Error{Module: "vmm", Message: "address is not mapped"}

	// ErrAddressNotAligned is returned for addresses that are not page aligned.
	ErrAddressNotAligned = &kernel.Error{Module: "vmm", Message: "address is not page aligned"}

	// ErrAddressNotAllowedToMap is returned when mapping virtual page 0.
	ErrAddressNotAllowedToMap = &kernel.Error{Module: "vmm", Message: "address is not allowed to be mapped"}

	// ErrInvalidRange is returned for empty or inverted ranges.
	ErrInvalidRange = &kernel.Error{Module: "vmm", Message: "invalid address range"}

	// ErrHugePageConflict is returned when a 4K mapping would have to split
	// an existing huge page.
	ErrHugePageConflict = &kernel.Error{Module: "vmm", Message: "address is covered by a huge page"}

	log = kfmt.Logger("vmm")
)

// FrameAllocator supplies the frames used for new page tables.
type FrameAllocator interface {
	AllocFrame() (pmm.FrameInfo, *kernel.Error)
	TotalMemSize() uintptr
}

// MappingInfo describes a request to map the virtual range [Start, End) to
// the physical range starting at PhysAddr.
type MappingInfo struct {
	Start        uintptr
	End          uintptr
	PhysAddr     uintptr
	RW           ReadWrite
	Mode         Mode
	WriteThrough WriteThroughLevel
}

// Manager edits the page tables reachable from CR3. Tables are accessed
// through their physical address so physical memory must be identity mapped
// while the manager runs. Tables are never reclaimed.
//
// Permission bits of intermediate entries only ever grow: an entry grants
// the union of the permissions requested for any page below it.
type Manager struct {
	mu     sync.Mutex
	cpu    cpu.Controller
	mem    mm.Memory
	frames FrameAllocator
}

// NewManager returns a manager operating on the page tables reachable
// through mem.
func NewManager(c cpu.Controller, mem mm.Memory, frames FrameAllocator) *Manager {
	return &Manager{
		cpu:    c,
		mem:    mem,
		frames: frames,
	}
}

func (m *Manager) entry(entryAddr uintptr) PageTableEntry {
	return PageTableEntry(m.mem.Uint64(entryAddr))
}

func (m *Manager) setEntry(entryAddr uintptr, pte PageTableEntry) {
	m.mem.SetUint64(entryAddr, uint64(pte))
}

func (m *Manager) activeRoot() uintptr {
	return m.cpu.ActivePDT() & ptePhysPageMask
}

// entryAddr returns the address of the entry for virtAddr in the table at
// tableAddr for the given level.
func entryAddr(tableAddr, virtAddr uintptr, level uint8) uintptr {
	index := (virtAddr >> pageLevelShifts[level]) & (entriesPerTable - 1)
	return tableAddr + (index << mm.PointerShift)
}

// pageTableWalker is a function that can be passed to the walk method. The
// function receives the current page level and the address of the page
// table entry as its arguments. If the function returns false, then the page
// walk is aborted.
type pageTableWalker func(level uint8, entryAddr uintptr) bool

// walk performs a page table walk for the given virtual address starting at
// the table at rootAddr. The next table is read from the entry after walkFn
// returns so walkFn may install it.
func (m *Manager) walk(rootAddr, virtAddr uintptr, walkFn pageTableWalker) {
	tableAddr := rootAddr
	for level := uint8(0); level < pageLevels; level++ {
		addr := entryAddr(tableAddr, virtAddr, level)
		if !walkFn(level, addr) {
			return
		}
		tableAddr = m.entry(addr).Address()
	}
}

// hugePageSize returns the size of the page mapped by a huge entry at level.
// Only PML3 and PML2 entries can map huge pages.
func hugePageSize(level uint8) uintptr {
	if level == 1 {
		return mm.GiantPageSize
	}
	return mm.HugePageSize
}

// CalcPhysAddr returns the physical address that virtAddr maps to in the
// active address space. Huge pages are resolved to the matching offset
// inside the 1G or 2M page.
func (m *Manager) CalcPhysAddr(virtAddr uintptr) (uintptr, *kernel.Error) {
	if !mm.IsPageAligned(virtAddr) {
		return 0, ErrAddressNotAligned
	}

	if err := m.mu.TryLock(); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()

	return m.translate(virtAddr)
}

// Translate returns the physical address for an arbitrary virtual address.
func (m *Manager) Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	offset := virtAddr & (mm.PageSize - 1)
	physAddr, err := m.CalcPhysAddr(virtAddr - offset)
	if err != nil {
		return 0, err
	}
	return physAddr + offset, nil
}

func (m *Manager) translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	var (
		physAddr uintptr
		err      = ErrAddressNotMapped
	)

	m.walk(m.activeRoot(), virtAddr, func(level uint8, addr uintptr) bool {
		pte := m.entry(addr)
		switch {
		case !pte.Present():
			return false
		case level == pageLevels-1:
			physAddr, err = pte.Address(), nil
			return false
		case level > 0 && pte.Huge():
			size := hugePageSize(level)
			physAddr, err = pte.Address()&^(size-1)|virtAddr&(size-1), nil
			return false
		}
		return true
	})

	return physAddr, err
}

// EntryForAddress returns the entry that maps virtAddr. For huge pages the
// PML3 or PML2 entry is returned.
func (m *Manager) EntryForAddress(virtAddr uintptr) (PageTableEntry, *kernel.Error) {
	if err := m.mu.TryLock(); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()

	var (
		found PageTableEntry
		err   = ErrAddressNotMapped
	)

	m.walk(m.activeRoot(), virtAddr, func(level uint8, addr uintptr) bool {
		pte := m.entry(addr)
		switch {
		case !pte.Present():
			return false
		case level == pageLevels-1, level > 0 && pte.Huge():
			found, err = pte, nil
			return false
		}
		return true
	})

	return found, err
}

// CalcVirtAddr returns the first virtual address in the active address space
// that maps to physAddr. The lookup visits every present entry of the page
// table tree, skipping subtrees whose entries are not present.
func (m *Manager) CalcVirtAddr(physAddr uintptr) (uintptr, *kernel.Error) {
	if !mm.IsPageAligned(physAddr) {
		return 0, ErrAddressNotAligned
	}

	if err := m.mu.TryLock(); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()

	if virtAddr, ok := m.findVirtAddr(m.activeRoot(), 0, 0, physAddr); ok {
		return virtAddr, nil
	}
	return 0, ErrAddressNotMapped
}

func (m *Manager) findVirtAddr(tableAddr uintptr, level uint8, prefix, physAddr uintptr) (uintptr, bool) {
	for index := uintptr(0); index < entriesPerTable; index++ {
		pte := m.entry(tableAddr + (index << mm.PointerShift))
		if !pte.Present() {
			continue
		}

		virtAddr := prefix | index<<pageLevelShifts[level]
		if level == 0 && index >= entriesPerTable/2 {
			virtAddr |= canonicalHighBits
		}

		switch {
		case level == pageLevels-1:
			if pte.Address() == physAddr {
				return virtAddr, true
			}
		case level > 0 && pte.Huge():
			size := hugePageSize(level)
			if base := pte.Address() &^ (size - 1); physAddr >= base && physAddr-base < size {
				return virtAddr | (physAddr - base), true
			}
		default:
			if found, ok := m.findVirtAddr(pte.Address(), level+1, virtAddr, physAddr); ok {
				return found, true
			}
		}
	}

	return 0, false
}

// allocTable allocates and clears a frame for a new page table and returns
// its physical address.
func (m *Manager) allocTable() (uintptr, *kernel.Error) {
	fi, err := m.frames.AllocFrame()
	if err != nil {
		return 0, err
	}

	for offset := uintptr(0); offset < mm.PageSize; offset += 8 {
		m.mem.SetUint64(fi.Address+offset, 0)
	}
	return fi.Address, nil
}

// mapPage installs a 4K mapping in the tree rooted at rootAddr, allocating
// missing tables. Every entry on the path is widened to grant rw and mode.
// Must be called with m.mu held.
func (m *Manager) mapPage(rootAddr, virtAddr, physAddr uintptr, rw ReadWrite, mode Mode, wt WriteThroughLevel) *kernel.Error {
	var err *kernel.Error

	m.walk(rootAddr, virtAddr, func(level uint8, addr uintptr) bool {
		pte := m.entry(addr)

		if level == pageLevels-1 {
			leaf := pte & PageTableEntry(FlagRW|FlagUserAccessible)
			leaf.SetAddress(physAddr)
			leaf.SetFlags(FlagPresent)
			leaf.SetWriteThrough(wt)
			leaf.widen(rw, mode)
			m.setEntry(addr, leaf)
			return true
		}

		if pte.Present() && pte.Huge() {
			err = ErrHugePageConflict
			return false
		}

		if !pte.Present() {
			var tableAddr uintptr
			if tableAddr, err = m.allocTable(); err != nil {
				return false
			}

			// Keep any permissions recorded while the entry was absent.
			pte &= PageTableEntry(FlagRW | FlagUserAccessible)
			pte.SetAddress(tableAddr)
			pte.SetFlags(FlagPresent)
		}

		pte.widen(rw, mode)
		m.setEntry(addr, pte)
		return true
	})

	return err
}

// CreateNewPageTable builds a fresh address space mapping [start, end) to
// the physical range starting at physAddr and loads it into CR3. The range is
// clamped to the size of physical memory and virtual page 0 is left unmapped.
func (m *Manager) CreateNewPageTable(start, end, physAddr uintptr, rw ReadWrite, mode Mode, wt WriteThroughLevel) *kernel.Error {
	if !mm.IsPageAligned(start) || !mm.IsPageAligned(end) || !mm.IsPageAligned(physAddr) {
		return ErrAddressNotAligned
	}
	if total := m.frames.TotalMemSize(); end > total {
		end = total
	}
	if end <= start {
		return ErrInvalidRange
	}

	if err := m.mu.TryLock(); err != nil {
		return err
	}
	defer m.mu.Unlock()

	rootAddr, err := m.allocTable()
	if err != nil {
		return err
	}

	for virtAddr, pAddr := start, physAddr; virtAddr < end; virtAddr, pAddr = virtAddr+mm.PageSize, pAddr+mm.PageSize {
		if virtAddr == 0 {
			continue
		}
		if err = m.mapPage(rootAddr, virtAddr, pAddr, rw, mode, wt); err != nil {
			return err
		}
	}

	cpu.WithInterruptsDisabled(m.cpu, func() {
		m.cpu.SwitchPDT(rootAddr)
	})

	log.WithFields(logrus.Fields{
		"pml4":  kfmt.Hex(rootAddr),
		"start": kfmt.Hex(start),
		"end":   kfmt.Hex(end),
	}).Info("activated new page table")
	return nil
}

// UpdateMapping installs mi into the active address space.
func (m *Manager) UpdateMapping(mi MappingInfo) *kernel.Error {
	switch {
	case mi.Start == 0:
		return ErrAddressNotAllowedToMap
	case !mm.IsPageAligned(mi.Start) || !mm.IsPageAligned(mi.End) || !mm.IsPageAligned(mi.PhysAddr):
		return ErrAddressNotAligned
	case mi.End <= mi.Start:
		return ErrInvalidRange
	}

	if err := m.mu.TryLock(); err != nil {
		return err
	}
	defer m.mu.Unlock()

	rootAddr := m.activeRoot()
	for virtAddr, physAddr := mi.Start, mi.PhysAddr; virtAddr < mi.End; virtAddr, physAddr = virtAddr+mm.PageSize, physAddr+mm.PageSize {
		if err := m.mapPage(rootAddr, virtAddr, physAddr, mi.RW, mi.Mode, mi.WriteThrough); err != nil {
			return err
		}
		m.cpu.FlushTLBEntry(virtAddr)
	}

	return nil
}

// SetPagePermissions sets the permissions of the 4K page at virtAddr.
// Intermediate entries are widened as needed. If a level of the path is
// missing the permissions are recorded on the absent entry and applied once
// a table is installed there.
func (m *Manager) SetPagePermissions(virtAddr uintptr, rw ReadWrite, mode Mode) *kernel.Error {
	if !mm.IsPageAligned(virtAddr) {
		return ErrAddressNotAligned
	}

	if err := m.mu.TryLock(); err != nil {
		return err
	}
	defer m.mu.Unlock()

	rootAddr := m.activeRoot()

	// Reject huge pages before touching any level of the path.
	var err *kernel.Error
	m.walk(rootAddr, virtAddr, func(level uint8, addr uintptr) bool {
		pte := m.entry(addr)
		if level == pageLevels-1 || !pte.Present() {
			return false
		}
		if pte.Huge() {
			err = ErrHugePageConflict
			return false
		}
		return true
	})
	if err != nil {
		return err
	}

	m.walk(rootAddr, virtAddr, func(level uint8, addr uintptr) bool {
		pte := m.entry(addr)

		switch {
		case level == pageLevels-1:
			pte.SetReadWrite(rw)
			pte.SetMode(mode)
			m.setEntry(addr, pte)
			m.cpu.FlushTLBEntry(virtAddr)
			return false
		case !pte.Present():
			recorded := pte & PageTableEntry(FlagRW|FlagUserAccessible)
			recorded.widen(rw, mode)
			m.setEntry(addr, recorded)
			return false
		}

		pte.widen(rw, mode)
		m.setEntry(addr, pte)
		return true
	})

	return nil
}
