package vmm

import "kestrel/kernel/mm"

// ReadWrite selects whether a mapping is writable.
type ReadWrite uint8

const (
	Read ReadWrite = iota
	Write
)

// String implements fmt.Stringer.
func (rw ReadWrite) String() string {
	if rw == Write {
		return "write"
	}
	return "read"
}

// Mode selects the privilege level allowed to access a mapping.
type Mode uint8

const (
	Supervisor Mode = iota
	User
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	if m == User {
		return "user"
	}
	return "supervisor"
}

// WriteThroughLevel selects the caching policy of a mapping.
type WriteThroughLevel uint8

const (
	WriteBack WriteThroughLevel = iota
	WriteThrough
)

// PageTableEntryFlag describes a flag that can be applied to a page table entry.
type PageTableEntryFlag uint64

// PageTableEntry describes a page table entry. These entries encode a
// physical frame address and a set of flags.
type PageTableEntry uint64

// HasFlags returns true if this entry has all the input flags set.
func (pte PageTableEntry) HasFlags(flags PageTableEntryFlag) bool {
	return (uint64(pte) & uint64(flags)) == uint64(flags)
}

// HasAnyFlag returns true if this entry has at least one of the input flags set.
func (pte PageTableEntry) HasAnyFlag(flags PageTableEntryFlag) bool {
	return (uint64(pte) & uint64(flags)) != 0
}

// SetFlags sets the input list of flags to the page table entry.
func (pte *PageTableEntry) SetFlags(flags PageTableEntryFlag) {
	*pte = PageTableEntry(uint64(*pte) | uint64(flags))
}

// ClearFlags unsets the input list of flags from the page table entry.
func (pte *PageTableEntry) ClearFlags(flags PageTableEntryFlag) {
	*pte = PageTableEntry(uint64(*pte) &^ uint64(flags))
}

// Present returns true if the entry is marked present.
func (pte PageTableEntry) Present() bool {
	return pte.HasFlags(FlagPresent)
}

// Huge returns true if the entry maps a 1G or 2M page.
func (pte PageTableEntry) Huge() bool {
	return pte.HasFlags(FlagHugePage)
}

// Address returns the physical address stored in the entry.
func (pte PageTableEntry) Address() uintptr {
	return uintptr(pte) & ptePhysPageMask
}

// SetAddress updates the physical address stored in the entry.
func (pte *PageTableEntry) SetAddress(addr uintptr) {
	*pte = PageTableEntry((uintptr(*pte) &^ ptePhysPageMask) | (addr & ptePhysPageMask))
}

// Frame returns the physical page frame that this page table entry points to.
func (pte PageTableEntry) Frame() mm.Frame {
	return mm.FrameFromAddress(pte.Address())
}

// SetFrame updates the page table entry to point the the given physical frame.
func (pte *PageTableEntry) SetFrame(frame mm.Frame) {
	pte.SetAddress(frame.Address())
}

// ReadWrite returns the access permission of the entry.
func (pte PageTableEntry) ReadWrite() ReadWrite {
	if pte.HasFlags(FlagRW) {
		return Write
	}
	return Read
}

// SetReadWrite sets the access permission of the entry.
func (pte *PageTableEntry) SetReadWrite(rw ReadWrite) {
	if rw == Write {
		pte.SetFlags(FlagRW)
		return
	}
	pte.ClearFlags(FlagRW)
}

// Mode returns the privilege level of the entry.
func (pte PageTableEntry) Mode() Mode {
	if pte.HasFlags(FlagUserAccessible) {
		return User
	}
	return Supervisor
}

// SetMode sets the privilege level of the entry.
func (pte *PageTableEntry) SetMode(mode Mode) {
	if mode == User {
		pte.SetFlags(FlagUserAccessible)
		return
	}
	pte.ClearFlags(FlagUserAccessible)
}

// WriteThrough returns the caching policy of the entry.
func (pte PageTableEntry) WriteThrough() WriteThroughLevel {
	if pte.HasFlags(FlagWriteThroughCaching) {
		return WriteThrough
	}
	return WriteBack
}

// SetWriteThrough sets the caching policy of the entry.
func (pte *PageTableEntry) SetWriteThrough(level WriteThroughLevel) {
	if level == WriteThrough {
		pte.SetFlags(FlagWriteThroughCaching)
		return
	}
	pte.ClearFlags(FlagWriteThroughCaching)
}

// widen grants rw and mode on top of the current permissions. Permissions
// are never revoked.
func (pte *PageTableEntry) widen(rw ReadWrite, mode Mode) {
	if rw == Write {
		pte.SetFlags(FlagRW)
	}
	if mode == User {
		pte.SetFlags(FlagUserAccessible)
	}
}
