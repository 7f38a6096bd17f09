// Package mm contains the types shared by the physical and virtual memory
// managers.
package mm

// Frame describes a physical memory page index.
type Frame uintptr

// Address returns the physical memory address pointed to by this Frame.
func (f Frame) Address() uintptr {
	return uintptr(f << PageShift)
}

// FrameFromAddress returns a Frame that corresponds to the given physical
// address. Addresses that are not page-aligned are rounded down to the frame
// that contains them.
func FrameFromAddress(physAddr uintptr) Frame {
	return Frame((physAddr & ^(PageSize - 1)) >> PageShift)
}

// Page describes a virtual memory page index.
type Page uintptr

// Address returns the virtual memory address pointed to by this Page.
func (p Page) Address() uintptr {
	return uintptr(p << PageShift)
}

// PageFromAddress returns a Page that corresponds to the given virtual
// address. Addresses that are not page-aligned are rounded down to the page
// that contains them.
func PageFromAddress(virtAddr uintptr) Page {
	return Page((virtAddr & ^(PageSize - 1)) >> PageShift)
}

// IsPageAligned returns true if addr lies on a page boundary.
func IsPageAligned(addr uintptr) bool {
	return addr&(PageSize-1) == 0
}

// PageCount returns the number of pages needed to hold size bytes.
func PageCount(size uintptr) uintptr {
	return (size + PageSize - 1) >> PageShift
}
