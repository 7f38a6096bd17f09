package pmm

import "kestrel/kernel/mm"

// FrameInfo describes a run of physical frames handed out by the allocator.
type FrameInfo struct {
	// Address is the physical address of the first frame.
	Address uintptr

	// Size is the length of the run in bytes.
	Size uintptr

	// Index is the index of the first frame.
	Index uintptr

	// Allocated reports the allocation state of the first frame when the
	// value was produced by BitmapAllocator.FrameInfo.
	Allocated bool
}

// FrameCount returns the number of frames covered by the run.
func (fi FrameInfo) FrameCount() uintptr {
	return mm.PageCount(fi.Size)
}

// Frame returns the first frame of the run.
func (fi FrameInfo) Frame() mm.Frame {
	return mm.Frame(fi.Index)
}

// frameRun returns the FrameInfo for count frames starting at index.
func frameRun(index, count uintptr) FrameInfo {
	return FrameInfo{
		Address:   index << mm.PageShift,
		Size:      count << mm.PageShift,
		Index:     index,
		Allocated: true,
	}
}
