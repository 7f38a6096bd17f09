package sim

import "sync"

// Local APIC register offsets.
const (
	LocalAPICIDRegister  = 0x20
	LocalAPICEOIRegister = 0xb0

	// LocalAPICWindowSize is the size of the local APIC register page.
	LocalAPICWindowSize = 0x1000
)

// LocalAPIC models the local APIC registers used by the kernel.
type LocalAPIC struct {
	mu   sync.Mutex
	id   uint8
	eois int
}

// NewLocalAPIC returns a local APIC reporting the given ID.
func NewLocalAPIC(id uint8) *LocalAPIC {
	return &LocalAPIC{id: id}
}

// Name implements Device.
func (*LocalAPIC) Name() string { return "lapic" }

// ReadUint32 implements Device.
func (a *LocalAPIC) ReadUint32(offset uintptr) uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if offset == LocalAPICIDRegister {
		return uint32(a.id) << 24
	}

	return 0
}

// WriteUint32 implements Device.
func (a *LocalAPIC) WriteUint32(offset uintptr, v uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if offset == LocalAPICEOIRegister && v == 0 {
		a.eois++
	}
}

// EOIs returns the number of end-of-interrupt writes received.
func (a *LocalAPIC) EOIs() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.eois
}

var _ Device = (*LocalAPIC)(nil)
