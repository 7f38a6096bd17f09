package gate

// gateEntryAddr returns the address of the entry stub for vec.
func gateEntryAddr(vec uint8) uintptr
