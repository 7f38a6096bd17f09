// Package kernel contains the error type shared by every kernel subsystem.
package kernel

// Error describes a kernel error. Kernel errors are declared as package-level
// pointers to Error and compared by identity; code running in interrupt
// context cannot rely on the Go allocator so errors.New is not an option.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error message
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Qualified returns the error message prefixed by the module that raised it.
func (e *Error) Qualified() string {
	return "[" + e.Module + "] " + e.Message
}
