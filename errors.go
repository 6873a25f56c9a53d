package vhoststats

import "fmt"

// ErrNotFound is returned when the control file publishing a stats
// pointer does not exist.
type ErrNotFound struct {
	Path string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("stats pointer %s does not exist", e.Path)
}

// ErrParse is returned when a control file exists but its content is
// not exactly one hexadecimal value followed by a line terminator, or
// cannot be read.
type ErrParse struct {
	Path    string
	Content string
	Err     error
}

func (e ErrParse) Error() string {
	if e.Content == "" {
		return fmt.Sprintf("parse stats pointer %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("parse stats pointer %s (content %q): %v", e.Path, e.Content, e.Err)
}

func (e ErrParse) Unwrap() error { return e.Err }

// ErrInvalidAddress is returned when an address is below the
// configured kernel-space floor. No mapping or buffer is created.
type ErrInvalidAddress struct {
	Address KernelAddress
	Floor   KernelAddress
}

func (e ErrInvalidAddress) Error() string {
	return fmt.Sprintf("illegal kernel address %s (below floor %s)", e.Address, e.Floor)
}

// ErrMapFailed is returned when the kernel-memory device cannot be
// opened or mapped. Err is the OS error.
type ErrMapFailed struct {
	Op     string // "open" or "mmap"
	Device string
	Err    error
}

func (e ErrMapFailed) Error() string {
	return fmt.Sprintf("user-kernel map failed: %s %s: %v", e.Op, e.Device, e.Err)
}

func (e ErrMapFailed) Unwrap() error { return e.Err }

// ErrCopyFailed is returned when the privileged copy fails. Err is the
// OS error. The destination buffer content is indeterminate.
type ErrCopyFailed struct {
	Address KernelAddress
	Length  int
	Err     error
}

func (e ErrCopyFailed) Error() string {
	return fmt.Sprintf("copy %d bytes from kernel %s failed: %v", e.Length, e.Address, e.Err)
}

func (e ErrCopyFailed) Unwrap() error { return e.Err }
