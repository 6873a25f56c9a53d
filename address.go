package vhoststats

import (
	"fmt"
	"strconv"
	"strings"
)

// KernelAddress is a virtual address in the running kernel's address
// space. Zero means "resolved but absent".
type KernelAddress uint64

// DefaultKernelFloor is the historical lowest kernel-space address
// accepted by the strategies. It comes from 32-bit kernels with a 3G/1G
// split; whether it means anything on a 64-bit kernel depends on the
// kernel, so it is always configurable.
const DefaultKernelFloor KernelAddress = 0xc0000000

// String formats the address as 0x-prefixed, zero-padded hex.
func (a KernelAddress) String() string {
	return fmt.Sprintf("0x%016x", uint64(a))
}

// IsZero reports whether the address is the absent sentinel.
func (a KernelAddress) IsZero() bool {
	return a == 0
}

// Check returns ErrInvalidAddress when a is below floor.
func (a KernelAddress) Check(floor KernelAddress) error {
	if a < floor {
		return ErrInvalidAddress{Address: a, Floor: floor}
	}
	return nil
}

// Add returns a+off.
func (a KernelAddress) Add(off uint64) KernelAddress {
	return a + KernelAddress(off)
}

// MarshalText implements encoding.TextMarshaler.
func (a KernelAddress) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// ParseKernelAddress parses a hexadecimal address, with or without a
// 0x prefix. It is meant for operator input (flags, config); the
// kernel-published control files are parsed strictly by the sysfs
// package.
func ParseKernelAddress(s string) (KernelAddress, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("kernel address cannot be empty")
	}
	digits := s
	if strings.HasPrefix(digits, "0x") || strings.HasPrefix(digits, "0X") {
		digits = digits[2:]
	}
	v, err := strconv.ParseUint(digits, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid kernel address %q: %w", s, err)
	}
	return KernelAddress(v), nil
}
