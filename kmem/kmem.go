// Package kmem brings kernel memory into the process.
//
// Two strategies implement the same contract:
//
//   - Mapped maps the kernel-memory device read-only and shared. The
//     mapping is live: every read through it observes the kernel's
//     current values, and Materialize is simply a copy out of it.
//   - Copy issues one privileged copy system call per Materialize
//     into a caller-owned buffer. Nothing is cached; values are as of
//     the last Materialize.
//
// A strategy is chosen once per accessor. No raw pointer or mapped
// slice leaves this package; callers see bytes copied into buffers
// they own, or single decoded words.
package kmem

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/frobware/go-vhoststats"
)

// Strategy opens accessors over kernel memory.
type Strategy interface {
	// Name returns "mapped" or "copy".
	Name() string

	// Open validates addr against the kernel-space floor and prepares
	// access to length bytes starting at addr. On ErrInvalidAddress
	// nothing has been mapped or allocated.
	Open(addr vhoststats.KernelAddress, length int) (Accessor, error)
}

// Accessor materializes a fixed kernel range.
type Accessor interface {
	Address() vhoststats.KernelAddress
	Len() int

	// Materialize copies the current kernel bytes into dst, which
	// must be exactly Len() bytes. On error dst is indeterminate.
	Materialize(dst []byte) error

	// Close releases any OS resource. Calling it more than once
	// is safe.
	Close() error
}

// Live is implemented by accessors whose reads always observe current
// kernel values, with no Materialize needed.
type Live interface {
	Accessor

	// Uint64At decodes the native-endian word at byte offset off
	// within the range.
	Uint64At(off int) (uint64, error)
}

// Strategy names.
const (
	StrategyCopy   = "copy"
	StrategyMapped = "mapped"
)

// ParseStrategyName normalises a strategy name.
func ParseStrategyName(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case StrategyCopy, "":
		return StrategyCopy, nil
	case StrategyMapped, "mmap":
		return StrategyMapped, nil
	default:
		return "", fmt.Errorf("unknown memory strategy %q (want copy or mapped)", s)
	}
}

func checkLength(length int) error {
	if length <= 0 {
		return fmt.Errorf("invalid length %d", length)
	}
	return nil
}

// Options selects and configures a strategy.
type Options struct {
	Strategy    string // StrategyCopy or StrategyMapped
	Device      string
	Floor       vhoststats.KernelAddress
	CopySyscall uintptr
	Copier      Copier // overrides CopySyscall when set
	Logger      *slog.Logger
}

// New builds the strategy named by opts.Strategy.
func New(opts Options) (Strategy, error) {
	name, err := ParseStrategyName(opts.Strategy)
	if err != nil {
		return nil, err
	}
	switch name {
	case StrategyMapped:
		return Mapped{Device: opts.Device, Floor: opts.Floor, Logger: opts.Logger}, nil
	default:
		copier := opts.Copier
		if copier == nil && opts.CopySyscall != 0 {
			copier = SyscallCopier{Trap: opts.CopySyscall}
		}
		return Copy{Floor: opts.Floor, Copier: copier, Logger: opts.Logger}, nil
	}
}
