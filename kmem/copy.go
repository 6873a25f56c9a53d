package kmem

import (
	"fmt"
	"log/slog"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/frobware/go-vhoststats"
)

// DefaultCopySyscall is the number of the out-of-tree copy_to_user
// system call added by the vhost statistics kernel patch.
const DefaultCopySyscall = 316

// Copier performs the privileged copy from kernel memory into dst.
type Copier interface {
	CopyFromKernel(dst []byte, src vhoststats.KernelAddress) error
}

// SyscallCopier issues syscall(Trap, dst, src, len(dst)).
type SyscallCopier struct {
	Trap uintptr
}

// CopyFromKernel implements Copier. The returned error is the raw
// unix.Errno on failure.
func (c SyscallCopier) CopyFromKernel(dst []byte, src vhoststats.KernelAddress) error {
	if len(dst) == 0 {
		return nil
	}
	_, _, errno := unix.Syscall(c.Trap,
		uintptr(unsafe.Pointer(&dst[0])),
		uintptr(src),
		uintptr(len(dst)))
	runtime.KeepAlive(dst)
	if errno != 0 {
		return errno
	}
	return nil
}

// Copy materializes by one privileged copy per call. It holds no OS
// resource between calls.
type Copy struct {
	Floor  vhoststats.KernelAddress
	Copier Copier // SyscallCopier{DefaultCopySyscall} if nil
	Logger *slog.Logger
}

// Name implements Strategy.
func (c Copy) Name() string { return StrategyCopy }

// Open implements Strategy.
func (c Copy) Open(addr vhoststats.KernelAddress, length int) (Accessor, error) {
	if err := addr.Check(c.Floor); err != nil {
		return nil, err
	}
	if err := checkLength(length); err != nil {
		return nil, err
	}

	copier := c.Copier
	if copier == nil {
		copier = SyscallCopier{Trap: DefaultCopySyscall}
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &copyAccessor{
		addr:   addr,
		length: length,
		copier: copier,
		logger: logger.With("component", "kmem", "strategy", StrategyCopy),
	}, nil
}

type copyAccessor struct {
	addr   vhoststats.KernelAddress
	length int
	copier Copier
	logger *slog.Logger
}

func (a *copyAccessor) Address() vhoststats.KernelAddress { return a.addr }

func (a *copyAccessor) Len() int { return a.length }

func (a *copyAccessor) Materialize(dst []byte) error {
	if len(dst) != a.length {
		return fmt.Errorf("destination is %d bytes, range is %d", len(dst), a.length)
	}
	if err := a.copier.CopyFromKernel(dst, a.addr); err != nil {
		a.logger.Debug("kernel copy failed", "address", a.addr, "length", a.length, "error", err)
		return vhoststats.ErrCopyFailed{Address: a.addr, Length: a.length, Err: err}
	}
	return nil
}

func (a *copyAccessor) Close() error { return nil }
