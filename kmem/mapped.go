package kmem

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sys/unix"

	"github.com/frobware/go-vhoststats"
)

// DefaultDevice is the kernel-memory character device.
const DefaultDevice = "/dev/kmem"

// Mapped maps the kernel-memory device read-only and shared, with the
// device byte offset equal to the kernel virtual address.
type Mapped struct {
	Device   string                   // DefaultDevice if empty
	Floor    vhoststats.KernelAddress // lowest acceptable address
	PageSize int                      // unix.Getpagesize() if zero
	Logger   *slog.Logger
}

// Name implements Strategy.
func (m Mapped) Name() string { return StrategyMapped }

// Open implements Strategy. The device descriptor is closed as soon
// as the mapping exists; the mapping keeps the device referenced.
func (m Mapped) Open(addr vhoststats.KernelAddress, length int) (Accessor, error) {
	if err := addr.Check(m.Floor); err != nil {
		return nil, err
	}
	if err := checkLength(length); err != nil {
		return nil, err
	}

	pageSize := m.PageSize
	if pageSize == 0 {
		pageSize = unix.Getpagesize()
	}
	span, err := SpanFor(addr, length, pageSize)
	if err != nil {
		return nil, err
	}

	device := m.Device
	if device == "" {
		device = DefaultDevice
	}
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "kmem", "strategy", StrategyMapped)

	fd, err := unix.Open(device, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, vhoststats.ErrMapFailed{Op: "open", Device: device, Err: err}
	}
	defer unix.Close(fd)

	// Kernel addresses above 1<<63 become negative offsets; the
	// kernel reads off_t as an unsigned page offset for /dev/kmem.
	data, err := unix.Mmap(fd, int64(span.Base), span.Length, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, vhoststats.ErrMapFailed{Op: "mmap", Device: device, Err: err}
	}

	logger.Debug("mapped kernel range",
		"address", addr,
		"length", length,
		"map_offset", span.Base,
		"map_length", span.Length,
		"pages", span.Pages(pageSize))

	return &Region{
		mapping: data,
		span:    span,
		addr:    addr,
		length:  length,
		device:  device,
		logger:  logger,
	}, nil
}

// Region is a live read-only view of kernel memory. It owns the
// page-aligned mapping; the requested range starts span.Offset bytes
// into it.
type Region struct {
	mapping []byte // page-aligned base, span.Length bytes
	span    PageSpan
	addr    vhoststats.KernelAddress
	length  int
	device  string
	logger  *slog.Logger
}

var errRegionClosed = errors.New("kernel region is closed")

// Address implements Accessor.
func (r *Region) Address() vhoststats.KernelAddress { return r.addr }

// Len implements Accessor.
func (r *Region) Len() int { return r.length }

// Span returns the page-aligned mapping that backs the region.
func (r *Region) Span() PageSpan { return r.span }

// Materialize implements Accessor with a single copy out of the
// mapping.
func (r *Region) Materialize(dst []byte) error {
	if r.mapping == nil {
		return errRegionClosed
	}
	if len(dst) != r.length {
		return fmt.Errorf("destination is %d bytes, region is %d", len(dst), r.length)
	}
	copy(dst, r.mapping[r.span.Offset:r.span.Offset+r.length])
	return nil
}

// Uint64At implements Live.
func (r *Region) Uint64At(off int) (uint64, error) {
	if r.mapping == nil {
		return 0, errRegionClosed
	}
	if off < 0 || off+8 > r.length {
		return 0, fmt.Errorf("offset %d outside %d-byte region", off, r.length)
	}
	return binary.NativeEndian.Uint64(r.mapping[r.span.Offset+off:]), nil
}

// Close unmaps the page-aligned base for the full mapping length.
func (r *Region) Close() error {
	if r.mapping == nil {
		return nil
	}
	mapping := r.mapping
	r.mapping = nil
	if err := unix.Munmap(mapping); err != nil {
		return fmt.Errorf("munmap %s at %s: %w", r.device, r.span.Base, err)
	}
	r.logger.Debug("unmapped kernel range", "map_offset", r.span.Base, "map_length", r.span.Length)
	return nil
}
