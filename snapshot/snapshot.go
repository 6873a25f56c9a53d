// Package snapshot holds the last-copied values of one counter family
// instance and refreshes them through a memory strategy.
//
// A snapshot is constructed by id. Resolution or first-fill problems
// never fail construction: the snapshot comes back disabled with every
// field zero, and Err reports why. Once constructed, the address is
// fixed; if the kernel moves the block the snapshot goes stale.
//
// A Snapshot is not safe for concurrent use. Independent snapshots,
// even over the same address, need no coordination.
package snapshot

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/frobware/go-vhoststats"
	"github.com/frobware/go-vhoststats/kmem"
	"github.com/frobware/go-vhoststats/sysfs"
)

// ErrClosed is returned by Refresh after Close.
var ErrClosed = errors.New("snapshot is closed")

// Snapshot is one family instance's counter block.
type Snapshot struct {
	family  *vhoststats.Family
	res     sysfs.Resolution
	acc     kmem.Accessor
	live    kmem.Live
	block   []byte
	scratch []byte
	err     error
	closed  bool
	logger  *slog.Logger
}

// New builds a snapshot from an existing resolution. When the
// resolution is enabled it opens one accessor through strategy and
// performs the first fill.
func New(res sysfs.Resolution, strategy kmem.Strategy, logger *slog.Logger) *Snapshot {
	if logger == nil {
		logger = slog.Default()
	}
	family := res.Kind.Family()
	s := &Snapshot{
		family: family,
		res:    res,
		logger: logger.With("component", "snapshot", "kind", res.Kind, "id", res.ID),
	}
	if family == nil {
		s.err = fmt.Errorf("unknown counter kind %d", res.Kind)
		return s
	}
	s.block = make([]byte, family.Size())

	if !res.Enabled() {
		s.err = res.Err
		s.logger.Debug("snapshot disabled", "status", res.Status, "error", res.Err)
		return s
	}

	acc, err := strategy.Open(res.Address, family.Size())
	if err != nil {
		s.err = err
		s.logger.Warn("cannot open kernel counters", "address", res.Address, "strategy", strategy.Name(), "error", err)
		return s
	}

	scratch := make([]byte, family.Size())
	if err := acc.Materialize(scratch); err != nil {
		_ = acc.Close()
		s.err = err
		s.logger.Warn("initial fill failed", "address", res.Address, "strategy", strategy.Name(), "error", err)
		return s
	}

	s.acc = acc
	s.live, _ = acc.(kmem.Live)
	s.block, s.scratch = scratch, s.block
	s.logger.Debug("snapshot enabled", "address", res.Address, "strategy", strategy.Name(), "bytes", family.Size())
	return s
}

// Kind returns the counter family kind.
func (s *Snapshot) Kind() vhoststats.Kind { return s.res.Kind }

// ID returns the instance id.
func (s *Snapshot) ID() string { return s.res.ID }

// Family returns the field table.
func (s *Snapshot) Family() *vhoststats.Family { return s.family }

// Resolution returns the resolution captured at construction.
func (s *Snapshot) Resolution() sysfs.Resolution { return s.res }

// Address returns the captured kernel address, or 0 when the snapshot
// never resolved.
func (s *Snapshot) Address() vhoststats.KernelAddress { return s.res.AddressOrZero() }

// Enabled reports whether the snapshot is backed by kernel memory.
func (s *Snapshot) Enabled() bool { return s.acc != nil }

// Live reports whether field reads observe current kernel values
// without a Refresh.
func (s *Snapshot) Live() bool { return s.live != nil && !s.closed }

// Err returns the reason a snapshot is disabled, or nil.
func (s *Snapshot) Err() error { return s.err }

// Refresh re-materializes the whole block from the captured address.
// It is a no-op for a disabled snapshot. On failure the previous
// values are kept and the error is returned.
func (s *Snapshot) Refresh() error {
	if s.acc == nil {
		if s.closed {
			return ErrClosed
		}
		return nil
	}
	if err := s.acc.Materialize(s.scratch); err != nil {
		s.logger.Debug("refresh failed", "address", s.res.Address, "error", err)
		return fmt.Errorf("refresh %s %s: %w", s.res.Kind, s.res.ID, err)
	}
	s.block, s.scratch = s.scratch, s.block
	return nil
}

// Get returns the named field. For a live snapshot the value is read
// from kernel memory at call time; otherwise it is the value from the
// last successful fill. A disabled snapshot returns 0.
func (s *Snapshot) Get(name string) (uint64, error) {
	if s.family == nil {
		return 0, s.err
	}
	fld, ok := s.family.Lookup(name)
	if !ok {
		return 0, fmt.Errorf("%s has no field %q", s.family.Kind, name)
	}
	if s.live != nil {
		return s.live.Uint64At(fld.Offset)
	}
	return s.family.Value(s.block, name)
}

// Values returns every field in layout order. A live snapshot copies
// the current kernel block first, leaving the stored block untouched.
func (s *Snapshot) Values() ([]uint64, error) {
	if s.family == nil {
		return nil, s.err
	}
	if s.live != nil {
		buf := make([]byte, s.family.Size())
		if err := s.live.Materialize(buf); err != nil {
			return nil, err
		}
		return s.family.Decode(buf)
	}
	return s.family.Decode(s.block)
}

// Block returns a copy of the block stored by construction or the last
// successful Refresh. For a live snapshot this can lag the values Get,
// Values and Decode read from kernel memory.
func (s *Snapshot) Block() []byte {
	out := make([]byte, len(s.block))
	copy(out, s.block)
	return out
}

// Close releases the accessor. It is safe to call more than once.
func (s *Snapshot) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.acc == nil {
		return nil
	}
	acc := s.acc
	s.acc, s.live = nil, nil
	if err := acc.Close(); err != nil {
		s.logger.Warn("release failed", "error", err)
		return err
	}
	return nil
}

// Decode returns the snapshot's values as the typed struct for its
// family. T must match the snapshot's kind.
func Decode[T vhoststats.Stats](s *Snapshot) (T, error) {
	var out T
	kind := kindOf(out)
	if kind != s.Kind() {
		return out, fmt.Errorf("cannot decode %s snapshot as %T", s.Kind(), out)
	}
	block := s.block
	if s.live != nil {
		block = make([]byte, s.family.Size())
		if err := s.live.Materialize(block); err != nil {
			return out, err
		}
	}
	if err := vhoststats.DecodeStats(block, &out); err != nil {
		return out, err
	}
	return out, nil
}

func kindOf(v any) vhoststats.Kind {
	switch v.(type) {
	case vhoststats.WorkerStats:
		return vhoststats.KindWorker
	case vhoststats.DeviceStats:
		return vhoststats.KindDevice
	case vhoststats.VirtqueueStats:
		return vhoststats.KindVirtqueue
	}
	return vhoststats.KindUnspecified
}
