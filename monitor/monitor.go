// Package monitor polls a fixed set of snapshots on an interval and
// reports per-interval deltas.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/frobware/go-vhoststats"
	"github.com/frobware/go-vhoststats/snapshot"
)

// Sample is one snapshot's state after one poll round.
type Sample struct {
	Kind    vhoststats.Kind
	ID      string
	Address vhoststats.KernelAddress
	Taken   time.Time
	Enabled bool

	// Values are in family field order. Nil when Err is set.
	Values []uint64
	// Deltas are Values minus the previous good sample, wrapping on
	// counter overflow. Nil on the first good sample.
	Deltas []uint64

	// Err is the refresh error, if any. The poll carries on.
	Err error
}

// Get returns the named value and its delta. ok is false when the
// kind or field does not exist or the sample has no values.
func (s Sample) Get(name string) (value, delta uint64, ok bool) {
	family := s.Kind.Family()
	if family == nil {
		return 0, 0, false
	}
	fld, found := family.Lookup(name)
	if !found || s.Values == nil {
		return 0, 0, false
	}
	i := fld.Offset / vhoststats.FieldWidth
	value = s.Values[i]
	if s.Deltas != nil {
		delta = s.Deltas[i]
	}
	return value, delta, true
}

// Handler receives each round's samples in snapshot order. Returning
// an error stops Run; ErrStop stops it cleanly.
type Handler func(ctx context.Context, samples []Sample) error

// ErrStop may be returned by a Handler to end Run without error.
var ErrStop = errors.New("stop polling")

// Options configures a Poller.
type Options struct {
	Interval time.Duration // one second if zero
	Count    int           // rounds to run; zero or less means until cancelled
	Logger   *slog.Logger
}

// Poller refreshes snapshots it does not own; the caller closes them.
type Poller struct {
	snaps    []*snapshot.Snapshot
	prev     [][]uint64
	interval time.Duration
	count    int
	logger   *slog.Logger
	now      func() time.Time
}

// NewPoller creates a poller over snaps.
func NewPoller(snaps []*snapshot.Snapshot, opts Options) *Poller {
	interval := opts.Interval
	if interval <= 0 {
		interval = time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		snaps:    snaps,
		prev:     make([][]uint64, len(snaps)),
		interval: interval,
		count:    opts.Count,
		logger:   logger.With("component", "monitor"),
		now:      time.Now,
	}
}

// Poll runs one round: it refreshes every enabled snapshot and
// returns a sample for each.
func (p *Poller) Poll() []Sample {
	taken := p.now()
	out := make([]Sample, len(p.snaps))
	for i, s := range p.snaps {
		out[i] = p.sample(i, s, taken)
	}
	return out
}

func (p *Poller) sample(i int, s *snapshot.Snapshot, taken time.Time) Sample {
	smp := Sample{
		Kind:    s.Kind(),
		ID:      s.ID(),
		Address: s.Address(),
		Taken:   taken,
		Enabled: s.Enabled(),
	}

	if s.Enabled() {
		if err := s.Refresh(); err != nil {
			p.logger.Warn("refresh failed", "kind", s.Kind(), "id", s.ID(), "error", err)
			smp.Err = err
			return smp
		}
	}

	values, err := s.Values()
	if err != nil {
		smp.Err = fmt.Errorf("read %s %s: %w", s.Kind(), s.ID(), err)
		return smp
	}
	smp.Values = values
	if prev := p.prev[i]; prev != nil {
		smp.Deltas = make([]uint64, len(values))
		for j := range values {
			smp.Deltas[j] = values[j] - prev[j]
		}
	}
	p.prev[i] = values
	return smp
}

// Run polls immediately and then every interval until ctx is done,
// Count rounds have run, or fn returns an error. Cancellation and
// ErrStop return nil.
func (p *Poller) Run(ctx context.Context, fn Handler) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Debug("polling", "snapshots", len(p.snaps), "interval", p.interval, "count", p.count)

	for round := 1; ; round++ {
		if err := fn(ctx, p.Poll()); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
		if p.count > 0 && round >= p.count {
			return nil
		}

		select {
		case <-ctx.Done():
			p.logger.Debug("polling stopped", "rounds", round)
			return nil
		case <-ticker.C:
		}
	}
}
