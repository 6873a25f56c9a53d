package snapshot

import (
	"log/slog"

	"github.com/frobware/go-vhoststats"
	"github.com/frobware/go-vhoststats/kmem"
	"github.com/frobware/go-vhoststats/sysfs"
)

// Opener constructs snapshots by id with a fixed resolver and
// strategy.
type Opener struct {
	Resolver *sysfs.Resolver
	Strategy kmem.Strategy
	Logger   *slog.Logger
}

// Open resolves (kind, id) and builds its snapshot.
func (o Opener) Open(kind vhoststats.Kind, id string) *Snapshot {
	resolver := o.Resolver
	if resolver == nil {
		resolver = sysfs.NewResolver("", o.Logger)
	}
	strategy := o.Strategy
	if strategy == nil {
		strategy = kmem.Copy{Floor: vhoststats.DefaultKernelFloor, Logger: o.Logger}
	}
	return New(resolver.Resolve(kind, id), strategy, o.Logger)
}

// Worker opens a worker snapshot.
func (o Opener) Worker(id string) *Snapshot { return o.Open(vhoststats.KindWorker, id) }

// Device opens a device snapshot.
func (o Opener) Device(id string) *Snapshot { return o.Open(vhoststats.KindDevice, id) }

// Virtqueue opens a virtqueue snapshot.
func (o Opener) Virtqueue(id string) *Snapshot { return o.Open(vhoststats.KindVirtqueue, id) }

// OpenAll opens one snapshot per id. Disabled snapshots are included.
func (o Opener) OpenAll(kind vhoststats.Kind, ids []string) []*Snapshot {
	out := make([]*Snapshot, 0, len(ids))
	for _, id := range ids {
		out = append(out, o.Open(kind, id))
	}
	return out
}

// CloseAll closes every snapshot and returns the first error.
func CloseAll(snaps []*Snapshot) error {
	var first error
	for _, s := range snaps {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
