package monitor

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/frobware/go-vhoststats/store"
)

// Recorder returns a Handler that writes each enabled sample to st
// under sessionID. Disabled snapshots are skipped; failed refreshes
// are written with their error.
func Recorder(st store.Store, sessionID uuid.UUID) Handler {
	return func(ctx context.Context, samples []Sample) error {
		for _, smp := range samples {
			if !smp.Enabled {
				continue
			}
			if err := st.Record(ctx, sessionID, ToStore(smp)); err != nil {
				return fmt.Errorf("record %s %s: %w", smp.Kind, smp.ID, err)
			}
		}
		return nil
	}
}

// ToStore converts a sample to its stored form.
func ToStore(smp Sample) store.Sample {
	out := store.Sample{
		Kind:    smp.Kind,
		ID:      smp.ID,
		Taken:   smp.Taken,
		Address: smp.Address,
		Values:  smp.Values,
	}
	if smp.Err != nil {
		out.Err = smp.Err.Error()
		out.Values = nil
	}
	return out
}

// Chain runs handlers in order, stopping at the first error.
func Chain(handlers ...Handler) Handler {
	return func(ctx context.Context, samples []Sample) error {
		for _, h := range handlers {
			if err := h(ctx, samples); err != nil {
				return err
			}
		}
		return nil
	}
}
