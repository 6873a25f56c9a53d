package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/frobware/go-vhoststats"
	"github.com/frobware/go-vhoststats/monitor"
	"github.com/frobware/go-vhoststats/snapshot"
	"github.com/frobware/go-vhoststats/store"
	"github.com/frobware/go-vhoststats/sysfs"
)

// snapshotView is the JSON shape of one snapshot.
type snapshotView struct {
	Kind    vhoststats.Kind          `json:"kind"`
	ID      string                   `json:"id"`
	Address vhoststats.KernelAddress `json:"address"`
	Enabled bool                     `json:"enabled"`
	Error   string                   `json:"error,omitempty"`
	Stats   any                      `json:"stats"`
}

// FormatSnapshot formats every counter of s.
func FormatSnapshot(s *snapshot.Snapshot, flags *OutputFlags) (string, error) {
	switch flags.Format() {
	case OutputFormatJSON:
		return formatSnapshotJSON(s)
	default:
		return formatSnapshotTable(s)
	}
}

func formatSnapshotJSON(s *snapshot.Snapshot) (string, error) {
	stats, err := typedStats(s)
	if err != nil {
		return "", err
	}
	view := snapshotView{
		Kind:    s.Kind(),
		ID:      s.ID(),
		Address: s.Address(),
		Enabled: s.Enabled(),
		Stats:   stats,
	}
	if err := s.Err(); err != nil {
		view.Error = err.Error()
	}
	return marshalJSON(view)
}

// typedStats decodes s into its family's struct so JSON keeps layout
// order.
func typedStats(s *snapshot.Snapshot) (any, error) {
	switch s.Kind() {
	case vhoststats.KindWorker:
		return snapshot.Decode[vhoststats.WorkerStats](s)
	case vhoststats.KindDevice:
		return snapshot.Decode[vhoststats.DeviceStats](s)
	case vhoststats.KindVirtqueue:
		return snapshot.Decode[vhoststats.VirtqueueStats](s)
	}
	return nil, fmt.Errorf("unknown counter kind %d", s.Kind())
}

func formatSnapshotTable(s *snapshot.Snapshot) (string, error) {
	values, err := s.Values()
	if err != nil && s.Enabled() {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s at %s\n", s.Kind(), s.ID(), s.Address())
	if err := s.Err(); err != nil {
		fmt.Fprintf(&b, "disabled: %v\n", err)
	}
	fmt.Fprintf(&b, "%-40s %-6s %s\n", "FIELD", "OFFSET", "VALUE")
	for i, f := range s.Family().Fields() {
		var v uint64
		if i < len(values) {
			v = values[i]
		}
		fmt.Fprintf(&b, "%-40s %-6d %d\n", f.Name, f.Offset, v)
	}
	return b.String(), nil
}

// resolutionView is the JSON shape of one list entry.
type resolutionView struct {
	Kind    vhoststats.Kind          `json:"kind"`
	ID      string                   `json:"id"`
	Status  sysfs.Status             `json:"status"`
	Address vhoststats.KernelAddress `json:"address"`
	Error   string                   `json:"error,omitempty"`
}

// FormatResolutions formats list output.
func FormatResolutions(results []sysfs.Resolution, flags *OutputFlags) (string, error) {
	if flags.Format() == OutputFormatJSON {
		views := make([]resolutionView, 0, len(results))
		for _, r := range results {
			v := resolutionView{Kind: r.Kind, ID: r.ID, Status: r.Status, Address: r.AddressOrZero()}
			if r.Err != nil {
				v.Error = r.Err.Error()
			}
			views = append(views, v)
		}
		return marshalJSON(views)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%-10s %-24s %-12s %-18s %s\n", "KIND", "ID", "STATUS", "ADDRESS", "ERROR")
	for _, r := range results {
		errText := ""
		if r.Err != nil {
			errText = r.Err.Error()
		}
		fmt.Fprintf(&b, "%-10s %-24s %-12s %-18s %s\n", r.Kind, r.ID, r.Status, r.AddressOrZero(), errText)
	}
	return b.String(), nil
}

// FormatDeltas formats one watch round. Only fields that changed
// since the previous round are printed; the first round prints
// absolute values.
func FormatDeltas(samples []monitor.Sample) string {
	var b strings.Builder
	for _, smp := range samples {
		if !smp.Enabled {
			continue
		}
		fmt.Fprintf(&b, "%s %s %s %s\n", smp.Taken.Format(time.RFC3339), smp.Kind, smp.ID, smp.Address)
		if smp.Err != nil {
			fmt.Fprintf(&b, "  error: %v\n", smp.Err)
			continue
		}
		for i, name := range smp.Kind.Family().Names() {
			if smp.Deltas == nil {
				fmt.Fprintf(&b, "  %-40s %d\n", name, smp.Values[i])
				continue
			}
			if smp.Deltas[i] == 0 {
				continue
			}
			fmt.Fprintf(&b, "  %-40s %d (+%d)\n", name, smp.Values[i], smp.Deltas[i])
		}
	}
	return b.String()
}

// historyView is the JSON shape of one recorded sample.
type historyView struct {
	SessionID string                   `json:"session_id"`
	Taken     time.Time                `json:"taken"`
	Address   vhoststats.KernelAddress `json:"address"`
	Values    map[string]uint64        `json:"values,omitempty"`
	Error     string                   `json:"error,omitempty"`
}

// FormatHistory formats recorded samples for one instance. Table
// output shows only the named fields, or every field when none are
// named.
func FormatHistory(kind vhoststats.Kind, samples []store.Sample, fields []string, flags *OutputFlags) (string, error) {
	family := kind.Family()
	names := fields
	if len(names) == 0 {
		names = family.Names()
	}
	for _, name := range names {
		if _, ok := family.Lookup(name); !ok {
			return "", fmt.Errorf("%s has no field %q", kind, name)
		}
	}

	if flags.Format() == OutputFormatJSON {
		views := make([]historyView, 0, len(samples))
		for _, smp := range samples {
			v := historyView{SessionID: smp.SessionID.String(), Taken: smp.Taken, Address: smp.Address, Error: smp.Err}
			if len(smp.Values) > 0 {
				v.Values = make(map[string]uint64, len(names))
				for _, name := range names {
					fld, _ := family.Lookup(name)
					v.Values[name] = smp.Values[fld.Offset/vhoststats.FieldWidth]
				}
			}
			views = append(views, v)
		}
		return marshalJSON(views)
	}

	var b strings.Builder
	for _, smp := range samples {
		fmt.Fprintf(&b, "%s session=%s address=%s\n", smp.Taken.Format(time.RFC3339Nano), smp.SessionID, smp.Address)
		if smp.Err != "" {
			fmt.Fprintf(&b, "  error: %s\n", smp.Err)
			continue
		}
		for _, name := range names {
			fld, _ := family.Lookup(name)
			fmt.Fprintf(&b, "  %-40s %d\n", name, smp.Values[fld.Offset/vhoststats.FieldWidth])
		}
	}
	return b.String(), nil
}

// FormatLayout formats the field table of each family.
func FormatLayout(families []*vhoststats.Family) string {
	var b strings.Builder
	for i, f := range families {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "struct %s (%s, %d fields, %d bytes)\n", f.Struct, f.Kind, f.Len(), f.Size())
		fmt.Fprintf(&b, "  %-6s %-40s %s\n", "OFFSET", "FIELD", "DESCRIPTION")
		for _, fld := range f.Fields() {
			fmt.Fprintf(&b, "  %-6d %-40s %s\n", fld.Offset, fld.Name, fld.Help)
		}
	}
	return b.String()
}

func marshalJSON(v any) (string, error) {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	return string(output) + "\n", nil
}
