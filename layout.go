package vhoststats

import (
	"encoding/binary"
	"fmt"
)

// FieldWidth is the width in bytes of every counter field.
const FieldWidth = 8

// Field is one counter in a family's binary layout.
type Field struct {
	Name   string
	Offset int
	Width  int
	Help   string
}

// Family is the immutable, ordered field table of a counter family.
// The order is the binary contract with the kernel producer and is
// also the externally exposed attribute order.
type Family struct {
	Kind   Kind
	Struct string // kernel-side struct name
	fields []Field
	index  map[string]int
}

// newFamily lays fields out back to back, 8 bytes each, in the order
// given.
func newFamily(kind Kind, structName string, fields ...Field) *Family {
	f := &Family{
		Kind:   kind,
		Struct: structName,
		fields: make([]Field, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for i, fld := range fields {
		if _, dup := f.index[fld.Name]; dup {
			panic(fmt.Sprintf("%s: duplicate field %q", structName, fld.Name))
		}
		fld.Offset = i * FieldWidth
		fld.Width = FieldWidth
		f.fields[i] = fld
		f.index[fld.Name] = i
	}
	return f
}

func field(name, help string) Field {
	return Field{Name: name, Help: help}
}

// Fields returns a copy of the field table.
func (f *Family) Fields() []Field {
	out := make([]Field, len(f.fields))
	copy(out, f.fields)
	return out
}

// Names returns the field names in layout order.
func (f *Family) Names() []string {
	names := make([]string, len(f.fields))
	for i, fld := range f.fields {
		names[i] = fld.Name
	}
	return names
}

// Len returns the number of fields.
func (f *Family) Len() int { return len(f.fields) }

// Size returns the total byte length of the block.
func (f *Family) Size() int { return len(f.fields) * FieldWidth }

// Lookup returns the field with the given name.
func (f *Family) Lookup(name string) (Field, bool) {
	i, ok := f.index[name]
	if !ok {
		return Field{}, false
	}
	return f.fields[i], true
}

// Value decodes one field from a block laid out per this family.
func (f *Family) Value(block []byte, name string) (uint64, error) {
	fld, ok := f.Lookup(name)
	if !ok {
		return 0, fmt.Errorf("%s has no field %q", f.Kind, name)
	}
	if len(block) < f.Size() {
		return 0, fmt.Errorf("%s block is %d bytes, need %d", f.Kind, len(block), f.Size())
	}
	return binary.NativeEndian.Uint64(block[fld.Offset:]), nil
}

// Decode returns every field of block in layout order.
func (f *Family) Decode(block []byte) ([]uint64, error) {
	if len(block) < f.Size() {
		return nil, fmt.Errorf("%s block is %d bytes, need %d", f.Kind, len(block), f.Size())
	}
	values := make([]uint64, len(f.fields))
	for i, fld := range f.fields {
		values[i] = binary.NativeEndian.Uint64(block[fld.Offset:])
	}
	return values, nil
}

// WorkerFamily is the layout of struct vhost_worker_stats.
var WorkerFamily = newFamily(KindWorker, "vhost_worker_stats",
	field("loops", "number of loops performed"),
	field("enabled_interrupts", "number of times interrupts were re-enabled"),
	field("cycles", "cycles spent in the worker, excluding cycles doing queue work"),
	field("mm_switches", "number of times the mm was switched"),
	field("wait", "number of cycles the worker thread was not running after schedule"),
	field("empty_works", "number of times there were no works in the queue, ignoring poll kicks"),
	field("empty_polls", "number of times there were no queues to poll and the polling queue was not empty"),
	field("stuck_works", "number of times queues were detected stuck and limited"),
	field("noqueue_works", "number of works which have no queue related to them (e.g. vhost-net rx)"),
	field("pending_works", "number of pending works"),
	field("last_loop_tsc_end", "tsc when the last loop was performed"),
	field("poll_cycles", "cycles spent handling kicks in poll mode"),
	field("notif_cycles", "cycles spent handling works in notif mode"),
	field("total_work_cycles", "total cycles spent handling works"),
	field("ksoftirq_occurrences", "number of times a softirq occurred during worker work"),
	field("ksoftirq_time", "time (ns) softirq processing took while the worker processed its work"),
	field("ksoftirqs", "number of softirq interrupts handled while the worker processed its work"),
	field("ixgbe_poll_cycles", "cycles spent polling on the ixgbe interfaces"),
	field("ixgbe_poll_last_loop_tsc_end", "tsc when the last ixgbe poll was performed"),
	field("ixgbe_poll_last_non_empty_loop_tsc_end", "tsc when the last non-empty ixgbe poll was performed"),
	field("ixgbe_poll_wait", "cycles elapsed between polls"),
	field("ixgbe_poll_empty", "number of times the queue was empty during ixgbe poll"),
	field("ixgbe_poll_empty_cycles", "cycles elapsed while the ixgbe poll queues were empty"),
	field("ixgbe_poll_total_packets", "number of packets polled from the ixgbe interface"),
	field("ixgbe_poll_loops", "number of ixgbe poll loops"),
)

// DeviceFamily is the layout of struct vhost_device_stats.
var DeviceFamily = newFamily(KindDevice, "vhost_device_stats",
	field("delay_per_work", "loops per work to delay the calculation"),
	field("delay_per_kbyte", "loops per kbyte to delay the calculation"),
	field("device_move_total", ""),
	field("device_move_count", ""),
	field("device_detach", ""),
	field("device_attach", ""),
)

// VirtqueueFamily is the layout of struct vhost_virtqueue_stats.
var VirtqueueFamily = newFamily(KindVirtqueue, "vhost_virtqueue_stats",
	field("poll_kicks", "number of kicks in poll mode"),
	field("poll_cycles", "cycles spent handling kicks in poll mode"),
	field("poll_bytes", "bytes sent/received by kicks in poll mode"),
	field("poll_wait", "cycles elapsed between poll kicks"),
	field("poll_empty", "number of times the queue was empty during poll"),
	field("poll_empty_cycles", "cycles elapsed while the queue was empty"),
	field("poll_coalesced", "number of times this queue was coalesced"),
	field("poll_limited", "number of times the queue was limited by net weight during poll kicks"),
	field("poll_pending_cycles", "cycles elapsed between item arrival and poll"),
	field("notif_works", "number of works in notif mode"),
	field("notif_cycles", "cycles spent handling works in notif mode"),
	field("notif_bytes", "bytes sent/received by works in notif mode"),
	field("notif_wait", "cycles elapsed between work arrival and handling in notif mode"),
	field("notif_limited", "number of times the queue was limited by net weight in notif mode"),
	field("ring_full", "number of times the ring was full"),
	field("stuck_times", "how many times this queue was stuck and limited other queues"),
	field("stuck_cycles", "total cycles the queue was stuck"),
	field("last_poll_tsc_end", "tsc when the last poll finished"),
	field("last_notif_tsc_end", "tsc when the last notif finished"),
	field("last_poll_empty_tsc", "tsc when the queue was first detected empty"),
	field("handled_bytes", "bytes handled by this queue in the last poll/notif"),
	field("was_limited", "whether the queue was limited by net weight during the last poll/notif"),
)
