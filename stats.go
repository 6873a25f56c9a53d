package vhoststats

import (
	"encoding/binary"
	"fmt"
)

// WorkerStats mirrors struct vhost_worker_stats field for field.
type WorkerStats struct {
	Loops                           uint64 `json:"loops"`
	EnabledInterrupts               uint64 `json:"enabled_interrupts"`
	Cycles                          uint64 `json:"cycles"`
	MMSwitches                      uint64 `json:"mm_switches"`
	Wait                            uint64 `json:"wait"`
	EmptyWorks                      uint64 `json:"empty_works"`
	EmptyPolls                      uint64 `json:"empty_polls"`
	StuckWorks                      uint64 `json:"stuck_works"`
	NoqueueWorks                    uint64 `json:"noqueue_works"`
	PendingWorks                    uint64 `json:"pending_works"`
	LastLoopTSCEnd                  uint64 `json:"last_loop_tsc_end"`
	PollCycles                      uint64 `json:"poll_cycles"`
	NotifCycles                     uint64 `json:"notif_cycles"`
	TotalWorkCycles                 uint64 `json:"total_work_cycles"`
	KsoftirqOccurrences             uint64 `json:"ksoftirq_occurrences"`
	KsoftirqTime                    uint64 `json:"ksoftirq_time"`
	Ksoftirqs                       uint64 `json:"ksoftirqs"`
	IxgbePollCycles                 uint64 `json:"ixgbe_poll_cycles"`
	IxgbePollLastLoopTSCEnd         uint64 `json:"ixgbe_poll_last_loop_tsc_end"`
	IxgbePollLastNonEmptyLoopTSCEnd uint64 `json:"ixgbe_poll_last_non_empty_loop_tsc_end"`
	IxgbePollWait                   uint64 `json:"ixgbe_poll_wait"`
	IxgbePollEmpty                  uint64 `json:"ixgbe_poll_empty"`
	IxgbePollEmptyCycles            uint64 `json:"ixgbe_poll_empty_cycles"`
	IxgbePollTotalPackets           uint64 `json:"ixgbe_poll_total_packets"`
	IxgbePollLoops                  uint64 `json:"ixgbe_poll_loops"`
}

// DeviceStats mirrors struct vhost_device_stats.
type DeviceStats struct {
	DelayPerWork    uint64 `json:"delay_per_work"`
	DelayPerKbyte   uint64 `json:"delay_per_kbyte"`
	DeviceMoveTotal uint64 `json:"device_move_total"`
	DeviceMoveCount uint64 `json:"device_move_count"`
	DeviceDetach    uint64 `json:"device_detach"`
	DeviceAttach    uint64 `json:"device_attach"`
}

// VirtqueueStats mirrors struct vhost_virtqueue_stats.
type VirtqueueStats struct {
	PollKicks         uint64 `json:"poll_kicks"`
	PollCycles        uint64 `json:"poll_cycles"`
	PollBytes         uint64 `json:"poll_bytes"`
	PollWait          uint64 `json:"poll_wait"`
	PollEmpty         uint64 `json:"poll_empty"`
	PollEmptyCycles   uint64 `json:"poll_empty_cycles"`
	PollCoalesced     uint64 `json:"poll_coalesced"`
	PollLimited       uint64 `json:"poll_limited"`
	PollPendingCycles uint64 `json:"poll_pending_cycles"`
	NotifWorks        uint64 `json:"notif_works"`
	NotifCycles       uint64 `json:"notif_cycles"`
	NotifBytes        uint64 `json:"notif_bytes"`
	NotifWait         uint64 `json:"notif_wait"`
	NotifLimited      uint64 `json:"notif_limited"`
	RingFull          uint64 `json:"ring_full"`
	StuckTimes        uint64 `json:"stuck_times"`
	StuckCycles       uint64 `json:"stuck_cycles"`
	LastPollTSCEnd    uint64 `json:"last_poll_tsc_end"`
	LastNotifTSCEnd   uint64 `json:"last_notif_tsc_end"`
	LastPollEmptyTSC  uint64 `json:"last_poll_empty_tsc"`
	HandledBytes      uint64 `json:"handled_bytes"`
	WasLimited        uint64 `json:"was_limited"`
}

// Stats is the set of typed blocks.
type Stats interface {
	WorkerStats | DeviceStats | VirtqueueStats
}

// DecodeStats decodes a whole block into its typed struct. The block
// must be at least as long as the struct.
func DecodeStats[T Stats](block []byte, out *T) error {
	if _, err := binary.Decode(block, binary.NativeEndian, out); err != nil {
		return fmt.Errorf("decode %T: %w", *out, err)
	}
	return nil
}
