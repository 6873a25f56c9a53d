// Package vhoststats describes the vhost statistics blocks that the
// kernel publishes per worker, device and virtqueue, and the fixed
// binary layout shared with the kernel producer.
package vhoststats

import (
	"fmt"
	"strings"
)

// Kind identifies a counter family.
type Kind uint8

const (
	KindUnspecified Kind = iota
	KindWorker
	KindDevice
	KindVirtqueue
)

// Kinds lists every concrete kind in a stable order.
var Kinds = []Kind{KindWorker, KindDevice, KindVirtqueue}

// String returns the user-facing name of the kind.
func (k Kind) String() string {
	switch k {
	case KindWorker:
		return "worker"
	case KindDevice:
		return "device"
	case KindVirtqueue:
		return "virtqueue"
	default:
		return "unspecified"
	}
}

// Dir returns the directory segment under which the kernel publishes
// stats pointers for this kind ("worker", "dev" or "vq").
func (k Kind) Dir() string {
	switch k {
	case KindWorker:
		return "worker"
	case KindDevice:
		return "dev"
	case KindVirtqueue:
		return "vq"
	default:
		return ""
	}
}

// Family returns the field table for the kind, or nil for
// KindUnspecified.
func (k Kind) Family() *Family {
	switch k {
	case KindWorker:
		return WorkerFamily
	case KindDevice:
		return DeviceFamily
	case KindVirtqueue:
		return VirtqueueFamily
	default:
		return nil
	}
}

// MarshalText implements encoding.TextMarshaler so Kind serialises
// as its name in JSON.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind accepts either the kind name or its directory segment,
// case-insensitively: "worker", "device"/"dev", "virtqueue"/"vq".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "worker":
		return KindWorker, nil
	case "device", "dev":
		return KindDevice, nil
	case "virtqueue", "vq":
		return KindVirtqueue, nil
	default:
		return KindUnspecified, fmt.Errorf("unknown kind %q (want worker, device or virtqueue)", s)
	}
}
