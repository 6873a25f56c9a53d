// Package sysfs resolves the kernel addresses of vhost statistics
// blocks from the control files the kernel publishes under
// /sys/class/vhost.
//
// Layout:
//
//	{base}/worker/{id}/stats_ptr
//	{base}/dev/{id}/stats_ptr
//	{base}/vq/{id}/stats_ptr
//
// Each stats_ptr holds exactly one hexadecimal 64-bit value, without a
// prefix, followed by a newline.
package sysfs

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/frobware/go-vhoststats"
)

// DefaultBase is where the kernel publishes vhost stats pointers.
const DefaultBase = "/sys/class/vhost"

// StatsPtrFile is the name of the control file in each id directory.
const StatsPtrFile = "stats_ptr"

// maxControlFileSize bounds how much of a control file is read. A
// 64-bit hex value plus CRLF is 18 bytes.
const maxControlFileSize = 64

// Status is the outcome of a resolution.
type Status uint8

const (
	StatusResolved Status = iota
	StatusNotFound
	StatusParseError
)

func (s Status) String() string {
	switch s {
	case StatusResolved:
		return "resolved"
	case StatusNotFound:
		return "not-found"
	case StatusParseError:
		return "parse-error"
	default:
		return fmt.Sprintf("Status(%d)", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Resolution is the tagged result of Resolve. Address is meaningful
// only when Status is StatusResolved; Err is set otherwise and is an
// ErrNotFound or ErrParse.
type Resolution struct {
	Kind    vhoststats.Kind
	ID      string
	Path    string
	Status  Status
	Address vhoststats.KernelAddress
	Err     error
}

// Enabled collapses the result the tolerant way: true only for a
// resolved, non-zero address.
func (r Resolution) Enabled() bool {
	return r.Status == StatusResolved && !r.Address.IsZero()
}

// AddressOrZero returns the resolved address, or 0 for any failure.
func (r Resolution) AddressOrZero() vhoststats.KernelAddress {
	if r.Status != StatusResolved {
		return 0
	}
	return r.Address
}

// Resolver turns a (kind, id) pair into a kernel address.
type Resolver struct {
	base   string
	logger *slog.Logger
}

// NewResolver creates a Resolver rooted at base. An empty base means
// DefaultBase; a nil logger means slog.Default().
func NewResolver(base string, logger *slog.Logger) *Resolver {
	if base == "" {
		base = DefaultBase
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		base:   base,
		logger: logger.With("component", "resolver"),
	}
}

// Base returns the directory the resolver reads from.
func (r *Resolver) Base() string { return r.base }

// Path returns the control file path for (kind, id).
func (r *Resolver) Path(kind vhoststats.Kind, id string) string {
	return filepath.Join(r.base, kind.Dir(), id, StatsPtrFile)
}

// Resolve reads the stats pointer for (kind, id). It never panics and
// never returns a partially filled Resolution: either Status is
// StatusResolved with Address set, or Err explains why not.
func (r *Resolver) Resolve(kind vhoststats.Kind, id string) Resolution {
	res := Resolution{Kind: kind, ID: id, Path: r.Path(kind, id)}

	if kind.Dir() == "" || !validID(id) {
		res.Status = StatusNotFound
		res.Err = vhoststats.ErrNotFound{Path: res.Path}
		r.logger.Debug("rejecting lookup", "kind", kind, "id", id)
		return res
	}

	f, err := os.Open(res.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			res.Status = StatusNotFound
			res.Err = vhoststats.ErrNotFound{Path: res.Path}
			r.logger.Debug("stats pointer not found", "path", res.Path)
			return res
		}
		res.Status = StatusParseError
		res.Err = vhoststats.ErrParse{Path: res.Path, Err: err}
		r.logger.Warn("cannot open stats pointer", "path", res.Path, "error", err)
		return res
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxControlFileSize+1))
	if err != nil {
		res.Status = StatusParseError
		res.Err = vhoststats.ErrParse{Path: res.Path, Err: err}
		r.logger.Warn("cannot read stats pointer", "path", res.Path, "error", err)
		return res
	}

	addr, err := ParseStatsPtr(data)
	if err != nil {
		res.Status = StatusParseError
		res.Err = vhoststats.ErrParse{Path: res.Path, Content: string(data), Err: err}
		r.logger.Warn("malformed stats pointer", "path", res.Path, "error", err)
		return res
	}

	res.Status = StatusResolved
	res.Address = addr
	r.logger.Debug("resolved stats pointer", "kind", kind, "id", id, "address", addr)
	return res
}

// ParseStatsPtr parses control file content: one hexadecimal token of
// at most 16 digits, no prefix, then "\n" or "\r\n", then nothing.
func ParseStatsPtr(data []byte) (vhoststats.KernelAddress, error) {
	if len(data) > maxControlFileSize {
		return 0, fmt.Errorf("content longer than %d bytes", maxControlFileSize)
	}
	s := string(data)

	var token string
	switch {
	case strings.HasSuffix(s, "\r\n"):
		token = strings.TrimSuffix(s, "\r\n")
	case strings.HasSuffix(s, "\n"):
		token = strings.TrimSuffix(s, "\n")
	default:
		return 0, errors.New("missing line terminator")
	}

	if token == "" {
		return 0, errors.New("empty value")
	}
	if len(token) > 16 {
		return 0, fmt.Errorf("value %q wider than 64 bits", token)
	}
	for _, c := range token {
		if !isHexDigit(c) {
			return 0, fmt.Errorf("invalid hex digit %q in %q", c, token)
		}
	}

	v, err := strconv.ParseUint(token, 16, 64)
	if err != nil {
		return 0, err
	}
	return vhoststats.KernelAddress(v), nil
}

func isHexDigit(c rune) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

// validID rejects ids that would escape the kind directory.
func validID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsRune(id, '/') && !strings.ContainsRune(id, 0)
}
