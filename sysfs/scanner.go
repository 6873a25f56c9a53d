package sysfs

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"

	"github.com/frobware/go-vhoststats"
)

// Scanner enumerates the ids the kernel currently publishes.
type Scanner struct {
	base        string
	onMalformed func(path string, err error)
}

// NewScanner creates a Scanner rooted at base (DefaultBase if empty).
func NewScanner(base string) *Scanner {
	if base == "" {
		base = DefaultBase
	}
	return &Scanner{base: base}
}

// WithOnMalformed sets a callback for entries that look like ids but
// carry no stats_ptr file. Returns the Scanner for chaining.
func (s *Scanner) WithOnMalformed(f func(path string, err error)) *Scanner {
	s.onMalformed = f
	return s
}

func (s *Scanner) reportMalformed(path string, err error) {
	if s.onMalformed != nil {
		s.onMalformed(path, err)
	}
}

// IDs returns an iterator over the ids of kind, sorted by name as
// os.ReadDir returns them.
// Errors are yielded only for failures that prevent enumeration;
// a missing kind directory yields nothing.
func (s *Scanner) IDs(ctx context.Context, kind vhoststats.Kind) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if kind.Dir() == "" {
			yield("", fmt.Errorf("cannot scan kind %s", kind))
			return
		}

		dir := filepath.Join(s.base, kind.Dir())
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return
			}
			yield("", fmt.Errorf("read dir %s: %w", dir, err))
			return
		}

		for _, entry := range entries {
			if ctx.Err() != nil {
				yield("", ctx.Err())
				return
			}

			// sysfs class entries are usually symlinks to the device
			// directory, so stat through the link.
			entryPath := filepath.Join(dir, entry.Name())
			info, err := os.Stat(entryPath)
			if err != nil || !info.IsDir() {
				continue
			}

			ptr := filepath.Join(entryPath, StatsPtrFile)
			if _, err := os.Stat(ptr); err != nil {
				s.reportMalformed(entryPath, fmt.Errorf("no %s: %w", StatsPtrFile, err))
				continue
			}

			if !yield(entry.Name(), nil) {
				return
			}
		}
	}
}

// Collect drains IDs into a slice.
func (s *Scanner) Collect(ctx context.Context, kind vhoststats.Kind) ([]string, error) {
	var ids []string
	for id, err := range s.IDs(ctx, kind) {
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
