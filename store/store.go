// Package store defines persistence for recorded counter samples.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/frobware/go-vhoststats"
)

// ErrUnknownSession is returned by Record for a session that was never
// begun.
var ErrUnknownSession = errors.New("unknown recording session")

// Session groups the samples of one recording run.
type Session struct {
	ID       uuid.UUID
	Strategy string // memory strategy used for the run
	Started  time.Time
}

// Sample is one recorded read of a snapshot. Values are in the
// family's field order; they are absent when Err is set.
type Sample struct {
	SessionID uuid.UUID
	Kind      vhoststats.Kind
	ID        string
	Taken     time.Time
	Address   vhoststats.KernelAddress
	Values    []uint64
	Err       string
}

// Store records and queries samples.
type Store interface {
	// BeginSession starts a recording session.
	BeginSession(ctx context.Context, strategy string) (Session, error)

	// Record stores one sample atomically under sessionID.
	Record(ctx context.Context, sessionID uuid.UUID, sample Sample) error

	// History returns up to limit samples for (kind, id), newest
	// first. A limit of zero or less means no limit.
	History(ctx context.Context, kind vhoststats.Kind, id string, limit int) ([]Sample, error)

	// Sessions lists sessions, oldest first.
	Sessions(ctx context.Context) ([]Session, error)

	// RunInTransaction runs fn against a transaction-bound store,
	// committing when fn returns nil.
	RunInTransaction(ctx context.Context, fn func(Store) error) error

	Close() error
}
