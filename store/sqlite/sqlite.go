// Package sqlite provides a SQLite implementation of the sample store.
//
// Methods run on prepared statements bound either to the *sql.DB
// (autocommit) or to a *sql.Tx inside RunInTransaction. Record always
// runs in a transaction so a sample and its values land together or
// not at all.
//
// The database is opened in WAL mode. All SQL is prepared once at open
// time; transaction-bound handles are derived from those masters with
// tx.StmtContext.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/frobware/go-vhoststats"
	"github.com/frobware/go-vhoststats/store"
)

//go:embed schema.sql
var schemaSQL string

const timeLayout = time.RFC3339Nano

type sqliteStore struct {
	db     *sql.DB
	tx     *sql.Tx // set on transaction-bound stores
	logger *slog.Logger

	stmtInsertSession *sql.Stmt
	stmtGetSession    *sql.Stmt
	stmtListSessions  *sql.Stmt
	stmtInsertSample  *sql.Stmt
	stmtInsertValue   *sql.Stmt
	stmtHistory       *sql.Stmt
	stmtSampleValues  *sql.Stmt
}

var _ store.Store = (*sqliteStore)(nil)

// New opens (creating if needed) the store at dbPath.
func New(ctx context.Context, dbPath string, logger *slog.Logger) (store.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store", "db", dbPath)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open(driverName, dsn(dbPath, [][2]string{{"journal_mode", "WAL"}, {"foreign_keys", "1"}, {"busy_timeout", "5000"}}))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s, err := open(ctx, db, logger)
	if err != nil {
		return nil, err
	}
	logger.Debug("opened database")
	return s, nil
}

// NewInMemory creates an in-memory store for tests. Every connection
// to ":memory:" is a separate database, so the pool is pinned to one.
func NewInMemory(ctx context.Context, logger *slog.Logger) (store.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store", "db", ":memory:")

	db, err := sql.Open(driverName, dsn(":memory:", [][2]string{{"foreign_keys", "1"}}))
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	db.SetMaxOpenConns(1)

	return open(ctx, db, logger)
}

func open(ctx context.Context, db *sql.DB, logger *slog.Logger) (*sqliteStore, error) {
	s := &sqliteStore{db: db, logger: logger}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := s.prepareStatements(ctx); err != nil {
		s.closeStatements()
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}
	return s, nil
}

func (s *sqliteStore) statements() []**sql.Stmt {
	return []**sql.Stmt{
		&s.stmtInsertSession,
		&s.stmtGetSession,
		&s.stmtListSessions,
		&s.stmtInsertSample,
		&s.stmtInsertValue,
		&s.stmtHistory,
		&s.stmtSampleValues,
	}
}

// Close closes all prepared statements and the database.
func (s *sqliteStore) Close() error {
	if s.tx != nil {
		return errors.New("cannot close a transaction-bound store")
	}
	s.closeStatements()
	return s.db.Close()
}

func (s *sqliteStore) closeStatements() {
	for _, stmt := range s.statements() {
		if *stmt != nil {
			(*stmt).Close()
		}
	}
}

// RunInTransaction implements store.Store. The callback's store shares
// the master statements through tx-bound handles.
func (s *sqliteStore) RunInTransaction(ctx context.Context, fn func(store.Store) error) error {
	if s.tx != nil {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	txStore := &sqliteStore{db: s.db, tx: tx, logger: s.logger}
	master := s.statements()
	for i, stmt := range txStore.statements() {
		*stmt = tx.StmtContext(ctx, *master[i])
	}

	if err := fn(txStore); err != nil {
		return err
	}
	return tx.Commit()
}

// BeginSession implements store.Store.
func (s *sqliteStore) BeginSession(ctx context.Context, strategy string) (store.Session, error) {
	sess := store.Session{
		ID:       uuid.New(),
		Strategy: strategy,
		Started:  time.Now().UTC(),
	}
	if _, err := s.stmtInsertSession.ExecContext(ctx, sess.ID.String(), sess.Strategy, sess.Started.Format(timeLayout)); err != nil {
		return store.Session{}, fmt.Errorf("insert session: %w", err)
	}
	s.logger.Debug("began session", "session", sess.ID, "strategy", strategy)
	return sess, nil
}

// Sessions implements store.Store.
func (s *sqliteStore) Sessions(ctx context.Context) ([]store.Session, error) {
	rows, err := s.stmtListSessions.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []store.Session
	for rows.Next() {
		var id, strategy, started string
		if err := rows.Scan(&id, &strategy, &started); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess, err := decodeSession(id, strategy, started)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func decodeSession(id, strategy, started string) (store.Session, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return store.Session{}, fmt.Errorf("session id %q: %w", id, err)
	}
	t, err := time.Parse(timeLayout, started)
	if err != nil {
		return store.Session{}, fmt.Errorf("session %s start time: %w", id, err)
	}
	return store.Session{ID: uid, Strategy: strategy, Started: t}, nil
}

// Record implements store.Store.
func (s *sqliteStore) Record(ctx context.Context, sessionID uuid.UUID, sample store.Sample) error {
	family := sample.Kind.Family()
	if family == nil {
		return fmt.Errorf("sample has no kind")
	}
	if sample.Err == "" && len(sample.Values) != family.Len() {
		return fmt.Errorf("%s sample has %d values, want %d", sample.Kind, len(sample.Values), family.Len())
	}

	start := time.Now()
	err := s.RunInTransaction(ctx, func(txs store.Store) error {
		tx := txs.(*sqliteStore)

		var found string
		if err := tx.stmtGetSession.QueryRowContext(ctx, sessionID.String()).Scan(&found); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: %s", store.ErrUnknownSession, sessionID)
			}
			return fmt.Errorf("look up session: %w", err)
		}

		taken := sample.Taken
		if taken.IsZero() {
			taken = time.Now()
		}
		res, err := tx.stmtInsertSample.ExecContext(ctx,
			sessionID.String(),
			sample.Kind.String(),
			sample.ID,
			taken.UTC().Format(timeLayout),
			int64(sample.Address),
			sample.Err)
		if err != nil {
			return fmt.Errorf("insert sample: %w", err)
		}
		seq, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("sample id: %w", err)
		}

		if sample.Err != "" {
			return nil
		}
		for i, fld := range family.Fields() {
			if _, err := tx.stmtInsertValue.ExecContext(ctx, seq, i, fld.Name, int64(sample.Values[i])); err != nil {
				return fmt.Errorf("insert %s: %w", fld.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug("recorded sample", "kind", sample.Kind, "id", sample.ID, "took", time.Since(start))
	return nil
}

// History implements store.Store.
func (s *sqliteStore) History(ctx context.Context, kind vhoststats.Kind, id string, limit int) ([]store.Sample, error) {
	family := kind.Family()
	if family == nil {
		return nil, fmt.Errorf("unknown kind %d", kind)
	}
	if limit <= 0 {
		limit = -1
	}

	type row struct {
		seq    int64
		sample store.Sample
	}

	// Drain the sample rows before loading values: in-memory stores
	// have a single connection.
	rows, err := s.stmtHistory.QueryContext(ctx, kind.String(), id, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	var found []row
	for rows.Next() {
		var (
			r       row
			session string
			taken   string
			addr    int64
		)
		if err := rows.Scan(&r.seq, &session, &taken, &addr, &r.sample.Err); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		if r.sample.SessionID, err = uuid.Parse(session); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sample %d session: %w", r.seq, err)
		}
		if r.sample.Taken, err = time.Parse(timeLayout, taken); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sample %d time: %w", r.seq, err)
		}
		r.sample.Kind = kind
		r.sample.ID = id
		r.sample.Address = vhoststats.KernelAddress(addr)
		found = append(found, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]store.Sample, 0, len(found))
	for _, r := range found {
		if r.sample.Err == "" {
			values, err := s.sampleValues(ctx, r.seq, family)
			if err != nil {
				return nil, err
			}
			r.sample.Values = values
		}
		out = append(out, r.sample)
	}
	return out, nil
}

func (s *sqliteStore) sampleValues(ctx context.Context, seq int64, family *vhoststats.Family) ([]uint64, error) {
	rows, err := s.stmtSampleValues.QueryContext(ctx, seq)
	if err != nil {
		return nil, fmt.Errorf("query sample %d values: %w", seq, err)
	}
	defer rows.Close()

	names := family.Names()
	values := make([]uint64, len(names))
	for rows.Next() {
		var (
			pos   int
			field string
			v     int64
		)
		if err := rows.Scan(&pos, &field, &v); err != nil {
			return nil, fmt.Errorf("scan sample %d value: %w", seq, err)
		}
		if pos < 0 || pos >= len(names) || names[pos] != field {
			return nil, fmt.Errorf("sample %d: field %q at position %d does not match the %s layout", seq, field, pos, family.Kind)
		}
		values[pos] = uint64(v)
	}
	return values, rows.Err()
}

func (s *sqliteStore) prepareStatements(ctx context.Context) error {
	var err error
	prepare := func(dst **sql.Stmt, name, query string) {
		if err != nil {
			return
		}
		if *dst, err = s.db.PrepareContext(ctx, query); err != nil {
			err = fmt.Errorf("prepare %s: %w", name, err)
		}
	}

	prepare(&s.stmtInsertSession, "InsertSession",
		"INSERT INTO sessions (id, strategy, started_at) VALUES (?, ?, ?)")
	prepare(&s.stmtGetSession, "GetSession",
		"SELECT id FROM sessions WHERE id = ?")
	prepare(&s.stmtListSessions, "ListSessions",
		"SELECT id, strategy, started_at FROM sessions ORDER BY rowid")
	prepare(&s.stmtInsertSample, "InsertSample", `
		INSERT INTO samples (session_id, kind, instance, taken_at, address, error)
		VALUES (?, ?, ?, ?, ?, ?)`)
	prepare(&s.stmtInsertValue, "InsertValue",
		"INSERT INTO sample_values (sample_seq, position, field, value) VALUES (?, ?, ?, ?)")
	prepare(&s.stmtHistory, "History", `
		SELECT seq, session_id, taken_at, address, error
		FROM samples
		WHERE kind = ? AND instance = ?
		ORDER BY seq DESC
		LIMIT ?`)
	prepare(&s.stmtSampleValues, "SampleValues",
		"SELECT position, field, value FROM sample_values WHERE sample_seq = ? ORDER BY position")

	return err
}
