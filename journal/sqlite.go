package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists the journal in a SQLite database. Use ":memory:"
// for an ephemeral store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) a journal database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps appends serialized and makes ":memory:"
	// behave as one database.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		seq INTEGER PRIMARY KEY,
		id TEXT NOT NULL,
		kind TEXT NOT NULL,
		account TEXT NOT NULL,
		counterparty TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL,
		value TEXT NOT NULL DEFAULT '',
		cost TEXT NOT NULL DEFAULT '',
		change TEXT NOT NULL DEFAULT '',
		payout TEXT NOT NULL DEFAULT '',
		supply TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		prev_hash TEXT NOT NULL DEFAULT '',
		hash TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_account ON entries(account);
	CREATE INDEX IF NOT EXISTS idx_entries_kind ON entries(kind);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append assigns sequence and chain hashes, then inserts the entry.
func (s *SQLiteStore) Append(ctx context.Context, e *Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var seq uint64
	var hash string
	err = tx.QueryRowContext(ctx,
		`SELECT seq, hash FROM entries ORDER BY seq DESC LIMIT 1`,
	).Scan(&seq, &hash)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		seq, hash = 0, ""
	case err != nil:
		return fmt.Errorf("read head: %w", err)
	}

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	e.Seq = seq + 1
	e.PrevHash = hash
	e.Hash = HashEntry(e)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO entries
			(seq, id, kind, account, counterparty, amount, value, cost, change, payout, supply, timestamp, prev_hash, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Seq, e.ID, string(e.Kind), e.Account, e.Counterparty,
		e.Amount, e.Value, e.Cost, e.Change, e.Payout, e.Supply,
		e.Timestamp.UTC().Format(time.RFC3339Nano), e.PrevHash, e.Hash,
	)
	if err != nil {
		if isSeqConflict(err) {
			return fmt.Errorf("%w: %v", ErrSequenceConflict, err)
		}
		return fmt.Errorf("insert entry: %w", err)
	}
	return tx.Commit()
}

// isSeqConflict reports whether err is a primary key collision on the
// seq column, the signature of a racing writer on the same database.
func isSeqConflict(err error) bool {
	return err != nil && strings.Contains(err.Error(), "entries.seq")
}

// Read returns entries with Seq >= fromSeq in order.
func (s *SQLiteStore) Read(ctx context.Context, fromSeq uint64) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, id, kind, account, counterparty, amount, value, cost, change, payout, supply, timestamp, prev_hash, hash
		FROM entries WHERE seq >= ? ORDER BY seq`, fromSeq)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Head returns the latest entry, or nil for an empty journal.
func (s *SQLiteStore) Head(ctx context.Context) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT seq, id, kind, account, counterparty, amount, value, cost, change, payout, supply, timestamp, prev_hash, hash
		FROM entries ORDER BY seq DESC LIMIT 1`)

	e, err := scanEntry(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanEntry(scan func(dest ...any) error) (*Entry, error) {
	var e Entry
	var kind, ts string
	if err := scan(&e.Seq, &e.ID, &kind, &e.Account, &e.Counterparty,
		&e.Amount, &e.Value, &e.Cost, &e.Change, &e.Payout, &e.Supply,
		&ts, &e.PrevHash, &e.Hash); err != nil {
		return nil, err
	}
	e.Kind = Kind(kind)

	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp: %w", err)
	}
	e.Timestamp = parsed
	return &e, nil
}

var _ Store = (*SQLiteStore)(nil)
