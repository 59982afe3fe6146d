package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps SQLite-backed persistence for the block cursor and the
// per-sink delivery ledger.
type Store struct {
	db *sql.DB
}

// Delivery statuses.
const (
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
)

// Open initializes a SQLite database and runs minimal schema setup.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := configure(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	return s.db.PingContext(ctx)
}

func configure(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pragmas := []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("set pragma %q: %w", p, err)
		}
	}
	return nil
}

func migrate(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	schema := `
CREATE TABLE IF NOT EXISTS cursors (
  source_id   TEXT PRIMARY KEY,
  height      INTEGER NOT NULL,
  hash        TEXT NOT NULL,
  updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS deliveries (
  block_number  INTEGER NOT NULL,
  block_hash    TEXT NOT NULL,
  sink_id       TEXT NOT NULL,
  status        TEXT NOT NULL,
  attempts      INTEGER NOT NULL DEFAULT 1,
  last_error    TEXT,
  updated_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY(block_number, sink_id)
);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// UpsertCursor records the latest processed height/hash for a source.
func (s *Store) UpsertCursor(ctx context.Context, sourceID string, height uint64, hash string) error {
	if sourceID == "" {
		return errors.New("sourceID required")
	}
	return upsertCursor(ctx, s.db, sourceID, height, hash)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertCursor(ctx context.Context, db execer, sourceID string, height uint64, hash string) error {
	_, err := db.ExecContext(ctx, `
INSERT INTO cursors (source_id, height, hash, updated_at)
VALUES (?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(source_id) DO UPDATE SET
  height=excluded.height,
  hash=excluded.hash,
  updated_at=CURRENT_TIMESTAMP;
`, sourceID, height, hash)
	if err != nil {
		return fmt.Errorf("upsert cursor: %w", err)
	}
	return nil
}

// GetCursor retrieves the cursor for a source.
func (s *Store) GetCursor(ctx context.Context, sourceID string) (height uint64, hash string, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `
SELECT height, hash FROM cursors WHERE source_id = ?;
`, sourceID)
	switch err = row.Scan(&height, &hash); err {
	case nil:
		return height, hash, true, nil
	case sql.ErrNoRows:
		return 0, "", false, nil
	default:
		return 0, "", false, fmt.Errorf("get cursor: %w", err)
	}
}

// Delivery is one attempt to hand a block to a sink.
type Delivery struct {
	BlockNumber uint64
	BlockHash   string
	SinkID      string
	Status      string
	Error       string
	At          time.Time
}

// RecordDelivery upserts the delivery state of a block for a sink and counts
// the attempt.
func (s *Store) RecordDelivery(ctx context.Context, d Delivery) error {
	if d.SinkID == "" || d.Status == "" {
		return errors.New("sink_id and status are required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO deliveries (block_number, block_hash, sink_id, status, attempts, last_error, updated_at)
VALUES (?, ?, ?, ?, 1, ?, COALESCE(?, CURRENT_TIMESTAMP))
ON CONFLICT(block_number, sink_id) DO UPDATE SET
  block_hash=excluded.block_hash,
  status=excluded.status,
  attempts=deliveries.attempts + 1,
  last_error=excluded.last_error,
  updated_at=excluded.updated_at;
`, d.BlockNumber, d.BlockHash, d.SinkID, d.Status, nullString(d.Error), nullTime(d.At))
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	return nil
}

// DeliveredSinks returns the sinks that already accepted the block with the
// given hash.
func (s *Store) DeliveredSinks(ctx context.Context, blockNumber uint64, blockHash string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT sink_id FROM deliveries WHERE block_number = ? AND block_hash = ? AND status = ?;
`, blockNumber, blockHash, StatusDelivered)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

// Attempts returns how many times the block was offered to the sink.
func (s *Store) Attempts(ctx context.Context, blockNumber uint64, sinkID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
SELECT attempts FROM deliveries WHERE block_number = ? AND sink_id = ?;
`, blockNumber, sinkID).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get attempts: %w", err)
	}
	return n, nil
}

// CompleteBlock advances the cursor past the block and drops its delivery
// rows in one transaction.
func (s *Store) CompleteBlock(ctx context.Context, sourceID string, height uint64, hash string) error {
	if sourceID == "" {
		return errors.New("sourceID required")
	}
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if err := upsertCursor(ctx, tx, sourceID, height, hash); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM deliveries WHERE block_number <= ?;`, height); err != nil {
			return fmt.Errorf("prune deliveries: %w", err)
		}
		return nil
	})
}

// WithTx executes a callback inside a transaction for callers needing atomicity.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
