package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/Faultbox/terrastream/internal/logger"
)

// SQLiteStore persists chunk state in a single SQLite table. Each row holds
// the zstd-compressed JSON encoding of a ChunkState.
type SQLiteStore struct {
	db     *sql.DB
	enc    *zstd.Encoder
	dec    *zstd.Decoder
	log    *zap.Logger
	closed atomic.Bool
}

// OpenSQLite opens (creating if needed) a store at path.
func OpenSQLite(path string, log *zap.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite pragmas: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, enc: enc, dec: dec, log: logger.OrNop(log)}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS chunk_state (
		key TEXT PRIMARY KEY,
		state BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	);`)
	return err
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (*ChunkState, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	return s.get(ctx, s.db, key)
}

func (s *SQLiteStore) get(ctx context.Context, q queryer, key string) (*ChunkState, error) {
	var blob []byte
	err := q.QueryRowContext(ctx, `SELECT state FROM chunk_state WHERE key = ?`, key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return s.decode(blob)
}

func (s *SQLiteStore) Put(ctx context.Context, key string, state *ChunkState) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.put(ctx, s.db, key, state)
}

func (s *SQLiteStore) put(ctx context.Context, q queryer, key string, state *ChunkState) error {
	blob, err := s.encode(state)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `INSERT INTO chunk_state (key, state, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		key, blob, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// Update runs the read-modify-write cycle in one transaction.
func (s *SQLiteStore) Update(ctx context.Context, key string, fn func(*ChunkState) error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	state, err := s.get(ctx, tx, key)
	if errors.Is(err, ErrNotFound) {
		state = NewChunkState()
	} else if err != nil {
		return err
	}
	if err := fn(state); err != nil {
		return err
	}
	if err := s.put(ctx, tx, key, state); err != nil {
		return err
	}
	return tx.Commit()
}

// Keys returns all stored keys in lexical order.
func (s *SQLiteStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM chunk_state ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *SQLiteStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.dec.Close()
	_ = s.enc.Close()
	s.log.Debug("chunk store closed")
	return s.db.Close()
}

func (s *SQLiteStore) encode(state *ChunkState) ([]byte, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encoding chunk state: %w", err)
	}
	return s.enc.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
}

func (s *SQLiteStore) decode(blob []byte) (*ChunkState, error) {
	raw, err := s.dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing chunk state: %w", err)
	}
	state := NewChunkState()
	if err := json.Unmarshal(raw, state); err != nil {
		return nil, fmt.Errorf("decoding chunk state: %w", err)
	}
	return state, nil
}
