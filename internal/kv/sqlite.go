package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite is a durable single-node Store. Expiry is stored as unix milliseconds and checked
// on read; every mutation is a single upsert statement.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
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
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLite{db: db, now: time.Now}, nil
}

func (s *SQLite) WithClock(now func() time.Time) *SQLite {
	s.now = now
	return s
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
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			expires_at INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS kv_hash (
			key TEXT NOT NULL,
			field TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (key, field)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("sqlite: init schema: %w", err)
		}
	}
	return nil
}

func (s *SQLite) nowMs() int64 { return s.now().UnixMilli() }

func (s *SQLite) Get(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)`,
		key, s.nowMs()).Scan(&v)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("sqlite: get %s: %w", key, err)
	}
	return v, nil
}

func (s *SQLite) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, expires_at) VALUES (?, ?, NULL)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = NULL`,
		key, value)
	if err != nil {
		return fmt.Errorf("sqlite: set %s: %w", key, err)
	}
	return nil
}

// SetNX inserts the key, or takes over a row whose expiry has passed.
func (s *SQLite) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	now := s.nowMs()
	var expires any
	if ttl > 0 {
		expires = now + ttl.Milliseconds()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
		 WHERE kv.expires_at IS NOT NULL AND kv.expires_at <= ?`,
		key, value, expires, now)
	if err != nil {
		return false, fmt.Errorf("sqlite: setnx %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: setnx %s: %w", key, err)
	}
	return n == 1, nil
}

func (s *SQLite) Incr(ctx context.Context, key string) (int64, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO kv (key, value, expires_at) VALUES (?, '1', NULL)
		 ON CONFLICT(key) DO UPDATE SET
			value = CASE
				WHEN kv.expires_at IS NOT NULL AND kv.expires_at <= ? THEN '1'
				ELSE CAST(CAST(kv.value AS INTEGER) + 1 AS TEXT)
			END,
			expires_at = CASE
				WHEN kv.expires_at IS NOT NULL AND kv.expires_at <= ? THEN NULL
				ELSE kv.expires_at
			END
		 RETURNING value`,
		key, s.nowMs(), s.nowMs()).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("sqlite: incr %s: %w", key, err)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("sqlite: incr %s: %w", key, err)
	}
	return n, nil
}

func (s *SQLite) TTL(ctx context.Context, key string) (time.Duration, error) {
	now := s.nowMs()
	var expires sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT expires_at FROM kv WHERE key = ?`, key).Scan(&expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("sqlite: ttl %s: %w", key, err)
	}
	if !expires.Valid || expires.Int64 <= now {
		return 0, nil
	}
	return time.Duration(expires.Int64-now) * time.Millisecond, nil
}

func (s *SQLite) HSet(ctx context.Context, key, field, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_hash (key, field, value) VALUES (?, ?, ?)
		 ON CONFLICT(key, field) DO UPDATE SET value = excluded.value`,
		key, field, value)
	if err != nil {
		return fmt.Errorf("sqlite: hset %s %s: %w", key, field, err)
	}
	return nil
}

func (s *SQLite) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT field, value FROM kv_hash WHERE key = ?`, key)
	if err != nil {
		return nil, fmt.Errorf("sqlite: hgetall %s: %w", key, err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var f, v string
		if err := rows.Scan(&f, &v); err != nil {
			return nil, fmt.Errorf("sqlite: hgetall %s: %w", key, err)
		}
		out[f] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: hgetall %s: %w", key, err)
	}
	return out, nil
}

func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLite) Close() error { return s.db.Close() }
