package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so that TEXT comparison in SQL matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Ledger and the cache entry store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	// Immediate transactions take the write lock up front so that concurrent
	// appends wait on busy_timeout instead of failing on lock upgrade.
	dsn := dbPath + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(10000)&_txlock=immediate"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS ledger (
		context    TEXT NOT NULL,
		key        TEXT NOT NULL,
		actions    TEXT NOT NULL DEFAULT '[]',
		first_seen TEXT NOT NULL,
		date       TEXT NOT NULL,
		PRIMARY KEY (context, key)
	);
	CREATE INDEX IF NOT EXISTS idx_ledger_date ON ledger(context, date);

	CREATE TABLE IF NOT EXISTS cache_entries (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		id         TEXT NOT NULL UNIQUE,
		context    TEXT NOT NULL,
		name       TEXT NOT NULL,
		expires_at TEXT NOT NULL,
		created_at TEXT NOT NULL,
		data       TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_cache_lookup ON cache_entries(context, name, expires_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}
