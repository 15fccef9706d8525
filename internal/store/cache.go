package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rcliao/ratemykey/internal/model"
)

type cacheRow struct {
	Seq       int64  `db:"seq"`
	ID        string `db:"id"`
	Context   string `db:"context"`
	Name      string `db:"name"`
	ExpiresAt string `db:"expires_at"`
	CreatedAt string `db:"created_at"`
}

func (r cacheRow) entry() model.CacheEntry {
	return model.CacheEntry{
		ID:        r.ID,
		Seq:       r.Seq,
		Context:   r.Context,
		Name:      model.CacheName(r.Name),
		ExpiresAt: parseTime(r.ExpiresAt),
		CreatedAt: parseTime(r.CreatedAt),
	}
}

// LatestEntry returns the current entry of a cache: the newest one that has not
// expired at now, or the newest one when all have expired. Returns ErrNotFound
// when the cache is empty.
func (s *SQLiteStore) LatestEntry(ctx context.Context, ns string, name model.CacheName, now time.Time) (*model.CacheEntry, error) {
	var row cacheRow
	err := s.db.GetContext(ctx, &row,
		`SELECT seq, id, context, name, expires_at, created_at FROM cache_entries
		 WHERE context = ? AND name = ?
		 ORDER BY (expires_at > ?) DESC, seq DESC
		 LIMIT 1`, ns, string(name), formatTime(now))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cache %s/%s: %w", ns, name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("latest cache entry: %w", err)
	}
	e := row.entry()
	return &e, nil
}

// EntryData returns the payload of an entry.
func (s *SQLiteStore) EntryData(ctx context.Context, id string) ([]byte, error) {
	var data string
	err := s.db.GetContext(ctx, &data, `SELECT data FROM cache_entries WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cache entry %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("cache entry data: %w", err)
	}
	return []byte(data), nil
}

// ExtendEntry moves an entry's expiration to until, provided it still expires
// at observed. Reports whether this call performed the extension.
func (s *SQLiteStore) ExtendEntry(ctx context.Context, id string, observed, until time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE cache_entries SET expires_at = ? WHERE id = ? AND expires_at = ?`,
		formatTime(until), id, formatTime(observed))
	if err != nil {
		return false, fmt.Errorf("extend cache entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// InsertEntry stores a new entry and returns it with its id and creation order.
func (s *SQLiteStore) InsertEntry(ctx context.Context, e model.CacheEntry, data []byte) (model.CacheEntry, error) {
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (id, context, name, expires_at, created_at, data)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Context, string(e.Name), formatTime(e.ExpiresAt), formatTime(e.CreatedAt), string(data))
	if err != nil {
		return e, fmt.Errorf("insert cache entry: %w", err)
	}
	e.Seq, err = res.LastInsertId()
	if err != nil {
		return e, err
	}
	return e, nil
}

// PurgeEntries removes the entries superseded by e: every other entry expiring
// strictly after it, and older entries that have already expired at now.
func (s *SQLiteStore) PurgeEntries(ctx context.Context, e model.CacheEntry, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries
		 WHERE context = ? AND name = ? AND seq <> ?
		   AND (expires_at > ? OR (seq < ? AND expires_at <= ?))`,
		e.Context, string(e.Name), e.Seq,
		formatTime(e.ExpiresAt), e.Seq, formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("purge cache entries: %w", err)
	}
	return res.RowsAffected()
}

// FlushCache removes every entry of a cache for a context.
func (s *SQLiteStore) FlushCache(ctx context.Context, ns string, name model.CacheName) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE context = ? AND name = ?`, ns, string(name))
	if err != nil {
		return fmt.Errorf("flush cache %s: %w", name, err)
	}
	return nil
}
