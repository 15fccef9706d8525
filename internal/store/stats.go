package store

import (
	"context"
	"os"
)

// Stats holds database statistics.
type Stats struct {
	DBPath       string         `json:"db_path"`
	DBSizeBytes  int64          `json:"db_size_bytes"`
	TotalActors  int            `json:"total_actors"`
	TotalActions int            `json:"total_actions"`
	CacheEntries int            `json:"cache_entries"`
	Contexts     []ContextStats `json:"contexts"`
}

// ContextStats holds per-context counts.
type ContextStats struct {
	Context      string `json:"context" db:"context"`
	Actors       int    `json:"actors" db:"actors"`
	Actions      int    `json:"actions" db:"actions"`
	LastActivity string `json:"last_activity" db:"last_activity"`
}

// Stats returns database statistics.
func (s *SQLiteStore) Stats(ctx context.Context, dbPath string) (*Stats, error) {
	st := &Stats{DBPath: dbPath}

	// DB file size
	if info, err := os.Stat(dbPath); err == nil {
		st.DBSizeBytes = info.Size()
	}

	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger`).Scan(&st.TotalActors)
	s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(json_array_length(actions)), 0) FROM ledger`).Scan(&st.TotalActions)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&st.CacheEntries)

	err := s.db.SelectContext(ctx, &st.Contexts, `
		SELECT context, COUNT(*) AS actors,
		       COALESCE(SUM(json_array_length(actions)), 0) AS actions,
		       MAX(date) AS last_activity
		FROM ledger
		GROUP BY context ORDER BY actors DESC`)
	if err != nil {
		return st, err
	}

	return st, nil
}

// ListContexts returns the contexts that have at least one actor.
func (s *SQLiteStore) ListContexts(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.SelectContext(ctx, &names, `SELECT DISTINCT context FROM ledger ORDER BY context`)
	return names, err
}
