package store

import (
	"context"
	"fmt"

	"github.com/rcliao/ratemykey/internal/model"
)

// ExportContext returns every actor of a context regardless of the window.
func (s *SQLiteStore) ExportContext(ctx context.Context, ns string) ([]model.LedgerEntry, error) {
	var rows []ledgerRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT context, key, actions, first_seen, date FROM ledger
		 WHERE context = ? ORDER BY date DESC, key`, ns)
	if err != nil {
		return nil, fmt.Errorf("export context: %w", err)
	}

	entries := make([]model.LedgerEntry, 0, len(rows))
	for _, r := range rows {
		e, err := r.entry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}
