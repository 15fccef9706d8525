package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rcliao/ratemykey/internal/model"
)

type ledgerRow struct {
	Context   string `db:"context"`
	Key       string `db:"key"`
	Actions   string `db:"actions"`
	FirstSeen string `db:"first_seen"`
	Date      string `db:"date"`
}

func (r ledgerRow) entry() (model.LedgerEntry, error) {
	e := model.LedgerEntry{
		Context:   r.Context,
		Key:       r.Key,
		FirstSeen: parseTime(r.FirstSeen),
		Date:      parseTime(r.Date),
	}
	if err := json.Unmarshal([]byte(r.Actions), &e.Actions); err != nil {
		return e, fmt.Errorf("decode actions of %s/%s: %w", r.Context, r.Key, err)
	}
	return e, nil
}

// appendCapped appends action and evicts the oldest entries beyond limit.
func appendCapped(actions []string, action string, limit int) []string {
	actions = append(actions, action)
	if len(actions) > limit {
		actions = append([]string(nil), actions[len(actions)-limit:]...)
	}
	return actions
}

func (s *SQLiteStore) AppendAction(ctx context.Context, p AppendParams) (int64, error) {
	limit := p.Cap
	if limit <= 0 {
		limit = DefaultLedgerCap
	}
	now := formatTime(p.Now)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var row ledgerRow
	err = tx.GetContext(ctx, &row,
		`SELECT context, key, actions, first_seen, date FROM ledger WHERE context = ? AND key = ?`,
		p.Context, p.Key)

	var res sql.Result
	switch {
	case errors.Is(err, sql.ErrNoRows):
		b, _ := json.Marshal([]string{p.Action})
		res, err = tx.ExecContext(ctx,
			`INSERT INTO ledger (context, key, actions, first_seen, date) VALUES (?, ?, ?, ?, ?)`,
			p.Context, p.Key, string(b), now, now)
		if err != nil {
			return 0, fmt.Errorf("insert ledger: %w", err)
		}
	case err != nil:
		return 0, fmt.Errorf("select ledger: %w", err)
	default:
		var actions []string
		if err := json.Unmarshal([]byte(row.Actions), &actions); err != nil {
			return 0, fmt.Errorf("decode actions: %w", err)
		}
		b, _ := json.Marshal(appendCapped(actions, p.Action, limit))

		// Replayed events may be older than the last touch.
		date := row.Date
		if now > date {
			date = now
		}
		res, err = tx.ExecContext(ctx,
			`UPDATE ledger SET actions = ?, date = ? WHERE context = ? AND key = ?`,
			string(b), date, p.Context, p.Key)
		if err != nil {
			return 0, fmt.Errorf("update ledger: %w", err)
		}
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *SQLiteStore) QueryWindow(ctx context.Context, ns string, since time.Time) ([]model.LedgerEntry, error) {
	var rows []ledgerRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT context, key, actions, first_seen, date FROM ledger
		 WHERE context = ? AND date > ? AND json_array_length(actions) > 0
		 ORDER BY key`, ns, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("query window: %w", err)
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

func (s *SQLiteStore) QueryKey(ctx context.Context, ns, key string, since time.Time) (*model.LedgerEntry, error) {
	var row ledgerRow
	err := s.db.GetContext(ctx, &row,
		`SELECT context, key, actions, first_seen, date FROM ledger
		 WHERE context = ? AND key = ? AND date > ? AND json_array_length(actions) > 0`,
		ns, key, formatTime(since))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ledger %s/%s: %w", ns, key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query key: %w", err)
	}

	e, err := row.entry()
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *SQLiteStore) Histogram(ctx context.Context, ns string, since time.Time) (map[string]uint64, error) {
	var rows []struct {
		Action string `db:"action"`
		Count  uint64 `db:"count"`
	}
	err := s.db.SelectContext(ctx, &rows,
		`SELECT j.value AS action, COUNT(*) AS count
		 FROM ledger l, json_each(l.actions) j
		 WHERE l.context = ? AND l.date > ?
		 GROUP BY j.value`, ns, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("aggregate actions: %w", err)
	}

	hist := make(map[string]uint64, len(rows))
	for _, r := range rows {
		hist[r.Action] = r.Count
	}
	return hist, nil
}

func (s *SQLiteStore) PruneOlderThan(ctx context.Context, ns string, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM ledger WHERE context = ? AND date < ?`, ns, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune ledger: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) FlushContext(ctx context.Context, ns string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM ledger WHERE context = ?`, ns)
	if err != nil {
		return fmt.Errorf("flush ledger: %w", err)
	}
	return nil
}
