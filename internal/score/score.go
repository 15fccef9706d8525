// Package score builds the per-actor score table of a context: the summed
// surprisal of each actor's actions and its population z-scores.
package score

import (
	"math"

	"github.com/rcliao/ratemykey/internal/model"
)

// Row computes the unscaled scores of one ledger entry. Actions missing from
// the lookup table contribute 0.
func Row(entry model.LedgerEntry, lookup model.SurprisalTable) model.ScoreRow {
	var xentropy float64
	for _, a := range entry.Actions {
		xentropy += lookup.Surprisal(a)
	}

	row := model.ScoreRow{
		Key:      entry.Key,
		XEntropy: xentropy,
		Count:    uint64(len(entry.Actions)),
	}
	if row.Count > 0 {
		row.Normalized = xentropy / float64(row.Count)
	}
	return row
}

// Build scores every entry and assigns population z-scores to all rows.
func Build(entries []model.LedgerEntry, lookup model.SurprisalTable) model.ScoreTable {
	rows := make([]model.ScoreRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, Row(e, lookup))
	}

	xs, ns := populations(rows)
	xMean, xStd := Summarize(xs)
	nMean, nStd := Summarize(ns)
	for i := range rows {
		rows[i].XZ = ZScore(rows[i].XEntropy, xMean, xStd)
		rows[i].NZ = ZScore(rows[i].Normalized, nMean, nStd)
	}
	return model.ScoreTable{Rows: rows}
}

// Patch returns a copy of cached with key's row replaced by a fresh row built
// from entry. Statistics are recomputed over the whole table, but only the
// refreshed row's z-scores are updated. A nil entry drops the key's row.
func Patch(cached model.ScoreTable, key string, entry *model.LedgerEntry, lookup model.SurprisalTable) model.ScoreTable {
	rows := make([]model.ScoreRow, 0, len(cached.Rows)+1)
	for _, r := range cached.Rows {
		if r.Key != key {
			rows = append(rows, r)
		}
	}
	if entry == nil {
		return model.ScoreTable{Rows: rows}
	}

	rows = append(rows, Row(*entry, lookup))

	xs, ns := populations(rows)
	xMean, xStd := Summarize(xs)
	nMean, nStd := Summarize(ns)
	last := &rows[len(rows)-1]
	last.XZ = ZScore(last.XEntropy, xMean, xStd)
	last.NZ = ZScore(last.Normalized, nMean, nStd)
	return model.ScoreTable{Rows: rows}
}

func populations(rows []model.ScoreRow) (xentropy, normalized []float64) {
	xentropy = make([]float64, len(rows))
	normalized = make([]float64, len(rows))
	for i, r := range rows {
		xentropy[i] = r.XEntropy
		normalized[i] = r.Normalized
	}
	return xentropy, normalized
}

// Summarize returns the mean and the uncorrected (divisor N) standard deviation.
// Both are 0 for an empty population.
func Summarize(values []float64) (mean, stddev float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}

// flatTolerance bounds the rounding noise left in the stddev of identical values.
const flatTolerance = 1e-12

// ZScore returns (x-mean)/stddev, or 0 when stddev is 0 (up to rounding) or
// the result is not finite.
func ZScore(x, mean, stddev float64) float64 {
	if stddev <= flatTolerance*math.Max(1, math.Abs(mean)) {
		return 0
	}
	z := (x - mean) / stddev
	if math.IsNaN(z) || math.IsInf(z, 0) {
		return 0
	}
	return z
}

// Valid reports whether a cached table has the expected shape.
func Valid(t model.ScoreTable) bool {
	if t.Rows == nil {
		return false
	}
	for _, r := range t.Rows {
		if r.Key == "" {
			return false
		}
	}
	return true
}
