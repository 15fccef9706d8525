// Package surprisal turns an action-frequency histogram into per-action
// information content (self-information, in bits).
package surprisal

import (
	"math"

	"github.com/rcliao/ratemykey/internal/model"
)

// Build returns the surprisal table of a histogram: for each action,
// log2(total/count). Actions with a zero count are left out.
func Build(hist map[string]uint64) model.SurprisalTable {
	var total uint64
	for _, n := range hist {
		total += n
	}

	table := make(model.SurprisalTable, len(hist))
	if total == 0 {
		return table
	}
	for action, n := range hist {
		if n == 0 {
			continue
		}
		table[action] = model.ActionScore{
			Count:     n,
			Surprisal: math.Log2(float64(total) / float64(n)),
		}
	}
	return table
}

// Total returns the number of actions the table was built from.
func Total(table model.SurprisalTable) uint64 {
	var total uint64
	for _, s := range table {
		total += s.Count
	}
	return total
}

// Valid reports whether every entry has a positive count and a finite,
// non-negative surprisal. An empty table is not valid.
func Valid(table model.SurprisalTable) bool {
	if len(table) == 0 {
		return false
	}
	for _, s := range table {
		if s.Count == 0 || s.Surprisal < 0 || math.IsNaN(s.Surprisal) || math.IsInf(s.Surprisal, 0) {
			return false
		}
	}
	return true
}
