// Package outlier classifies an actor against the score table of its context.
package outlier

import (
	"errors"
	"fmt"

	"github.com/rcliao/ratemykey/internal/model"
)

// DefaultLimit is the default z-score threshold for both scores.
const DefaultLimit = 3.0

// ErrKeyNotScored means the score table has no row for the requested key.
// Callers append the actor before building the table, so this points at a
// window or consistency bug upstream.
var ErrKeyNotScored = errors.New("key not present in score table")

// Thresholds are the minimum z-scores for an actor to be an outlier.
type Thresholds struct {
	SZ float64
	NZ float64
}

// DefaultThresholds returns the default thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{SZ: DefaultLimit, NZ: DefaultLimit}
}

// Classify returns the rating of key. An actor is an outlier when both its
// surprisal z-score and normalized z-score reach their thresholds.
func Classify(table model.ScoreTable, key string, th Thresholds) (model.Rating, error) {
	row, ok := table.Find(key)
	if !ok {
		return Unscored(key), fmt.Errorf("classify %q: %w", key, ErrKeyNotScored)
	}

	return model.Rating{
		Key:        row.Key,
		XEntropy:   row.XEntropy,
		Normalized: row.Normalized,
		Count:      row.Count,
		XZ:         row.XZ,
		NZ:         row.NZ,
		Outlier:    row.XZ >= th.SZ && row.NZ >= th.NZ,
	}, nil
}

// Unscored is the degraded rating returned when a key cannot be scored.
func Unscored(key string) model.Rating {
	return model.Rating{Key: key, Unscored: true}
}
