// Package model defines the core scoring data types.
package model

import "time"

// DefaultContext is the placeholder legacy clients send for a missing
// parameter. It is never a valid context, key or action.
const DefaultContext = "trash"

// ActionEvent is a single action performed by an actor.
type ActionEvent struct {
	Context   string    `json:"context"`
	Key       string    `json:"key"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"date"`
}

// LedgerEntry is the per-actor action history of a context.
// Actions are ordered oldest first and capped by the ledger.
type LedgerEntry struct {
	Context   string    `json:"context"`
	Key       string    `json:"key"`
	Actions   []string  `json:"actions"`
	FirstSeen time.Time `json:"first_seen"`
	Date      time.Time `json:"date"`
}

// ActionScore is the frequency and information content of one action.
type ActionScore struct {
	Count     uint64  `json:"count"`
	Surprisal float64 `json:"surprisal"`
}

// SurprisalTable maps an action to its score within a context's window.
type SurprisalTable map[string]ActionScore

// Surprisal returns the information content of an action, 0 when unknown.
func (t SurprisalTable) Surprisal(action string) float64 {
	return t[action].Surprisal
}

// Has reports whether the table scores the given action.
func (t SurprisalTable) Has(action string) bool {
	_, ok := t[action]
	return ok
}

// ScoreRow holds the scores of one actor.
type ScoreRow struct {
	Key        string  `json:"key"`
	XEntropy   float64 `json:"xentropy"`
	Normalized float64 `json:"normalized"`
	Count      uint64  `json:"count"`
	XZ         float64 `json:"xz"`
	NZ         float64 `json:"nz"`
}

// ScoreTable holds one row per actor active in the window.
type ScoreTable struct {
	Rows []ScoreRow `json:"rows"`
}

// Find returns the row for key.
func (t ScoreTable) Find(key string) (ScoreRow, bool) {
	for _, r := range t.Rows {
		if r.Key == key {
			return r, true
		}
	}
	return ScoreRow{}, false
}

// CacheName identifies one of the memoized context-wide tables.
type CacheName string

const (
	LookupCache CacheName = "lookupTable"
	ScoreCache  CacheName = "scoreKeys"
)

// CacheEntry is the metadata of a cached table. The payload is stored alongside.
type CacheEntry struct {
	ID        string    `json:"id"`
	Seq       int64     `json:"seq"`
	Context   string    `json:"context"`
	Name      CacheName `json:"name"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the entry is no longer fresh at now.
func (e CacheEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}

// Rating is the classification of one actor.
type Rating struct {
	Key        string  `json:"key"`
	XEntropy   float64 `json:"xentropy"`
	Normalized float64 `json:"normalized"`
	Count      uint64  `json:"count"`
	XZ         float64 `json:"xz"`
	NZ         float64 `json:"nz"`
	Outlier    bool    `json:"outlier"`
	Unscored   bool    `json:"unscored,omitempty"`
}

// Result is the response to a recorded action.
type Result struct {
	Context      string    `json:"context"`
	Key          string    `json:"key"`
	Action       string    `json:"action"`
	Date         time.Time `json:"date"`
	Runtime      float64   `json:"runtime"`
	CacheRuntime float64   `json:"cache_runtime"`
	Rating       Rating    `json:"result"`
}
