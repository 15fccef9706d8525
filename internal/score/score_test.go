package score

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/ratemykey/internal/model"
	"github.com/rcliao/ratemykey/internal/surprisal"
)

func entry(key string, actions ...string) model.LedgerEntry {
	return model.LedgerEntry{Context: "c1", Key: key, Actions: actions}
}

func TestBuildTwoIdenticalActors(t *testing.T) {
	lookup := surprisal.Build(map[string]uint64{"a": 4, "b": 4})
	table := Build([]model.LedgerEntry{
		entry("u1", "a", "a", "a", "b"),
		entry("u2", "a", "b", "b", "b"),
	}, lookup)

	require.Len(t, table.Rows, 2)
	for _, r := range table.Rows {
		assert.Equal(t, 4.0, r.XEntropy, r.Key)
		assert.Equal(t, 1.0, r.Normalized, r.Key)
		assert.Equal(t, uint64(4), r.Count, r.Key)
		assert.Equal(t, 0.0, r.XZ, r.Key)
		assert.Equal(t, 0.0, r.NZ, r.Key)
	}
}

func TestBuildZScores(t *testing.T) {
	lookup := model.SurprisalTable{
		"a": {Count: 1, Surprisal: 1},
		"b": {Count: 1, Surprisal: 3},
	}
	table := Build([]model.LedgerEntry{
		entry("low", "a"),
		entry("high", "b"),
	}, lookup)

	low, ok := table.Find("low")
	require.True(t, ok)
	high, ok := table.Find("high")
	require.True(t, ok)

	// mean 2, population stddev 1
	assert.InDelta(t, -1.0, low.XZ, 1e-12)
	assert.InDelta(t, 1.0, high.XZ, 1e-12)
	assert.InDelta(t, -1.0, low.NZ, 1e-12)
	assert.InDelta(t, 1.0, high.NZ, 1e-12)
}

func TestBuildUnknownActionsContributeZero(t *testing.T) {
	lookup := model.SurprisalTable{"a": {Count: 2, Surprisal: 2}}
	table := Build([]model.LedgerEntry{entry("u1", "a", "unknown")}, lookup)

	row, ok := table.Find("u1")
	require.True(t, ok)
	assert.Equal(t, 2.0, row.XEntropy)
	assert.Equal(t, 1.0, row.Normalized)
	assert.Equal(t, uint64(2), row.Count)
}

func TestBuildNeverProducesNaN(t *testing.T) {
	lookup := model.SurprisalTable{"a": {Count: 3, Surprisal: 0.1}}
	tables := []model.ScoreTable{
		Build(nil, lookup),
		Build([]model.LedgerEntry{entry("solo", "a")}, lookup),
		Build([]model.LedgerEntry{entry("empty")}, lookup),
		Build([]model.LedgerEntry{entry("u1", "a"), entry("u2", "a"), entry("u3", "a")}, lookup),
	}

	for _, table := range tables {
		assert.NotNil(t, table.Rows)
		for _, r := range table.Rows {
			for _, v := range []float64{r.XEntropy, r.Normalized, r.XZ, r.NZ} {
				assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "row %+v", r)
			}
			assert.Equal(t, 0.0, r.XZ, "flat population must score 0: %+v", r)
			assert.Equal(t, 0.0, r.NZ, "flat population must score 0: %+v", r)
		}
	}
}

func TestPatchMatchesFullRebuild(t *testing.T) {
	lookup := surprisal.Build(map[string]uint64{"login": 10, "get": 20, "delete": 1, "upload": 3})
	before := []model.LedgerEntry{
		entry("u1", "login", "get", "get"),
		entry("u2", "login", "get"),
		entry("u3", "get", "upload"),
	}
	cached := Build(before, lookup)

	updated := entry("u2", "login", "get", "delete")
	patched := Patch(cached, "u2", &updated, lookup)
	full := Build([]model.LedgerEntry{before[0], updated, before[2]}, lookup)

	require.Len(t, patched.Rows, 3)
	p, ok := patched.Find("u2")
	require.True(t, ok)
	f, ok := full.Find("u2")
	require.True(t, ok)

	assert.Equal(t, f.XEntropy, p.XEntropy)
	assert.Equal(t, f.Normalized, p.Normalized)
	assert.Equal(t, f.Count, p.Count)
	assert.InDelta(t, f.XZ, p.XZ, 1e-12)
	assert.InDelta(t, f.NZ, p.NZ, 1e-12)
}

func TestPatchLeavesOtherRowsStale(t *testing.T) {
	lookup := model.SurprisalTable{
		"a": {Count: 1, Surprisal: 1},
		"b": {Count: 1, Surprisal: 5},
	}
	cached := Build([]model.LedgerEntry{entry("u1", "a"), entry("u2", "a")}, lookup)

	updated := entry("u2", "b")
	patched := Patch(cached, "u2", &updated, lookup)

	u1, _ := patched.Find("u1")
	assert.Equal(t, 0.0, u1.XZ, "other rows keep their cached z-score")

	u2, _ := patched.Find("u2")
	assert.InDelta(t, 1.0, u2.XZ, 1e-12)

	// The cached table is not mutated.
	orig, _ := cached.Find("u2")
	assert.Equal(t, 1.0, orig.XEntropy)
}

func TestPatchAddsNewActor(t *testing.T) {
	lookup := model.SurprisalTable{"a": {Count: 1, Surprisal: 1}}
	cached := Build([]model.LedgerEntry{entry("u1", "a")}, lookup)

	newcomer := entry("u9", "a", "a")
	patched := Patch(cached, "u9", &newcomer, lookup)

	require.Len(t, patched.Rows, 2)
	assert.Equal(t, "u9", patched.Rows[1].Key)
	assert.Len(t, cached.Rows, 1)
}

func TestPatchNilEntryDropsRow(t *testing.T) {
	lookup := model.SurprisalTable{"a": {Count: 1, Surprisal: 1}}
	cached := Build([]model.LedgerEntry{entry("u1", "a"), entry("u2", "a")}, lookup)

	patched := Patch(cached, "u2", nil, lookup)
	_, ok := patched.Find("u2")
	assert.False(t, ok)
	assert.Len(t, patched.Rows, 1)
}

func TestSummarize(t *testing.T) {
	mean, std := Summarize([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.Equal(t, 5.0, mean)
	assert.Equal(t, 2.0, std)

	mean, std = Summarize(nil)
	assert.Zero(t, mean)
	assert.Zero(t, std)
}

func TestValid(t *testing.T) {
	assert.False(t, Valid(model.ScoreTable{}))
	assert.True(t, Valid(model.ScoreTable{Rows: []model.ScoreRow{}}))
	assert.False(t, Valid(model.ScoreTable{Rows: []model.ScoreRow{{}}}))
}
