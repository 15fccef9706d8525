package outlier

import (
	"errors"
	"testing"

	"github.com/rcliao/ratemykey/internal/model"
)

func TestClassify(t *testing.T) {
	table := model.ScoreTable{Rows: []model.ScoreRow{
		{Key: "calm", XEntropy: 4, Normalized: 1, Count: 4, XZ: 0.5, NZ: 0.2},
		{Key: "odd", XEntropy: 40, Normalized: 8, Count: 5, XZ: 3.5, NZ: 3},
		{Key: "busy", XEntropy: 90, Normalized: 1, Count: 90, XZ: 4.1, NZ: 0.1},
	}}

	tests := []struct {
		key     string
		outlier bool
	}{
		{"calm", false},
		{"odd", true},   // both thresholds reached, equality counts
		{"busy", false}, // long session, normalized score is ordinary
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			r, err := Classify(table, tt.key, DefaultThresholds())
			if err != nil {
				t.Fatalf("classify: %v", err)
			}
			if r.Outlier != tt.outlier {
				t.Errorf("expected outlier=%v, got %v", tt.outlier, r.Outlier)
			}
			if r.Unscored {
				t.Error("expected scored rating")
			}
			row, _ := table.Find(tt.key)
			if r.XEntropy != row.XEntropy || r.Count != row.Count || r.XZ != row.XZ || r.NZ != row.NZ {
				t.Errorf("rating %+v does not mirror row %+v", r, row)
			}
		})
	}
}

func TestClassifyCustomThresholds(t *testing.T) {
	table := model.ScoreTable{Rows: []model.ScoreRow{{Key: "u1", XZ: 1.5, NZ: 1.5}}}

	r, err := Classify(table, "u1", Thresholds{SZ: 1, NZ: 1})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if !r.Outlier {
		t.Error("expected outlier with lowered thresholds")
	}
}

func TestClassifyMissingKey(t *testing.T) {
	r, err := Classify(model.ScoreTable{Rows: []model.ScoreRow{}}, "ghost", DefaultThresholds())
	if !errors.Is(err, ErrKeyNotScored) {
		t.Fatalf("expected ErrKeyNotScored, got %v", err)
	}
	if !r.Unscored || r.Outlier || r.Key != "ghost" {
		t.Errorf("expected unscored rating, got %+v", r)
	}
}
