package feed

import (
	"fmt"
	"math/rand"

	"github.com/rcliao/ratemykey/internal/model"
)

// DefaultSyntheticContext is the context synthetic traffic is recorded in.
const DefaultSyntheticContext = "auth"

// syntheticActions repeats entries to weight them.
var syntheticActions = []string{
	"login", "get", "get", "update", "update", "download", "download",
	"download", "upload", "update", "edit", "logout",
}

const (
	minUser = 10
	maxUser = 1000
)

// Generate returns n pseudo-random events for keys user10 to user1000. The
// same seed yields the same events. Timestamps are left zero so the service
// stamps them on arrival.
func Generate(n int, seed int64, context string) []model.ActionEvent {
	if context == "" {
		context = DefaultSyntheticContext
	}
	rng := rand.New(rand.NewSource(seed))

	events := make([]model.ActionEvent, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, model.ActionEvent{
			Context: context,
			Key:     fmt.Sprintf("user%d", minUser+rng.Intn(maxUser-minUser+1)),
			Action:  syntheticActions[rng.Intn(len(syntheticActions))],
		})
	}
	return events
}
