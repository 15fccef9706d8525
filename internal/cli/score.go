package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/ratemykey/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Record one action and print its rating",
		Long:  "Record an action directly in the local database and print the rating, without a running server.",
		Run:   runScore,
	}

	cmd.Flags().String("context", "", "Context the actor belongs to (required)")
	cmd.Flags().StringP("key", "k", "", "Actor key (required)")
	cmd.Flags().StringP("action", "a", "", "Action performed (required)")
	cmd.Flags().String("date", "", "Event time, RFC3339 or \"2006-01-02 15:04:05 UTC\" (default: now)")

	RootCmd.AddCommand(cmd)
}

func runScore(cmd *cobra.Command, args []string) {
	ns, _ := cmd.Flags().GetString("context")
	key, _ := cmd.Flags().GetString("key")
	action, _ := cmd.Flags().GetString("action")
	dateStr, _ := cmd.Flags().GetString("date")

	date, err := model.ParseDate(dateStr, time.Now())
	if err != nil {
		exitErr("parse date", err)
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	eng, err := newEngine(s)
	if err != nil {
		exitErr("create engine", err)
	}

	res, err := eng.RecordAndScore(cmd.Context(), model.ActionEvent{
		Context:   ns,
		Key:       key,
		Action:    action,
		Timestamp: date,
	})
	eng.Close()
	if err != nil {
		exitErr("score", err)
	}

	b, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(b))
}
