package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/ratemykey/internal/feed"
)

func init() {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Send synthetic traffic to a running server",
		Long:  "Send random actions for keys user10 to user1000. The same seed replays the same traffic.",
		Run:   runGenerate,
	}

	cmd.Flags().IntP("count", "n", 1, "Number of events to send")
	cmd.Flags().Int64("seed", 42, "Random seed")
	cmd.Flags().String("context", feed.DefaultSyntheticContext, "Context to record the traffic in")
	addClientFlags(cmd)

	RootCmd.AddCommand(cmd)
}

func runGenerate(cmd *cobra.Command, args []string) {
	count, _ := cmd.Flags().GetInt("count")
	seed, _ := cmd.Flags().GetInt64("seed")
	ns, _ := cmd.Flags().GetString("context")

	replay(cmd, feed.Generate(count, seed, ns))
}
