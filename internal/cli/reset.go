package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Wipe the ledger and caches of a context",
		Run:   runReset,
	}

	cmd.Flags().String("context", "", "Context to wipe (required)")

	RootCmd.AddCommand(cmd)
}

func runReset(cmd *cobra.Command, args []string) {
	ns, _ := cmd.Flags().GetString("context")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	eng, err := newEngine(s)
	if err != nil {
		exitErr("create engine", err)
	}
	defer eng.Close()

	if err := eng.ResetContext(cmd.Context(), ns); err != nil {
		exitErr("reset", err)
	}
	fmt.Printf("Reset context %q\n", ns)
}
