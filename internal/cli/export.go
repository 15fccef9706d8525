package cli

import (
	"encoding/json"
	"fmt"

	"github.com/rcliao/ratemykey/internal/model"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export ledgers as JSON",
		Long:  "Export every actor ledger, regardless of the window. Filter by context with --context.",
		Run:   runExport,
	}

	cmd.Flags().String("context", "", "Export only this context")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	ns, _ := cmd.Flags().GetString("context")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	contexts := []string{ns}
	if ns == "" {
		contexts, err = s.ListContexts(cmd.Context())
		if err != nil {
			exitErr("list contexts", err)
		}
	}

	all := []model.LedgerEntry{}
	for _, c := range contexts {
		entries, err := s.ExportContext(cmd.Context(), c)
		if err != nil {
			exitErr("export", err)
		}
		all = append(all, entries...)
	}

	b, _ := json.MarshalIndent(all, "", "  ")
	fmt.Println(string(b))
}
