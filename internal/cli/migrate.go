package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"ticketchain/platform/config"
)

func newMigrateCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the analysis store schema",
		Long: `Open the configured analysis store, which applies any pending schema
changes. The memory store has no schema.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), cmd, g)
			if err != nil {
				return err
			}
			defer a.Close()

			driver := a.cfg.GetStoreDriver()
			if driver == config.StoreMemory {
				fmt.Fprintln(cmd.OutOrStdout(), "memory store: nothing to migrate")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s store: schema up to date\n", driver)
			return nil
		},
	}
}
