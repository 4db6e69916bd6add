package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"ticketchain/internal/analysis/store"
	"ticketchain/platform/apperr"
)

func newListCommand(g *globals) *cobra.Command {
	var (
		chainID string
		limit   int
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored analyses, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx, cmd, g)
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.store.List(ctx, store.ListFilter{ChainID: chainID, Limit: limit})
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), list)
			}
			printSummaries(cmd.OutOrStdout(), list)
			return nil
		},
	}
	cmd.Flags().StringVar(&chainID, "chain", "", "Only analyses of this chain")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of analyses")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func newShowCommand(g *globals) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <analysis_id>",
		Short: "Show one stored analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid analysis id %q", args[0])
			}

			ctx := cmd.Context()
			a, err := loadApp(ctx, cmd, g)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.store.Get(ctx, id)
			if apperr.Is(err, apperr.KindNotFound) {
				fmt.Fprintf(cmd.OutOrStdout(), "Analysis %s not found.\n", id)
				return nil
			}
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			printResult(cmd.OutOrStdout(), result)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}
