package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"ticketchain/internal/analysis/service"
)

func newBatchCommand(g *globals) *cobra.Command {
	f := &runFlags{}
	var maxInFlight int
	cmd := &cobra.Command{
		Use:   "batch <comma_separated_ids>",
		Short: "Analyze several chains concurrently",
		Long: `Analyze every listed ticket's chain on a bounded worker pool. A ticket that
fails does not affect the others; the batch always completes and reports
each ticket's outcome.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := service.ParseTicketIDs(args[0])
			if len(ids) == 0 {
				return errors.New("no ticket ids given")
			}
			opts, err := f.options()
			if err != nil {
				return err
			}
			fixtures, err := f.fixtures()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := loadApp(ctx, cmd, g)
			if err != nil {
				return err
			}
			defer a.Close()

			pipeline, err := a.buildPipeline(ctx, pipelineOptions{mock: f.mock, fixtures: fixtures})
			if err != nil {
				return err
			}
			if maxInFlight <= 0 {
				maxInFlight = a.cfg.GetBatchMaxInFlight()
			}
			report := service.NewCoordinator(pipeline, maxInFlight, a.log).RunBatch(ctx, ids, opts)
			if f.json {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			printBatch(cmd.OutOrStdout(), report)
			return nil
		},
	}
	f.register(cmd, true)
	cmd.Flags().IntVar(&maxInFlight, "max-in-flight", 0, "Chains analyzed at once (default BATCH_MAX_IN_FLIGHT)")
	return cmd
}
