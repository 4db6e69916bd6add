// Package cli is the ticketchain command line. Each command builds only the
// collaborators it needs from the environment configuration and writes its
// results to stdout; logs go to stderr.
package cli

import (
	"github.com/spf13/cobra"
)

// globals are the persistent flags shared by every command.
type globals struct {
	logLevel string
}

// NewRootCommand assembles the command tree.
func NewRootCommand() *cobra.Command {
	g := &globals{}
	cmd := &cobra.Command{
		Use:   "ticketchain",
		Short: "Analyze dispatch and turnup ticket chains",
		Long: `ticketchain resolves a ticket into its chain of linked dispatch and turnup
tickets, orders their history and asks a language model to explain it.
Results are stored and can be listed and shown later.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides LOG_LEVEL")

	cmd.AddCommand(
		newAnalyzeCommand(g),
		newBatchCommand(g),
		newListCommand(g),
		newShowCommand(g),
		newMockCommand(g),
		newServeCommand(g),
		newMigrateCommand(g),
		newSetupAssistantCommand(g),
	)
	return cmd
}
