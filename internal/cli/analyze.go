package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"ticketchain/internal/analysis/service"
	"ticketchain/internal/chains/prompt"
	"ticketchain/internal/mockchain"
	"ticketchain/platform/apperr"
)

// runFlags are the switches shared by analyze, batch and mock.
type runFlags struct {
	focus      string
	fixture    string
	mock       bool
	skipPhase2 bool
	phase2Only bool
	force      bool
	model      string
	assistant  string
	json       bool
}

func (f *runFlags) register(cmd *cobra.Command, withMockSwitch bool) {
	flags := cmd.Flags()
	flags.StringVar(&f.focus, "focus", string(prompt.FocusRelationship), "Analysis focus: relationship or timeline")
	flags.BoolVar(&f.skipPhase2, "skip-phase2", false, "Run the narrative analysis only")
	flags.BoolVar(&f.phase2Only, "phase2-only", false, "Run the structured extraction only (mock runs)")
	flags.BoolVar(&f.force, "force", false, "Ignore stored results and always call the model")
	flags.StringVar(&f.model, "model", "", "Model for the narrative analysis (default from configuration)")
	flags.StringVar(&f.assistant, "assistant", "", "Assistant for the extraction run (default ASSISTANT_ID)")
	flags.BoolVar(&f.json, "json", false, "Print the report as JSON")
	flags.StringVar(&f.fixture, "fixture", "", "Serve tickets from a YAML chain fixture (mock runs)")
	if withMockSwitch {
		flags.BoolVar(&f.mock, "mock", false, "Use canned model answers and fixture tickets instead of live services")
	}
	cmd.MarkFlagsMutuallyExclusive("skip-phase2", "phase2-only")
}

func (f *runFlags) options() (service.AnalyzeOptions, error) {
	focus, err := prompt.ParseFocus(f.focus)
	if err != nil {
		return service.AnalyzeOptions{}, err
	}
	if f.phase2Only && !f.mock {
		return service.AnalyzeOptions{}, errors.New("--phase2-only is only available with --mock")
	}
	if f.fixture != "" && !f.mock {
		return service.AnalyzeOptions{}, errors.New("--fixture is only available with --mock")
	}
	return service.AnalyzeOptions{
		Focus:       focus,
		Force:       f.force,
		SkipPhase2:  f.skipPhase2,
		Phase2Only:  f.phase2Only,
		Model:       f.model,
		AssistantID: f.assistant,
	}, nil
}

func (f *runFlags) fixtures() ([]mockchain.Fixture, error) {
	if f.fixture == "" {
		return nil, nil
	}
	fx, err := mockchain.LoadFile(f.fixture)
	if err != nil {
		return nil, err
	}
	return []mockchain.Fixture{fx}, nil
}

func newAnalyzeCommand(g *globals) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "analyze <ticket_id>",
		Short: "Analyze the chain a ticket belongs to",
		Long: `Resolve the ticket into its chain, order the timeline, run the narrative
analysis and the structured extraction, and store both results. A complete
result younger than FRESHNESS_WINDOW is returned instead unless --force is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := f.options()
			if err != nil {
				return err
			}
			fixtures, err := f.fixtures()
			if err != nil {
				return err
			}
			return analyzeOne(cmd, g, pipelineOptions{mock: f.mock, fixtures: fixtures}, args[0], opts, f.json)
		},
	}
	f.register(cmd, true)
	return cmd
}

func newMockCommand(g *globals) *cobra.Command {
	f := &runFlags{mock: true}
	var complexity int
	var seed uint64
	var ticketID string
	cmd := &cobra.Command{
		Use:   "mock",
		Short: "Analyze a generated chain with canned model answers",
		Long: `Generate a synthetic chain of --complexity dispatch tickets and one more
turnup, or load one with --fixture, and run the full pipeline against it with
canned model answers. The same --seed always generates the same chain.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if complexity < 1 || complexity > mockchain.MaxComplexity {
				return fmt.Errorf("--complexity must be between 1 and %d", mockchain.MaxComplexity)
			}
			opts, err := f.options()
			if err != nil {
				return err
			}
			fixtures, err := f.fixtures()
			if err != nil {
				return err
			}
			if len(fixtures) == 0 {
				fixtures = []mockchain.Fixture{mockchain.Generate(mockchain.Options{Complexity: complexity, Seed: seed})}
			}
			fx := fixtures[0]
			seedID := fx.SeedTicketID
			if ticketID != "" {
				seedID = ticketID
			}
			if !f.json {
				fmt.Fprintf(cmd.OutOrStdout(), "Mock chain %s: %d dispatch, %d turnup tickets\n\n", fx.ChainID, len(fx.Dispatch), len(fx.Turnups))
			}
			return analyzeOne(cmd, g, pipelineOptions{mock: true, fixtures: fixtures}, seedID, opts, f.json)
		},
	}
	f.register(cmd, false)
	cmd.Flags().IntVar(&complexity, "complexity", 1, fmt.Sprintf("Number of dispatch tickets to generate (1-%d)", mockchain.MaxComplexity))
	cmd.Flags().Uint64Var(&seed, "seed", mockchain.DefaultSeed, "Generator seed")
	cmd.Flags().StringVar(&ticketID, "ticket", "", "Seed ticket to analyze (default the first dispatch)")
	return cmd
}

func analyzeOne(cmd *cobra.Command, g *globals, popts pipelineOptions, seedID string, opts service.AnalyzeOptions, asJSON bool) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx, cmd, g)
	if err != nil {
		return err
	}
	defer a.Close()

	pipeline, err := a.buildPipeline(ctx, popts)
	if err != nil {
		return err
	}
	report, err := pipeline.Analyze(ctx, seedID, opts)
	return writeAnalysis(cmd.OutOrStdout(), report, err, asJSON)
}

// writeAnalysis prints a report. A ticket that does not exist is an answer,
// not a failure; every other error is returned.
func writeAnalysis(w io.Writer, report service.Report, err error, asJSON bool) error {
	if err != nil {
		if !apperr.Is(err, apperr.KindNotFound) {
			return err
		}
		if asJSON {
			return writeJSON(w, map[string]string{
				"seedTicketId": report.SeedTicketID,
				"error":        err.Error(),
				"errorKind":    apperr.KindNotFound.String(),
			})
		}
		fmt.Fprintf(w, "Ticket %s was not found in any category.\n", report.SeedTicketID)
		return nil
	}
	if asJSON {
		return writeJSON(w, report)
	}
	printReport(w, report)
	return nil
}
