package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"ticketchain/internal/chains/prompt"
	"ticketchain/platform/ai/openai"
)

func newSetupAssistantCommand(g *globals) *cobra.Command {
	var name, model string
	cmd := &cobra.Command{
		Use:   "setup-assistant",
		Short: "Create the extraction assistant and print its id",
		Long: `Create a file_search assistant configured for structured chain extraction.
Put the printed id in ASSISTANT_ID.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			if cfg.GetOpenAIAPIKey() == "" {
				return errors.New("OPENAI_API_KEY is required to create an assistant")
			}
			if model == "" {
				model = cfg.OpenAIModel
			}

			client := openai.NewAssistantsClient(openai.AssistantsConfig{
				APIKey:  cfg.GetOpenAIAPIKey(),
				BaseURL: cfg.GetOpenAIBaseURL(),
				Timeout: cfg.GetModelTimeout(),
			})
			created, err := client.CreateAssistant(cmd.Context(), openai.CreateAssistantRequest{
				Model:        model,
				Name:         name,
				Description:  "Extracts structured relationships from dispatch and turnup ticket chains",
				Instructions: prompt.AssistantInstructions,
			})
			if err != nil {
				return fmt.Errorf("create assistant: %w", err)
			}
			log.Info("assistant created", "assistantId", created.ID, "model", created.Model)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created assistant %s (%s, model %s)\n", created.ID, created.Name, created.Model)
			fmt.Fprintf(out, "Add it to your environment:\n\n  ASSISTANT_ID=%s\n", created.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "Ticket Chain Analyst", "Assistant name")
	cmd.Flags().StringVar(&model, "model", "", "Assistant model (default OPENAI_MODEL)")
	return cmd
}
