package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abdulmalikadeyemo/email-assistant/internal/app"
	"github.com/abdulmalikadeyemo/email-assistant/retrieval"
	"github.com/abdulmalikadeyemo/email-assistant/workflow"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration, prompts and workflow graph",
	Long: `Validates the configuration file, renders every prompt template and compiles
the workflow graph. No model or network calls are made.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration:\n%w", err)
		}

		gen, err := app.NewGenerator(app.OfflineModel(), cfg.Workflow, nil)
		if err != nil {
			return err
		}
		for _, id := range gen.Prompts().IDs() {
			if _, err := gen.Prompts().Render(id, sampleVars(cfg.Workflow.Company, cfg.Workflow.Signer)); err != nil {
				return fmt.Errorf("prompt %s: %w", id, err)
			}
		}

		g, err := workflow.Build(workflow.Deps{
			Generator: gen,
			Retriever: retrieval.RetrieverFunc(func(context.Context, string, int) ([]retrieval.Document, error) { return nil, nil }),
		}, workflow.Options{
			RouteResearch: cfg.Workflow.RouteResearch,
			MaxQuestions:  cfg.Workflow.MaxQuestions,
			RetrievalK:    cfg.Workflow.RetrievalK,
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "OK: %d prompts, %d nodes, entry %s\n",
			len(gen.Prompts().IDs()), len(g.Nodes()), g.Entry())
		return nil
	},
}

// sampleVars fills every variable the built-in templates reference.
func sampleVars(company, signer string) map[string]any {
	return map[string]any{
		"company":        company,
		"signer":         signer,
		"max_questions":  3,
		"initial_email":  "Hello, how much is a day pass?",
		"email_category": workflow.CategoryPriceEnquiry,
		"research_info":  []string{"Day passes cost 40 dollars."},
		"draft_email":    "Dear customer, a day pass costs 40 dollars.",
		"email_analysis": "draft_analysis: fine",
		"question":       "How much is a day pass?",
		"context":        []string{"Day passes cost 40 dollars."},
	}
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
