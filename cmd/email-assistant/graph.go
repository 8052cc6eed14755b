package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abdulmalikadeyemo/email-assistant/internal/app"
	"github.com/abdulmalikadeyemo/email-assistant/retrieval"
	"github.com/abdulmalikadeyemo/email-assistant/workflow"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the workflow graph as a Mermaid flowchart",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("route-research") {
			cfg.Workflow.RouteResearch, _ = cmd.Flags().GetBool("route-research")
		}

		gen, err := app.NewGenerator(app.OfflineModel(), cfg.Workflow, nil)
		if err != nil {
			return err
		}
		g, err := workflow.Build(workflow.Deps{
			Generator: gen,
			Retriever: retrieval.RetrieverFunc(func(context.Context, string, int) ([]retrieval.Document, error) { return nil, nil }),
		}, workflow.Options{RouteResearch: cfg.Workflow.RouteResearch})
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), g.Mermaid())
		return nil
	},
}

func init() {
	graphCmd.Flags().Bool("route-research", false, "Render the graph with the research router enabled")
	rootCmd.AddCommand(graphCmd)
}
