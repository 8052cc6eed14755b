package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abdulmalikadeyemo/email-assistant/internal/app"
	"github.com/abdulmalikadeyemo/email-assistant/jobs"
)

var runCmd = &cobra.Command{
	Use:   "run [email text]",
	Short: "Draft a reply to one email",
	Long: `Runs the workflow once and prints the final email. The email comes from the
argument, from --file, or from standard input.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if offline, _ := cmd.Flags().GetBool("offline"); offline {
			cfg.Model.Provider = "mock"
			cfg.Retrieval.Embedder = "hash"
			cfg.Retrieval.Index = "memory"
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}

		email, err := readEmail(cmd, args)
		if err != nil {
			return err
		}
		seedArgs, _ := cmd.Flags().GetStringToString("seed")
		seed := make(map[string]any, len(seedArgs))
		for k, v := range seedArgs {
			seed[k] = v
		}

		a, err := app.New(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		job, runErr := a.Jobs.Run(cmd.Context(), jobs.Request{Email: email, Seed: seed})
		if job == nil {
			return runErr
		}

		out := cmd.OutOrStdout()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(job); err != nil {
				return err
			}
			return runErr
		}

		if runErr != nil {
			return fmt.Errorf("run %s failed: %w", job.ID, runErr)
		}
		report := job.Result.Report
		fmt.Fprintf(out, "Category: %s\n", report.EmailCategory)
		fmt.Fprintf(out, "Steps:    %d\n", report.NumSteps)
		fmt.Fprintf(out, "Tokens:   %d in / %d out\n\n", job.Result.Cost.InputTokens, job.Result.Cost.OutputTokens)
		fmt.Fprintln(out, report.FinalEmail)
		return nil
	},
}

func readEmail(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	var (
		data []byte
		err  error
	)
	if path, _ := cmd.Flags().GetString("file"); path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return "", err
	}
	email := strings.TrimSpace(string(data))
	if email == "" {
		return "", errors.New("no email given: pass it as an argument, with --file, or on stdin")
	}
	return email, nil
}

func init() {
	runCmd.Flags().StringP("file", "f", "", "Read the email from a file")
	runCmd.Flags().StringToString("seed", nil, "Extra state fields (key=value), repeatable")
	runCmd.Flags().Bool("json", false, "Print the whole job record as JSON")
	runCmd.Flags().Bool("offline", false, "Use the offline model and an empty in-memory knowledge base")
	rootCmd.AddCommand(runCmd)
}
