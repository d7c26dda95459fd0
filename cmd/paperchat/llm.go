package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(llmCmd)
	llmCmd.AddCommand(llmCheckCmd)
}

var llmCmd = &cobra.Command{
	Use:   "llm",
	Short: "Inspect the inference backend",
}

// LLMCheckResult is the response for llm check.
type LLMCheckResult struct {
	Status  string `json:"status"`
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	Error   string `json:"error,omitempty"`
}

var llmCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that the OpenAI-compatible endpoint answers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		repoRoot := mustFindRepository()
		cfg := mustLoadConfig(repoRoot)

		ctx, cancel := context.WithTimeout(context.Background(), backendCheckTimeout)
		defer cancel()

		client := newLLMClient(cfg)
		result := LLMCheckResult{Status: "available", BaseURL: cfg.LLM.BaseURL, Model: client.ModelName()}
		exitCode := ExitSuccess
		if err := client.IsAvailable(ctx); err != nil {
			result.Status = "unavailable"
			result.Error = err.Error()
			exitCode = ExitBackendError
		}

		if humanOutput {
			status := color.GreenString(result.Status)
			if exitCode != ExitSuccess {
				status = color.RedString(result.Status)
			}
			fmt.Printf("%s: %s (model %s)\n", result.BaseURL, status, result.Model)
			if result.Error != "" {
				fmt.Printf("  %s\n", result.Error)
			}
		} else {
			outputJSON(result)
		}
		if exitCode != ExitSuccess {
			os.Exit(exitCode)
		}
		return nil
	},
}
