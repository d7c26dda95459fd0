package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matsen/paperchat/internal/config"
)

func init() {
	rootCmd.AddCommand(rebuildCmd)
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the query layer from source data",
	Long: `Rebuild the SQLite query database from papers.jsonl.

Use this after editing papers.jsonl by hand or if the database becomes corrupted.
Embedding metadata is kept; run 'paperchat index check' afterwards.`,
	RunE: runRebuild,
}

// RebuildResult is the response for the rebuild command.
type RebuildResult struct {
	Status string `json:"status"`
	Papers int    `json:"papers"`
}

func runRebuild(cmd *cobra.Command, args []string) error {
	repoRoot := mustFindRepository()

	db := mustOpenDatabase(repoRoot)
	defer db.Close()

	count, err := db.RebuildFromJSONL(config.PapersPath(repoRoot))
	if err != nil {
		exitWithError(ExitDataError, "rebuilding database: %v", err)
	}

	if humanOutput {
		fmt.Printf("Rebuilt database with %d papers\n", count)
	} else {
		outputJSON(RebuildResult{Status: "rebuilt", Papers: count})
	}
	return nil
}
