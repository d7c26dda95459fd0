package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/matsen/paperchat/internal/config"
)

var (
	initConference string
	initYear       int
)

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initConference, "conference", config.DefaultConference, "Conference slug used for downloads")
	initCmd.Flags().IntVar(&initYear, "year", config.DefaultYear, "Conference year")
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new paperchat repository",
	Long: `Initialize a new paperchat repository in the current directory.

Creates:
  .paperchat/
  ├── papers.jsonl    # Empty file, source of truth for paper metadata
  ├── config.yml      # Default config
  ├── downloads/      # Cached conference listings
  ├── exports/        # Exported conversations
  └── cache/          # SQLite database and embedding index (rebuildable)`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	root, err := os.Getwd()
	if err != nil {
		exitWithError(ExitError, "getting current directory: %v", err)
	}

	if config.IsRepository(root) {
		exitWithError(ExitError, "directory already contains a paperchat repository")
	}

	for _, dir := range []string{
		config.PaperchatPath(root),
		config.CachePath(root),
		config.DownloadsPath(root),
		config.ExportsPath(root),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			exitWithError(ExitError, "creating %s: %v", dir, err)
		}
	}

	papersFile, err := os.Create(config.PapersPath(root))
	if err != nil {
		exitWithError(ExitError, "creating papers.jsonl: %v", err)
	}
	papersFile.Close()

	cfg := config.Default()
	cfg.Conference = initConference
	cfg.Year = initYear
	if err := cfg.Save(root); err != nil {
		exitWithError(ExitError, "%v", err)
	}

	if humanOutput {
		fmt.Printf("%s paperchat repository in %s\n", color.GreenString("Initialized"), config.PaperchatPath(root))
		fmt.Printf("Next: run 'paperchat download' to fetch %s %d papers.\n", cfg.Conference, cfg.Year)
	} else {
		outputJSON(StatusResponse{Status: "initialized", Path: config.PaperchatPath(root)})
	}
	return nil
}
