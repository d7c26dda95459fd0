package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matsen/paperchat/internal/opener"
)

var (
	openPaper   bool
	openBrowser string
	openPrint   bool
)

func init() {
	rootCmd.AddCommand(openCmd)
	openCmd.Flags().BoolVar(&openPaper, "paper", false, "Open the paper link (e.g. OpenReview) instead of the conference page")
	openCmd.Flags().StringVar(&openBrowser, "browser", "", "Browser to use (default: system handler)")
	openCmd.Flags().BoolVar(&openPrint, "print", false, "Print the URL without opening it")
}

var openCmd = &cobra.Command{
	Use:   "open <id>",
	Short: "Open a paper's page in the browser",
	Args:  cobra.ExactArgs(1),
	RunE:  runOpen,
}

// OpenResult is the response for the open command.
type OpenResult struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Opened bool   `json:"opened"`
}

func runOpen(cmd *cobra.Command, args []string) error {
	repoRoot := mustFindRepository()
	db := mustOpenDatabase(repoRoot)
	defer db.Close()

	p, err := db.GetByID(args[0])
	if err != nil {
		exitWithError(ExitError, "getting paper: %v", err)
	}
	if p == nil {
		exitWithError(ExitNotFound, "paper not found: %s", args[0])
	}

	target, err := opener.URLFor(*p, openPaper)
	if err != nil {
		if errors.Is(err, opener.ErrNoURL) {
			exitWithError(ExitNotFound, "%v", err)
		}
		exitWithError(ExitDataError, "%v", err)
	}

	result := OpenResult{ID: p.ID, URL: target}
	if !openPrint {
		if err := opener.NewOpener(openBrowser).Open(target); err != nil {
			exitWithError(ExitError, "opening browser: %v", err)
		}
		result.Opened = true
	}

	if humanOutput {
		fmt.Println(target)
	} else {
		outputJSON(result)
	}
	return nil
}
