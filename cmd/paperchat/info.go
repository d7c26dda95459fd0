package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/matsen/paperchat/internal/config"
	"github.com/matsen/paperchat/internal/semantic"
	"github.com/matsen/paperchat/internal/storage"
)

func init() {
	rootCmd.AddCommand(infoCmd)
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show repository statistics and filter values",
	Long: `Show how many papers are stored, how many carry abstracts, the state of
the local embedding index, and the sessions, topics and event types
available for filtering.`,
	Args: cobra.NoArgs,
	RunE: runInfo,
}

// InfoResult is the response for the info command.
type InfoResult struct {
	Conference         string                 `json:"conference"`
	Year               int                    `json:"year"`
	PapersTotal        int                    `json:"papers_total"`
	PapersWithAbstract int                    `json:"papers_with_abstract"`
	PapersEmbedded     int                    `json:"papers_embedded"`
	VectorStore        string                 `json:"vector_store"`
	IndexSizeBytes     int64                  `json:"index_size_bytes,omitempty"`
	Filters            *storage.FilterOptions `json:"filters"`
}

func runInfo(cmd *cobra.Command, args []string) error {
	repoRoot := mustFindRepository()
	cfg := mustLoadConfig(repoRoot)

	db := mustOpenDatabase(repoRoot)
	defer db.Close()

	total, err := db.Count()
	if err != nil {
		exitWithError(ExitError, "counting papers: %v", err)
	}
	withAbstract, err := db.CountPapersWithAbstract(1)
	if err != nil {
		exitWithError(ExitError, "counting abstracts: %v", err)
	}
	embedded, err := db.CountEmbeddingMetadata()
	if err != nil {
		exitWithError(ExitError, "counting embeddings: %v", err)
	}
	filters, err := db.DistinctValues()
	if err != nil {
		exitWithError(ExitError, "listing filter values: %v", err)
	}

	result := InfoResult{
		Conference:         cfg.Conference,
		Year:               cfg.Year,
		PapersTotal:        total,
		PapersWithAbstract: withAbstract,
		PapersEmbedded:     embedded,
		VectorStore:        cfg.VectorStore.Type,
		Filters:            filters,
	}
	if cfg.VectorStore.Type == "local" {
		// A missing index just leaves the size unset
		if size, err := semantic.IndexSize(config.IndexPath(repoRoot)); err == nil {
			result.IndexSizeBytes = size
		}
	}

	if !humanOutput {
		outputJSON(result)
		return nil
	}

	fmt.Printf("%s %d\n\n", color.New(color.Bold).Sprint(strings.ToUpper(result.Conference)), result.Year)
	fmt.Printf("Papers:\n")
	fmt.Printf("  Total: %d\n", result.PapersTotal)
	fmt.Printf("  With abstracts: %d\n", result.PapersWithAbstract)
	fmt.Printf("  Embedded: %d\n", result.PapersEmbedded)
	fmt.Printf("\nVector store: %s", result.VectorStore)
	if result.IndexSizeBytes > 0 {
		fmt.Printf(" (%s)", formatBytes(result.IndexSizeBytes))
	}
	fmt.Println()
	printValues("Sessions", filters.Sessions)
	printValues("Topics", filters.Topics)
	printValues("Event types", filters.EventTypes)
	return nil
}

func printValues(label string, values []string) {
	if len(values) == 0 {
		return
	}
	fmt.Printf("\n%s (%d):\n", label, len(values))
	for _, v := range values {
		fmt.Printf("  %s\n", v)
	}
}
