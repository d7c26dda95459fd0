package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/matsen/paperchat/internal/config"
	"github.com/matsen/paperchat/internal/logging"
	"github.com/matsen/paperchat/internal/retrieval"
	"github.com/matsen/paperchat/internal/semantic"
)

var (
	noProgress bool
	fullBuild  bool
)

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexBuildCmd)
	indexCmd.AddCommand(indexCheckCmd)

	indexBuildCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Suppress progress output")
	indexBuildCmd.Flags().BoolVar(&fullBuild, "full", false, "Clear the index and embed every paper again")
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the semantic search index",
	Long:  `Commands for building and checking the semantic search index.`,
}

// IndexBuildResult is the response for index build command.
type IndexBuildResult struct {
	Status          string  `json:"status"`
	PapersIndexed   int     `json:"papers_indexed"`
	PapersSkipped   int     `json:"papers_skipped"`
	PapersCurrent   int     `json:"papers_current"`
	SkippedReason   string  `json:"skipped_reason"`
	Incremental     bool    `json:"incremental"`
	DurationSeconds float64 `json:"duration_seconds"`
	Model           string  `json:"model"`
	VectorStore     string  `json:"vector_store"`
	IndexSizeBytes  int64   `json:"index_size_bytes,omitempty"`
}

var indexBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build or update the semantic index",
	Long: `Embed paper titles and abstracts into the configured vector store.

By default only papers whose embedding is missing or out of date are embedded;
use --full to start over. With the default Ollama provider, run
'ollama pull all-minilm:l6-v2' first to download the model.`,
	RunE: runIndexBuild,
}

// outputBuildResults outputs the build statistics in the appropriate format.
func outputBuildResults(result IndexBuildResult, elapsed time.Duration) {
	if humanOutput {
		fmt.Printf("\nBuild complete:\n")
		fmt.Printf("  Papers indexed: %d\n", result.PapersIndexed)
		if result.Incremental {
			fmt.Printf("  Papers already current: %d\n", result.PapersCurrent)
		}
		fmt.Printf("  Papers skipped: %d (no abstract)\n", result.PapersSkipped)
		fmt.Printf("  Time elapsed: %s\n", formatDuration(elapsed))
		if result.IndexSizeBytes > 0 {
			fmt.Printf("  Index size: %s\n", formatBytes(result.IndexSizeBytes))
		}
		fmt.Printf("  Model: %s\n", result.Model)
		fmt.Printf("  Vector store: %s\n", result.VectorStore)
	} else {
		outputJSON(result)
	}
}

func runIndexBuild(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	repoRoot := mustFindRepository()
	cfg := mustLoadConfig(repoRoot)

	provider := mustEmbeddingProvider(ctx, cfg)
	store := mustOpenVectorStore(ctx, repoRoot, cfg, provider, false)

	db := mustOpenDatabase(repoRoot)
	defer db.Close()

	papers, err := db.ListAll(0)
	if err != nil {
		exitWithError(ExitError, "listing papers: %v", err)
	}
	if len(papers) == 0 {
		exitWithError(ExitDataError, "no papers in the database\n\nRun 'paperchat download' first.")
	}

	// A model change invalidates every stored vector
	incremental := !fullBuild
	if local, ok := store.(*semantic.Store); ok && local.CheckModel(provider.ModelName()) != nil {
		incremental = false
	}

	builder := retrieval.NewBuilder(provider, store, db)
	builder.SetLogger(logging.NewLogger("index"))
	showProgress := !noProgress && humanOutput
	if showProgress {
		builder.SetProgressReporter(retrieval.ProgressFunc(printProgress))
		fmt.Fprintf(os.Stderr, "Building semantic index...\n")
	}

	stats, err := builder.Build(ctx, papers, incremental)
	if showProgress {
		fmt.Fprintf(os.Stderr, "\r%*s\r", progressLineClearWidth, "")
	}
	if err != nil {
		exitWithError(ExitBackendError, "building index: %v", err)
	}

	result := IndexBuildResult{
		Status:          "complete",
		PapersIndexed:   stats.PapersIndexed,
		PapersSkipped:   stats.PapersSkipped,
		PapersCurrent:   stats.PapersCurrent,
		SkippedReason:   stats.SkippedReason,
		Incremental:     stats.Incremental,
		DurationSeconds: stats.Duration.Seconds(),
		Model:           provider.ModelName(),
		VectorStore:     cfg.VectorStore.Type,
	}
	if cfg.VectorStore.Type == "local" {
		if size, err := semantic.IndexSize(config.IndexPath(repoRoot)); err == nil {
			result.IndexSizeBytes = size
		} else if humanOutput {
			fmt.Fprintf(os.Stderr, "Warning: could not determine index size: %v\n", err)
		}
	}

	outputBuildResults(result, stats.Duration)
	return nil
}

// IndexCheckResult is the response for index check command.
type IndexCheckResult struct {
	Status             string   `json:"status"`
	PapersTotal        int      `json:"papers_total"`
	PapersWithAbstract int      `json:"papers_with_abstract"`
	PapersIndexed      int      `json:"papers_indexed"`
	PapersStale        int      `json:"papers_stale"`
	StaleIDs           []string `json:"stale_ids,omitempty"`
	Model              string   `json:"model"`
	VectorStore        string   `json:"vector_store"`
	Recommendation     string   `json:"recommendation,omitempty"`
}

var indexCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check semantic index health",
	Long: `Check the health and status of the semantic index.

Exits with status 6 when papers are missing from the index or were embedded
from different text or by a different model.`,
	RunE: runIndexCheck,
}

// outputCheckResults outputs the index check results in the appropriate format.
func outputCheckResults(result IndexCheckResult, exitCode int) {
	if humanOutput {
		fmt.Printf("Semantic Index Status: %s\n\n", result.Status)
		fmt.Printf("Papers:\n")
		fmt.Printf("  Total in database: %d\n", result.PapersTotal)
		fmt.Printf("  With abstracts: %d\n", result.PapersWithAbstract)
		fmt.Printf("  In vector store: %d\n", result.PapersIndexed)
		fmt.Printf("  Missing or stale: %d\n", result.PapersStale)
		fmt.Printf("\nIndex Info:\n")
		fmt.Printf("  Model: %s\n", result.Model)
		fmt.Printf("  Vector store: %s\n", result.VectorStore)
		if result.Recommendation != "" {
			fmt.Printf("\n%s\n", result.Recommendation)
		}
	} else {
		outputJSON(result)
	}

	if exitCode != ExitSuccess {
		os.Exit(exitCode)
	}
}

func runIndexCheck(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	repoRoot := mustFindRepository()
	cfg := mustLoadConfig(repoRoot)

	// Only the model name is needed, so no availability probe
	provider, err := embeddingProviderNoCheck(cfg)
	if err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	store := mustOpenVectorStore(ctx, repoRoot, cfg, provider, true)

	db := mustOpenDatabase(repoRoot)
	defer db.Close()

	totalCount, err := db.Count()
	if err != nil {
		exitWithError(ExitError, "counting papers: %v", err)
	}
	abstractCount, err := db.CountPapersWithAbstract(1)
	if err != nil {
		exitWithError(ExitError, "counting abstracts: %v", err)
	}
	indexed, err := store.Count(ctx)
	if err != nil {
		exitWithError(ExitBackendError, "counting vectors: %v", err)
	}
	stale, err := db.ListStaleEmbeddings(provider.ModelName(), retrieval.TextHash)
	if err != nil {
		exitWithError(ExitError, "checking embeddings: %v", err)
	}

	status := "healthy"
	var recommendation string
	exitCode := ExitSuccess
	if len(stale) > 0 {
		status = "stale"
		recommendation = "Run 'paperchat index build' to update the index"
		exitCode = ExitIndexStale
	}

	result := IndexCheckResult{
		Status:             status,
		PapersTotal:        totalCount,
		PapersWithAbstract: abstractCount,
		PapersIndexed:      indexed,
		PapersStale:        len(stale),
		Model:              provider.ModelName(),
		VectorStore:        cfg.VectorStore.Type,
		Recommendation:     recommendation,
	}
	if len(stale) > 0 && len(stale) <= 10 {
		result.StaleIDs = stale
	}

	outputCheckResults(result, exitCode)
	return nil
}

const (
	// progressBarWidth is the width in characters for terminal progress display.
	progressBarWidth = 30
	// progressLineClearWidth is the width needed to clear the entire progress line.
	// Should be wider than progressBarWidth + surrounding text (numbers, percentage, brackets).
	progressLineClearWidth = 50
)

// buildProgressBar creates a progress bar string of the given width.
// Returns a string like "[=====>    ]" showing progress.
func buildProgressBar(current, total, width int) string {
	if total == 0 {
		return strings.Repeat(" ", width)
	}
	filled := (width * current) / total
	if filled >= width {
		return strings.Repeat("=", width)
	}
	return strings.Repeat("=", filled) + ">" + strings.Repeat(" ", width-filled-1)
}

// printProgress prints a progress bar to stderr.
func printProgress(current, total int) {
	if total == 0 {
		return
	}
	pct := float64(current) / float64(total) * 100
	bar := buildProgressBar(current, total, progressBarWidth)
	fmt.Fprintf(os.Stderr, "\r[%s] %d/%d (%.0f%%)", bar, current, total, pct)
}
