package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/matsen/paperchat/internal/config"
	"github.com/matsen/paperchat/internal/download"
	"github.com/matsen/paperchat/internal/logging"
	"github.com/matsen/paperchat/internal/storage"
)

var (
	downloadConference string
	downloadYear       int
	downloadForce      bool
)

func init() {
	rootCmd.AddCommand(downloadCmd)
	downloadCmd.Flags().StringVar(&downloadConference, "conference", "", "Conference slug (default from config)")
	downloadCmd.Flags().IntVar(&downloadYear, "year", 0, "Conference year (default from config)")
	downloadCmd.Flags().BoolVarP(&downloadForce, "force", "f", false, "Ignore the cached listing and download again")
}

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download accepted papers from the conference site",
	Long: `Download the orals and posters listing for a conference year, merge it
into papers.jsonl and refresh the SQLite database.

The raw listing is cached under .paperchat/downloads/; use --force to
download it again.`,
	RunE: runDownload,
}

// DownloadResult is the response for the download command.
type DownloadResult struct {
	Status     string `json:"status"`
	Conference string `json:"conference"`
	Year       int    `json:"year"`
	Received   int    `json:"received"`
	Mapped     int    `json:"mapped"`
	Skipped    int    `json:"skipped"`
	FromCache  bool   `json:"from_cache"`
	Added      int    `json:"added"`
	Updated    int    `json:"updated"`
	Total      int    `json:"total"`
}

func runDownload(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	repoRoot := mustFindRepository()
	cfg := mustLoadConfig(repoRoot)

	conference := cfg.Conference
	if downloadConference != "" {
		conference = downloadConference
	}
	year := cfg.Year
	if downloadYear != 0 {
		year = downloadYear
	}

	client := download.NewClient(
		download.WithBaseURL(cfg.Download.BaseURL),
		download.WithRateLimit(cfg.Download.RateLimit),
		download.WithCacheDir(config.DownloadsPath(repoRoot)),
		download.WithHTTPClient(&http.Client{Timeout: cfg.DownloadTimeout()}),
		download.WithLogger(logging.NewLogger("download")),
	)

	if humanOutput {
		fmt.Fprintf(os.Stderr, "Fetching %s...\n", client.URL(conference, year))
	}
	papers, stats, err := client.Fetch(ctx, conference, year, downloadForce)
	if err != nil {
		if download.IsNotFound(err) {
			exitWithError(ExitNotFound, "no listing published for %s %d: %v", conference, year, err)
		}
		exitWithError(ExitDataError, "downloading papers: %v", err)
	}

	// Open (and sync) the database before papers.jsonl changes
	db := mustOpenDatabase(repoRoot)
	defer db.Close()

	// Merge into the JSONL source of truth, then refresh the query layer
	papersPath := config.PapersPath(repoRoot)
	existing, err := storage.ReadAll(papersPath)
	if err != nil {
		exitWithError(ExitDataError, "reading papers.jsonl: %v", err)
	}
	merged, result := storage.Merge(existing, papers)
	if err := storage.WriteAll(papersPath, merged); err != nil {
		exitWithError(ExitError, "writing papers.jsonl: %v", err)
	}

	if _, err := db.UpsertPapers(merged); err != nil {
		exitWithError(ExitError, "updating database: %v", err)
	}
	if err := db.MarkSynced(papersPath); err != nil {
		exitWithError(ExitError, "recording sync: %v", err)
	}

	if humanOutput {
		source := "downloaded"
		if stats.FromCache {
			source = "from cache"
		}
		fmt.Printf("%s %d papers for %s %d (%s)\n", color.GreenString("Fetched"), stats.Mapped, conference, year, source)
		if stats.Skipped > 0 {
			fmt.Printf("  Skipped: %d records without id or title\n", stats.Skipped)
		}
		fmt.Printf("  Added: %d, Updated: %d, Total: %d\n", result.Added, result.Updated, result.Total)
		fmt.Println("Next: run 'paperchat index build' to embed the abstracts.")
	} else {
		outputJSON(DownloadResult{
			Status:     "complete",
			Conference: conference,
			Year:       year,
			Received:   stats.Received,
			Mapped:     stats.Mapped,
			Skipped:    stats.Skipped,
			FromCache:  stats.FromCache,
			Added:      result.Added,
			Updated:    result.Updated,
			Total:      result.Total,
		})
	}
	return nil
}
