// Package main provides the paperchat CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/matsen/paperchat/internal/config"
	"github.com/matsen/paperchat/internal/logging"
	"github.com/matsen/paperchat/internal/storage"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	// humanOutput controls whether to use human-readable output
	humanOutput bool
	verbose     bool
	jsonLogs    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra errors (like missing required flags) are silenced by default
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "paperchat",
	Short: "Search and chat with conference papers",
	Long: `paperchat downloads accepted-paper metadata from a conference site,
indexes it for keyword and semantic search, and answers questions about the
papers with a retrieval-augmented chat loop.

Paper data lives in .paperchat/papers.jsonl; the SQLite database and the
embedding index under .paperchat/cache/ can always be rebuilt from it.
All commands output JSON by default; use --human for readable text.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// .env is optional
		_ = godotenv.Load()
		logging.SetVerbose(verbose)
		if jsonLogs {
			logging.SetJSON()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug details to stderr")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "log-json", false, "Write logs as JSON")
	rootCmd.Version = Version
}

// getStartingDirectory returns the directory to start searching for a repository.
// Checks global config data_path first, then current working directory.
func getStartingDirectory() (string, int) {
	root, err := config.ValidateDataPath()
	if err != nil {
		return "", outputError(ExitConfigError, "%v", err)
	}
	if root != "" {
		return root, 0
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", outputError(ExitError, "getting current directory: %v", err)
	}
	return cwd, 0
}

// mustFindRepository finds and validates the repository, exits on error.
// Returns the repository root path.
func mustFindRepository() string {
	start, exitCode := getStartingDirectory()
	if exitCode != 0 {
		os.Exit(exitCode)
	}

	repoRoot, err := config.FindRepository(start)
	if err != nil {
		fmt.Fprintln(os.Stderr, config.HelpfulConfigMessage())
		os.Exit(ExitConfigError)
	}
	return repoRoot
}

// mustLoadConfig loads configuration with environment overrides, exits on error.
func mustLoadConfig(repoRoot string) *config.Config {
	cfg, err := config.Load(repoRoot)
	if err != nil {
		exitWithError(ExitConfigError, "loading config: %v", err)
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		exitWithError(ExitConfigError, "invalid configuration: %v", err)
	}
	return cfg
}

// mustOpenDatabase opens the SQLite database, exits on error.
// The database is rebuilt first when papers.jsonl changed since the last sync.
// The caller is responsible for calling Close() on the returned DB.
func mustOpenDatabase(repoRoot string) *storage.DB {
	if err := os.MkdirAll(config.CachePath(repoRoot), 0755); err != nil {
		exitWithError(ExitError, "creating cache directory: %v", err)
	}
	db, err := storage.OpenDB(config.DBPath(repoRoot))
	if err != nil {
		exitWithError(ExitError, "opening database: %v", err)
	}
	rebuilt, n, err := db.SyncFromJSONL(config.PapersPath(repoRoot))
	if err != nil {
		db.Close()
		exitWithError(ExitDataError, "syncing database from papers.jsonl: %v", err)
	}
	if rebuilt {
		logging.NewLogger("storage").WithField("papers", n).Info("database rebuilt from papers.jsonl")
	}
	return db
}
