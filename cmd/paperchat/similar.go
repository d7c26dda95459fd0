package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matsen/paperchat/internal/embedding"
	"github.com/matsen/paperchat/internal/retrieval"
)

var (
	similarLimit      int
	similarAbstracts  bool
	similarSessions   []string
	similarTopics     []string
	similarEventTypes []string
)

func init() {
	rootCmd.AddCommand(similarCmd)

	similarCmd.Flags().IntVarP(&similarLimit, "limit", "n", 10, "Maximum number of results")
	similarCmd.Flags().BoolVar(&similarAbstracts, "abstracts", false, "Include abstracts in the output")
	addFilterFlags(similarCmd, &similarSessions, &similarTopics, &similarEventTypes)
}

// SimilarSource is the source paper info for similar papers response.
type SimilarSource struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// SimilarResponse is the response for the similar papers command.
type SimilarResponse struct {
	Source  SimilarSource       `json:"source"`
	Similar []PaperSearchResult `json:"similar"`
	Total   int                 `json:"total"`
	Model   string              `json:"model"`
}

var similarCmd = &cobra.Command{
	Use:   "similar <paper-id>",
	Short: "Find papers similar to a specific paper",
	Long: `Find papers whose title and abstract are closest to a given paper's.
The source paper is excluded from results. Filter flags restrict the
candidates, e.g. to find related orals for a poster.

Requires the semantic index to be built first with 'paperchat index build'.`,
	Args: cobra.ExactArgs(1),
	RunE: runSimilar,
}

func runSimilar(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	if similarLimit <= 0 {
		exitWithError(ExitInvalidInput, "--limit must be positive, got %d", similarLimit)
	}

	repoRoot := mustFindRepository()
	cfg := mustLoadConfig(repoRoot)

	db := mustOpenDatabase(repoRoot)
	defer db.Close()

	source, err := db.GetByID(args[0])
	if err != nil {
		exitWithError(ExitError, "getting paper: %v", err)
	}
	if source == nil {
		exitWithError(ExitNotFound, "paper not found: %s", args[0])
	}

	// The local index compares stored vectors; only qdrant re-embeds the paper.
	var provider embedding.Provider
	if cfg.VectorStore.Type == "qdrant" {
		provider = mustEmbeddingProvider(ctx, cfg)
	} else if provider, err = embeddingProviderNoCheck(cfg); err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	store := mustOpenVectorStore(ctx, repoRoot, cfg, provider, true)

	filter := parseFilterFlags(similarSessions, similarTopics, similarEventTypes)
	hits, err := retrieval.NewRetriever(provider, store).Similar(ctx, *source, similarLimit, filter)
	if errors.Is(err, retrieval.ErrNotIndexed) {
		exitWithError(ExitDataError, "paper %s is not in the semantic index (it may have no abstract; rebuild with 'paperchat index build')", source.ID)
	}
	if err != nil {
		exitWithError(ExitBackendError, "finding similar papers: %v", err)
	}

	ids := make([]string, len(hits))
	distances := make(map[string]float64, len(hits))
	for i, h := range hits {
		ids[i] = h.PaperID
		distances[h.PaperID] = h.Distance
	}
	papers, err := db.GetByIDs(ids)
	if err != nil {
		exitWithError(ExitError, "loading papers: %v", err)
	}

	results := make([]PaperSearchResult, len(papers))
	for i, p := range papers {
		results[i] = toSearchResult(p, similarAbstracts)
		sim := 1 - distances[p.ID]
		results[i].Similarity = &sim
	}

	if humanOutput {
		fmt.Printf("Papers similar to %s:\n%q\n\n", source.ID, truncateString(source.Title, TextWrapWidth))
		if len(results) == 0 {
			fmt.Println("No similar papers found.")
			return nil
		}
		printSearchResultsHuman(results)
	} else {
		outputJSON(SimilarResponse{
			Source:  SimilarSource{ID: source.ID, Title: source.Title},
			Similar: results,
			Total:   len(results),
			Model:   provider.ModelName(),
		})
	}
	return nil
}
