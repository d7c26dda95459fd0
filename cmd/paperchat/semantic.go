package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matsen/paperchat/internal/retrieval"
)

var (
	semanticLimit      int
	semanticAbstracts  bool
	semanticSessions   []string
	semanticTopics     []string
	semanticEventTypes []string
)

func init() {
	rootCmd.AddCommand(semanticCmd)

	semanticCmd.Flags().IntVarP(&semanticLimit, "limit", "n", 10, "Maximum number of results")
	semanticCmd.Flags().BoolVar(&semanticAbstracts, "abstracts", false, "Include abstracts in the output")
	addFilterFlags(semanticCmd, &semanticSessions, &semanticTopics, &semanticEventTypes)
}

// SemanticResponse is the response for the semantic search command.
type SemanticResponse struct {
	Query   string              `json:"query"`
	Results []PaperSearchResult `json:"results"`
	Total   int                 `json:"total"`
	Model   string              `json:"model"`
}

var semanticCmd = &cobra.Command{
	Use:   "semantic <query>",
	Short: "Search papers by semantic similarity",
	Long: `Search papers using semantic similarity to find conceptually related papers.

Unlike keyword search, semantic search understands the meaning of your query
and finds papers with related concepts, even without exact word matches.

Requires the semantic index to be built first with 'paperchat index build'.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSemantic,
}

func runSemantic(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		exitWithError(ExitInvalidInput, "search query cannot be empty")
	}

	repoRoot := mustFindRepository()
	cfg := mustLoadConfig(repoRoot)

	provider := mustEmbeddingProvider(ctx, cfg)
	store := mustOpenVectorStore(ctx, repoRoot, cfg, provider, true)

	filter := parseFilterFlags(semanticSessions, semanticTopics, semanticEventTypes)
	hits, err := retrieval.NewRetriever(provider, store).Search(ctx, query, semanticLimit, filter)
	if err != nil {
		exitWithError(ExitBackendError, "searching index: %v", err)
	}

	db := mustOpenDatabase(repoRoot)
	defer db.Close()

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.PaperID
	}
	papers, err := db.GetByIDs(ids)
	if err != nil {
		exitWithError(ExitError, "loading papers: %v", err)
	}

	distances := make(map[string]float64, len(hits))
	for _, h := range hits {
		distances[h.PaperID] = h.Distance
	}
	results := make([]PaperSearchResult, len(papers))
	for i, p := range papers {
		results[i] = toSearchResult(p, semanticAbstracts)
		sim := 1 - distances[p.ID]
		results[i].Similarity = &sim
	}

	if humanOutput {
		if len(results) == 0 {
			fmt.Println("No similar papers found.")
			return nil
		}
		fmt.Printf("Found %d papers similar to %q:\n\n", len(results), query)
		printSearchResultsHuman(results)
	} else {
		outputJSON(SemanticResponse{
			Query:   query,
			Results: results,
			Total:   len(results),
			Model:   provider.ModelName(),
		})
	}
	return nil
}
