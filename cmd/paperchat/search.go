package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matsen/paperchat/internal/author"
)

var (
	searchLimit      int
	searchSessions   []string
	searchTopics     []string
	searchEventTypes []string
	searchAuthors    []string
)

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", DefaultSearchLimit, "Maximum results")
	searchCmd.Flags().StringArrayVarP(&searchAuthors, "author", "a", nil, `Require an author, "Last", "First Last" or "Last, First" (repeatable, all must match)`)
	addFilterFlags(searchCmd, &searchSessions, &searchTopics, &searchEventTypes)
}

// addFilterFlags registers the repeatable metadata filter flags on cmd.
func addFilterFlags(cmd *cobra.Command, sessions, topics, eventTypes *[]string) {
	cmd.Flags().StringSliceVar(sessions, "session", nil, "Restrict to a session (repeatable)")
	cmd.Flags().StringSliceVar(topics, "topic", nil, "Restrict to a topic (repeatable)")
	cmd.Flags().StringSliceVar(eventTypes, "eventtype", nil, "Restrict to an event type such as Poster or Oral (repeatable)")
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search papers by keyword",
	Long: `Full-text search over titles, abstracts, authors and keywords.

The query may be omitted when --author or a metadata filter is given.

Examples:
  paperchat search "diffusion models"
  paperchat search transformer --eventtype Oral -n 5
  paperchat search -a "Tim Yu" -a Matsen`,
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	repoRoot := mustFindRepository()
	db := mustOpenDatabase(repoRoot)
	defer db.Close()

	query := strings.Join(args, " ")
	filter := parseFilterFlags(searchSessions, searchTopics, searchEventTypes)
	authors := parseAuthorQueries(searchAuthors)
	if strings.TrimSpace(query) == "" && filter.IsEmpty() && len(authors) == 0 {
		exitWithError(ExitInvalidInput, "give a query, --author or a filter")
	}

	// Author matching happens after the database query, so fetch everything then cut
	limit := searchLimit
	if len(authors) > 0 {
		limit = 0
	}
	papers, err := db.SearchByKeyword(query, filter, limit)
	if err != nil {
		exitWithError(ExitError, "searching: %v", err)
	}
	if len(authors) > 0 {
		papers = author.FilterPapers(papers, authors, searchLimit)
	}

	results := make([]PaperSearchResult, len(papers))
	for i, p := range papers {
		results[i] = toSearchResult(p, false)
	}

	if humanOutput {
		if len(results) == 0 {
			fmt.Println("No papers found.")
			return nil
		}
		fmt.Printf("Found %d papers:\n\n", len(results))
		printSearchResultsHuman(results)
	} else {
		outputJSON(results)
	}
	return nil
}

// parseAuthorQueries parses --author values, dropping blank ones.
func parseAuthorQueries(values []string) []author.Query {
	var queries []author.Query
	for _, v := range values {
		if q := author.ParseQuery(v); !q.IsEmpty() {
			queries = append(queries, q)
		}
	}
	return queries
}
