package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matsen/paperchat/internal/export"
	"github.com/matsen/paperchat/internal/paper"
	"github.com/matsen/paperchat/internal/rag"
)

var (
	exportBibtex       bool
	exportKeys         string
	exportConversation string
	exportAppend       string
)

func init() {
	exportCmd.Flags().BoolVar(&exportBibtex, "bibtex", false, "Export to BibTeX format")
	exportCmd.Flags().StringVar(&exportKeys, "keys", "", "Export only specified paper IDs (comma-separated)")
	exportCmd.Flags().StringVar(&exportConversation, "conversation", "", "Export the papers cited in an exported conversation file")
	exportCmd.Flags().StringVar(&exportAppend, "append", "", "Append to a .bib file, skipping entries already in it")
	rootCmd.AddCommand(exportCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export papers to BibTeX format",
	Long: `Export papers to BibTeX format.

Examples:
  paperchat export --bibtex
  paperchat export --bibtex --keys 101,205
  paperchat export --bibtex --conversation .paperchat/exports/conversation-20251203-101500.json
  paperchat export --bibtex --keys 101 --append refs.bib`,
	RunE: runExport,
}

// ExportAppendResult is the response when appending to a .bib file.
type ExportAppendResult struct {
	Path    string   `json:"path"`
	Added   []string `json:"added"`
	Skipped []string `json:"skipped"`
}

// citedPaperIDs returns the ids cited by assistant turns, first citation first.
func citedPaperIDs(rec *rag.ExportRecord) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, turn := range rec.Turns {
		for _, id := range turn.PapersCited() {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func readExportRecord(path string) (*rag.ExportRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec rag.ExportRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &rec, nil
}

func runExport(cmd *cobra.Command, args []string) error {
	if !exportBibtex {
		exitWithError(ExitError, "--bibtex flag is required")
	}
	if exportKeys != "" && exportConversation != "" {
		exitWithError(ExitInvalidInput, "--keys and --conversation cannot be combined")
	}

	repoRoot := mustFindRepository()
	db := mustOpenDatabase(repoRoot)
	defer db.Close()

	var ids []string
	switch {
	case exportKeys != "":
		for _, key := range strings.Split(exportKeys, ",") {
			if key = strings.TrimSpace(key); key != "" {
				ids = append(ids, key)
			}
		}
	case exportConversation != "":
		rec, err := readExportRecord(exportConversation)
		if err != nil {
			exitWithError(ExitDataError, "reading conversation: %v", err)
		}
		ids = citedPaperIDs(rec)
	}

	var papers []paper.Paper
	var err error
	if ids != nil {
		papers, err = db.GetByIDs(ids)
		if err != nil {
			exitWithError(ExitError, "getting papers: %v", err)
		}
		if exportKeys != "" && len(papers) < len(ids) {
			exitWithError(ExitNotFound, "unknown paper id in --keys: %s", missingID(ids, papers))
		}
	} else {
		papers, err = db.ListAll(0)
		if err != nil {
			exitWithError(ExitError, "listing papers: %v", err)
		}
	}

	if exportAppend == "" {
		// Note: BibTeX is always text output, never JSON
		fmt.Print(export.ToBibTeXList(papers))
		return nil
	}

	idx, err := export.ParseBibTeXFile(exportAppend)
	if err != nil {
		exitWithError(ExitDataError, "reading %s: %v", exportAppend, err)
	}
	result := ExportAppendResult{Path: exportAppend, Added: []string{}, Skipped: []string{}}
	var entries []string
	for i, key := range export.CitationKeys(papers) {
		p := papers[i]
		url := p.PaperURL
		if url == "" {
			url = p.VirtualURL
		}
		if idx.HasEntry(key, url) {
			result.Skipped = append(result.Skipped, key)
			continue
		}
		idx.Add(key, url)
		entries = append(entries, export.ToBibTeX(p, key))
		result.Added = append(result.Added, key)
	}
	if len(entries) > 0 {
		if err := export.AppendToBibFile(exportAppend, strings.Join(entries, "\n")); err != nil {
			exitWithError(ExitError, "appending to %s: %v", exportAppend, err)
		}
	}

	if humanOutput {
		fmt.Printf("Added %d entries to %s (%d already present)\n", len(result.Added), exportAppend, len(result.Skipped))
	} else {
		outputJSON(result)
	}
	return nil
}

func missingID(ids []string, papers []paper.Paper) string {
	found := make(map[string]bool, len(papers))
	for _, p := range papers {
		found[p.ID] = true
	}
	for _, id := range ids {
		if !found[id] {
			return id
		}
	}
	return ""
}
