package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/matsen/paperchat/internal/paper"
	"github.com/matsen/paperchat/internal/rag"
)

// Constants for output formatting.
const (
	DefaultSearchLimit = 20 // Default limit for search commands

	SearchTitleMaxLen = 70 // Used in search result summaries
	DetailTitleMaxLen = 70 // Used in get command detail view

	TextWrapWidth = 72 // Standard text wrap width
)

// outputJSON writes a value as formatted JSON to stdout.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError writes an error message to stderr and returns the exit code.
func outputError(code int, format string, args ...interface{}) int {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	return code
}

// exitWithError outputs an error in the appropriate format (human or JSON) and exits.
func exitWithError(code int, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if humanOutput {
		fmt.Fprintf(os.Stderr, "%s %s\n", color.RedString("error:"), msg)
	} else {
		outputJSON(ErrorResponse{Error: msg})
	}
	os.Exit(code)
}

// exitCodeFor maps a chat loop error to an exit code.
func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, rag.ErrInvalidInput):
		return ExitInvalidInput
	case errors.Is(err, rag.ErrRetrieverUnavailable), errors.Is(err, rag.ErrInferenceUnavailable):
		return ExitBackendError
	default:
		return ExitError
	}
}

// StatusResponse is a generic response for commands that return status.
type StatusResponse struct {
	Status string `json:"status"`
	Path   string `json:"path,omitempty"`
}

// ErrorResponse is a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// PaperSearchResult represents a paper in search results.
type PaperSearchResult struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Authors    []string `json:"authors"`
	Session    string   `json:"session,omitempty"`
	EventType  string   `json:"eventtype,omitempty"`
	Similarity *float64 `json:"similarity,omitempty"`
	Abstract   string   `json:"abstract,omitempty"`
}

func toSearchResult(p paper.Paper, includeAbstract bool) PaperSearchResult {
	r := PaperSearchResult{
		ID:        p.ID,
		Title:     p.Title,
		Authors:   p.AuthorNames(),
		Session:   p.Session,
		EventType: p.EventType,
	}
	if includeAbstract {
		r.Abstract = p.Abstract
	}
	return r
}

// printSearchResultsHuman prints numbered search results.
func printSearchResultsHuman(results []PaperSearchResult) {
	for i, r := range results {
		title := truncateString(r.Title, SearchTitleMaxLen)
		if r.Similarity != nil {
			fmt.Printf("%2d. %s %s\n", i+1, title, color.HiBlackString("(%.2f)", *r.Similarity))
		} else {
			fmt.Printf("%2d. %s\n", i+1, title)
		}
		fmt.Printf("    %s\n", color.CyanString(r.ID))
		if len(r.Authors) > 0 {
			fmt.Printf("    %s\n", formatNames(r.Authors, 3))
		}
		if meta := joinNonEmpty(" | ", r.Session, r.EventType); meta != "" {
			fmt.Printf("    %s\n", color.HiBlackString(meta))
		}
	}
}

// printPaperHuman prints a paper's full details.
func printPaperHuman(p paper.Paper) {
	fmt.Println(color.New(color.Bold).Sprint(truncateString(p.Title, DetailTitleMaxLen)))
	fmt.Printf("ID: %s\n", p.ID)
	if len(p.Authors) > 0 {
		fmt.Printf("Authors: %s\n", wrapText(paper.FormatAuthors(p.Authors, 0), TextWrapWidth, "         "))
	}
	if p.Topic != "" {
		fmt.Printf("Topic: %s\n", p.Topic)
	}
	if meta := joinNonEmpty(" | ", p.Session, p.EventType, p.PosterPosition, p.Room); meta != "" {
		fmt.Printf("Schedule: %s\n", meta)
	}
	if p.StartTime != "" {
		fmt.Printf("Time: %s\n", joinNonEmpty(" - ", p.StartTime, p.EndTime))
	}
	if len(p.Keywords) > 0 {
		fmt.Printf("Keywords: %s\n", strings.Join(p.Keywords, ", "))
	}
	if url := firstNonEmpty(p.VirtualURL, p.PaperURL); url != "" {
		fmt.Printf("URL: %s\n", url)
	}
	if p.Abstract != "" {
		fmt.Printf("\n%s\n", wrapText(p.Abstract, TextWrapWidth, ""))
	}
}

// printAnswerHuman prints a chat answer with its citations.
func printAnswerHuman(a *rag.Answer) {
	fmt.Println(a.Text)
	if len(a.Papers) > 0 {
		fmt.Println()
		fmt.Println(color.New(color.Bold).Sprint("Papers:"))
		for i, p := range a.Papers {
			fmt.Printf("  [%d] %s %s\n", i+1, truncateString(p.Title, SearchTitleMaxLen),
				color.HiBlackString("(%s, %.2f)", p.ID, p.Similarity()))
		}
	}
	if a.Meta.RewrittenQuery != "" {
		fmt.Fprintf(os.Stderr, "%s %s\n", color.HiBlackString("searched:"), a.Meta.RewrittenQuery)
	}
	if !a.Meta.RetrievedNewPapers {
		fmt.Fprintln(os.Stderr, color.HiBlackString("(reused papers from the previous turn)"))
	}
}

// truncateString truncates a string to maxLen, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

// wrapText wraps text to the specified width with indentation on subsequent lines.
func wrapText(text string, width int, indent string) string {
	if len(text) <= width {
		return text
	}

	var lines []string
	var currentLine strings.Builder

	for _, word := range strings.Fields(text) {
		if currentLine.Len() == 0 {
			currentLine.WriteString(word)
		} else if currentLine.Len()+1+len(word) <= width {
			currentLine.WriteString(" ")
			currentLine.WriteString(word)
		} else {
			lines = append(lines, currentLine.String())
			currentLine.Reset()
			currentLine.WriteString(word)
		}
	}
	if currentLine.Len() > 0 {
		lines = append(lines, currentLine.String())
	}

	return strings.Join(lines, "\n"+indent)
}

func formatNames(names []string, maxCount int) string {
	if len(names) > maxCount {
		return strings.Join(names[:maxCount], ", ") + ", et al."
	}
	return strings.Join(names, ", ")
}

func joinNonEmpty(sep string, values ...string) string {
	var out []string
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return strings.Join(out, sep)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}

// formatBytes formats bytes in a human-readable way.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// parseFilterFlags builds a filter from repeatable --session/--topic/--eventtype flags.
func parseFilterFlags(sessions, topics, eventTypes []string) paper.Filter {
	return paper.Filter{Sessions: sessions, Topics: topics, EventTypes: eventTypes}.Normalize()
}
