// Package author provides author name parsing and matching for search queries.
package author

import (
	"strings"

	"github.com/matsen/paperchat/internal/paper"
)

// Query represents a parsed author search query.
type Query struct {
	First string // First name (may be empty for last-name-only queries)
	Last  string // Last name (required)
}

// ParseQuery parses an author search string into a structured Query.
//
// Supported formats:
//   - "Yu"           → last="Yu" (single word = last name only)
//   - "Timothy Yu"   → first="Timothy", last="Yu" (space-separated = First Last)
//   - "Yu, Timothy"  → first="Timothy", last="Yu" (comma = Last, First)
//
// Names are trimmed but case is preserved (matching is case-insensitive).
func ParseQuery(input string) Query {
	input = strings.TrimSpace(input)
	if input == "" {
		return Query{}
	}

	if idx := strings.Index(input, ","); idx > 0 {
		last := strings.TrimSpace(input[:idx])
		first := strings.TrimSpace(input[idx+1:])
		return Query{First: first, Last: last}
	}

	last, first := SplitName(input)
	return Query{First: first, Last: last}
}

// SplitName splits a display name as published by the conference
// ("Timothy C Yu") into last and given names. The last word is the last name.
func SplitName(full string) (last, first string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	}
	return parts[len(parts)-1], strings.Join(parts[:len(parts)-1], " ")
}

// IsEmpty reports whether the query has no last name to match.
func (q Query) IsEmpty() bool {
	return q.Last == ""
}

// Matches checks if the query matches a given author.
//
// Matching rules:
//   - Last name: case-insensitive exact match (required)
//   - First name: case-insensitive prefix match (if query has first name)
//
// This enables "Tim Yu" to match "Timothy C Yu" while preventing
// "Yu" from matching "Yujia" (since "Yu" is not Yujia's last name).
func (q Query) Matches(a paper.Author) bool {
	last, first := SplitName(a.Name)
	if q.IsEmpty() || !strings.EqualFold(q.Last, last) {
		return false
	}

	if q.First == "" {
		return true
	}

	// "Tim" matches "Timothy", "Timothy C", etc.
	return strings.HasPrefix(
		strings.ToLower(first),
		strings.ToLower(q.First),
	)
}

// MatchesAny checks if the query matches any author in the list.
func (q Query) MatchesAny(authors []paper.Author) bool {
	for _, a := range authors {
		if q.Matches(a) {
			return true
		}
	}
	return false
}

// AllMatch checks if all queries match at least one author each.
// This implements AND logic for multiple author filters.
func AllMatch(queries []Query, authors []paper.Author) bool {
	for _, q := range queries {
		if !q.MatchesAny(authors) {
			return false
		}
	}
	return true
}

// FilterPapers keeps the papers whose authors satisfy every query, up to
// limit (zero means no limit).
func FilterPapers(papers []paper.Paper, queries []Query, limit int) []paper.Paper {
	var out []paper.Paper
	for _, p := range papers {
		if !AllMatch(queries, p.Authors) {
			continue
		}
		out = append(out, p)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
