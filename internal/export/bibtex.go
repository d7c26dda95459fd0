// Package export renders conference papers as BibTeX.
package export

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/matsen/paperchat/internal/author"
	"github.com/matsen/paperchat/internal/paper"
)

// proceedingsTitles maps conference slugs to their proceedings names.
var proceedingsTitles = map[string]string{
	"neurips": "Advances in Neural Information Processing Systems",
	"icml":    "Proceedings of the International Conference on Machine Learning",
	"iclr":    "International Conference on Learning Representations",
}

// titleStopWords are skipped when choosing the title word of a citation key.
var titleStopWords = map[string]bool{
	"a": true, "an": true, "the": true, "on": true, "of": true, "in": true,
	"for": true, "to": true, "towards": true, "with": true, "is": true,
}

// ToBibTeX converts a paper to an @inproceedings entry under key.
func ToBibTeX(p paper.Paper, key string) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("@inproceedings{%s,\n", key))

	if len(p.Authors) > 0 {
		b.WriteString(fmt.Sprintf("  author = {%s},\n", formatAuthors(p.Authors)))
	}

	b.WriteString(fmt.Sprintf("  title = {%s},\n", escapeLatex(p.Title)))

	if booktitle := BookTitle(p.Conference); booktitle != "" {
		b.WriteString(fmt.Sprintf("  booktitle = {%s},\n", escapeLatex(booktitle)))
	}

	if p.Year > 0 {
		b.WriteString(fmt.Sprintf("  year = {%d},\n", p.Year))
	}

	if url := entryURL(p); url != "" {
		b.WriteString(fmt.Sprintf("  url = {%s},\n", url))
	}

	// Presentation type, e.g. Oral or Spotlight
	if p.EventType != "" {
		b.WriteString(fmt.Sprintf("  note = {%s},\n", escapeLatex(p.EventType)))
	}

	if len(p.Keywords) > 0 {
		b.WriteString(fmt.Sprintf("  keywords = {%s},\n", escapeLatex(strings.Join(p.Keywords, ", "))))
	}

	if p.Abstract != "" {
		b.WriteString(fmt.Sprintf("  abstract = {%s},\n", escapeLatex(p.Abstract)))
	}

	b.WriteString("}\n")

	return b.String()
}

// ToBibTeXList converts papers to BibTeX with collision-free keys.
func ToBibTeXList(papers []paper.Paper) string {
	keys := CitationKeys(papers)
	var entries []string
	for i, p := range papers {
		entries = append(entries, ToBibTeX(p, keys[i]))
	}
	return strings.Join(entries, "\n")
}

// BookTitle returns the proceedings name for a conference slug.
// Unknown slugs are upper-cased.
func BookTitle(conference string) string {
	slug := strings.ToLower(strings.TrimSpace(conference))
	if title, ok := proceedingsTitles[slug]; ok {
		return title
	}
	return strings.ToUpper(slug)
}

// CitationKey builds a Scholar-style key: first author's last name, year,
// first significant title word, e.g. "vaswani2017attention".
func CitationKey(p paper.Paper) string {
	name := "anon"
	if len(p.Authors) > 0 {
		last, _ := author.SplitName(p.Authors[0].Name)
		if k := keyPart(last); k != "" {
			name = k
		}
	}

	word := ""
	for _, w := range strings.Fields(p.Title) {
		k := keyPart(w)
		if k != "" && !titleStopWords[k] {
			word = k
			break
		}
	}

	year := ""
	if p.Year > 0 {
		year = fmt.Sprintf("%d", p.Year)
	}
	return name + year + word
}

// CitationKeys returns one key per paper, suffixing b, c, ... on collisions.
func CitationKeys(papers []paper.Paper) []string {
	keys := make([]string, len(papers))
	seen := make(map[string]int)
	for i, p := range papers {
		base := CitationKey(p)
		n := seen[base]
		seen[base] = n + 1
		if n == 0 {
			keys[i] = base
		} else {
			keys[i] = fmt.Sprintf("%s%c", base, 'a'+rune(n))
		}
	}
	return keys
}

// keyPart lowercases s and keeps only ASCII letters and digits.
func keyPart(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func entryURL(p paper.Paper) string {
	if p.PaperURL != "" {
		return p.PaperURL
	}
	return p.VirtualURL
}

// formatAuthors formats authors in BibTeX style: "Last, First and Last, First"
func formatAuthors(authors []paper.Author) string {
	var formatted []string
	for _, a := range authors {
		last, first := author.SplitName(a.Name)
		if first != "" {
			formatted = append(formatted, fmt.Sprintf("%s, %s", escapeLatex(last), escapeLatex(first)))
		} else if last != "" {
			formatted = append(formatted, escapeLatex(last))
		}
	}
	return strings.Join(formatted, " and ")
}

// escapeLatex escapes special LaTeX characters.
func escapeLatex(s string) string {
	// Order matters: & must be first (before other escapes that might produce &)
	replacer := strings.NewReplacer(
		"&", `\&`,
		"%", `\%`,
		"$", `\$`,
		"#", `\#`,
		"_", `\_`,
		"{", `\{`,
		"}", `\}`,
		"~", `\textasciitilde{}`,
		"^", `\textasciicircum{}`,
	)
	return replacer.Replace(s)
}
