package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/matsen/paperchat/internal/llm"
	"github.com/matsen/paperchat/internal/paper"
)

// DefaultSystemPrompt instructs the model to answer from the retrieved papers.
const DefaultSystemPrompt = `You are a research assistant helping a conference attendee explore accepted papers.
Answer using only the papers in the context below. Refer to papers by their number and title, e.g. [1] "Title".
If the context does not contain the answer, say so instead of guessing.`

// contextAuthors is how many authors are listed before "et al.".
const contextAuthors = 5

// noPapersContext is used when retrieval returned nothing.
const noPapersContext = "No relevant papers were found for this question."

// BuildContext renders papers as numbered blocks for the prompt. Abstracts
// are cut to maxAbstractChars bytes at a UTF-8 boundary; zero or less keeps
// them whole.
func BuildContext(papers []RetrievedPaper, maxAbstractChars int) string {
	if len(papers) == 0 {
		return noPapersContext
	}

	var b strings.Builder
	for i, p := range papers {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%d] %s\n", i+1, p.Title)
		if authors := paper.FormatAuthors(p.Authors, contextAuthors); authors != "" {
			fmt.Fprintf(&b, "Authors: %s\n", authors)
		}
		if meta := scheduleLine(p.Paper); meta != "" {
			fmt.Fprintf(&b, "%s\n", meta)
		}
		if abstract := strings.TrimSpace(p.Abstract); abstract != "" {
			fmt.Fprintf(&b, "Abstract: %s\n", truncate(abstract, maxAbstractChars))
		}
	}
	return b.String()
}

func scheduleLine(p paper.Paper) string {
	var parts []string
	if p.Session != "" {
		parts = append(parts, "Session: "+p.Session)
	}
	if p.EventType != "" {
		parts = append(parts, "Type: "+p.EventType)
	}
	if p.PosterPosition != "" {
		parts = append(parts, "Poster: "+p.PosterPosition)
	}
	return strings.Join(parts, " | ")
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.TrimRight(s[:cut], " ") + "..."
}

// buildMessages assembles the prompt: system prompt plus context, the
// history window, then the new user message.
func buildMessages(systemPrompt, contextText string, window []Turn, text string) []llm.Message {
	msgs := make([]llm.Message, 0, len(window)+2)
	msgs = append(msgs, llm.Message{
		Role:    llm.RoleSystem,
		Content: systemPrompt + "\n\nContext:\n" + contextText,
	})
	for _, t := range window {
		role := llm.RoleUser
		if t.Role == RoleAssistant {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: t.Content})
	}
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: text})
}

// historyWindow returns the trailing n turns.
func historyWindow(turns []Turn, n int) []Turn {
	if n <= 0 {
		return nil
	}
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	return turns
}
