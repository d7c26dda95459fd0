package rag

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/matsen/paperchat/internal/llm"
)

// Rewriter turns a follow-up message into a self-contained search query.
// history is the conversation so far, oldest first. Implementations may
// return text unchanged.
type Rewriter interface {
	Rewrite(ctx context.Context, history []Turn, text string) (string, error)
}

// RewriterFunc adapts a function to the Rewriter interface.
type RewriterFunc func(ctx context.Context, history []Turn, text string) (string, error)

// Rewrite calls f.
func (f RewriterFunc) Rewrite(ctx context.Context, history []Turn, text string) (string, error) {
	return f(ctx, history, text)
}

// NoopRewriter always searches with the raw text.
type NoopRewriter struct{}

// Rewrite returns text unchanged.
func (NoopRewriter) Rewrite(_ context.Context, _ []Turn, text string) (string, error) {
	return text, nil
}

// NewRewriter returns the rewriter named by the chat.rewriter setting.
// client is only needed for "llm".
func NewRewriter(name string, client llm.Client) (Rewriter, error) {
	switch name {
	case "", "heuristic":
		return HeuristicRewriter{}, nil
	case "none":
		return NoopRewriter{}, nil
	case "llm":
		if client == nil {
			return nil, fmt.Errorf("llm rewriter requires an inference client")
		}
		return NewLLMRewriter(client), nil
	default:
		return nil, fmt.Errorf("unknown rewriter %q", name)
	}
}

// lastExchange returns the most recent assistant turn and the user turn
// before it. Either may be nil.
func lastExchange(history []Turn) (user, assistant *Turn) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != RoleAssistant {
			continue
		}
		assistant = &history[i]
		for j := i - 1; j >= 0; j-- {
			if history[j].Role == RoleUser {
				user = &history[j]
				break
			}
		}
		return user, assistant
	}
	return nil, nil
}

// HeuristicRewriter resolves follow-ups against the most recent exchange
// using string matching only.
type HeuristicRewriter struct{}

var followUps = setOf(
	"more", "tell me more", "tell me more about it", "tell me more about that",
	"tell me more about them", "go on", "continue", "keep going", "elaborate",
	"please elaborate", "can you elaborate", "elaborate on that", "expand on that",
	"say more", "more details", "more detail", "more please", "explain further",
	"explain more", "what else", "and", "why", "how",
)

var anaphora = setOf("it", "its", "that", "this", "those", "these", "them", "they", "their", "one")

func setOf(values ...string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}

var ordinalWords = map[string]int{
	"first": 1, "1st": 1,
	"second": 2, "2nd": 2,
	"third": 3, "3rd": 3,
	"fourth": 4, "4th": 4,
	"fifth": 5, "5th": 5,
	"sixth": 6, "6th": 6,
	"seventh": 7, "7th": 7,
	"eighth": 8, "8th": 8,
	"ninth": 9, "9th": 9,
	"tenth": 10, "10th": 10,
	"last": -1,
}

var (
	ordinalRef = regexp.MustCompile(`(?i)\b(?:the\s+)?(first|second|third|fourth|fifth|sixth|seventh|eighth|ninth|tenth|1st|2nd|3rd|4th|5th|6th|7th|8th|9th|10th|last)\s+(?:paper|one|result|article|work)\b`)
	numberedRef = regexp.MustCompile(`(?i)\b(?:paper|result)\s*#?\s*(\d+)\b|\[(\d+)\]`)
)

// maxAnaphoricWords bounds how short a message must be before a bare
// pronoun is taken to refer to the previous query.
const maxAnaphoricWords = 6

// Rewrite implements Rewriter.
func (HeuristicRewriter) Rewrite(_ context.Context, history []Turn, text string) (string, error) {
	text = strings.TrimSpace(text)
	_, prev := lastExchange(history)
	if prev == nil || prev.Query == "" {
		return text, nil
	}

	norm := normalizeQuery(text)
	if followUps[norm] {
		return prev.Query, nil
	}

	if resolved, ok := resolveReferences(text, prev.Citations); ok {
		return resolved, nil
	}

	words := strings.Fields(norm)
	if len(words) > 0 && len(words) <= maxAnaphoricWords {
		for _, w := range words {
			if anaphora[w] {
				return text + " " + prev.Query, nil
			}
		}
	}
	return text, nil
}

// resolveReferences replaces "the first paper", "paper 2" and similar with
// the quoted title of the cited paper.
func resolveReferences(text string, citations []Citation) (string, bool) {
	if len(citations) == 0 {
		return text, false
	}

	title := func(pos int) (string, bool) {
		if pos == -1 {
			pos = len(citations)
		}
		if pos < 1 || pos > len(citations) || citations[pos-1].Title == "" {
			return "", false
		}
		return `"` + citations[pos-1].Title + `"`, true
	}

	replaced := false
	out := ordinalRef.ReplaceAllStringFunc(text, func(m string) string {
		sub := ordinalRef.FindStringSubmatch(m)
		if t, ok := title(ordinalWords[strings.ToLower(sub[1])]); ok {
			replaced = true
			return t
		}
		return m
	})
	out = numberedRef.ReplaceAllStringFunc(out, func(m string) string {
		sub := numberedRef.FindStringSubmatch(m)
		digits := sub[1]
		if digits == "" {
			digits = sub[2]
		}
		n, err := strconv.Atoi(digits)
		if err != nil {
			return m
		}
		if t, ok := title(n); ok {
			replaced = true
			return t
		}
		return m
	})
	return out, replaced
}

// LLMRewriter asks the inference backend for a standalone query. Errors,
// empty answers and overlong answers are reported so the Loop can fall back
// to the raw text.
type LLMRewriter struct {
	client   llm.Client
	maxChars int
}

// DefaultRewriteMaxChars bounds an accepted rewrite.
const DefaultRewriteMaxChars = 300

// NewLLMRewriter creates a rewriter backed by client.
func NewLLMRewriter(client llm.Client) *LLMRewriter {
	return &LLMRewriter{client: client, maxChars: DefaultRewriteMaxChars}
}

var errRewriteRejected = errors.New("rewrite rejected")

const rewritePrompt = `You rewrite follow-up questions about conference papers into standalone search queries.
Use the previous exchange to resolve pronouns and references such as "the first paper".
Reply with the search query only, on one line, without quotes or explanation.`

// Rewrite implements Rewriter.
func (r *LLMRewriter) Rewrite(ctx context.Context, history []Turn, text string) (string, error) {
	user, prev := lastExchange(history)
	if prev == nil {
		return text, nil
	}

	var b strings.Builder
	if user != nil {
		fmt.Fprintf(&b, "Previous question: %s\n", user.Content)
	}
	if prev.Query != "" {
		fmt.Fprintf(&b, "Previous search query: %s\n", prev.Query)
	}
	if len(prev.Citations) > 0 {
		b.WriteString("Papers cited:\n")
		for i, c := range prev.Citations {
			fmt.Fprintf(&b, "%d. %s\n", i+1, c.Title)
		}
	}
	fmt.Fprintf(&b, "Follow-up: %s\nStandalone search query:", text)

	out, err := r.client.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: rewritePrompt},
		{Role: llm.RoleUser, Content: b.String()},
	}, llm.Options{MaxTokens: 64})
	if err != nil {
		return "", err
	}

	out = strings.Trim(strings.TrimSpace(firstLine(out)), `"'`)
	if out == "" {
		return "", fmt.Errorf("%w: empty", errRewriteRejected)
	}
	if len(out) > r.maxChars {
		return "", fmt.Errorf("%w: %d characters", errRewriteRejected, len(out))
	}
	return out, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// normalizeQuery lowercases text and collapses punctuation and whitespace.
func normalizeQuery(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if r == '\'' {
			return -1
		}
		if isWordRune(r) {
			return r
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

func isWordRune(r rune) bool {
	return r == '_' || r == '-' || ('0' <= r && r <= '9') || ('a' <= r && r <= 'z') || r > 127
}

// equivalentQueries reports whether two retrieval queries would return the
// same papers: identical after normalization, or token Jaccard similarity
// at least threshold. A threshold of zero or less disables the fuzzy match.
func equivalentQueries(a, b string, threshold float64) bool {
	na, nb := normalizeQuery(a), normalizeQuery(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	if threshold <= 0 {
		return false
	}
	return jaccard(strings.Fields(na), strings.Fields(nb)) >= threshold
}

func jaccard(a, b []string) float64 {
	setA := make(map[string]bool, len(a))
	for _, w := range a {
		setA[w] = true
	}
	setB := make(map[string]bool, len(b))
	for _, w := range b {
		setB[w] = true
	}
	inter := 0
	for w := range setA {
		if setB[w] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
