package rag

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/matsen/paperchat/internal/paper"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Citation is one paper used to ground an assistant turn.
type Citation struct {
	PaperID  string  `json:"paper_id"`
	Title    string  `json:"title"`
	Distance float64 `json:"distance"`
}

// Turn is one message in a conversation. Citations, Query and Filter are
// only set on assistant turns.
type Turn struct {
	Role      Role         `json:"role"`
	Content   string       `json:"content"`
	Citations []Citation   `json:"citations,omitempty"`
	Query     string       `json:"query,omitempty"`
	Filter    paper.Filter `json:"filter,omitzero"`
	Timestamp time.Time    `json:"timestamp"`
}

// PapersCited returns the cited paper ids in relevance order.
func (t Turn) PapersCited() []string {
	ids := make([]string, len(t.Citations))
	for i, c := range t.Citations {
		ids[i] = c.PaperID
	}
	return ids
}

func (t Turn) clone() Turn {
	t.Citations = slices.Clone(t.Citations)
	t.Filter = t.Filter.Clone()
	return t
}

func cloneTurns(turns []Turn) []Turn {
	if turns == nil {
		return nil
	}
	out := make([]Turn, len(turns))
	for i, t := range turns {
		out[i] = t.clone()
	}
	return out
}

// RetrievedPaper is a hydrated search result. Lower Distance is more similar.
type RetrievedPaper struct {
	paper.Paper
	Distance float64 `json:"distance"`
}

// Similarity converts Distance into a display score.
func (r RetrievedPaper) Similarity() float64 {
	return 1 - r.Distance
}

// MarshalJSON adds the similarity score next to the distance.
func (r RetrievedPaper) MarshalJSON() ([]byte, error) {
	type flat struct {
		paper.Paper
		Distance   float64 `json:"distance"`
		Similarity float64 `json:"similarity"`
	}
	return json.Marshal(flat{Paper: r.Paper, Distance: r.Distance, Similarity: r.Similarity()})
}

// Meta describes how an answer was produced.
type Meta struct {
	// Query is the text sent to the retriever (or matched for reuse).
	Query string `json:"query"`
	// RewrittenQuery is set when rewriting changed the user's text.
	RewrittenQuery string `json:"rewritten_query,omitempty"`
	// RetrievedNewPapers is false when the previous turn's papers were reused.
	RetrievedNewPapers bool         `json:"retrieved_new_papers"`
	Filter             paper.Filter `json:"filter,omitzero"`
	Model              string       `json:"model,omitempty"`
}

// Answer is the result of one Query or Chat call.
type Answer struct {
	Text   string           `json:"text"`
	Papers []RetrievedPaper `json:"papers"`
	Meta   Meta             `json:"meta"`
}

// PapersCited returns the ids of the papers used, in relevance order.
func (a *Answer) PapersCited() []string {
	ids := make([]string, len(a.Papers))
	for i, p := range a.Papers {
		ids[i] = p.ID
	}
	return ids
}

// ExportRecord is a point-in-time copy of a conversation.
type ExportRecord struct {
	Timestamp    time.Time    `json:"timestamp"`
	Model        string       `json:"model"`
	TurnCount    int          `json:"turn_count"`
	ActiveFilter paper.Filter `json:"active_filter,omitzero"`
	Turns        []Turn       `json:"turns"`
}

// State is the request state of a conversation.
type State int

const (
	Idle State = iota
	AwaitingBackend
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingBackend:
		return "awaiting_backend"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
