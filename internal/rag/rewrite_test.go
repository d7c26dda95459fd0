package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matsen/paperchat/internal/llm"
)

func historyWith(query string, titles ...string) []Turn {
	var cites []Citation
	for i, title := range titles {
		cites = append(cites, Citation{PaperID: string(rune('a' + i)), Title: title})
	}
	return []Turn{
		{Role: RoleUser, Content: query},
		{Role: RoleAssistant, Content: "answer", Query: query, Citations: cites},
	}
}

func TestHeuristicRewriter(t *testing.T) {
	history := historyWith("protein folding", "AlphaFold Revisited", "Folding Diffusion", "Structure Tokens")

	tests := []struct {
		name    string
		history []Turn
		text    string
		want    string
	}{
		{"no history", nil, "tell me more", "tell me more"},
		{"follow-up phrase", history, "Tell me more!", "protein folding"},
		{"go on", history, "go on", "protein folding"},
		{"elaborate", history, "Can you elaborate?", "protein folding"},
		{"first paper", history, "Who wrote the first paper?", `Who wrote "AlphaFold Revisited"?`},
		{"last one", history, "what does the last one propose", `what does "Structure Tokens" propose`},
		{"numbered", history, "summarize paper 2", `summarize "Folding Diffusion"`},
		{"bracketed", history, "compare [1] and [3]", `compare "AlphaFold Revisited" and "Structure Tokens"`},
		{"out of range", history, "what about the fifth paper", "what about the fifth paper"},
		{"anaphora", history, "what about it?", "what about it? protein folding"},
		{"standalone", history, "graph neural networks for chemistry", "graph neural networks for chemistry"},
		{"long with pronoun", history, "is there anything that uses transformers for weather forecasting", "is there anything that uses transformers for weather forecasting"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := HeuristicRewriter{}.Rewrite(context.Background(), tt.history, tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHeuristicRewriter_UsesMostRecentExchange(t *testing.T) {
	history := append(historyWith("protein folding", "Old Paper"), historyWith("weather models", "New Paper")...)

	got, err := HeuristicRewriter{}.Rewrite(context.Background(), history, "tell me more")
	require.NoError(t, err)
	assert.Equal(t, "weather models", got)

	got, err = HeuristicRewriter{}.Rewrite(context.Background(), history, "the first paper")
	require.NoError(t, err)
	assert.Equal(t, `"New Paper"`, got)
}

func TestEquivalentQueries(t *testing.T) {
	tests := []struct {
		a, b      string
		threshold float64
		want      bool
	}{
		{"What is a transformer?", "what is a transformer", 0.9, true},
		{"  graph   networks ", "Graph networks!", 0.9, true},
		{"graph networks", "graph neural networks", 0.9, false},
		{"graph networks", "graph neural networks", 0.6, true},
		{"graph networks", "graph neural networks", 0, false},
		{"", "", 0.9, false},
		{"networks graph", "graph networks", 0.9, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, equivalentQueries(tt.a, tt.b, tt.threshold), "%q vs %q @ %v", tt.a, tt.b, tt.threshold)
	}
}

func TestNewRewriter(t *testing.T) {
	r, err := NewRewriter("", nil)
	require.NoError(t, err)
	assert.IsType(t, HeuristicRewriter{}, r)

	r, err = NewRewriter("none", nil)
	require.NoError(t, err)
	assert.IsType(t, NoopRewriter{}, r)

	_, err = NewRewriter("llm", nil)
	assert.Error(t, err)

	r, err = NewRewriter("llm", &stubLLM{})
	require.NoError(t, err)
	assert.IsType(t, &LLMRewriter{}, r)

	_, err = NewRewriter("magic", nil)
	assert.Error(t, err)
}

func TestLLMRewriter(t *testing.T) {
	history := historyWith("protein folding", "AlphaFold Revisited")

	t.Run("uses model output", func(t *testing.T) {
		client := &stubLLM{reply: "\"AlphaFold Revisited authors\"\nextra commentary"}
		got, err := NewLLMRewriter(client).Rewrite(context.Background(), history, "who wrote it?")
		require.NoError(t, err)
		assert.Equal(t, "AlphaFold Revisited authors", got)

		prompt := client.lastMessages()[1].Content
		assert.Contains(t, prompt, "Previous question: protein folding")
		assert.Contains(t, prompt, "1. AlphaFold Revisited")
		assert.Contains(t, prompt, "Follow-up: who wrote it?")
	})

	t.Run("no history skips the model", func(t *testing.T) {
		client := &stubLLM{reply: "unused"}
		got, err := NewLLMRewriter(client).Rewrite(context.Background(), nil, "hello")
		require.NoError(t, err)
		assert.Equal(t, "hello", got)
		assert.Empty(t, client.calls)
	})

	t.Run("backend error", func(t *testing.T) {
		client := &stubLLM{err: llm.ErrUnavailable}
		_, err := NewLLMRewriter(client).Rewrite(context.Background(), history, "more")
		assert.True(t, errors.Is(err, llm.ErrUnavailable))
	})

	t.Run("empty output rejected", func(t *testing.T) {
		client := &stubLLM{reply: `""`}
		_, err := NewLLMRewriter(client).Rewrite(context.Background(), history, "more")
		assert.ErrorIs(t, err, errRewriteRejected)
	})

	t.Run("overlong output rejected", func(t *testing.T) {
		client := &stubLLM{reply: strings.Repeat("word ", 100)}
		_, err := NewLLMRewriter(client).Rewrite(context.Background(), history, "more")
		assert.ErrorIs(t, err, errRewriteRejected)
	})
}

func TestLoopFallsBackWhenLLMRewriterFails(t *testing.T) {
	f := newFixture()
	f.loop.rewriter = NewLLMRewriter(&stubLLM{err: llm.ErrUnavailable})
	ctx := context.Background()

	_, err := f.loop.Chat(ctx, f.conv, "What is a transformer?")
	require.NoError(t, err)
	ans, err := f.loop.Chat(ctx, f.conv, "and vision models?")
	require.NoError(t, err)
	assert.Equal(t, "and vision models?", ans.Meta.Query)
}
