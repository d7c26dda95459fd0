package tui

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matsen/paperchat/internal/llm"
	"github.com/matsen/paperchat/internal/logging"
	"github.com/matsen/paperchat/internal/paper"
	"github.com/matsen/paperchat/internal/rag"
	"github.com/matsen/paperchat/internal/retrieval"
)

type fakeRetriever struct{ calls int }

func (f *fakeRetriever) Search(context.Context, string, int, paper.Filter) ([]retrieval.Hit, error) {
	f.calls++
	return []retrieval.Hit{{PaperID: "p1", Distance: 0.2}}, nil
}

type fakePapers struct{}

func (fakePapers) GetByIDs(ids []string) ([]paper.Paper, error) {
	var out []paper.Paper
	for _, id := range ids {
		if id == "p1" {
			out = append(out, paper.Paper{ID: "p1", Title: "Scaling Laws", VirtualURL: "https://neurips.cc/virtual/2025/poster/p1"})
		}
	}
	return out, nil
}

type fakeLLM struct{ err error }

func (f *fakeLLM) Complete(context.Context, []llm.Message, llm.Options) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "Bigger models do better.", nil
}

func (f *fakeLLM) ModelName() string { return "fake" }

func newTestModel(t *testing.T) (Model, *rag.Conversation, *fakeLLM) {
	t.Helper()
	client := &fakeLLM{}
	loop := rag.New(&fakeRetriever{}, fakePapers{}, client, rag.WithLogger(logging.Discard()))
	conv := rag.NewConversation()
	m := New(loop, conv, t.TempDir(), "1 paper")
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return updated.(Model), conv, client
}

// submit types text and presses Enter, running any command synchronously.
func submit(t *testing.T, m Model, text string) Model {
	t.Helper()
	m.input.SetValue(text)
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(Model)
	if cmd != nil {
		if msg, ok := cmd().(answerMsg); ok {
			updated, _ = m.Update(msg)
			m = updated.(Model)
		}
	}
	return m
}

func TestChatRoundTrip(t *testing.T) {
	m, conv, _ := newTestModel(t)

	m = submit(t, m, "what are scaling laws?")
	assert.False(t, m.busy)
	assert.Equal(t, 2, conv.TurnCount())
	require.Len(t, m.transcript, 2)
	assert.Equal(t, rag.RoleUser, m.transcript[0].role)
	assert.Equal(t, "Bigger models do better.", m.transcript[1].text)
	assert.Contains(t, m.status, "1 papers retrieved")
	assert.Contains(t, m.View(), "[1] Scaling Laws (0.80)")
	assert.Empty(t, m.input.Value())
}

func TestChatError(t *testing.T) {
	m, conv, client := newTestModel(t)
	client.err = llm.ErrUnavailable

	m = submit(t, m, "hello")
	assert.Zero(t, conv.TurnCount())
	assert.Contains(t, m.status, "Error:")
	assert.Equal(t, rag.Role("error"), m.transcript[len(m.transcript)-1].role)
}

func TestEnterWhileBusy(t *testing.T) {
	m, _, _ := newTestModel(t)
	m.busy = true
	m.input.SetValue("another")

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Equal(t, "another", updated.(Model).input.Value())
}

func TestResetCommand(t *testing.T) {
	m, conv, _ := newTestModel(t)
	m = submit(t, m, "question")
	require.Equal(t, 2, conv.TurnCount())

	m = submit(t, m, "/reset")
	assert.Zero(t, conv.TurnCount())
	assert.Empty(t, m.transcript)
	assert.Equal(t, "Conversation reset.", m.status)
}

func TestExportCommand(t *testing.T) {
	m, _, _ := newTestModel(t)
	m = submit(t, m, "question")

	path := filepath.Join(t.TempDir(), "out.json")
	m = submit(t, m, "/export "+path)
	assert.FileExists(t, path)
	assert.Contains(t, m.status, "Exported 2 turns")

	m = submit(t, m, "/export")
	assert.Contains(t, m.status, m.exportDir)
}

func TestCopyCommand(t *testing.T) {
	m, _, _ := newTestModel(t)
	var copied string
	m.copyText = func(s string) error {
		copied = s
		return nil
	}

	m = submit(t, m, "/copy")
	assert.Equal(t, "Nothing to copy yet.", m.status)
	assert.Empty(t, copied)

	m = submit(t, m, "question")
	m = submit(t, m, "/copy")
	assert.Contains(t, m.status, "Copied")
	assert.Contains(t, copied, "Bigger models do better.")
	assert.Contains(t, copied, "[1] Scaling Laws")

	m.copyText = func(string) error { return errors.New("no clipboard") }
	m = submit(t, m, "/copy")
	assert.Equal(t, "Error: no clipboard", m.status)
}

func TestOpenCommand(t *testing.T) {
	m, _, _ := newTestModel(t)
	var opened []string
	m.openURL = func(u string) error {
		opened = append(opened, u)
		return nil
	}

	m = submit(t, m, "/open 1")
	assert.Contains(t, m.status, "Usage: /open N")

	m = submit(t, m, "question")
	m = submit(t, m, "/open 2")
	assert.Contains(t, m.status, "Usage: /open N")
	assert.Empty(t, opened)

	m = submit(t, m, "/open 1")
	assert.Equal(t, []string{"https://neurips.cc/virtual/2025/poster/p1"}, opened)
	assert.Equal(t, "Opened https://neurips.cc/virtual/2025/poster/p1", m.status)
}

func TestFilterCommand(t *testing.T) {
	m, conv, _ := newTestModel(t)

	m = submit(t, m, "/filter session=Session 1|Session 2, eventtype=Poster")
	f := conv.ActiveFilter()
	assert.Equal(t, []string{"Session 1", "Session 2"}, f.Sessions)
	assert.Equal(t, []string{"Poster"}, f.EventTypes)
	assert.Contains(t, m.status, "session=Session 1|Session 2")

	m = submit(t, m, "/filter clear")
	assert.True(t, conv.ActiveFilter().IsEmpty())

	m = submit(t, m, "/filter nonsense")
	assert.Contains(t, m.status, "Error:")
}

func TestQuitAndUnknownCommand(t *testing.T) {
	m, _, _ := newTestModel(t)

	m.input.SetValue("/quit")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	m = submit(t, m, "/bogus")
	assert.Contains(t, m.status, "Unknown command /bogus")
}

func TestParseFilter(t *testing.T) {
	tests := []struct {
		in      string
		want    paper.Filter
		wantErr bool
	}{
		{"topic=Vision", paper.Filter{Topics: []string{"Vision"}}, false},
		{"Topics = Vision | NLP ; type=Oral", paper.Filter{Topics: []string{"Vision", "NLP"}, EventTypes: []string{"Oral"}}, false},
		{"sessions=Morning Posters", paper.Filter{Sessions: []string{"Morning Posters"}}, false},
		{"vision", paper.Filter{}, true},
		{"junk topic=Vision", paper.Filter{}, true},
		{"topic=", paper.Filter{}, true},
	}
	for _, tt := range tests {
		got, err := ParseFilter(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.True(t, tt.want.Equal(got), "%q: got %+v", tt.in, got)
	}
}

func TestStatusFor(t *testing.T) {
	a := &rag.Answer{Meta: rag.Meta{RewrittenQuery: "scaling laws"}}
	assert.Equal(t, `0 papers reused · 4 turns · searched "scaling laws"`, statusFor(a, 4))
}
