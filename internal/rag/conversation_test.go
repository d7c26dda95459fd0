package rag

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matsen/paperchat/internal/paper"
)

func TestConversation_TurnsIsDeepCopy(t *testing.T) {
	c := NewConversation()
	snap, err := c.begin()
	require.NoError(t, err)
	c.commit(snap,
		Turn{Role: RoleUser, Content: "q"},
		Turn{Role: RoleAssistant, Content: "a", Citations: []Citation{{PaperID: "p1"}}},
		nil)

	turns := c.Turns()
	turns[1].Citations[0].PaperID = "mutated"
	turns[0].Content = "mutated"

	again := c.Turns()
	assert.Equal(t, "p1", again[1].Citations[0].PaperID)
	assert.Equal(t, "q", again[0].Content)
}

func TestConversation_BeginWhileBusy(t *testing.T) {
	c := NewConversation()
	_, err := c.begin()
	require.NoError(t, err)

	_, err = c.begin()
	assert.ErrorIs(t, err, ErrConversationBusy)

	c.abort()
	assert.Equal(t, Idle, c.State())
	_, err = c.begin()
	assert.NoError(t, err)
}

func TestConversation_SetFilter(t *testing.T) {
	c := NewConversation()
	c.SetFilter(paper.Filter{Topics: []string{" Vision ", ""}})
	assert.Equal(t, []string{"Vision"}, c.ActiveFilter().Topics)

	f := c.ActiveFilter()
	f.Topics[0] = "mutated"
	assert.Equal(t, []string{"Vision"}, c.ActiveFilter().Topics)
}

func TestStateJSON(t *testing.T) {
	data, err := json.Marshal(map[string]State{"state": AwaitingBackend})
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"awaiting_backend"}`, string(data))
}

func TestFileSink_WritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "export.json")
	rec := &ExportRecord{
		Timestamp: time.Date(2025, 12, 3, 10, 0, 0, 0, time.UTC),
		Model:     "m",
		TurnCount: 2,
		Turns: []Turn{
			{Role: RoleUser, Content: "q"},
			{Role: RoleAssistant, Content: "a", Citations: []Citation{{PaperID: "p1", Title: "T", Distance: 0.2}}},
		},
	}
	require.NoError(t, FileSink{Path: path}.WriteExport(rec))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var back ExportRecord
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, "m", back.Model)
	assert.Equal(t, []string{"p1"}, back.Turns[1].PapersCited())
	assert.NotContains(t, string(data), `"active_filter"`, "empty filter is omitted")

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestFileSink_Unwritable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	err := FileSink{Path: filepath.Join(blocker, "export.json")}.WriteExport(&ExportRecord{})
	assert.Error(t, err)
}

func TestExportFileName(t *testing.T) {
	ts := time.Date(2025, 12, 3, 14, 5, 9, 0, time.UTC)
	assert.Equal(t, "conversation-20251203-140509.json", ExportFileName(ts))
}
