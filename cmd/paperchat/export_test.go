package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/matsen/paperchat/internal/paper"
	"github.com/matsen/paperchat/internal/rag"
)

func TestCitedPaperIDs(t *testing.T) {
	rec := &rag.ExportRecord{
		Turns: []rag.Turn{
			{Role: rag.RoleUser, Content: "q1"},
			{Role: rag.RoleAssistant, Content: "a1", Citations: []rag.Citation{{PaperID: "3"}, {PaperID: "1"}}},
			{Role: rag.RoleUser, Content: "q2"},
			{Role: rag.RoleAssistant, Content: "a2", Citations: []rag.Citation{{PaperID: "1"}, {PaperID: "7"}}},
		},
	}
	got := citedPaperIDs(rec)
	want := []string{"3", "1", "7"}
	if len(got) != len(want) {
		t.Fatalf("citedPaperIDs = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("citedPaperIDs[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestReadExportRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conv.json")
	rec := rag.ExportRecord{
		Model:     "local-model",
		TurnCount: 2,
		Turns: []rag.Turn{
			{Role: rag.RoleUser, Content: "hi"},
			{Role: rag.RoleAssistant, Content: "hello", Citations: []rag.Citation{{PaperID: "9", Title: "T"}}},
		},
	}
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	got, err := readExportRecord(path)
	if err != nil {
		t.Fatalf("readExportRecord: %v", err)
	}
	if got.TurnCount != 2 || len(got.Turns) != 2 {
		t.Errorf("record = %+v", got)
	}
	if ids := citedPaperIDs(got); len(ids) != 1 || ids[0] != "9" {
		t.Errorf("cited = %v", ids)
	}

	if err := os.WriteFile(path, []byte("not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := readExportRecord(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestMissingID(t *testing.T) {
	papers := []paper.Paper{{ID: "1"}, {ID: "3"}}
	if got := missingID([]string{"1", "2", "3"}, papers); got != "2" {
		t.Errorf("missingID = %q, want 2", got)
	}
	if got := missingID([]string{"1"}, papers); got != "" {
		t.Errorf("missingID = %q, want empty", got)
	}
}
