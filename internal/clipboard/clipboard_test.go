package clipboard

import (
	"strings"
	"testing"

	"github.com/matsen/paperchat/internal/paper"
	"github.com/matsen/paperchat/internal/rag"
)

func TestCopy(t *testing.T) {
	if !IsAvailable() {
		t.Skip("clipboard not available on this system")
	}
	if err := Copy("test clipboard content"); err != nil {
		t.Skipf("clipboard present but not usable here: %v", err)
	}
}

func TestFormatAnswer(t *testing.T) {
	papers := []rag.RetrievedPaper{
		{Paper: paper.Paper{
			ID:         "1",
			Title:      "Diffusion for Proteins",
			Authors:    []paper.Author{{Name: "A"}, {Name: "B"}, {Name: "C"}, {Name: "D"}},
			VirtualURL: "https://example.org/1",
		}, Distance: 0.1},
		{Paper: paper.Paper{ID: "2", Title: "Sparse Attention"}, Distance: 0.2},
	}

	got := FormatAnswer("  Two papers look relevant.  ", papers)

	if !strings.HasPrefix(got, "Two papers look relevant.\n\nPapers:\n") {
		t.Errorf("unexpected header:\n%s", got)
	}
	if !strings.Contains(got, "[1] Diffusion for Proteins (A, B, C, et al.) https://example.org/1\n") {
		t.Errorf("first paper line missing:\n%s", got)
	}
	if !strings.Contains(got, "[2] Sparse Attention\n") {
		t.Errorf("second paper line missing:\n%s", got)
	}
}

func TestFormatAnswer_NoPapers(t *testing.T) {
	if got := FormatAnswer("No match.", nil); got != "No match.\n" {
		t.Errorf("FormatAnswer = %q", got)
	}
}
