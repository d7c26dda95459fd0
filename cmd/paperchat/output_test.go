package main

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/matsen/paperchat/internal/rag"
)

func TestTruncateString(t *testing.T) {
	tests := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"ünïcödé títle here", 10, "ünïcödé..."},
	}
	for _, tt := range tests {
		if got := truncateString(tt.in, tt.maxLen); got != tt.want {
			t.Errorf("truncateString(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
		}
	}
}

func TestWrapText(t *testing.T) {
	text := "the quick brown fox jumps over the lazy dog"
	got := wrapText(text, 15, "  ")
	for i, line := range strings.Split(got, "\n") {
		if i > 0 {
			if !strings.HasPrefix(line, "  ") {
				t.Errorf("line %d missing indent: %q", i, line)
			}
			line = strings.TrimPrefix(line, "  ")
		}
		if len(line) > 15 {
			t.Errorf("line %d too long: %q", i, line)
		}
	}
	if strings.Join(strings.Fields(got), " ") != text {
		t.Errorf("wrapText lost words: %q", got)
	}

	if got := wrapText("fits", 15, "  "); got != "fits" {
		t.Errorf("wrapText short = %q", got)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{1500 * time.Millisecond, "1.5s"},
		{59 * time.Second, "59.0s"},
		{90 * time.Second, "1m 30s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.n); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestBuildProgressBar(t *testing.T) {
	if got := buildProgressBar(0, 0, 10); got != strings.Repeat(" ", 10) {
		t.Errorf("empty total = %q", got)
	}
	if got := buildProgressBar(5, 10, 10); got != "=====>    " {
		t.Errorf("half = %q", got)
	}
	if got := buildProgressBar(10, 10, 10); got != strings.Repeat("=", 10) {
		t.Errorf("full = %q", got)
	}
}

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", fmt.Errorf("%w: empty question", rag.ErrInvalidInput), ExitInvalidInput},
		{"retriever", &rag.BackendError{Kind: rag.ErrRetrieverUnavailable, Call: "retriever.search", Err: errors.New("down")}, ExitBackendError},
		{"inference", &rag.BackendError{Kind: rag.ErrInferenceUnavailable, Call: "llm.complete", Err: errors.New("down")}, ExitBackendError},
		{"busy", rag.ErrConversationBusy, ExitError},
		{"other", errors.New("boom"), ExitError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCodeFor(tt.err); got != tt.want {
				t.Errorf("exitCodeFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestParseFilterFlags(t *testing.T) {
	f := parseFilterFlags(nil, nil, nil)
	if !f.IsEmpty() {
		t.Errorf("no flags should give an empty filter, got %+v", f)
	}

	f = parseFilterFlags([]string{" Poster Session 1 ", ""}, nil, []string{"Oral"})
	if f.IsEmpty() {
		t.Fatal("filter should not be empty")
	}
	if len(f.Sessions) != 1 || f.Sessions[0] != "Poster Session 1" {
		t.Errorf("Sessions = %v", f.Sessions)
	}
	if len(f.EventTypes) != 1 || f.EventTypes[0] != "Oral" {
		t.Errorf("EventTypes = %v", f.EventTypes)
	}
}

func TestFormatNames(t *testing.T) {
	names := []string{"A", "B", "C", "D"}
	if got := formatNames(names, 3); got != "A, B, C, et al." {
		t.Errorf("formatNames = %q", got)
	}
	if got := formatNames(names[:2], 3); got != "A, B" {
		t.Errorf("formatNames = %q", got)
	}
}

func TestParseAuthorQueries(t *testing.T) {
	got := parseAuthorQueries([]string{"Yu, Timothy", "  ", "Matsen"})
	if len(got) != 2 {
		t.Fatalf("parseAuthorQueries = %+v", got)
	}
	if got[0].Last != "Yu" || got[0].First != "Timothy" {
		t.Errorf("first query = %+v", got[0])
	}
	if got[1].Last != "Matsen" || got[1].First != "" {
		t.Errorf("second query = %+v", got[1])
	}
}
