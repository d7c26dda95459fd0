package opener

import (
	"errors"
	"strings"
	"testing"

	"github.com/matsen/paperchat/internal/paper"
)

func TestURLFor(t *testing.T) {
	both := paper.Paper{ID: "1", VirtualURL: "https://neurips.cc/virtual/2025/poster/1", PaperURL: "https://openreview.net/forum?id=x"}
	onlyPaper := paper.Paper{ID: "2", PaperURL: "https://openreview.net/forum?id=y"}

	tests := []struct {
		name        string
		p           paper.Paper
		preferPaper bool
		want        string
		wantErr     error
	}{
		{"virtual by default", both, false, both.VirtualURL, nil},
		{"paper when preferred", both, true, both.PaperURL, nil},
		{"fallback to paper", onlyPaper, false, onlyPaper.PaperURL, nil},
		{"no url", paper.Paper{ID: "3"}, false, "", ErrNoURL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := URLFor(tt.p, tt.preferPaper)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("URLFor() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("URLFor() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("URLFor() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestURLFor_RejectsNonHTTP(t *testing.T) {
	_, err := URLFor(paper.Paper{ID: "1", VirtualURL: "file:///etc/passwd"}, false)
	if err == nil || !strings.Contains(err.Error(), "not an http(s) url") {
		t.Errorf("URLFor() error = %v, want rejection", err)
	}
}

func TestCommand(t *testing.T) {
	const target = "https://example.org"
	tests := []struct {
		goos    string
		browser string
		want    []string
	}{
		{"darwin", "", []string{"open", target}},
		{"darwin", "Firefox", []string{"open", "-a", "Firefox", target}},
		{"linux", "system", []string{"xdg-open", target}},
		{"linux", "firefox", []string{"firefox", target}},
		{"windows", "", []string{"rundll32", "url.dll,FileProtocolHandler", target}},
	}
	for _, tt := range tests {
		t.Run(tt.goos+"/"+tt.browser, func(t *testing.T) {
			o := NewOpener(tt.browser)
			o.goos = tt.goos
			cmd, err := o.Command(target)
			if err != nil {
				t.Fatalf("Command() error = %v", err)
			}
			if strings.Join(cmd.Args, " ") != strings.Join(tt.want, " ") {
				t.Errorf("Command() args = %v, want %v", cmd.Args, tt.want)
			}
		})
	}

	o := NewOpener("")
	o.goos = "plan9"
	if _, err := o.Command(target); err == nil {
		t.Error("expected unsupported platform error")
	}
}
