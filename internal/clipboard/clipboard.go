// Package clipboard copies chat answers to the system clipboard.
package clipboard

import (
	"errors"
	"fmt"
	"strings"

	sysclip "github.com/atotto/clipboard"

	"github.com/matsen/paperchat/internal/paper"
	"github.com/matsen/paperchat/internal/rag"
)

// ErrClipboardUnavailable is returned when clipboard access is not available.
var ErrClipboardUnavailable = errors.New("clipboard unavailable")

// IsAvailable reports whether a clipboard utility was found on this system.
func IsAvailable() bool {
	return !sysclip.Unsupported
}

// Copy copies the given text to the system clipboard.
func Copy(text string) error {
	if sysclip.Unsupported {
		return ErrClipboardUnavailable
	}
	if err := sysclip.WriteAll(text); err != nil {
		return fmt.Errorf("%w: %v", ErrClipboardUnavailable, err)
	}
	return nil
}

// FormatAnswer renders an answer and the papers it drew on as plain text,
// suitable for pasting into notes.
func FormatAnswer(text string, papers []rag.RetrievedPaper) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(text))
	if len(papers) == 0 {
		b.WriteString("\n")
		return b.String()
	}
	b.WriteString("\n\nPapers:\n")
	for i, p := range papers {
		fmt.Fprintf(&b, "[%d] %s", i+1, p.Title)
		if authors := paper.FormatAuthors(p.Authors, 3); authors != "" {
			fmt.Fprintf(&b, " (%s)", authors)
		}
		if url := firstURL(p.Paper); url != "" {
			fmt.Fprintf(&b, " %s", url)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func firstURL(p paper.Paper) string {
	if p.VirtualURL != "" {
		return p.VirtualURL
	}
	return p.PaperURL
}
