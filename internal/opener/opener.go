// Package opener opens paper pages in a web browser.
package opener

import (
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"runtime"

	"github.com/matsen/paperchat/internal/paper"
)

// ErrNoURL is returned when a paper has neither a virtual-site nor a paper URL.
var ErrNoURL = errors.New("paper has no url")

// Opener launches URLs with the configured browser.
type Opener struct {
	browser string
	goos    string
}

// NewOpener creates an opener. An empty or "system" browser uses the
// platform default handler.
func NewOpener(browser string) *Opener {
	if browser == "" {
		browser = "system"
	}
	return &Opener{browser: browser, goos: runtime.GOOS}
}

// URLFor picks the page to open for p: the conference virtual-site page,
// or with preferPaper the paper/OpenReview link. Either falls back to the other.
func URLFor(p paper.Paper, preferPaper bool) (string, error) {
	first, second := p.VirtualURL, p.PaperURL
	if preferPaper {
		first, second = second, first
	}
	for _, u := range []string{first, second} {
		if u == "" {
			continue
		}
		parsed, err := url.Parse(u)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return "", fmt.Errorf("refusing to open %q: not an http(s) url", u)
		}
		return u, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNoURL, p.ID)
}

// Command returns the command that would open target.
func (o *Opener) Command(target string) (*exec.Cmd, error) {
	switch o.goos {
	case "darwin":
		return o.darwinCommand(target), nil
	case "linux":
		return o.linuxCommand(target), nil
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", target), nil
	default:
		return nil, fmt.Errorf("unsupported platform: %s", o.goos)
	}
}

// Open starts the browser on target without waiting for it to exit.
func (o *Opener) Open(target string) error {
	cmd, err := o.Command(target)
	if err != nil {
		return err
	}
	return cmd.Start()
}

// OpenPaper opens the page for p, see URLFor.
func (o *Opener) OpenPaper(p paper.Paper, preferPaper bool) (string, error) {
	target, err := URLFor(p, preferPaper)
	if err != nil {
		return "", err
	}
	return target, o.Open(target)
}

// darwinCommand returns the command to open a URL on macOS.
func (o *Opener) darwinCommand(target string) *exec.Cmd {
	if o.browser == "system" {
		return exec.Command("open", target)
	}
	return exec.Command("open", "-a", o.browser, target)
}

// linuxCommand returns the command to open a URL on Linux.
func (o *Opener) linuxCommand(target string) *exec.Cmd {
	if o.browser == "system" {
		return exec.Command("xdg-open", target)
	}
	return exec.Command(o.browser, target)
}
