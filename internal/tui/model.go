// Package tui is the interactive terminal chat.
package tui

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/matsen/paperchat/internal/clipboard"
	"github.com/matsen/paperchat/internal/opener"
	"github.com/matsen/paperchat/internal/paper"
	"github.com/matsen/paperchat/internal/rag"
)

// ChatPort is the TUI-facing subset of the retrieval loop.
type ChatPort interface {
	Chat(ctx context.Context, conv *rag.Conversation, text string, opts ...rag.QueryOption) (*rag.Answer, error)
	Export(conv *rag.Conversation, sink rag.ExportSink) (*rag.ExportRecord, error)
}

type entry struct {
	role   rag.Role
	text   string
	papers []rag.RetrievedPaper
	meta   *rag.Meta
}

// answerMsg carries the result of an asynchronous Chat call.
type answerMsg struct {
	answer *rag.Answer
	err    error
}

// Model is the Bubble Tea model for the chat UI.
type Model struct {
	port      ChatPort
	conv      *rag.Conversation
	exportDir string
	summary   string
	copyText  func(string) error
	openURL   func(string) error

	input      textinput.Model
	viewport   viewport.Model
	transcript []entry
	status     string
	busy       bool
	ready      bool
}

// New creates a chat model over conv.
func New(port ChatPort, conv *rag.Conversation, exportDir, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about the papers, or /help"
	ti.Focus()
	ti.CharLimit = 0
	return Model{
		port:      port,
		conv:      conv,
		exportDir: exportDir,
		summary:   summary,
		copyText:  clipboard.Copy,
		openURL:   opener.NewOpener("").Open,
		input:     ti,
		viewport:  viewport.New(0, 0),
		status:    "Ready. Type a question and press Enter.",
	}
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles keys, window size and answers.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, bh := transcriptBoxStyle.GetFrameSize()
		_, qh := inputBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header+summary, status, input box, spacer
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-bh)
		m.refresh()
		return m, nil

	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.transcript = append(m.transcript, entry{role: "error", text: msg.err.Error()})
		} else {
			a := msg.answer
			m.transcript = append(m.transcript, entry{role: rag.RoleAssistant, text: a.Text, papers: a.Papers, meta: &a.Meta})
			m.status = statusFor(a, m.conv.TurnCount())
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if msg.Type == tea.KeyEnter {
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			if strings.HasPrefix(text, "/") {
				m.input.SetValue("")
				return m.command(text)
			}
			if m.busy {
				m.status = "Still waiting for the previous answer…"
				return m, nil
			}
			m.input.SetValue("")
			m.busy = true
			m.status = "Thinking…"
			m.transcript = append(m.transcript, entry{role: rag.RoleUser, text: text})
			m.refresh()
			return m, m.ask(text)
		}
		switch msg.String() {
		case "pgup", "pgdown", "up", "down":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(text string) tea.Cmd {
	port, conv := m.port, m.conv
	return func() tea.Msg {
		a, err := port.Chat(context.Background(), conv, text)
		return answerMsg{answer: a, err: err}
	}
}

func (m Model) command(line string) (tea.Model, tea.Cmd) {
	name, args, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	args = strings.TrimSpace(args)

	switch name {
	case "quit", "exit", "q":
		return m, tea.Quit

	case "help":
		m.status = "Commands: /reset, /export [path], /copy, /open N, /filter key=v1|v2, ..., /filter clear, /quit"

	case "reset":
		if m.busy {
			m.status = "Wait for the current answer before resetting."
			break
		}
		m.conv.Reset()
		m.transcript = nil
		m.status = "Conversation reset."

	case "export":
		path := args
		if path == "" {
			path = filepath.Join(m.exportDir, rag.ExportFileName(time.Now()))
		}
		rec, err := m.port.Export(m.conv, rag.FileSink{Path: path})
		if err != nil {
			m.status = "Error: " + err.Error()
			break
		}
		m.status = fmt.Sprintf("Exported %d turns to %s", rec.TurnCount, path)

	case "copy":
		last := m.lastAnswer()
		if last == nil {
			m.status = "Nothing to copy yet."
			break
		}
		if err := m.copyText(clipboard.FormatAnswer(last.text, last.papers)); err != nil {
			m.status = "Error: " + err.Error()
			break
		}
		m.status = "Copied the last answer to the clipboard."

	case "open":
		last := m.lastAnswer()
		n, err := strconv.Atoi(args)
		if last == nil || err != nil || n < 1 || n > len(last.papers) {
			m.status = "Usage: /open N, where N numbers a paper in the last answer."
			break
		}
		target, err := opener.URLFor(last.papers[n-1].Paper, false)
		if err == nil {
			err = m.openURL(target)
		}
		if err != nil {
			m.status = "Error: " + err.Error()
			break
		}
		m.status = "Opened " + target

	case "filter":
		if args == "" {
			m.status = "Active filter: " + describeFilter(m.conv.ActiveFilter())
			break
		}
		if args == "clear" {
			m.conv.SetFilter(paper.Filter{})
			m.status = "Filter cleared."
			break
		}
		f, err := ParseFilter(args)
		if err != nil {
			m.status = "Error: " + err.Error()
			break
		}
		m.conv.SetFilter(f)
		m.status = "Active filter: " + describeFilter(m.conv.ActiveFilter())

	default:
		m.status = fmt.Sprintf("Unknown command /%s (try /help)", name)
	}

	m.refresh()
	return m, nil
}

// lastAnswer returns the most recent assistant entry, if any.
func (m Model) lastAnswer() *entry {
	for i := len(m.transcript) - 1; i >= 0; i-- {
		if m.transcript[i].role == rag.RoleAssistant {
			return &m.transcript[i]
		}
	}
	return nil
}

var filterKeyRe = regexp.MustCompile(`(?i)\b(sessions?|topics?|eventtypes?|types?)\s*=`)

// ParseFilter parses "session=Session 1|Session 2, eventtype=Poster".
// Values for one key are separated by "|".
func ParseFilter(s string) (paper.Filter, error) {
	locs := filterKeyRe.FindAllStringSubmatchIndex(s, -1)
	if len(locs) == 0 {
		return paper.Filter{}, fmt.Errorf("expected key=value with key session, topic or eventtype")
	}
	if strings.TrimSpace(s[:locs[0][0]]) != "" {
		return paper.Filter{}, fmt.Errorf("unexpected text before %q", s[locs[0][0]:locs[0][1]])
	}

	var f paper.Filter
	for i, loc := range locs {
		end := len(s)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		raw := strings.TrimRight(strings.TrimSpace(s[loc[1]:end]), ",;")
		values := strings.Split(raw, "|")

		switch key := strings.ToLower(s[loc[2]:loc[3]]); {
		case strings.HasPrefix(key, "session"):
			f.Sessions = append(f.Sessions, values...)
		case strings.HasPrefix(key, "topic"):
			f.Topics = append(f.Topics, values...)
		default:
			f.EventTypes = append(f.EventTypes, values...)
		}
	}
	f = f.Normalize()
	if f.IsEmpty() {
		return f, fmt.Errorf("filter has no values")
	}
	return f, nil
}

func describeFilter(f paper.Filter) string {
	if f.IsEmpty() {
		return "none"
	}
	var parts []string
	if len(f.Sessions) > 0 {
		parts = append(parts, "session="+strings.Join(f.Sessions, "|"))
	}
	if len(f.Topics) > 0 {
		parts = append(parts, "topic="+strings.Join(f.Topics, "|"))
	}
	if len(f.EventTypes) > 0 {
		parts = append(parts, "eventtype="+strings.Join(f.EventTypes, "|"))
	}
	return strings.Join(parts, ", ")
}

func statusFor(a *rag.Answer, turns int) string {
	source := "retrieved"
	if !a.Meta.RetrievedNewPapers {
		source = "reused"
	}
	s := fmt.Sprintf("%d papers %s · %d turns", len(a.Papers), source, turns)
	if a.Meta.RewrittenQuery != "" {
		s += fmt.Sprintf(" · searched %q", a.Meta.RewrittenQuery)
	}
	return s
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

// View renders the layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("paperchat")
	summary := mutedStyle.Render(m.summary)
	body := transcriptBoxStyle.Render(m.viewport.View())
	input := inputBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + summary + "\n" + body + "\n" + input + "\n" + status
}

func (m Model) renderTranscript() string {
	if len(m.transcript) == 0 {
		return mutedStyle.Render("No messages yet.")
	}
	width := max(20, m.viewport.Width-2)
	var b strings.Builder
	for i, e := range m.transcript {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch e.role {
		case rag.RoleUser:
			b.WriteString(userStyle.Render("You: "))
			b.WriteString(lipgloss.NewStyle().Width(width).Render(e.text))
		case rag.RoleAssistant:
			b.WriteString(assistantStyle.Render("Assistant:"))
			b.WriteString("\n")
			b.WriteString(lipgloss.NewStyle().Width(width).Render(e.text))
			for j, p := range e.papers {
				b.WriteString("\n")
				b.WriteString(mutedStyle.Render(fmt.Sprintf("  [%d] %s (%.2f)", j+1, p.Title, p.Similarity())))
			}
		default:
			b.WriteString(errorStyle.Render("Error: " + e.text))
		}
	}
	return b.String()
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	headerStyle        = lipgloss.NewStyle().Bold(true)
	mutedStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	userStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	errorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)
