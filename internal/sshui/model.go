package sshui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/dastanhayama/whisper/internal/directory"
)

const maxTranscriptLines = 500

type lineKind int

const (
	lineOwn lineKind = iota
	lineOther
	lineAction
	lineSystem
	lineError
)

type transcriptLine struct {
	kind lineKind
	text string
}

// chatLineMsg appends one rendered line to the transcript.
type chatLineMsg transcriptLine

// rosterMsg replaces the rendered user list.
type rosterMsg struct{ users []directory.UserInfo }

// roomMsg updates the header's current room name.
type roomMsg struct{ room string }

// inputEchoMsg carries the current contents of the line editor the SSH
// reader goroutine maintains — bubbletea never sees the raw keystrokes
// itself in this "external input" mode, so the reader pushes the buffer
// it is building on every keystroke.
type inputEchoMsg struct{ buffer string }

// quitMsg asks the program to exit (Session.Disconnect fired).
type quitMsg struct{}

// clearTranscriptMsg wipes the rendered transcript (Session.ClearMessages).
type clearTranscriptMsg struct{}

// Model is the bubbletea program rendering one Session's output.
type Model struct {
	theme Theme

	nick string
	room string

	lines    []transcriptLine
	roster   []directory.UserInfo
	input    string
	viewport viewport.Model

	width, height int
	quitting      bool
}

// NewModel constructs a Model for the given identity label.
func NewModel(nick, room string) Model {
	return Model{
		theme:    DefaultTheme(),
		nick:     nick,
		room:     room,
		viewport: viewport.New(0, 0),
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-4, 1)
		m.viewport.SetContent(m.renderTranscript())
		m.viewport.GotoBottom()
		return m, nil

	case chatLineMsg:
		m.lines = append(m.lines, transcriptLine(msg))
		if len(m.lines) > maxTranscriptLines {
			m.lines = m.lines[len(m.lines)-maxTranscriptLines:]
		}
		m.viewport.SetContent(m.renderTranscript())
		m.viewport.GotoBottom()
		return m, nil

	case rosterMsg:
		m.roster = msg.users
		return m, nil

	case roomMsg:
		m.room = msg.room
		return m, nil

	case inputEchoMsg:
		m.input = msg.buffer
		return m, nil

	case clearTranscriptMsg:
		m.lines = nil
		m.viewport.SetContent("")
		return m, nil

	case quitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return m.theme.System.Render("Disconnected.") + "\r\n"
	}

	header := m.theme.Banner.Render(fmt.Sprintf("Whisper — #%s — %s", m.room, m.nick))
	roster := m.theme.Roster.Render(m.renderRoster())
	prompt := m.theme.Prompt.Render("> " + m.input)

	return strings.Join([]string{
		header,
		roster,
		m.viewport.View(),
		prompt,
	}, "\r\n")
}

func (m Model) renderTranscript() string {
	var b strings.Builder
	for _, l := range m.lines {
		b.WriteString(m.renderLine(l))
		b.WriteString("\r\n")
	}
	return b.String()
}

func (m Model) renderLine(l transcriptLine) string {
	switch l.kind {
	case lineOwn:
		return m.theme.Own.Render(l.text)
	case lineAction:
		return m.theme.Action.Render("* " + l.text)
	case lineSystem:
		return m.theme.System.Render("-- " + l.text)
	case lineError:
		return m.theme.Error.Render(l.text)
	default:
		return m.theme.Other.Render(l.text)
	}
}

func (m Model) renderRoster() string {
	if len(m.roster) == 0 {
		return ""
	}
	names := make([]string, len(m.roster))
	for i, u := range m.roster {
		names[i] = u.Nick
	}
	return "users: " + strings.Join(names, ", ")
}
