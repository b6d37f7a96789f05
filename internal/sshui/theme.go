// Package sshui is the SSH Transport + Terminal UI bridge (SPEC_FULL.md
// §4.11): an SSH server that accepts a pty/shell per connection, creates
// a Session, and drives a bubbletea program rendering the Session's
// output callbacks while a dedicated reader turns raw terminal bytes
// into input lines. Grounded on internal/ui/model.go + internal/ui/
// modal.go + internal/ui/theme.go's bubbletea/lipgloss program shape
// (rewritten for chat transcripts instead of agent turns) and the SSH
// accept-loop/pty-negotiation shape of a reference sshserver (not
// teacher code — read for the golang.org/x/crypto/ssh wiring only).
package sshui

import "github.com/charmbracelet/lipgloss"

// Theme is the chat client's color palette, following the teacher's
// DefaultTheme() shape (one lipgloss.Style field per rendered role).
type Theme struct {
	Own     lipgloss.Style
	Other   lipgloss.Style
	Action  lipgloss.Style
	System  lipgloss.Style
	Error   lipgloss.Style
	Roster  lipgloss.Style
	Prompt  lipgloss.Style
	Banner  lipgloss.Style
}

// DefaultTheme returns the built-in palette.
func DefaultTheme() Theme {
	return Theme{
		Own: lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true),

		Other: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")),

		Action: lipgloss.NewStyle().
			Foreground(lipgloss.Color("213")).
			Italic(true),

		System: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Italic(true),

		Error: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true),

		Roster: lipgloss.NewStyle().
			Foreground(lipgloss.Color("76")),

		Prompt: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1),

		Banner: lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true),
	}
}
