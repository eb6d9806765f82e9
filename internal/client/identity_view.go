package client

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/concord-chat/relay/internal/session"
)

// updateIdentityForm routes tea messages to the focused identity field
func (a *App) updateIdentityForm(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	if a.identityFocus == 0 {
		a.identityUsername, cmd = a.identityUsername.Update(msg)
	} else {
		a.identityDisplayName, cmd = a.identityDisplayName.Update(msg)
	}
	return cmd
}

// cycleIdentityFocus toggles focus between the two identity fields
func (a *App) cycleIdentityFocus() {
	a.identityFocus = (a.identityFocus + 1) % 2
	if a.identityFocus == 0 {
		a.identityUsername.Focus()
		a.identityDisplayName.Blur()
	} else {
		a.identityUsername.Blur()
		a.identityDisplayName.Focus()
	}
}

// handleIdentityKey handles key events on the identity view
func (a *App) handleIdentityKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "tab", "shift+tab", "up", "down":
		a.cycleIdentityFocus()
		return nil, true
	case "enter":
		if a.identityFocus == 0 && strings.TrimSpace(a.identityDisplayName.Value()) == "" {
			a.cycleIdentityFocus()
			return nil, true
		}
		return a.handleIdentitySubmit(), true
	}
	// Regular typing is handled by the component update section in Update()
	return nil, false
}

// handleIdentitySubmit starts the connection with the entered identity.
// Validation happens in the session, which reports through the identity
// status region.
func (a *App) handleIdentitySubmit() tea.Cmd {
	if a.state == session.StateConnecting {
		return nil
	}
	username := a.identityUsername.Value()
	displayName := a.identityDisplayName.Value()
	return a.connectCmd(username, displayName)
}

// renderIdentityView renders the pre-connection identity screen
func (a *App) renderIdentityView() string {
	dialogWidth := 60

	var content strings.Builder

	titleStyle := a.styles.Title.
		Align(lipgloss.Center).
		Width(dialogWidth - 4)
	content.WriteString(titleStyle.Render("Welcome to Relay"))
	content.WriteString("\n\n")

	subtitleStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color(a.theme.Colors.Comment)).
		Align(lipgloss.Center).
		Width(dialogWidth - 4)
	content.WriteString(subtitleStyle.Render("Pick a username and display name to join the chat."))
	content.WriteString("\n\n")

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color(a.theme.Colors.Purple)).
		Bold(true)

	field := func(label string, focused bool, view string) {
		content.WriteString(labelStyle.Render(label))
		content.WriteString("\n")
		style := a.styles.InputField.Width(dialogWidth - 6)
		if focused {
			style = a.styles.InputFocused.Width(dialogWidth - 6)
		}
		content.WriteString(style.Render(view))
		content.WriteString("\n\n")
	}
	field("Username:", a.identityFocus == 0, a.identityUsername.View())
	field("Display name:", a.identityFocus == 1, a.identityDisplayName.View())

	if a.identityStatus != "" {
		style := a.styles.Info
		if a.identityError {
			style = a.styles.Error
		}
		content.WriteString(style.Width(dialogWidth - 4).Align(lipgloss.Center).Render(a.identityStatus))
		content.WriteString("\n\n")
	}

	summary := fmt.Sprintf("%d channels  •  %d members  •  %s", len(a.channels), len(a.users), a.renderState())
	content.WriteString(lipgloss.NewStyle().Width(dialogWidth - 4).Align(lipgloss.Center).Render(summary))
	content.WriteString("\n\n")

	helpStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color(a.theme.Colors.Comment)).
		Italic(true).
		Width(dialogWidth - 4).
		Align(lipgloss.Center)
	content.WriteString(helpStyle.Render("[Tab] Switch field  [Enter] Connect  [Ctrl+C] Quit"))

	dialog := a.styles.Border.
		Padding(1, 2).
		Width(dialogWidth).
		Render(content.String())

	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, dialog)
}
