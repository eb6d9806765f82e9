package client

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/concord-chat/relay/internal/models"
	"github.com/concord-chat/relay/internal/session"
)

// headerGap is the longest pause between two messages from the same sender
// that still groups them under one header
const headerGap = 5 * time.Minute

// panelWidths splits the window between sidebar, chat and member list.
// The member list collapses on narrow terminals.
func (a *App) panelWidths() (sidebar, chat, members int) {
	sidebar = clamp(a.width/5, 20, 30)
	if a.showMembers {
		members = clamp(a.width/6, 15, 25)
	}

	chat = a.width - sidebar - members - 4 // borders
	if chat < 30 && members > 0 {
		members = 0
		chat = a.width - sidebar - 2
	}
	if chat < 10 {
		chat = 10
	}
	return sidebar, chat, members
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// renderMainView renders the main chat interface
func (a *App) renderMainView() string {
	sidebarWidth, chatWidth, membersWidth := a.panelWidths()
	height := a.height - 1 // status bar

	sidebar := a.renderSidebar(sidebarWidth, height)
	chat := a.renderChatPanel(chatWidth, height)

	var mainContent string
	if membersWidth > 0 {
		mainContent = lipgloss.JoinHorizontal(lipgloss.Top, sidebar, chat, a.renderUserList(membersWidth, height))
	} else {
		mainContent = lipgloss.JoinHorizontal(lipgloss.Top, sidebar, chat)
	}

	return lipgloss.JoinVertical(lipgloss.Left, mainContent, a.renderStatusBar())
}

// renderSidebar renders the channel list
func (a *App) renderSidebar(width, height int) string {
	var b strings.Builder

	b.WriteString(a.styles.Title.Render("Relay"))
	b.WriteString("\n\n")
	b.WriteString(a.styles.SectionTitle.Render("CHANNELS"))
	b.WriteString("\n")

	for i, ch := range a.channels {
		name := "# " + ch.Name
		if n := a.unread[ch.ID]; n > 0 {
			name += fmt.Sprintf(" (%d)", n)
		}
		name = truncate(name, width-4)

		switch {
		case i == a.channelIndex && a.focus == FocusSidebar:
			b.WriteString(a.styles.SidebarSelected.Width(width - 2).Render(name))
		case ch.ID == a.current.ID:
			b.WriteString(a.styles.SidebarItem.Bold(true).Render(name))
		default:
			b.WriteString(a.styles.SidebarItem.Faint(true).Render(name))
		}
		b.WriteString("\n")
	}

	if len(a.channels) == 0 {
		b.WriteString(a.styles.SystemMessage.PaddingLeft(1).Render("No channels"))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(a.styles.SystemMessage.PaddingLeft(1).Render("Ctrl+N: new channel"))

	sidebarStyle := a.styles.SidebarContainer.
		Width(width).
		Height(height).
		Border(lipgloss.RoundedBorder(), false, true, false, false).
		BorderForeground(lipgloss.Color(a.theme.Colors.Selection))

	if a.focus == FocusSidebar {
		sidebarStyle = sidebarStyle.BorderForeground(lipgloss.Color(a.theme.Colors.Purple))
	}

	return sidebarStyle.Render(b.String())
}

// renderChatPanel renders the channel header, chat log and composer
func (a *App) renderChatPanel(width, height int) string {
	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color(a.theme.Colors.Foreground)).
		Background(lipgloss.Color(a.theme.Colors.Selection)).
		Bold(true).
		Width(width).
		Padding(0, 1)

	title := "Select a channel"
	if a.current.ID != "" {
		title = "# " + a.current.Name
		if a.current.Description != "" {
			title += " - " + a.current.Description
		}
	}
	header := headerStyle.Render(truncate(title, width-2))

	chatHeight := height - 4
	chatStyle := lipgloss.NewStyle().
		Width(width).
		Height(chatHeight)

	chatContent := a.chatViewport.View()
	if len(a.messages) == 0 && len(a.systemLines) == 0 {
		chatContent = a.styles.SystemMessage.
			Width(width).
			Align(lipgloss.Center).
			MarginTop(chatHeight / 3).
			Render("No messages yet. Say hello!")
	}
	chat := chatStyle.Render(chatContent)

	inputStyle := a.styles.InputField.Width(width - 2)
	if a.focus == FocusInput {
		inputStyle = a.styles.InputFocused.Width(width - 2)
	}

	var input string
	if a.state == session.StateConnected {
		input = inputStyle.Render(a.input.View())
	} else {
		input = inputStyle.Render(a.styles.SystemMessage.Render("Not connected"))
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, chat, input)
}

// renderUserList renders the member list
func (a *App) renderUserList(width, height int) string {
	var b strings.Builder

	b.WriteString(a.styles.SectionTitle.PaddingLeft(1).Render(fmt.Sprintf("MEMBERS - %d", len(a.users))))
	b.WriteString("\n\n")

	for _, u := range a.users {
		style := a.styles.SidebarItem
		if a.user != nil && u.UserID == a.user.UserID {
			style = style.Inherit(a.styles.UsernameSelf)
		}
		b.WriteString(style.Render(truncate("● "+u.GetDisplayName(), width-3)))
		b.WriteString("\n")
	}

	if len(a.users) == 0 {
		b.WriteString(a.styles.SystemMessage.PaddingLeft(1).Render("No members"))
		b.WriteString("\n")
	}

	userListStyle := lipgloss.NewStyle().
		Width(width).
		Height(height).
		Border(lipgloss.RoundedBorder(), false, false, false, true).
		BorderForeground(lipgloss.Color(a.theme.Colors.Selection))

	return userListStyle.Render(b.String())
}

// renderStatusBar renders the bottom status bar
func (a *App) renderStatusBar() string {
	statusStyle := lipgloss.NewStyle().
		Background(lipgloss.Color(a.theme.Colors.Selection)).
		Foreground(lipgloss.Color(a.theme.Colors.Foreground)).
		Width(a.width).
		Padding(0, 1)

	leftContent := a.renderState()
	if a.user != nil {
		leftContent += "  |  " + a.user.GetDisplayName() + " (@" + a.user.Username + ")"
	}

	rightContent := "Tab: Navigate  |  /help  |  Ctrl+C: Quit"

	// Transient status first, then the connection status line
	centerContent := ""
	switch {
	case a.statusMessage != "" && a.statusError:
		centerContent = a.styles.Error.Render(a.statusMessage)
	case a.statusMessage != "":
		centerContent = a.styles.Info.Render(a.statusMessage)
	case a.identityStatus != "" && a.identityError:
		centerContent = a.styles.Error.Render(a.identityStatus)
	case a.identityStatus != "":
		centerContent = a.styles.Info.Render(a.identityStatus)
	}

	leftLen := lipgloss.Width(leftContent)
	rightLen := lipgloss.Width(rightContent)
	centerLen := lipgloss.Width(centerContent)
	totalSpace := a.width - leftLen - rightLen - centerLen - 4

	var bar string
	if totalSpace > 0 {
		leftPad := totalSpace / 2
		rightPad := totalSpace - leftPad
		bar = leftContent + strings.Repeat(" ", leftPad) + centerContent + strings.Repeat(" ", rightPad) + rightContent
	} else {
		bar = leftContent + "  " + centerContent
	}

	return statusStyle.Render(bar)
}

// renderState renders the connection indicator
func (a *App) renderState() string {
	switch a.state {
	case session.StateConnected:
		return a.styles.StateConnected.Render("● Connected")
	case session.StateConnecting:
		return a.styles.StateConnecting.Render("◐ Connecting")
	case session.StateError:
		return a.styles.StateError.Render("✕ Error")
	default:
		return a.styles.StateDisconnected.Render("○ Disconnected")
	}
}

// chatEntry is one rendered line source: a message or a system line
type chatEntry struct {
	at     time.Time
	msg    *models.Message
	system *systemLine
}

// updateChatContent rebuilds the chat viewport content. Messages and system
// lines are interleaved by time; consecutive messages from one sender share
// a header.
func (a *App) updateChatContent() {
	entries := make([]chatEntry, 0, len(a.messages)+len(a.systemLines))
	for i := range a.messages {
		m := &a.messages[i]
		entries = append(entries, chatEntry{at: m.CreatedAt(), msg: m})
	}
	for i := range a.systemLines {
		l := &a.systemLines[i]
		entries = append(entries, chatEntry{at: l.at, system: l})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].at.Before(entries[j].at)
	})

	var content strings.Builder
	var last *models.Message

	for _, e := range entries {
		if e.system != nil {
			style := a.styles.SystemMessage
			if e.system.isError {
				style = a.styles.Error
			}
			content.WriteString(style.Render("* " + e.system.text))
			content.WriteString("\n")
			last = nil
			continue
		}

		msg := e.msg
		showHeader := last == nil ||
			last.Sender.UserID != msg.Sender.UserID ||
			msg.CreatedAt().Sub(last.CreatedAt()) >= headerGap
		if showHeader {
			authorStyle := a.styles.UsernameOther
			if a.user != nil && msg.Sender.UserID == a.user.UserID {
				authorStyle = a.styles.UsernameSelf
			}
			header := fmt.Sprintf("%s  %s",
				authorStyle.Render(msg.Sender.GetDisplayName()),
				a.styles.Timestamp.Render(msg.CreatedAt().Format("15:04")))
			content.WriteString(header)
			content.WriteString("\n")
		}

		content.WriteString(a.styles.MessageContent.Render(msg.Body))
		content.WriteString("\n")
		last = msg
	}

	a.chatViewport.SetContent(content.String())
}

// truncate shortens s to width cells with an ellipsis
func truncate(s string, width int) string {
	if width <= 3 || lipgloss.Width(s) <= width {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && lipgloss.Width(string(r)) > width-3 {
		r = r[:len(r)-1]
	}
	return string(r) + "..."
}
