package client

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// openChannelForm shows the create-channel dialog
func (a *App) openChannelForm() {
	a.modal = true
	a.channelName.Reset()
	a.channelDesc.Reset()
	a.channelStatus = ""
	a.channelError = false
	a.channelFocus = 0
	a.channelName.Focus()
	a.channelDesc.Blur()
	a.input.Blur()
}

// closeChannelForm hides the create-channel dialog and returns to the composer
func (a *App) closeChannelForm() {
	a.modal = false
	a.channelName.Blur()
	a.channelDesc.Blur()
	a.focus = FocusInput
	a.input.Focus()
}

// updateChannelForm routes tea messages to the focused dialog field
func (a *App) updateChannelForm(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	if a.channelFocus == 0 {
		a.channelName, cmd = a.channelName.Update(msg)
	} else {
		a.channelDesc, cmd = a.channelDesc.Update(msg)
	}
	return cmd
}

// handleChannelFormKey handles key events in the create-channel dialog
func (a *App) handleChannelFormKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "esc":
		a.closeChannelForm()
		return nil, true
	case "tab", "shift+tab":
		a.channelFocus = (a.channelFocus + 1) % 2
		if a.channelFocus == 0 {
			a.channelName.Focus()
			a.channelDesc.Blur()
		} else {
			a.channelName.Blur()
			a.channelDesc.Focus()
		}
		return nil, true
	case "enter":
		return a.createChannelCmd(a.channelName.Value(), a.channelDesc.Value()), true
	}
	return nil, false
}

// renderChannelForm renders the create-channel dialog
func (a *App) renderChannelForm() string {
	dialogWidth := 56

	var content strings.Builder
	content.WriteString(a.styles.Title.Render("Create Channel"))
	content.WriteString("\n\n")

	nameStyle := a.styles.InputField.Width(dialogWidth - 8)
	descStyle := nameStyle
	if a.channelFocus == 0 {
		nameStyle = a.styles.InputFocused.Width(dialogWidth - 8)
	} else {
		descStyle = a.styles.InputFocused.Width(dialogWidth - 8)
	}

	content.WriteString("Name\n")
	content.WriteString(nameStyle.Render(a.channelName.View()))
	content.WriteString("\n\nDescription\n")
	content.WriteString(descStyle.Render(a.channelDesc.View()))
	content.WriteString("\n\n")

	if a.channelStatus != "" {
		style := a.styles.Info
		if a.channelError {
			style = a.styles.Error
		}
		content.WriteString(style.Render(a.channelStatus))
		content.WriteString("\n\n")
	}

	content.WriteString(a.styles.SystemMessage.Render("[Enter] Create  [Tab] Switch field  [Esc] Cancel"))

	dialog := a.styles.Modal.Width(dialogWidth).Render(content.String())
	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, dialog)
}
