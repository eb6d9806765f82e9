package client

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/concord-chat/relay/internal/themes"
)

// Command represents a parsed slash command
type Command struct {
	Name string
	Args []string
}

// ParseCommand parses a slash command string into a Command struct
func ParseCommand(input string) (*Command, error) {
	if !strings.HasPrefix(input, "/") {
		return nil, errors.New("not a command")
	}

	// Remove leading slash and split into parts
	parts := strings.Fields(input[1:])
	if len(parts) == 0 {
		return nil, errors.New("empty command")
	}

	return &Command{
		Name: strings.ToLower(parts[0]),
		Args: parts[1:],
	}, nil
}

// CommandHandler handles slash command execution
type CommandHandler struct {
	app *App
}

// NewCommandHandler creates a new command handler
func NewCommandHandler(app *App) *CommandHandler {
	return &CommandHandler{app: app}
}

// Execute executes a parsed command. Commands that reach the network return
// a tea.Cmd; the rest update the app directly.
func (ch *CommandHandler) Execute(cmd *Command) (tea.Cmd, error) {
	switch cmd.Name {
	case "create-channel", "create":
		return ch.handleCreateChannel(cmd.Args)
	case "join", "j":
		return ch.handleJoin(cmd.Args)
	case "disconnect":
		return ch.handleDisconnect()
	case "members":
		ch.app.showMembers = !ch.app.showMembers
		ch.app.updateViewportSize()
		return nil, nil
	case "theme":
		return nil, ch.handleTheme(cmd.Args)
	case "help":
		ch.handleHelp()
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown command: %s", cmd.Name)
	}
}

// handleCreateChannel creates a channel from "/create-channel <name> [description]".
// Without arguments it opens the dialog.
func (ch *CommandHandler) handleCreateChannel(args []string) (tea.Cmd, error) {
	if len(args) == 0 {
		ch.app.openChannelForm()
		return nil, nil
	}
	name := args[0]
	description := strings.Join(args[1:], " ")
	return ch.app.createChannelCmd(name, description), nil
}

// handleJoin switches to a channel by name or id
func (ch *CommandHandler) handleJoin(args []string) (tea.Cmd, error) {
	if len(args) < 1 {
		return nil, errors.New("usage: /join <channel>")
	}

	target := strings.TrimPrefix(strings.Join(args, " "), "#")
	for _, c := range ch.app.channels {
		if c.ID == target || strings.EqualFold(c.Name, target) {
			return ch.app.switchCmd(c.ID), nil
		}
	}
	return nil, fmt.Errorf("no channel named #%s", target)
}

// handleDisconnect ends the session and returns to the identity screen
func (ch *CommandHandler) handleDisconnect() (tea.Cmd, error) {
	if ch.app.user == nil {
		return nil, errors.New("not connected")
	}
	ch.app.setStatus("Disconnecting...", false)
	return ch.app.disconnectCmd(), nil
}

// handleTheme switches the color theme
func (ch *CommandHandler) handleTheme(args []string) error {
	if len(args) < 1 {
		names := themes.ListThemes(ch.app.themesDir)
		ch.app.addSystemLine("Themes: "+strings.Join(names, ", "), false)
		return nil
	}

	theme, err := themes.LoadThemeByName(ch.app.themesDir, args[0])
	if err != nil {
		return err
	}
	ch.app.SetTheme(theme)
	ch.app.setStatus("Theme set to "+theme.Meta.Name, false)
	return nil
}

func (ch *CommandHandler) handleHelp() {
	lines := []string{
		"/create-channel [name] [description]  create a channel (no args opens the dialog)",
		"/join <channel>                       switch to a channel",
		"/disconnect                           leave the chat",
		"/members                              toggle the member list",
		"/theme [name]                         list or switch themes",
	}
	for _, l := range lines {
		ch.app.addSystemLine(l, false)
	}
}
