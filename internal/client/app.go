package client

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/concord-chat/relay/internal/models"
	"github.com/concord-chat/relay/internal/session"
	"github.com/concord-chat/relay/internal/themes"
)

// View represents different screens in the application
type View int

const (
	ViewIdentity View = iota
	ViewMain
)

// FocusArea represents which area of the main view has focus
type FocusArea int

const (
	FocusSidebar FocusArea = iota
	FocusChat
	FocusInput
)

// maxSystemLines bounds the system lines kept in the chat log
const maxSystemLines = 100

// ChatSession is the session surface the UI drives
type ChatSession interface {
	Connect(ctx context.Context, username, displayName string) error
	Disconnect()
	Bootstrap(ctx context.Context)
	Send(body string) error
	CreateChannel(ctx context.Context, name, description string) (models.Channel, error)
	SwitchChannel(id string) ([]models.Message, error)
	State() session.ConnectionState
	User() (models.User, bool)
	Channels() []models.Channel
	CurrentChannel() (models.Channel, bool)
	Messages(channelID string) []models.Message
	Users() []models.User
}

// Options configures the App
type Options struct {
	Session     ChatSession
	Bridge      *EventBridge
	Theme       *themes.Theme
	ThemesDir   string
	ShowMembers bool
	Logger      zerolog.Logger
	Clock       func() time.Time
}

// systemLine is a notice rendered inline in the chat log
type systemLine struct {
	at      time.Time
	text    string
	isError bool
}

// App represents the main application state
type App struct {
	ctx context.Context
	log zerolog.Logger

	// Window dimensions
	width  int
	height int

	view  View
	focus FocusArea
	modal bool // create-channel dialog open

	theme     *themes.Theme
	styles    *themes.Styles
	themesDir string
	clock     func() time.Time

	sess     ChatSession
	bridge   *EventBridge
	commands *CommandHandler

	// Mirrors of session state, refreshed on events
	state        session.ConnectionState
	user         *models.User
	channels     []models.Channel
	current      models.Channel
	channelIndex int
	messages     []models.Message
	users        []models.User
	unread       map[string]int
	systemLines  []systemLine
	showMembers  bool

	// Identity form
	identityUsername    textinput.Model
	identityDisplayName textinput.Model
	identityFocus       int
	identityStatus      string
	identityError       bool

	// Create-channel form
	channelName   textinput.Model
	channelDesc   textinput.Model
	channelFocus  int
	channelStatus string
	channelError  bool

	// Chat
	input        textinput.Model
	chatViewport viewport.Model

	// Status bar message
	statusMessage string
	statusError   bool
}

// NewApp creates a new application instance bound to a session
func NewApp(ctx context.Context, opts Options) *App {
	input := textinput.New()
	input.Placeholder = "Type a message or /help..."
	input.CharLimit = 2000
	input.Width = 50

	username := textinput.New()
	username.Placeholder = "Username"
	username.CharLimit = 64
	username.Focus()

	displayName := textinput.New()
	displayName.Placeholder = "Display name"
	displayName.CharLimit = 64

	channelName := textinput.New()
	channelName.Placeholder = "Channel name"
	channelName.CharLimit = 100

	channelDesc := textinput.New()
	channelDesc.Placeholder = "Description (optional)"
	channelDesc.CharLimit = 500

	theme := opts.Theme
	if theme == nil {
		theme = themes.GetDefaultTheme()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	a := &App{
		ctx:                 ctx,
		log:                 opts.Logger.With().Str("component", "tui").Logger(),
		view:                ViewIdentity,
		focus:               FocusInput,
		theme:               theme,
		styles:              theme.BuildStyles(),
		themesDir:           opts.ThemesDir,
		clock:               clock,
		sess:                opts.Session,
		bridge:              opts.Bridge,
		state:               session.StateDisconnected,
		unread:              make(map[string]int),
		showMembers:         opts.ShowMembers,
		identityUsername:    username,
		identityDisplayName: displayName,
		channelName:         channelName,
		channelDesc:         channelDesc,
		input:               input,
		chatViewport:        viewport.New(50, 10),
	}
	a.commands = NewCommandHandler(a)
	return a
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		a.bridge.Listen(),
		a.bootstrapCmd(),
	)
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		cmd, handled := a.handleKeyPress(msg)
		if cmd != nil {
			cmds = append(cmds, cmd)
		}
		if handled {
			return a, tea.Batch(cmds...)
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.updateViewportSize()

	case SessionEventMsg:
		a.handleSessionEvent(msg.Event)
		cmds = append(cmds, a.bridge.Listen())
		return a, tea.Batch(cmds...)

	case connectResultMsg:
		if msg.err != nil {
			a.log.Debug().Err(msg.err).Msg("Connect failed")
		}

	case channelCreatedMsg:
		if msg.err == nil {
			a.closeChannelForm()
		}

	case sendResultMsg:
		if msg.err != nil {
			a.setStatus(msg.err.Error(), true)
		}

	case switchResultMsg:
		if msg.err != nil {
			a.setStatus(msg.err.Error(), true)
		}

	case disconnectedMsg:
		a.setStatus("Disconnected", false)
	}

	// Update focused component
	switch {
	case a.view == ViewIdentity:
		cmds = append(cmds, a.updateIdentityForm(msg))
	case a.modal:
		cmds = append(cmds, a.updateChannelForm(msg))
	case a.focus == FocusInput:
		var cmd tea.Cmd
		a.input, cmd = a.input.Update(msg)
		cmds = append(cmds, cmd)
	case a.focus == FocusChat:
		var cmd tea.Cmd
		a.chatViewport, cmd = a.chatViewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return a, tea.Batch(cmds...)
}

// View implements tea.Model
func (a *App) View() string {
	switch a.view {
	case ViewIdentity:
		return a.renderIdentityView()
	case ViewMain:
		if a.modal {
			return a.renderChannelForm()
		}
		return a.renderMainView()
	default:
		return "Unknown view"
	}
}

// handleSessionEvent folds a session event into the UI state
func (a *App) handleSessionEvent(event any) {
	switch ev := event.(type) {
	case session.StateChangedEvent:
		a.state = ev.State
		if ev.State == session.StateConnected {
			a.setStatus("", false)
		}

	case session.NoticeEvent:
		switch ev.Region {
		case session.RegionIdentity:
			a.identityStatus = ev.Text
			a.identityError = ev.IsError
		case session.RegionChannel:
			a.channelStatus = ev.Text
			a.channelError = ev.IsError
		case session.RegionChat:
			if ev.Text != "" {
				a.addSystemLine(ev.Text, ev.IsError)
			}
		}

	case session.IdentityEvent:
		a.user = ev.User
		if ev.User != nil {
			a.view = ViewMain
			a.focus = FocusInput
			a.input.Focus()
		} else {
			a.view = ViewIdentity
			a.modal = false
			a.input.Blur()
			a.input.Reset()
			a.identityFocus = 0
			a.identityUsername.Focus()
			a.identityDisplayName.Blur()
		}

	case session.ChannelsChangedEvent:
		a.channels = a.sess.Channels()
		a.syncChannelIndex()

	case session.CurrentChannelEvent:
		a.current = ev.Channel
		delete(a.unread, ev.Channel.ID)
		a.syncChannelIndex()
		a.refreshMessages()
		a.scrollToBottom()

	case session.MessageEvent:
		if ev.ChannelID == a.current.ID {
			a.refreshMessages()
			a.scrollToBottom()
		} else {
			a.unread[ev.ChannelID]++
		}

	case session.HistoryLoadedEvent:
		if ev.ChannelID == a.current.ID {
			a.refreshMessages()
			a.scrollToBottom()
		}

	case session.UsersChangedEvent:
		a.users = a.sess.Users()

	case session.ClearedEvent:
		a.messages = nil
		a.systemLines = nil
		a.unread = make(map[string]int)
		a.updateChatContent()
	}
}

// handleKeyPress handles keyboard input. The second result reports that
// the key was consumed and must not reach the focused component.
func (a *App) handleKeyPress(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c", "ctrl+q":
		return tea.Quit, true
	}

	if a.view == ViewIdentity {
		return a.handleIdentityKey(msg)
	}
	if a.modal {
		return a.handleChannelFormKey(msg)
	}

	switch msg.String() {
	case "tab":
		a.cycleFocus(false)
		return nil, true

	case "shift+tab":
		a.cycleFocus(true)
		return nil, true

	case "ctrl+n":
		a.openChannelForm()
		return nil, true

	case "enter":
		if a.focus == FocusInput {
			return a.handleSubmit(), true
		}
		if a.focus == FocusSidebar {
			return a.selectChannel(a.channelIndex), true
		}

	case "esc":
		a.focus = FocusSidebar
		a.input.Blur()
		return nil, true

	case "up", "k":
		if a.focus == FocusSidebar {
			a.navigateSidebar(-1)
			return nil, true
		}
		if a.focus == FocusChat {
			a.chatViewport.LineUp(1)
			return nil, true
		}

	case "down", "j":
		if a.focus == FocusSidebar {
			a.navigateSidebar(1)
			return nil, true
		}
		if a.focus == FocusChat {
			a.chatViewport.LineDown(1)
			return nil, true
		}

	case "pgup":
		a.chatViewport.HalfViewUp()
		return nil, true

	case "pgdown":
		a.chatViewport.HalfViewDown()
		return nil, true
	}

	return nil, false
}

// cycleFocus moves focus between sidebar, chat and input
func (a *App) cycleFocus(reverse bool) {
	if reverse {
		a.focus = (a.focus + 2) % 3
	} else {
		a.focus = (a.focus + 1) % 3
	}
	if a.focus == FocusInput {
		a.input.Focus()
	} else {
		a.input.Blur()
	}
}

// navigateSidebar moves the sidebar cursor with wrap-around
func (a *App) navigateSidebar(delta int) {
	if len(a.channels) == 0 {
		return
	}
	a.channelIndex += delta
	if a.channelIndex < 0 {
		a.channelIndex = len(a.channels) - 1
	} else if a.channelIndex >= len(a.channels) {
		a.channelIndex = 0
	}
}

// selectChannel switches the session to the channel at index
func (a *App) selectChannel(index int) tea.Cmd {
	if index < 0 || index >= len(a.channels) {
		return nil
	}
	return a.switchCmd(a.channels[index].ID)
}

// syncChannelIndex points the sidebar cursor at the current channel
func (a *App) syncChannelIndex() {
	for i, ch := range a.channels {
		if ch.ID == a.current.ID {
			a.channelIndex = i
			return
		}
	}
	if a.channelIndex >= len(a.channels) {
		a.channelIndex = 0
	}
}

// refreshMessages reloads the current channel's messages from the session
func (a *App) refreshMessages() {
	if a.current.ID == "" {
		a.messages = nil
	} else {
		a.messages = a.sess.Messages(a.current.ID)
	}
	a.updateChatContent()
}

// addSystemLine appends a notice to the chat log
func (a *App) addSystemLine(text string, isError bool) {
	a.systemLines = append(a.systemLines, systemLine{at: a.clock(), text: text, isError: isError})
	if len(a.systemLines) > maxSystemLines {
		a.systemLines = a.systemLines[len(a.systemLines)-maxSystemLines:]
	}
	a.updateChatContent()
	a.scrollToBottom()
}

// handleSubmit sends the composer content or runs a slash command
func (a *App) handleSubmit() tea.Cmd {
	content := strings.TrimSpace(a.input.Value())
	if content == "" {
		return nil
	}

	if strings.HasPrefix(content, "/") {
		a.input.Reset()
		cmd, err := ParseCommand(content)
		if err != nil {
			a.setStatus(err.Error(), true)
			return nil
		}
		teaCmd, err := a.commands.Execute(cmd)
		if err != nil {
			a.setStatus(err.Error(), true)
			return nil
		}
		return teaCmd
	}

	// The composer is disabled until the session is connected
	if a.state != session.StateConnected {
		a.setStatus(session.ErrNotConnected.Error(), true)
		return nil
	}

	a.input.Reset()
	return a.sendCmd(content)
}

func (a *App) setStatus(text string, isError bool) {
	a.statusMessage = text
	a.statusError = isError
}

// updateViewportSize updates viewport dimensions based on window size
func (a *App) updateViewportSize() {
	_, chatWidth, _ := a.panelWidths()
	chatHeight := a.height - 6 // header, input box, status bar
	if chatHeight < 3 {
		chatHeight = 3
	}

	a.chatViewport = viewport.New(chatWidth, chatHeight)
	a.chatViewport.Style = a.styles.ChatContainer
	a.input.Width = chatWidth - 6
	a.updateChatContent()
	a.scrollToBottom()
}

// scrollToBottom scrolls the chat to the bottom
func (a *App) scrollToBottom() {
	a.chatViewport.GotoBottom()
}

// SetTheme sets the application theme
func (a *App) SetTheme(theme *themes.Theme) {
	a.theme = theme
	a.styles = theme.BuildStyles()
	a.chatViewport.Style = a.styles.ChatContainer
	a.updateChatContent()
}

// --- Commands run off the Update goroutine ---

type connectResultMsg struct{ err error }

type channelCreatedMsg struct {
	channel models.Channel
	err     error
}

type sendResultMsg struct{ err error }

type switchResultMsg struct{ err error }

type disconnectedMsg struct{}

func (a *App) bootstrapCmd() tea.Cmd {
	return func() tea.Msg {
		a.sess.Bootstrap(a.ctx)
		return nil
	}
}

func (a *App) connectCmd(username, displayName string) tea.Cmd {
	return func() tea.Msg {
		return connectResultMsg{err: a.sess.Connect(a.ctx, username, displayName)}
	}
}

func (a *App) sendCmd(body string) tea.Cmd {
	return func() tea.Msg {
		return sendResultMsg{err: a.sess.Send(body)}
	}
}

func (a *App) switchCmd(channelID string) tea.Cmd {
	return func() tea.Msg {
		_, err := a.sess.SwitchChannel(channelID)
		return switchResultMsg{err: err}
	}
}

func (a *App) createChannelCmd(name, description string) tea.Cmd {
	return func() tea.Msg {
		ch, err := a.sess.CreateChannel(a.ctx, name, description)
		return channelCreatedMsg{channel: ch, err: err}
	}
}

// disconnectCmd tears the session down and reloads the pre-connection data
func (a *App) disconnectCmd() tea.Cmd {
	return func() tea.Msg {
		a.sess.Disconnect()
		a.sess.Bootstrap(a.ctx)
		return disconnectedMsg{}
	}
}
