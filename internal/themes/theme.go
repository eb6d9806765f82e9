package themes

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/pelletier/go-toml/v2"
)

// DefaultThemeName is used when no theme is configured
const DefaultThemeName = "dracula"

// Theme represents a color theme for the chat client
type Theme struct {
	Meta     ThemeMeta      `toml:"meta"`
	Colors   ThemeColors    `toml:"colors"`
	Semantic SemanticColors `toml:"semantic"`
}

// ThemeMeta contains metadata about the theme
type ThemeMeta struct {
	Name    string `toml:"name"`
	Author  string `toml:"author"`
	Variant string `toml:"variant"` // "dark" or "light"
}

// ThemeColors contains the base color palette
type ThemeColors struct {
	Background string `toml:"background"`
	Selection  string `toml:"selection"`
	Foreground string `toml:"foreground"`
	Comment    string `toml:"comment"`
	Red        string `toml:"red"`
	Orange     string `toml:"orange"`
	Yellow     string `toml:"yellow"`
	Green      string `toml:"green"`
	Cyan       string `toml:"cyan"`
	Purple     string `toml:"purple"`
}

// SemanticColors maps colors to UI regions. Empty values fall back to
// the base palette.
type SemanticColors struct {
	SidebarFg       string `toml:"sidebar_fg"`
	SidebarSelected string `toml:"sidebar_selected"`

	ChatFg            string `toml:"chat_fg"`
	ChatTimestamp     string `toml:"chat_timestamp"`
	ChatUsernameSelf  string `toml:"chat_username_self"`
	ChatUsernameOther string `toml:"chat_username_other"`

	InputBorder      string `toml:"input_border"`
	InputBorderFocus string `toml:"input_border_focus"`

	StateConnected    string `toml:"state_connected"`
	StateConnecting   string `toml:"state_connecting"`
	StateDisconnected string `toml:"state_disconnected"`
	StateError        string `toml:"state_error"`

	Border string `toml:"border"`
}

// Styles contains pre-computed lipgloss styles for the theme
type Styles struct {
	// Sidebar
	SidebarContainer lipgloss.Style
	SidebarItem      lipgloss.Style
	SidebarSelected  lipgloss.Style
	SectionTitle     lipgloss.Style

	// Chat
	ChatContainer  lipgloss.Style
	MessageContent lipgloss.Style
	Timestamp      lipgloss.Style
	UsernameSelf   lipgloss.Style
	UsernameOther  lipgloss.Style
	SystemMessage  lipgloss.Style

	// Input
	InputField   lipgloss.Style
	InputFocused lipgloss.Style

	// Connection state indicators
	StateConnected    lipgloss.Style
	StateConnecting   lipgloss.Style
	StateDisconnected lipgloss.Style
	StateError        lipgloss.Style

	// Feedback
	Error   lipgloss.Style
	Success lipgloss.Style
	Info    lipgloss.Style

	Border lipgloss.Style
	Modal  lipgloss.Style
	Title  lipgloss.Style
}

// LoadTheme loads a theme from a TOML file. Missing semantic colors are
// filled from the base palette.
func LoadTheme(path string) (*Theme, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read theme file: %w", err)
	}

	var theme Theme
	if err := toml.Unmarshal(data, &theme); err != nil {
		return nil, fmt.Errorf("failed to parse theme file: %w", err)
	}
	theme.fill()

	return &theme, nil
}

// LoadThemeByName resolves a theme: <themesDir>/<name>.toml first, then
// the built-in palettes.
func LoadThemeByName(themesDir, name string) (*Theme, error) {
	if name == "" {
		name = DefaultThemeName
	}
	name = strings.ToLower(name)

	if themesDir != "" {
		path := filepath.Join(themesDir, name+".toml")
		if _, err := os.Stat(path); err == nil {
			return LoadTheme(path)
		}
	}

	if build, ok := builtin[name]; ok {
		return build(), nil
	}
	return nil, fmt.Errorf("theme %q not found", name)
}

// ListThemes returns built-in theme names plus any found in themesDir
func ListThemes(themesDir string) []string {
	seen := make(map[string]bool)
	for name := range builtin {
		seen[name] = true
	}

	if entries, err := os.ReadDir(themesDir); err == nil {
		for _, entry := range entries {
			if !entry.IsDir() && filepath.Ext(entry.Name()) == ".toml" {
				seen[strings.TrimSuffix(entry.Name(), ".toml")] = true
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (t *Theme) fill() {
	c := t.Colors
	s := &t.Semantic
	def := func(field *string, fallback string) {
		if *field == "" {
			*field = fallback
		}
	}

	def(&s.SidebarFg, c.Foreground)
	def(&s.SidebarSelected, c.Selection)
	def(&s.ChatFg, c.Foreground)
	def(&s.ChatTimestamp, c.Comment)
	def(&s.ChatUsernameSelf, c.Purple)
	def(&s.ChatUsernameOther, c.Cyan)
	def(&s.InputBorder, c.Comment)
	def(&s.InputBorderFocus, c.Purple)
	def(&s.StateConnected, c.Green)
	def(&s.StateConnecting, c.Yellow)
	def(&s.StateDisconnected, c.Comment)
	def(&s.StateError, c.Red)
	def(&s.Border, c.Comment)
}

// BuildStyles creates lipgloss styles from a theme
func (t *Theme) BuildStyles() *Styles {
	s := &Styles{}
	color := func(hex string) lipgloss.Color { return lipgloss.Color(hex) }

	s.SidebarContainer = lipgloss.NewStyle().
		Foreground(color(t.Semantic.SidebarFg)).
		Padding(0, 1)

	s.SidebarItem = lipgloss.NewStyle().
		Foreground(color(t.Semantic.SidebarFg)).
		PaddingLeft(1)

	s.SidebarSelected = lipgloss.NewStyle().
		Background(color(t.Semantic.SidebarSelected)).
		Foreground(color(t.Semantic.SidebarFg)).
		PaddingLeft(1).
		Bold(true)

	s.SectionTitle = lipgloss.NewStyle().
		Foreground(color(t.Colors.Comment)).
		Bold(true)

	s.ChatContainer = lipgloss.NewStyle().
		Foreground(color(t.Semantic.ChatFg)).
		Padding(0, 1)

	s.MessageContent = lipgloss.NewStyle().
		Foreground(color(t.Semantic.ChatFg))

	s.Timestamp = lipgloss.NewStyle().
		Foreground(color(t.Semantic.ChatTimestamp)).
		Faint(true)

	s.UsernameSelf = lipgloss.NewStyle().
		Foreground(color(t.Semantic.ChatUsernameSelf)).
		Bold(true)

	s.UsernameOther = lipgloss.NewStyle().
		Foreground(color(t.Semantic.ChatUsernameOther)).
		Bold(true)

	s.SystemMessage = lipgloss.NewStyle().
		Foreground(color(t.Colors.Comment)).
		Italic(true)

	s.InputField = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(color(t.Semantic.InputBorder)).
		Padding(0, 1)

	s.InputFocused = s.InputField.
		BorderForeground(color(t.Semantic.InputBorderFocus))

	s.StateConnected = lipgloss.NewStyle().Foreground(color(t.Semantic.StateConnected))
	s.StateConnecting = lipgloss.NewStyle().Foreground(color(t.Semantic.StateConnecting))
	s.StateDisconnected = lipgloss.NewStyle().Foreground(color(t.Semantic.StateDisconnected))
	s.StateError = lipgloss.NewStyle().Foreground(color(t.Semantic.StateError))

	s.Error = lipgloss.NewStyle().Foreground(color(t.Colors.Red))
	s.Success = lipgloss.NewStyle().Foreground(color(t.Colors.Green))
	s.Info = lipgloss.NewStyle().Foreground(color(t.Colors.Cyan))

	s.Border = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(color(t.Semantic.Border))

	s.Modal = lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(color(t.Colors.Purple)).
		Padding(1, 2)

	s.Title = lipgloss.NewStyle().
		Foreground(color(t.Colors.Purple)).
		Bold(true)

	return s
}

var builtin = map[string]func() *Theme{
	"dracula": GetDefaultTheme,
	"nord":    nordTheme,
}

// GetDefaultTheme returns the default Dracula theme
func GetDefaultTheme() *Theme {
	t := &Theme{
		Meta: ThemeMeta{
			Name:    "Dracula",
			Author:  "Zeno Rocha",
			Variant: "dark",
		},
		Colors: ThemeColors{
			Background: "#282A36",
			Selection:  "#44475A",
			Foreground: "#F8F8F2",
			Comment:    "#6272A4",
			Red:        "#FF5555",
			Orange:     "#FFB86C",
			Yellow:     "#F1FA8C",
			Green:      "#50FA7B",
			Cyan:       "#8BE9FD",
			Purple:     "#BD93F9",
		},
	}
	t.fill()
	return t
}

func nordTheme() *Theme {
	t := &Theme{
		Meta: ThemeMeta{
			Name:    "Nord",
			Author:  "Arctic Ice Studio",
			Variant: "dark",
		},
		Colors: ThemeColors{
			Background: "#2E3440",
			Selection:  "#434C5E",
			Foreground: "#ECEFF4",
			Comment:    "#616E88",
			Red:        "#BF616A",
			Orange:     "#D08770",
			Yellow:     "#EBCB8B",
			Green:      "#A3BE8C",
			Cyan:       "#88C0D0",
			Purple:     "#B48EAD",
		},
	}
	t.fill()
	return t
}
