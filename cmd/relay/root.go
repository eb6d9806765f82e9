package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/concord-chat/relay/internal/api"
	"github.com/concord-chat/relay/internal/client"
	"github.com/concord-chat/relay/internal/config"
	"github.com/concord-chat/relay/internal/logx"
	"github.com/concord-chat/relay/internal/session"
	"github.com/concord-chat/relay/internal/themes"
	"github.com/concord-chat/relay/internal/transport"
)

// globalFlags override configuration values
type globalFlags struct {
	configPath string
	apiURL     string
	wsURL      string
	theme      string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	var flags globalFlags

	root := &cobra.Command{
		Use:           "relay",
		Short:         "Terminal chat client",
		Long:          "Relay is a terminal chat client for a STOMP-over-WebSocket chat backend.",
		SilenceUsage:  true,
		SilenceErrors: false,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd.Context(), &flags)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (default ~/.relay/config.toml)")
	pf.StringVar(&flags.apiURL, "api", "", "REST base URL (overrides config)")
	pf.StringVar(&flags.wsURL, "ws", "", "WebSocket endpoint (overrides config)")
	pf.StringVar(&flags.theme, "theme", "", "theme name (overrides config)")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newChannelsCmd(&flags),
		newUsersCmd(&flags),
		newHistoryCmd(&flags),
	)
	return root
}

// loadConfig reads the config file and applies flag overrides
func loadConfig(flags *globalFlags, logger zerolog.Logger) (config.Config, error) {
	cfg, path, err := config.Load(logger, flags.configPath)
	if err != nil {
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}

	if flags.apiURL != "" {
		cfg.API.BaseURL = flags.apiURL
	}
	if flags.wsURL != "" {
		cfg.Transport.URL = flags.wsURL
	}
	if flags.theme != "" {
		cfg.UI.Theme = flags.theme
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	return cfg, nil
}

// runTUI starts the interactive client. Logs go to a file since the TUI
// owns the terminal.
func runTUI(ctx context.Context, flags *globalFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(flags, logx.New("warn", os.Stderr, true))
	if err != nil {
		return err
	}

	logger, closer, err := logx.Open(cfg.Log.Level, config.ExpandPath(cfg.Log.File))
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer closer.Close()

	themesDir := config.ExpandPath(cfg.UI.ThemesDir)
	theme, err := themes.LoadThemeByName(themesDir, cfg.UI.Theme)
	if err != nil {
		logger.Warn().Err(err).Str("theme", cfg.UI.Theme).Msg("Failed to load theme, using default")
		theme = themes.GetDefaultTheme()
	}

	apiClient, err := api.NewClient(cfg.API.BaseURL, cfg.API.Timeout, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	bridge := client.NewEventBridge(256)
	transportCfg := cfg.Transport.Client()
	sess := session.New(session.Options{
		API: apiClient,
		Transports: func() session.Transport {
			return transport.NewClient(transportCfg, logger)
		},
		Destinations:       cfg.Destinations.Protocol(),
		Logger:             logger,
		Sink:               bridge.Sink,
		HistoryConcurrency: cfg.Session.HistoryConcurrency,
		MaxLiveMessages:    cfg.Session.MaxLiveMessages,
		SendLimiter:        cfg.Session.Limiter(),
	})

	app := client.NewApp(ctx, client.Options{
		Session:     sess,
		Bridge:      bridge,
		Theme:       theme,
		ThemesDir:   themesDir,
		ShowMembers: cfg.UI.ShowMembers,
		Logger:      logger,
	})

	logger.Info().
		Str("api", cfg.API.BaseURL).
		Str("ws", cfg.Transport.URL).
		Msg("Starting relay")

	p := tea.NewProgram(
		app,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)

	_, runErr := p.Run()

	// Release pending sinks before tearing the session down
	bridge.Shutdown()
	sess.Disconnect()

	if runErr != nil {
		return fmt.Errorf("error running program: %w", runErr)
	}
	printBanner()
	return nil
}

func printBanner() {
	banner := `
  ____      _             
 |  _ \ ___| | __ _ _   _ 
 | |_) / _ \ |/ _' | | | |
 |  _ <  __/ | (_| | |_| |
 |_| \_\___|_|\__,_|\__, |
                    |___/ 
  Terminal Chat Client - see you next time
`
	fmt.Println(banner)
}
