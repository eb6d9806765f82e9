package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const (
	envConfigPath     = "RELAY_CONFIG"
	defaultConfigDir  = ".relay"
	defaultConfigName = "config.toml"
)

// setting is one dotted configuration key with its default value
type setting struct {
	key   string
	value any
}

func settings(c Config) []setting {
	return []setting{
		{"api.base_url", c.API.BaseURL},
		{"api.timeout", c.API.Timeout},
		{"transport.url", c.Transport.URL},
		{"transport.host", c.Transport.Host},
		{"transport.reconnect_delay", c.Transport.ReconnectDelay},
		{"transport.max_retries", c.Transport.MaxRetries},
		{"transport.heartbeat_incoming", c.Transport.HeartbeatIncoming},
		{"transport.heartbeat_outgoing", c.Transport.HeartbeatOutgoing},
		{"transport.connect_timeout", c.Transport.ConnectTimeout},
		{"destinations.topic_prefix", c.Destinations.TopicPrefix},
		{"destinations.channel_updates", c.Destinations.ChannelUpdates},
		{"destinations.user_updates", c.Destinations.UserUpdates},
		{"destinations.send", c.Destinations.Send},
		{"session.history_concurrency", c.Session.HistoryConcurrency},
		{"session.max_live_messages", c.Session.MaxLiveMessages},
		{"session.send_rate", c.Session.SendRate},
		{"session.send_burst", c.Session.SendBurst},
		{"ui.theme", c.UI.Theme},
		{"ui.themes_dir", c.UI.ThemesDir},
		{"ui.show_members", c.UI.ShowMembers},
		{"log.level", c.Log.Level},
		{"log.file", c.Log.File},
	}
}

// Load builds configuration from defaults, the config file and env vars,
// and returns the resolved path. A missing file is created with defaults.
// Precedence: defaults < config file < env vars < caller overrides.
func Load(logger zerolog.Logger, explicitPath string) (Config, string, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("toml")
	for _, s := range settings(cfg) {
		v.SetDefault(s.key, s.value)
	}

	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := ResolvePath(explicitPath)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return cfg, configPath, fmt.Errorf("read config: %w", err)
		}
		if writeErr := WriteDefault(configPath, cfg); writeErr != nil {
			logger.Warn().Err(writeErr).Str("path", configPath).Msg("Failed to write default config")
		} else {
			logger.Info().Str("path", configPath).Msg("Created default config")
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, configPath, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, configPath, nil
}

// ResolvePath picks the config file: the explicit path, then $RELAY_CONFIG,
// then ~/.relay/config.toml
func ResolvePath(explicitPath string) string {
	if explicitPath != "" {
		return ExpandPath(explicitPath)
	}
	if p := os.Getenv(envConfigPath); p != "" {
		return ExpandPath(p)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(home, defaultConfigDir, defaultConfigName)
}

// WriteDefault writes cfg as TOML to path using an atomic rename
func WriteDefault(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(document(cfg))
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write to temp file first (atomic write)
	tempFile := path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile) // Clean up temp file on error
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// document nests the settings into TOML tables. Durations are written in
// their string form so the file stays readable.
func document(cfg Config) map[string]map[string]any {
	doc := make(map[string]map[string]any)
	for _, s := range settings(cfg) {
		section, key, _ := strings.Cut(s.key, ".")
		if doc[section] == nil {
			doc[section] = make(map[string]any)
		}
		if d, ok := s.value.(time.Duration); ok {
			doc[section][key] = d.String()
			continue
		}
		doc[section][key] = s.value
	}
	return doc
}
