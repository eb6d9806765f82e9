// Package config loads the client configuration from ~/.relay/config.toml,
// RELAY_* environment variables and command line overrides.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/concord-chat/relay/internal/protocol"
	"github.com/concord-chat/relay/internal/transport"
)

// Config holds the client configuration
type Config struct {
	API          APIConfig          `mapstructure:"api"`
	Transport    TransportConfig    `mapstructure:"transport"`
	Destinations DestinationsConfig `mapstructure:"destinations"`
	Session      SessionConfig      `mapstructure:"session"`
	UI           UIConfig           `mapstructure:"ui"`
	Log          LogConfig          `mapstructure:"log"`
}

// APIConfig holds REST backend settings
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// TransportConfig holds broker connection settings
type TransportConfig struct {
	URL               string        `mapstructure:"url"`
	Host              string        `mapstructure:"host"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
	MaxRetries        int           `mapstructure:"max_retries"`
	HeartbeatIncoming time.Duration `mapstructure:"heartbeat_incoming"`
	HeartbeatOutgoing time.Duration `mapstructure:"heartbeat_outgoing"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
}

// DestinationsConfig holds the broker destinations
type DestinationsConfig struct {
	TopicPrefix    string `mapstructure:"topic_prefix"`
	ChannelUpdates string `mapstructure:"channel_updates"`
	UserUpdates    string `mapstructure:"user_updates"`
	Send           string `mapstructure:"send"`
}

// SessionConfig holds session tuning
type SessionConfig struct {
	HistoryConcurrency int     `mapstructure:"history_concurrency"`
	MaxLiveMessages    int     `mapstructure:"max_live_messages"`
	SendRate           float64 `mapstructure:"send_rate"` // Messages per second, zero disables the limit
	SendBurst          int     `mapstructure:"send_burst"`
}

// UIConfig holds UI-related preferences
type UIConfig struct {
	Theme       string `mapstructure:"theme"`
	ThemesDir   string `mapstructure:"themes_dir"`
	ShowMembers bool   `mapstructure:"show_members"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// Default returns the default client configuration
func Default() Config {
	tc := transport.DefaultConfig()
	dest := protocol.DefaultDestinations()

	return Config{
		API: APIConfig{
			BaseURL: "http://localhost:8080/api/v1",
			Timeout: 10 * time.Second,
		},
		Transport: TransportConfig{
			URL:               tc.URL,
			ReconnectDelay:    tc.ReconnectDelay,
			HeartbeatIncoming: tc.HeartbeatIncoming,
			HeartbeatOutgoing: tc.HeartbeatOutgoing,
			ConnectTimeout:    tc.ConnectTimeout,
		},
		Destinations: DestinationsConfig{
			TopicPrefix:    dest.TopicPrefix,
			ChannelUpdates: dest.ChannelUpdates,
			UserUpdates:    dest.UserUpdates,
			Send:           dest.Send,
		},
		Session: SessionConfig{
			HistoryConcurrency: 4,
			MaxLiveMessages:    1000,
			SendRate:           5,
			SendBurst:          10,
		},
		UI: UIConfig{
			Theme:       "dracula",
			ThemesDir:   "~/.relay/themes",
			ShowMembers: true,
		},
		Log: LogConfig{
			Level: "info",
			File:  "~/.relay/relay.log",
		},
	}
}

// Client returns the transport settings
func (t TransportConfig) Client() transport.Config {
	return transport.Config{
		URL:               t.URL,
		Host:              t.Host,
		ReconnectDelay:    t.ReconnectDelay,
		MaxRetries:        t.MaxRetries,
		HeartbeatIncoming: t.HeartbeatIncoming,
		HeartbeatOutgoing: t.HeartbeatOutgoing,
		ConnectTimeout:    t.ConnectTimeout,
	}
}

// Protocol returns the destinations in wire form
func (d DestinationsConfig) Protocol() protocol.Destinations {
	return protocol.Destinations{
		TopicPrefix:    d.TopicPrefix,
		ChannelUpdates: d.ChannelUpdates,
		UserUpdates:    d.UserUpdates,
		Send:           d.Send,
	}
}

// Limiter returns the send rate limiter, nil when unlimited
func (s SessionConfig) Limiter() *rate.Limiter {
	if s.SendRate <= 0 {
		return nil
	}
	burst := s.SendBurst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(s.SendRate), burst)
}

// ExpandPath expands a leading ~ to the user's home directory
func ExpandPath(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
