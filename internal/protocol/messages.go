package protocol

import (
	"strings"

	"github.com/concord-chat/relay/internal/models"
)

// Default broker destinations
const (
	DefaultTopicPrefix        = "/topic/channel/"
	DefaultChannelUpdateTopic = "/topic/channels"
	DefaultUserUpdateTopic    = "/topic/users"
	DefaultSendDestination    = "/app/chat.sendMessage"
)

// Reserved subscription keys for the broadcast topics
const (
	KeyChannelUpdates = "channel-updates"
	KeyUserUpdates    = "user-updates"
)

// Destinations holds the STOMP destinations the client talks to
type Destinations struct {
	TopicPrefix    string // Per-channel topic prefix, channel id appended
	ChannelUpdates string // Channel create/delete broadcasts
	UserUpdates    string // User create/delete broadcasts
	Send           string // Application destination for outbound messages
}

// DefaultDestinations returns the destinations used by the chat backend
func DefaultDestinations() Destinations {
	return Destinations{
		TopicPrefix:    DefaultTopicPrefix,
		ChannelUpdates: DefaultChannelUpdateTopic,
		UserUpdates:    DefaultUserUpdateTopic,
		Send:           DefaultSendDestination,
	}
}

// Channel returns the topic carrying messages for a channel
func (d Destinations) Channel(channelID string) string {
	prefix := d.TopicPrefix
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + channelID
}

// UpdateType identifies a broadcast update
type UpdateType string

const (
	UpdateNewChannel    UpdateType = "NEW_CHANNEL_DTO"
	UpdateDeleteChannel UpdateType = "DELETE_CHANNEL_DTO"
	UpdateNewUser       UpdateType = "NEW_USER_DTO"
	UpdateDeleteUser    UpdateType = "DELETE_USER_DTO"
)

// ChannelUpdate is a parsed /topic/channels event. Any type other than
// NEW_CHANNEL_DTO removes the channel.
type ChannelUpdate struct {
	Type    UpdateType
	Channel models.Channel
}

// IsAdd reports whether the update announces a new channel
func (u ChannelUpdate) IsAdd() bool {
	return u.Type == UpdateNewChannel
}

// UserUpdate is a parsed /topic/users event
type UserUpdate struct {
	Type UpdateType
	User models.User
}

// IsAdd reports whether the update announces a new user
func (u UserUpdate) IsAdd() bool {
	return u.Type == UpdateNewUser
}

// History is the envelope some backends wrap message history in
type History struct {
	ChannelID string           `json:"channelId,omitempty"`
	Messages  []models.Message `json:"messages"`
}
