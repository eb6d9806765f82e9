package session

import "github.com/concord-chat/relay/internal/models"

// Region selects where a notice is shown
type Region int

const (
	RegionIdentity Region = iota // Identity form / connection status line
	RegionChannel                // Channel creation form
	RegionChat                   // System line in the chat log
)

// Events delivered to the session sink. The sink is called from whichever
// goroutine produced the change, never while a session lock is held.

// StateChangedEvent reports a connection state transition
type StateChangedEvent struct {
	State ConnectionState
	Err   error
}

// NoticeEvent is a user-facing status message
type NoticeEvent struct {
	Region  Region
	Text    string
	IsError bool
}

// IdentityEvent reports the session user being set or cleared (nil)
type IdentityEvent struct {
	User *models.User
}

// ChannelsChangedEvent reports a change to the channel directory
type ChannelsChangedEvent struct{}

// CurrentChannelEvent reports a new current channel; zero Channel when none
type CurrentChannelEvent struct {
	Channel models.Channel
}

// MessageEvent reports a live message appended to a channel
type MessageEvent struct {
	ChannelID string
	Message   models.Message
}

// HistoryLoadedEvent reports a channel's history being (re)loaded
type HistoryLoadedEvent struct {
	ChannelID string
	Count     int
}

// UsersChangedEvent reports a change to the roster
type UsersChangedEvent struct{}

// ClearedEvent reports that an explicit disconnect reset the session data
type ClearedEvent struct{}
