package models

import (
	"strconv"
	"time"
)

// MessageType represents the kind of payload a message carries
type MessageType string

const (
	MessageTypeText MessageType = "MESSAGE_TEXT" // Plain text chat message
)

// Message represents a chat message. Messages are never edited after creation.
type Message struct {
	MessageID string      `json:"messageId"`
	Channel   ChannelRef  `json:"channel"`
	Sender    User        `json:"sender"`
	Body      string      `json:"body"`
	Type      MessageType `json:"type,omitempty"`
	TimeStamp int64       `json:"timeStamp"` // Epoch milliseconds
}

// NewTextMessage creates an outbound text message
func NewTextMessage(id string, channel Channel, sender User, body string, now time.Time) Message {
	return Message{
		MessageID: id,
		Channel:   channel.Ref(),
		Sender:    sender,
		Body:      body,
		Type:      MessageTypeText,
		TimeStamp: now.UnixMilli(),
	}
}

// CreatedAt returns the message timestamp as a time.Time
func (m *Message) CreatedAt() time.Time {
	return time.UnixMilli(m.TimeStamp)
}

// NewMessageID builds a client-side message id: "msg_" + 9 random base-36
// characters + the base-36 millisecond timestamp.
func NewMessageID(now time.Time) string {
	return "msg_" + RandomBase36(9) + strconv.FormatInt(now.UnixMilli(), 36)
}
