package models

// Channel represents a chat room announced by the server
type Channel struct {
	ID          string `json:"channelId"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// DefaultChannelName is used when the server omits a channel name
const DefaultChannelName = "unnamed"

// ChannelRef is the channel shape embedded in messages
type ChannelRef struct {
	ChannelID   string `json:"channelId"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Ref returns the reference embedded in outbound messages
func (c Channel) Ref() ChannelRef {
	return ChannelRef{
		ChannelID:   c.ID,
		Name:        c.Name,
		Description: c.Description,
	}
}
