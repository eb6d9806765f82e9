package session

import (
	"github.com/concord-chat/relay/internal/protocol"
)

// handleChannelMessage stores a live message delivered on a channel topic
// by t. The ownership check and the append share the session read lock so a
// concurrent Disconnect cannot clear the store in between.
func (s *Session) handleChannelMessage(t Transport, channelID string, body []byte) {
	msg, err := protocol.ParseMessage(body)
	if err != nil {
		s.log.Warn().Err(err).Str("channel_id", channelID).Msg("Dropping malformed message")
		return
	}

	s.mu.RLock()
	if s.transport != t {
		s.mu.RUnlock()
		s.log.Debug().Str("channel_id", channelID).Str("message_id", msg.MessageID).Msg("Dropping message from released transport")
		return
	}
	added := s.store.Append(channelID, msg)
	s.mu.RUnlock()

	if !added {
		return
	}
	s.emit(MessageEvent{ChannelID: channelID, Message: msg})
}

// handleChannelUpdate applies a /topic/channels event. Malformed events are
// logged and skipped.
func (s *Session) handleChannelUpdate(t Transport, body []byte) {
	if !s.owns(t) {
		s.log.Debug().Msg("Dropping channel update from released transport")
		return
	}
	upd, err := protocol.ParseChannelUpdate(body)
	if err != nil {
		s.log.Warn().Err(err).Msg("Dropping malformed channel update")
		return
	}

	if upd.IsAdd() {
		if !s.directory.Add(upd.Channel) {
			return
		}
		s.log.Info().Str("channel_id", upd.Channel.ID).Str("name", upd.Channel.Name).Msg("Channel added")
		s.emit(ChannelsChangedEvent{})

		if live := s.connectedTransport(); live != nil {
			s.subscribeChannel(live, upd.Channel.ID)
		}
		if current, ok := s.directory.Current(); ok && current.ID == upd.Channel.ID {
			s.emit(CurrentChannelEvent{Channel: current})
		}
		return
	}

	before, _ := s.directory.Current()
	removed := s.directory.Remove(upd.Channel.ID)

	// Unsubscribe off the delivery goroutine; the receipt arrives on the
	// same connection this callback is reading from
	if handle := s.subs.Release(upd.Channel.ID); handle != nil {
		go func() {
			if err := handle.Unsubscribe(); err != nil {
				s.log.Debug().Err(err).Str("channel_id", upd.Channel.ID).Msg("Unsubscribe failed")
			}
		}()
	}
	if !removed {
		return
	}

	s.log.Info().Str("channel_id", upd.Channel.ID).Msg("Channel removed")
	s.emit(ChannelsChangedEvent{})
	if before.ID == upd.Channel.ID {
		current, _ := s.directory.Current()
		s.emit(CurrentChannelEvent{Channel: current})
	}
}

// handleUserUpdate applies a /topic/users event
func (s *Session) handleUserUpdate(t Transport, body []byte) {
	if !s.owns(t) {
		s.log.Debug().Msg("Dropping user update from released transport")
		return
	}
	upd, err := protocol.ParseUserUpdate(body)
	if err != nil {
		s.log.Warn().Err(err).Msg("Dropping malformed user update")
		return
	}

	var changed bool
	if upd.IsAdd() {
		changed = s.roster.Add(upd.User)
	} else {
		changed = s.roster.Remove(upd.User.UserID)
	}
	if changed {
		s.emit(UsersChangedEvent{})
	}
}
