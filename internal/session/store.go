package session

import (
	"sync"

	"github.com/concord-chat/relay/internal/models"
)

// DefaultMaxLiveMessages caps live messages kept per channel
const DefaultMaxLiveMessages = 1000

// MessageStore keeps each channel's messages in ascending order: the REST
// history first, then live messages received since.
type MessageStore struct {
	mu       sync.RWMutex
	channels map[string]*channelLog
	maxLive  int
}

type channelLog struct {
	history []models.Message
	live    []models.Message
	ids     map[string]struct{}
}

// NewMessageStore creates an empty store
func NewMessageStore(maxLive int) *MessageStore {
	if maxLive <= 0 {
		maxLive = DefaultMaxLiveMessages
	}
	return &MessageStore{
		channels: make(map[string]*channelLog),
		maxLive:  maxLive,
	}
}

// ReplaceHistory stores newest-first server history in ascending order,
// replacing any earlier history for the channel. Live messages already
// received are kept after it unless the history contains them.
func (s *MessageStore) ReplaceHistory(channelID string, newestFirst []models.Message) []models.Message {
	history := make([]models.Message, len(newestFirst))
	for i, msg := range newestFirst {
		history[len(newestFirst)-1-i] = msg
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logLocked(channelID)
	log.history = history
	log.ids = make(map[string]struct{}, len(history)+len(log.live))
	for _, msg := range history {
		if msg.MessageID != "" {
			log.ids[msg.MessageID] = struct{}{}
		}
	}

	live := log.live[:0:0]
	for _, msg := range log.live {
		if _, dup := log.ids[msg.MessageID]; dup && msg.MessageID != "" {
			continue
		}
		live = append(live, msg)
		if msg.MessageID != "" {
			log.ids[msg.MessageID] = struct{}{}
		}
	}
	log.live = live

	return log.snapshot()
}

// Append adds a live message unless its id was already stored
func (s *MessageStore) Append(channelID string, msg models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logLocked(channelID)
	if msg.MessageID != "" {
		if _, dup := log.ids[msg.MessageID]; dup {
			return false
		}
	}

	// Trim oldest half
	if len(log.live) >= s.maxLive {
		for _, old := range log.live[:len(log.live)/2] {
			delete(log.ids, old.MessageID)
		}
		log.live = append([]models.Message(nil), log.live[len(log.live)/2:]...)
	}

	log.live = append(log.live, msg)
	if msg.MessageID != "" {
		log.ids[msg.MessageID] = struct{}{}
	}
	return true
}

// Get returns a copy of a channel's messages, empty when none
func (s *MessageStore) Get(channelID string) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log, ok := s.channels[channelID]
	if !ok {
		return []models.Message{}
	}
	return log.snapshot()
}

// Len returns the number of messages stored for a channel
func (s *MessageStore) Len(channelID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if log, ok := s.channels[channelID]; ok {
		return len(log.history) + len(log.live)
	}
	return 0
}

// Clear removes every channel's messages
func (s *MessageStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels = make(map[string]*channelLog)
}

func (s *MessageStore) logLocked(channelID string) *channelLog {
	log, ok := s.channels[channelID]
	if !ok {
		log = &channelLog{ids: make(map[string]struct{})}
		s.channels[channelID] = log
	}
	return log
}

func (l *channelLog) snapshot() []models.Message {
	out := make([]models.Message, 0, len(l.history)+len(l.live))
	out = append(out, l.history...)
	return append(out, l.live...)
}
