package client

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// SessionEventMsg carries one session event into the Bubble Tea loop
type SessionEventMsg struct {
	Event any
}

// EventBridge forwards session events onto a channel the program drains
// with Listen. Sink blocks when the buffer is full, so session calls that
// emit must not run on the Update goroutine.
type EventBridge struct {
	eventChan chan tea.Msg
	done      chan struct{}
	once      sync.Once
}

// NewEventBridge creates a bridge with the given buffer size
func NewEventBridge(buffer int) *EventBridge {
	if buffer < 1 {
		buffer = 1
	}
	return &EventBridge{
		eventChan: make(chan tea.Msg, buffer),
		done:      make(chan struct{}),
	}
}

// Sink is the session event sink
func (b *EventBridge) Sink(event any) {
	select {
	case b.eventChan <- SessionEventMsg{Event: event}:
	case <-b.done:
	}
}

// Listen waits for the next session event. The caller re-issues it after
// each delivered event.
func (b *EventBridge) Listen() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-b.eventChan:
			return msg
		case <-b.done:
			return nil
		}
	}
}

// Shutdown releases any blocked Sink and Listen calls
func (b *EventBridge) Shutdown() {
	b.once.Do(func() { close(b.done) })
}
