// Package session manages the chat session lifecycle: identity, the channel
// directory, broker subscriptions, per-channel history and the send path.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/concord-chat/relay/internal/errs"
	"github.com/concord-chat/relay/internal/models"
	"github.com/concord-chat/relay/internal/protocol"
	"github.com/concord-chat/relay/internal/transport"
)

var (
	ErrNotConnected       = errors.New("not connected to server")
	ErrEmptyMessage       = errors.New("message is empty")
	ErrNoChannel          = errors.New("no channel selected")
	ErrRateLimited        = errors.New("sending too fast")
	ErrInvalidIdentity    = errors.New("username and display name are required")
	ErrInvalidChannelName = errors.New("channel name is required")
	ErrUnknownChannel     = errors.New("unknown channel")
	errStaleEpoch         = errors.New("session changed while request was in flight")
)

// API is the REST surface the session depends on
type API interface {
	ListChannels(ctx context.Context) ([]models.Channel, error)
	CreateChannel(ctx context.Context, name, description string) (models.Channel, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	ProvisionUser(ctx context.Context, username, displayName string) (models.User, error)
	History(ctx context.Context, channelID string) ([]models.Message, error)
}

// Transport is a broker connection the session drives
type Transport interface {
	Activate(h transport.Handler)
	Deactivate() error
	Subscribe(destination string, deliver func(body []byte)) (transport.Subscription, error)
	Publish(destination string, body []byte) error
}

// TransportFactory creates a fresh transport for each Connect
type TransportFactory func() Transport

// Options configures a Session
type Options struct {
	API          API
	Transports   TransportFactory
	Destinations protocol.Destinations
	Logger       zerolog.Logger

	// Sink receives session events; nil discards them
	Sink func(event any)

	Clock func() time.Time
	NewID func(now time.Time) string

	HistoryConcurrency int           // Parallel history loads, default 4
	MaxLiveMessages    int           // Per-channel live message cap
	SendLimiter        *rate.Limiter // Nil means unlimited
}

// Session owns the client-side state of one chat session
type Session struct {
	api          API
	transports   TransportFactory
	dest         protocol.Destinations
	log          zerolog.Logger
	sink         func(any)
	clock        func() time.Time
	newID        func(time.Time) string
	historyLimit int
	limiter      *rate.Limiter

	directory *Directory
	store     *MessageStore
	roster    *Roster
	subs      *Subscriptions

	mu        sync.RWMutex
	state     ConnectionState
	online    bool // transport reported OnConnect and no close since
	transport Transport
	user      *models.User
	epoch     uint64
	lastErr   error
}

// New creates a session; nothing happens on the network until Bootstrap or Connect
func New(opts Options) *Session {
	logger := opts.Logger.With().Str("component", "session").Logger()

	s := &Session{
		api:          opts.API,
		transports:   opts.Transports,
		dest:         opts.Destinations,
		log:          logger,
		sink:         opts.Sink,
		clock:        opts.Clock,
		newID:        opts.NewID,
		historyLimit: opts.HistoryConcurrency,
		limiter:      opts.SendLimiter,
		directory:    NewDirectory(),
		store:        NewMessageStore(opts.MaxLiveMessages),
		roster:       NewRoster(),
		subs:         NewSubscriptions(logger),
		state:        StateDisconnected,
	}
	if s.sink == nil {
		s.sink = func(any) {}
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.newID == nil {
		s.newID = models.NewMessageID
	}
	if s.historyLimit <= 0 {
		s.historyLimit = 4
	}
	if s.dest == (protocol.Destinations{}) {
		s.dest = protocol.DefaultDestinations()
	}
	return s
}

// Connect provisions the user and starts the transport. It returns once the
// transport is activated; OnConnect arrives asynchronously.
func (s *Session) Connect(ctx context.Context, username, displayName string) error {
	username = strings.TrimSpace(username)
	displayName = strings.TrimSpace(displayName)
	if username == "" || displayName == "" {
		s.notice(RegionIdentity, "Please enter both username and display name", true)
		return ErrInvalidIdentity
	}

	s.mu.RLock()
	epoch := s.epoch
	active := s.transport != nil
	s.mu.RUnlock()

	// Don't reconnect if a transport is already active; it retries on its own
	if active {
		return nil
	}

	user, err := s.api.ProvisionUser(ctx, username, displayName)
	if err != nil {
		s.log.Error().Err(err).Str("username", username).Msg("User provisioning failed")
		s.notice(RegionIdentity, fmt.Sprintf("Failed to connect: %v", err), true)
		return err
	}

	s.mu.Lock()
	if s.epoch != epoch || s.transport != nil {
		s.mu.Unlock()
		return errStaleEpoch
	}
	t := s.transports()
	s.user = &user
	s.transport = t
	s.state = StateConnecting
	s.lastErr = nil
	s.mu.Unlock()

	s.log.Info().Str("user_id", user.UserID).Str("username", user.Username).Msg("User provisioned")
	s.emit(IdentityEvent{User: &user})
	s.emit(StateChangedEvent{State: StateConnecting})
	s.notice(RegionIdentity, "Connecting to server...", false)

	t.Activate(transport.Handler{
		OnConnect:    func() { s.handleConnected(t) },
		OnDisconnect: func(err error) { s.handleTransportClosed(t, err) },
		OnError:      func(err error) { s.handleTransportError(t, err) },
	})
	return nil
}

// Disconnect tears the session down: unsubscribes everything, stops the
// transport, clears the user and the message store and bumps the epoch so
// in-flight loads are discarded. Call Bootstrap afterwards to reload.
func (s *Session) Disconnect() {
	s.mu.Lock()
	t := s.transport
	s.transport = nil
	s.user = nil
	s.online = false
	s.state = StateDisconnected
	s.lastErr = nil
	s.epoch++
	epoch := s.epoch
	s.mu.Unlock()

	released := s.subs.UnsubscribeAll()
	if t != nil {
		if err := t.Deactivate(); err != nil {
			s.log.Warn().Err(err).Msg("Transport deactivate failed")
		}
	}
	s.store.Clear()

	s.log.Info().Uint64("epoch", epoch).Int("subscriptions", released).Msg("Disconnected")
	s.emit(IdentityEvent{})
	s.emit(ClearedEvent{})
	s.emit(StateChangedEvent{State: StateDisconnected})
}

// handleConnected runs the Connected side effects for the current transport
func (s *Session) handleConnected(t Transport) {
	s.mu.Lock()
	if s.transport != t {
		s.mu.Unlock()
		return
	}
	s.state = StateConnected
	s.online = true
	s.lastErr = nil
	var name string
	if s.user != nil {
		name = s.user.GetDisplayName()
	}
	s.mu.Unlock()

	s.subscribeAll(t)

	s.log.Info().Int("subscriptions", s.subs.Len()).Msg("Connected")
	s.emit(StateChangedEvent{State: StateConnected})
	s.notice(RegionIdentity, "", false)
	s.notice(RegionChat, fmt.Sprintf("Welcome to the chat, %s!", name), false)
}

// handleTransportClosed handles an unsolicited close. Handles on the dead
// connection are forgotten so the next OnConnect subscribes again.
func (s *Session) handleTransportClosed(t Transport, cause error) {
	s.mu.Lock()
	if s.transport != t {
		s.mu.Unlock()
		return
	}
	wasOnline := s.online
	s.online = false
	s.state = StateDisconnected
	// A transport that gave up no longer reconnects; release it so the
	// next Connect starts a fresh one
	exhausted := errors.Is(cause, transport.ErrRetriesExhausted)
	if exhausted {
		s.transport = nil
	}
	s.mu.Unlock()

	dropped := s.subs.Drop()
	s.log.Warn().Err(cause).Int("dropped", dropped).Bool("exhausted", exhausted).Msg("Transport closed")
	if exhausted {
		// Deactivate waits for the connect loop this callback runs on
		go t.Deactivate()
	}

	s.emit(StateChangedEvent{State: StateDisconnected, Err: cause})
	if wasOnline {
		s.notice(RegionChat, "Disconnected from server", true)
	}
}

// handleTransportError records a broker or socket error for the current transport
func (s *Session) handleTransportError(t Transport, err error) {
	s.mu.Lock()
	if s.transport != t {
		s.mu.Unlock()
		return
	}
	s.state = StateError
	s.lastErr = err
	s.mu.Unlock()

	s.log.Error().Err(err).Msg("Transport error")
	s.emit(StateChangedEvent{State: StateError, Err: err})
	s.notice(RegionIdentity, "Connection error. Retrying...", true)
}

// subscribeAll subscribes every directory channel plus the update topics
func (s *Session) subscribeAll(t Transport) {
	for _, ch := range s.directory.List() {
		s.subscribeChannel(t, ch.ID)
	}
	onChannelUpdate := func(body []byte) { s.handleChannelUpdate(t, body) }
	if _, err := s.subs.Subscribe(t, protocol.KeyChannelUpdates, s.dest.ChannelUpdates, onChannelUpdate); err != nil {
		s.log.Error().Err(err).Str("destination", s.dest.ChannelUpdates).Msg("Subscribe failed")
	}
	onUserUpdate := func(body []byte) { s.handleUserUpdate(t, body) }
	if _, err := s.subs.Subscribe(t, protocol.KeyUserUpdates, s.dest.UserUpdates, onUserUpdate); err != nil {
		s.log.Error().Err(err).Str("destination", s.dest.UserUpdates).Msg("Subscribe failed")
	}
}

func (s *Session) subscribeChannel(t Transport, channelID string) {
	destination := s.dest.Channel(channelID)
	_, err := s.subs.Subscribe(t, channelID, destination, func(body []byte) {
		s.handleChannelMessage(t, channelID, body)
	})
	if err != nil {
		s.log.Error().Err(err).Str("channel_id", channelID).Str("destination", destination).Msg("Subscribe failed")
	}
}

// owns reports whether t is still the session's transport. Deliveries on
// handles of a transport that Disconnect released are stale.
func (s *Session) owns(t Transport) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transport == t
}

// connectedTransport returns the transport when the session is Connected
func (s *Session) connectedTransport() Transport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateConnected {
		return nil
	}
	return s.transport
}

// Send publishes a text message to the current channel. The message is not
// stored locally; it appears when the broker echoes it back.
func (s *Session) Send(body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return ErrEmptyMessage
	}

	s.mu.RLock()
	t, state := s.transport, s.state
	var user models.User
	if s.user != nil {
		user = *s.user
	}
	hasUser := s.user != nil
	s.mu.RUnlock()

	if state != StateConnected || t == nil || !hasUser {
		return ErrNotConnected
	}

	ch, ok := s.directory.Current()
	if !ok {
		return ErrNoChannel
	}
	if s.limiter != nil && !s.limiter.Allow() {
		return ErrRateLimited
	}

	now := s.clock()
	msg := models.NewTextMessage(s.newID(now), ch, user, body, now)
	data, err := protocol.EncodeMessage(msg)
	if err != nil {
		return err
	}
	if err := t.Publish(s.dest.Send, data); err != nil {
		s.log.Error().Err(err).Str("channel_id", ch.ID).Msg("Publish failed")
		return errs.E(errs.KindTransport, "session.Send", err)
	}

	s.log.Debug().Str("channel_id", ch.ID).Str("message_id", msg.MessageID).Msg("Message sent")
	return nil
}

// CreateChannel creates a channel over REST, adds it to the directory and
// makes it current
func (s *Session) CreateChannel(ctx context.Context, name, description string) (models.Channel, error) {
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)
	if name == "" {
		s.notice(RegionChannel, "Please enter a channel name", true)
		return models.Channel{}, ErrInvalidChannelName
	}

	s.notice(RegionChannel, "Creating channel...", false)
	ch, err := s.api.CreateChannel(ctx, name, description)
	if err != nil {
		s.log.Error().Err(err).Str("name", name).Msg("Channel creation failed")
		s.notice(RegionChannel, fmt.Sprintf("Failed to create channel: %v", err), true)
		return models.Channel{}, err
	}

	if s.directory.Add(ch) {
		s.emit(ChannelsChangedEvent{})
	}
	if t := s.connectedTransport(); t != nil {
		s.subscribeChannel(t, ch.ID)
	}
	if current, ok := s.directory.Get(ch.ID); ok {
		ch = current
	}
	s.directory.SetCurrent(ch.ID)

	s.log.Info().Str("channel_id", ch.ID).Str("name", ch.Name).Msg("Channel created")
	s.emit(CurrentChannelEvent{Channel: ch})
	s.notice(RegionChannel, "", false)
	s.notice(RegionChat, fmt.Sprintf("Channel #%s created successfully!", ch.Name), false)
	return ch, nil
}

// SwitchChannel makes id current and returns its stored messages
func (s *Session) SwitchChannel(id string) ([]models.Message, error) {
	if !s.directory.SetCurrent(id) {
		return nil, ErrUnknownChannel
	}
	ch, _ := s.directory.Get(id)

	s.emit(CurrentChannelEvent{Channel: ch})
	return s.store.Get(id), nil
}

// State returns the connection state (thread-safe)
func (s *Session) State() ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LastError returns the last transport error, cleared on connect
func (s *Session) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// User returns the provisioned user, if any
func (s *Session) User() (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return models.User{}, false
	}
	return *s.user, true
}

// Epoch returns the current session epoch
func (s *Session) Epoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// Channels returns the directory in display order
func (s *Session) Channels() []models.Channel {
	return s.directory.List()
}

// CurrentChannel returns the current channel, if any
func (s *Session) CurrentChannel() (models.Channel, bool) {
	return s.directory.Current()
}

// Messages returns a channel's stored messages in ascending order
func (s *Session) Messages(channelID string) []models.Message {
	return s.store.Get(channelID)
}

// Users returns the roster
func (s *Session) Users() []models.User {
	return s.roster.List()
}

// Subscriptions returns the subscribed keys in sorted order
func (s *Session) Subscriptions() []string {
	return s.subs.Keys()
}

func (s *Session) emit(event any) {
	s.sink(event)
}

func (s *Session) notice(region Region, text string, isError bool) {
	s.sink(NoticeEvent{Region: region, Text: text, IsError: isError})
}
