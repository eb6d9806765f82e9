package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/concord-chat/relay/internal/models"
	"github.com/concord-chat/relay/internal/protocol"
	"github.com/concord-chat/relay/internal/transport"
)

// fakeAPI is an in-memory REST backend. A non-nil gate blocks the call
// until closed; entered receives a value when the call starts.
type fakeAPI struct {
	mu sync.Mutex

	channels     []models.Channel
	channelsErr  error
	channelsGate chan struct{}
	entered      chan string

	users    []models.User
	history  map[string][]models.Message
	histErr  map[string]error
	histGate chan struct{}

	provisionErr error
	provisioned  int

	createErr error
	createID  string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		history: make(map[string][]models.Message),
		histErr: make(map[string]error),
		entered: make(chan string, 16),
	}
}

func (f *fakeAPI) ListChannels(ctx context.Context) ([]models.Channel, error) {
	f.mu.Lock()
	gate := f.channelsGate
	f.mu.Unlock()
	f.signal("channels")
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.channelsErr != nil {
		return nil, f.channelsErr
	}
	return append([]models.Channel(nil), f.channels...), nil
}

func (f *fakeAPI) signal(call string) {
	select {
	case f.entered <- call:
	default:
	}
}

func (f *fakeAPI) CreateChannel(_ context.Context, name, description string) (models.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return models.Channel{}, f.createErr
	}
	id := f.createID
	if id == "" {
		id = "created-" + name
	}
	ch := models.Channel{ID: id, Name: name, Description: description}
	f.channels = append(f.channels, ch)
	return ch, nil
}

func (f *fakeAPI) ListUsers(context.Context) ([]models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.User(nil), f.users...), nil
}

func (f *fakeAPI) ProvisionUser(_ context.Context, username, displayName string) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.provisioned++
	if f.provisionErr != nil {
		return models.User{}, f.provisionErr
	}
	return models.User{UserID: "u-" + username, Username: username, DisplayName: displayName}, nil
}

func (f *fakeAPI) History(ctx context.Context, channelID string) ([]models.Message, error) {
	f.mu.Lock()
	gate := f.histGate
	f.mu.Unlock()
	if gate != nil {
		f.signal("history " + channelID)
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.histErr[channelID]; err != nil {
		return nil, err
	}
	return append([]models.Message(nil), f.history[channelID]...), nil
}

// fakeTransport records subscriptions and publishes
type fakeTransport struct {
	mu          sync.Mutex
	handler     transport.Handler
	activated   int
	deactivated int
	subs        map[string]*fakeSub
	subscribes  []string
	published   []published
	publishErr  error
}

type published struct {
	destination string
	body        []byte
}

type fakeSub struct {
	t            *fakeTransport
	destination  string
	deliver      func([]byte)
	unsubscribed bool
}

func (s *fakeSub) Unsubscribe() error {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	s.unsubscribed = true
	if s.t.subs[s.destination] == s {
		delete(s.t.subs, s.destination)
	}
	return nil
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{subs: make(map[string]*fakeSub)}
}

func (f *fakeTransport) Activate(h transport.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
	f.activated++
}

func (f *fakeTransport) Deactivate() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deactivated++
	return nil
}

func (f *fakeTransport) Subscribe(destination string, deliver func([]byte)) (transport.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := &fakeSub{t: f, destination: destination, deliver: deliver}
	f.subs[destination] = sub
	f.subscribes = append(f.subscribes, destination)
	return sub, nil
}

func (f *fakeTransport) Publish(destination string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, published{destination: destination, body: append([]byte(nil), body...)})
	return nil
}

func (f *fakeTransport) connect() {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h.OnConnect()
}

func (f *fakeTransport) drop(err error) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h.OnDisconnect(err)
}

func (f *fakeTransport) fail(err error) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h.OnError(err)
}

// deliver pushes body to the live subscription on destination
func (f *fakeTransport) deliver(destination, body string) bool {
	f.mu.Lock()
	sub, ok := f.subs[destination]
	f.mu.Unlock()
	if !ok {
		return false
	}
	sub.deliver([]byte(body))
	return true
}

// handle returns the subscription currently live on destination
func (f *fakeTransport) handle(destination string) *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[destination]
}

func (f *fakeTransport) deactivations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deactivated
}

func (f *fakeTransport) subscribeCount(destination string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, d := range f.subscribes {
		if d == destination {
			n++
		}
	}
	return n
}

func (f *fakeTransport) liveSubs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeTransport) publishes() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.published...)
}

// eventLog collects sink events
type eventLog struct {
	mu     sync.Mutex
	events []any
}

func (l *eventLog) sink(ev any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) notices(region Region) []NoticeEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []NoticeEvent
	for _, ev := range l.events {
		if n, ok := ev.(NoticeEvent); ok && n.Region == region && n.Text != "" {
			out = append(out, n)
		}
	}
	return out
}

func (l *eventLog) count(match func(any) bool) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if match(ev) {
			n++
		}
	}
	return n
}

type harness struct {
	s          *Session
	api        *fakeAPI
	events     *eventLog
	mu         sync.Mutex
	transports []*fakeTransport
}

func newHarness(t *testing.T, api *fakeAPI) *harness {
	t.Helper()

	h := &harness{api: api, events: &eventLog{}}
	h.s = New(Options{
		API: api,
		Transports: func() Transport {
			ft := newFakeTransport()
			h.mu.Lock()
			h.transports = append(h.transports, ft)
			h.mu.Unlock()
			return ft
		},
		Destinations: protocol.DefaultDestinations(),
		Logger:       zerolog.Nop(),
		Sink:         h.events.sink,
		Clock:        func() time.Time { return time.UnixMilli(1700000000000) },
		NewID:        func(time.Time) string { return "msg_fixed" },
	})
	return h
}

func (h *harness) transport(i int) *fakeTransport {
	h.mu.Lock()
	defer h.mu.Unlock()
	if i >= len(h.transports) {
		return nil
	}
	return h.transports[i]
}

// connect provisions a user and fires OnConnect on the new transport
func (h *harness) connect(t *testing.T) *fakeTransport {
	t.Helper()

	h.mu.Lock()
	n := len(h.transports)
	h.mu.Unlock()

	if err := h.s.Connect(context.Background(), "alice", "Alice"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	ft := h.transport(n)
	if ft == nil {
		t.Fatalf("Connect did not create a transport")
	}
	ft.connect()
	if h.s.State() != StateConnected {
		t.Fatalf("state = %v, want Connected", h.s.State())
	}
	return ft
}

func channels(ids ...string) []models.Channel {
	out := make([]models.Channel, len(ids))
	for i, id := range ids {
		out[i] = models.Channel{ID: id, Name: "name-" + id}
	}
	return out
}

func channelIDs(chs []models.Channel) []string {
	out := make([]string, len(chs))
	for i, ch := range chs {
		out[i] = ch.ID
	}
	return out
}

func messageIDs(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.MessageID
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func waitEntered(t *testing.T, api *fakeAPI, want string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-api.entered:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("call %q never started", want)
		}
	}
}

func eventually(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

var errBoom = errors.New("boom")
