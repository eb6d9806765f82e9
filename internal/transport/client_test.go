package transport

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/concord-chat/relay/internal/errs"
)

type recorder struct {
	connects    atomic.Int32
	disconnects atomic.Int32

	mu     sync.Mutex
	errors []error
}

func (r *recorder) handler() Handler {
	return Handler{
		OnConnect:    func() { r.connects.Add(1) },
		OnDisconnect: func(error) { r.disconnects.Add(1) },
		OnError: func(err error) {
			r.mu.Lock()
			r.errors = append(r.errors, err)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) errorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errors)
}

func testConfig(url string) Config {
	return Config{
		URL:            url,
		ReconnectDelay: 20 * time.Millisecond,
		ConnectTimeout: time.Second,
	}
}

func TestClientSubscribePublishAndDeactivate(t *testing.T) {
	b := newFakeBroker(t)
	rec := &recorder{}
	c := NewClient(testConfig(b.url()), zerolog.Nop())
	c.Activate(rec.handler())

	eventually(t, func() bool { return rec.connects.Load() == 1 }, "connect")
	if !c.Connected() {
		t.Fatalf("expected Connected after OnConnect")
	}

	got := make(chan string, 1)
	sub, err := c.Subscribe("/topic/channel/c1", func(body []byte) { got <- string(body) })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	eventually(t, func() bool { return b.saw("SUBSCRIBE /topic/channel/c1") }, "SUBSCRIBE frame")

	if !b.publish("/topic/channel/c1", `{"body":"hi"}`) {
		t.Fatalf("broker has no subscription to publish to")
	}
	select {
	case body := <-got:
		if body != `{"body":"hi"}` {
			t.Fatalf("unexpected body %q", body)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("message not delivered")
	}

	if err := c.Publish("/app/chat.sendMessage", []byte(`{"body":"yo"}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	eventually(t, func() bool { return b.saw(`SEND /app/chat.sendMessage {"body":"yo"}`) }, "SEND frame")

	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	eventually(t, func() bool { return b.saw("UNSUBSCRIBE /topic/channel/c1") }, "UNSUBSCRIBE frame")

	if err := c.Deactivate(); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if !b.saw("DISCONNECT") {
		t.Fatalf("expected DISCONNECT frame on deactivate")
	}
	if c.Connected() {
		t.Fatalf("expected not connected after Deactivate")
	}
	if rec.disconnects.Load() != 0 {
		t.Fatalf("explicit deactivate must not report OnDisconnect")
	}
}

func TestClientReconnectsAfterDrop(t *testing.T) {
	b := newFakeBroker(t)
	rec := &recorder{}
	c := NewClient(testConfig(b.url()), zerolog.Nop())
	c.Activate(rec.handler())
	t.Cleanup(func() { c.Deactivate() })

	eventually(t, func() bool { return rec.connects.Load() == 1 }, "first connect")

	b.drop()
	eventually(t, func() bool { return rec.disconnects.Load() == 1 }, "disconnect callback")
	eventually(t, func() bool { return rec.connects.Load() == 2 }, "reconnect")

	if _, err := c.Subscribe("/topic/channels", func([]byte) {}); err != nil {
		t.Fatalf("Subscribe after reconnect: %v", err)
	}
	eventually(t, func() bool { return b.count("SUBSCRIBE /topic/channels") == 1 }, "resubscribe")
	if b.count("CONNECT") != 2 {
		t.Fatalf("expected two STOMP handshakes, got %d", b.count("CONNECT"))
	}
}

func TestClientReportsBrokerError(t *testing.T) {
	b := newFakeBroker(t)
	rec := &recorder{}
	c := NewClient(testConfig(b.url()), zerolog.Nop())
	c.Activate(rec.handler())
	t.Cleanup(func() { c.Deactivate() })

	eventually(t, func() bool { return rec.connects.Load() == 1 }, "connect")
	for _, dest := range []string{"/topic/channel/a", "/topic/channel/b"} {
		if _, err := c.Subscribe(dest, func([]byte) {}); err != nil {
			t.Fatalf("Subscribe(%s): %v", dest, err)
		}
	}
	eventually(t, func() bool { return b.saw("SUBSCRIBE /topic/channel/b") }, "subscriptions")

	b.fail("bad destination")
	eventually(t, func() bool { return rec.errorCount() >= 1 }, "error callback")

	rec.mu.Lock()
	first := rec.errors[0]
	rec.mu.Unlock()
	if !errs.Is(first, errs.KindTransport) {
		t.Fatalf("expected transport error, got %v", first)
	}
}

func TestClientGivesUpAfterMaxRetries(t *testing.T) {
	cfg := testConfig("ws://127.0.0.1:1/ws")
	cfg.MaxRetries = 2
	rec := &recorder{}
	c := NewClient(cfg, zerolog.Nop())
	c.Activate(rec.handler())
	t.Cleanup(func() { c.Deactivate() })

	eventually(t, func() bool { return rec.disconnects.Load() == 1 }, "give up")
	if n := rec.errorCount(); n != 3 {
		t.Fatalf("expected 3 failed attempts, got %d", n)
	}
	if rec.connects.Load() != 0 {
		t.Fatalf("unexpected connect")
	}
}

func TestClientRequiresConnection(t *testing.T) {
	c := NewClient(testConfig("ws://127.0.0.1:1/ws"), zerolog.Nop())

	if _, err := c.Subscribe("/topic/channels", func([]byte) {}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Subscribe: expected ErrNotConnected, got %v", err)
	}
	if err := c.Publish("/app/chat.sendMessage", nil); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Publish: expected ErrNotConnected, got %v", err)
	}
	if err := c.Deactivate(); err != nil {
		t.Fatalf("Deactivate on idle client: %v", err)
	}
}

func TestFixedDelayStrategy(t *testing.T) {
	s := FixedDelay(5 * time.Second)
	for _, attempt := range []int{0, 1, 10} {
		if d := s.NextDelay(attempt); d != 5*time.Second {
			t.Fatalf("NextDelay(%d) = %v, want 5s", attempt, d)
		}
	}
	if !s.ShouldRetry(1000) {
		t.Fatalf("fixed delay strategy should retry forever")
	}

	backoff := &ReconnectStrategy{MaxRetries: 3, InitialDelay: time.Second, MaxDelay: 3 * time.Second, BackoffFactor: 2}
	if d := backoff.NextDelay(1); d != 2*time.Second {
		t.Fatalf("NextDelay(1) = %v", d)
	}
	if d := backoff.NextDelay(5); d != 3*time.Second {
		t.Fatalf("expected cap at MaxDelay, got %v", d)
	}
	if backoff.ShouldRetry(3) {
		t.Fatalf("expected no retry at MaxRetries")
	}
}
