package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
)

// fakeBroker is a scripted STOMP broker speaking over websocket
type fakeBroker struct {
	srv *httptest.Server

	mu       sync.Mutex
	sessions []*brokerSession
	log      []string
}

type brokerSession struct {
	ws      *wsConn
	writeMu sync.Mutex
	writer  *frame.Writer
	subs    map[string]string // destination -> subscription id
}

func newFakeBroker(t *testing.T) *fakeBroker {
	t.Helper()

	b := &fakeBroker{}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		b.serve(newWSConn(raw))
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBroker) url() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http") + "/ws-chat/websocket"
}

func (b *fakeBroker) serve(ws *wsConn) {
	s := &brokerSession{ws: ws, writer: frame.NewWriter(ws), subs: make(map[string]string)}
	b.mu.Lock()
	b.sessions = append(b.sessions, s)
	b.mu.Unlock()
	defer ws.Close()

	reader := frame.NewReader(ws)
	for {
		f, err := reader.Read()
		if err != nil {
			return
		}
		if f == nil {
			continue // heart-beat
		}

		switch f.Command {
		case frame.CONNECT, frame.STOMP:
			b.record("CONNECT")
			s.write(frame.New(frame.CONNECTED, frame.Version, "1.2", frame.HeartBeat, "0,0"))
		case frame.SUBSCRIBE:
			dest := f.Header.Get(frame.Destination)
			b.mu.Lock()
			s.subs[dest] = f.Header.Get(frame.Id)
			b.mu.Unlock()
			b.record("SUBSCRIBE " + dest)
		case frame.UNSUBSCRIBE:
			id := f.Header.Get(frame.Id)
			b.mu.Lock()
			for dest, subID := range s.subs {
				if subID == id {
					delete(s.subs, dest)
					b.log = append(b.log, "UNSUBSCRIBE "+dest)
				}
			}
			b.mu.Unlock()
		case frame.SEND:
			b.record("SEND " + f.Header.Get(frame.Destination) + " " + string(f.Body))
		case frame.DISCONNECT:
			b.record("DISCONNECT")
		}

		if receipt := f.Header.Get(frame.Receipt); receipt != "" {
			s.write(frame.New(frame.RECEIPT, frame.ReceiptId, receipt))
		}
	}
}

func (s *brokerSession) write(f *frame.Frame) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.writer.Write(f)
}

func (b *fakeBroker) record(entry string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log = append(b.log, entry)
}

func (b *fakeBroker) saw(entry string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.log {
		if e == entry {
			return true
		}
	}
	return false
}

func (b *fakeBroker) count(entry string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.log {
		if e == entry {
			n++
		}
	}
	return n
}

func (b *fakeBroker) latest() *brokerSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.sessions) == 0 {
		return nil
	}
	return b.sessions[len(b.sessions)-1]
}

// publish delivers body to the latest session's subscription on dest
func (b *fakeBroker) publish(dest, body string) bool {
	s := b.latest()
	if s == nil {
		return false
	}
	b.mu.Lock()
	id, ok := s.subs[dest]
	b.mu.Unlock()
	if !ok {
		return false
	}

	f := frame.New(frame.MESSAGE,
		frame.Destination, dest,
		frame.Subscription, id,
		frame.MessageId, "m-"+id,
		frame.ContentType, "application/json")
	f.Body = []byte(body)
	s.write(f)
	return true
}

// fail sends a STOMP ERROR frame on the latest session
func (b *fakeBroker) fail(message string) {
	if s := b.latest(); s != nil {
		s.write(frame.New(frame.ERROR, frame.Message, message))
	}
}

// drop closes the latest session's socket from the broker side
func (b *fakeBroker) drop() {
	if s := b.latest(); s != nil {
		s.ws.Close()
	}
}

func eventually(t *testing.T, cond func() bool, what string) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
