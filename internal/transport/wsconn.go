package transport

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20 // 1MB
)

// wsConn adapts a websocket connection to the byte stream the STOMP codec
// reads and writes. Each Write is sent as one text message.
type wsConn struct {
	conn   *websocket.Conn
	reader io.Reader

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}

	errMu sync.Mutex
	err   error
}

func newWSConn(conn *websocket.Conn) *wsConn {
	conn.SetReadLimit(maxMessageSize)
	return &wsConn{
		conn: conn,
		done: make(chan struct{}),
	}
}

func (w *wsConn) Read(p []byte) (int, error) {
	for {
		if w.reader == nil {
			_, r, err := w.conn.NextReader()
			if err != nil {
				w.fail(err)
				return 0, err
			}
			w.reader = r
		}

		n, err := w.reader.Read(p)
		if errors.Is(err, io.EOF) {
			w.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		if err != nil {
			w.fail(err)
		}
		return n, err
	}
}

func (w *wsConn) Write(p []byte) (int, error) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := w.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		w.fail(err)
		return 0, err
	}
	return len(p), nil
}

// Close sends a close frame and closes the socket. Safe to call repeatedly.
func (w *wsConn) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = w.conn.Close()
		close(w.done)
	})
	return err
}

// Done is closed once the socket is closed from either side
func (w *wsConn) Done() <-chan struct{} {
	return w.done
}

// Err returns the error that closed the socket, nil after a local Close
func (w *wsConn) Err() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}

func (w *wsConn) fail(err error) {
	select {
	case <-w.done:
		return
	default:
	}

	w.errMu.Lock()
	if w.err == nil {
		w.err = err
	}
	w.errMu.Unlock()
	w.Close()
}
