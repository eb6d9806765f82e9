// Package transport connects to the chat broker with STOMP over a
// WebSocket and keeps the connection alive with fixed-delay reconnects.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/concord-chat/relay/internal/errs"
)

const (
	disconnectTimeout  = 2 * time.Second
	unsubscribeTimeout = 2 * time.Second
)

var (
	// ErrNotConnected is returned when no STOMP session is established
	ErrNotConnected = errors.New("transport: not connected")

	// ErrRetriesExhausted is reported when the reconnect strategy gives up
	ErrRetriesExhausted = errors.New("transport: reconnect attempts exhausted")
)

// Handler receives connection lifecycle callbacks. Callbacks run on the
// client's connection goroutine, so they must not call Deactivate.
type Handler struct {
	OnConnect    func()
	OnDisconnect func(err error)
	OnError      func(err error)
}

// Subscription is a live broker subscription
type Subscription interface {
	Unsubscribe() error
}

// Config holds the broker connection settings
type Config struct {
	URL               string
	Host              string // STOMP host header, empty for the library default
	ReconnectDelay    time.Duration
	MaxRetries        int // Zero retries forever
	HeartbeatOutgoing time.Duration
	HeartbeatIncoming time.Duration
	ConnectTimeout    time.Duration
}

// DefaultConfig returns the settings the chat backend expects
func DefaultConfig() Config {
	return Config{
		URL:               "ws://localhost:8080/ws-chat/websocket",
		ReconnectDelay:    5 * time.Second,
		HeartbeatOutgoing: 4 * time.Second,
		HeartbeatIncoming: 4 * time.Second,
		ConnectTimeout:    10 * time.Second,
	}
}

// Client is a self-reconnecting STOMP client. Subscriptions do not survive
// a reconnect; the owner re-subscribes from OnConnect.
type Client struct {
	cfg      Config
	strategy *ReconnectStrategy
	dialer   *websocket.Dialer
	log      zerolog.Logger

	mu      sync.RWMutex
	handler Handler
	conn    *stomp.Conn
	ws      *wsConn
	errOnce *sync.Once
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewClient creates a client; nothing is dialed until Activate
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConfig().ConnectTimeout
	}
	strategy := FixedDelay(cfg.ReconnectDelay)
	strategy.MaxRetries = cfg.MaxRetries

	return &Client{
		cfg:      cfg,
		strategy: strategy,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.ConnectTimeout,
			Proxy:            http.ProxyFromEnvironment,
			Subprotocols:     []string{"v12.stomp", "v11.stomp", "v10.stomp"},
		},
		log: logger.With().Str("component", "transport").Str("url", cfg.URL).Logger(),
	}
}

// Activate starts the connect loop. Calling it on an active client is a no-op.
func (c *Client) Activate(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.handler = h
	c.cancel = cancel
	c.done = make(chan struct{})

	go c.run(ctx, h, c.done)
}

// Deactivate stops reconnecting, sends DISCONNECT and closes the socket.
// It blocks until the connect loop has exited.
func (c *Client) Deactivate() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel = nil
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// Connected reports whether a STOMP session is currently established
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Subscribe subscribes to destination and calls deliver with each message
// body on a dedicated goroutine
func (c *Client) Subscribe(destination string, deliver func(body []byte)) (Subscription, error) {
	c.mu.RLock()
	conn, once, h := c.conn, c.errOnce, c.handler
	c.mu.RUnlock()

	if conn == nil {
		return nil, ErrNotConnected
	}

	sub, err := conn.Subscribe(destination, stomp.AckAuto)
	if err != nil {
		return nil, errs.E(errs.KindTransport, "transport.Subscribe", err)
	}

	s := &subscription{
		sub:         sub,
		destination: destination,
		done:        make(chan struct{}),
	}
	go s.pump(deliver, func(err error) {
		// A broker ERROR is fanned out to every subscription; report it once
		once.Do(func() {
			c.log.Error().Err(err).Str("destination", destination).Msg("Broker error")
			if h.OnError != nil {
				h.OnError(errs.E(errs.KindTransport, "transport.Receive", err))
			}
		})
	})

	c.log.Debug().Str("destination", destination).Msg("Subscribed")
	return s, nil
}

// Publish sends a JSON body to destination
func (c *Client) Publish(destination string, body []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}
	if err := conn.Send(destination, "application/json", body); err != nil {
		return errs.E(errs.KindTransport, "transport.Publish", err)
	}
	return nil
}

// run dials, reports the session to the handler and waits for it to end,
// then retries after the strategy's delay until ctx is cancelled
func (c *Client) run(ctx context.Context, h Handler, done chan struct{}) {
	defer close(done)

	attempt := 0
	for {
		ws, err := c.connect(ctx)
		if ctx.Err() != nil {
			if err == nil {
				c.shutdown()
			}
			return
		}

		switch {
		case err != nil:
			c.log.Warn().Err(err).Int("attempt", attempt+1).Msg("Connection attempt failed")
			if h.OnError != nil {
				h.OnError(err)
			}
		default:
			attempt = 0
			c.log.Info().Msg("Connected to broker")
			if h.OnConnect != nil {
				h.OnConnect()
			}

			select {
			case <-ctx.Done():
				c.shutdown()
				return
			case <-ws.Done():
			}

			cause := c.teardown()
			if ctx.Err() != nil {
				return
			}
			c.log.Warn().Err(cause).Msg("Connection lost")
			if h.OnDisconnect != nil {
				h.OnDisconnect(cause)
			}
		}

		if !c.strategy.ShouldRetry(attempt) {
			c.log.Error().Int("attempts", attempt).Msg("Giving up reconnecting")
			if h.OnDisconnect != nil {
				h.OnDisconnect(ErrRetriesExhausted)
			}
			return
		}

		delay := c.strategy.NextDelay(attempt)
		attempt++
		c.log.Debug().Dur("delay", delay).Msg("Reconnecting")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// connect dials the websocket and performs the STOMP handshake within the
// connect timeout
func (c *Client) connect(ctx context.Context) (*wsConn, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	raw, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return nil, errs.E(errs.KindTransport, "transport.Dial", err)
	}
	ws := newWSConn(raw)

	// The STOMP handshake is not context aware; closing the socket unblocks it
	stop := context.AfterFunc(ctx, func() { ws.Close() })

	opts := []func(*stomp.Conn) error{
		stomp.ConnOpt.HeartBeat(c.cfg.HeartbeatOutgoing, c.cfg.HeartbeatIncoming),
	}
	if c.cfg.Host != "" {
		opts = append(opts, stomp.ConnOpt.Host(c.cfg.Host))
	}

	conn, err := stomp.Connect(ws, opts...)
	if !stop() {
		if err == nil {
			conn.MustDisconnect()
		}
		ws.Close()
		return nil, errs.E(errs.KindTimedOut, "transport.Connect", fmt.Errorf("stomp handshake: %w", ctx.Err()))
	}
	if err != nil {
		ws.Close()
		return nil, errs.E(errs.KindTransport, "transport.Connect", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.ws = ws
	c.errOnce = new(sync.Once)
	c.mu.Unlock()

	return ws, nil
}

// teardown forgets a session whose socket already closed and returns the cause
func (c *Client) teardown() error {
	c.mu.Lock()
	conn, ws := c.conn, c.ws
	c.conn, c.ws = nil, nil
	c.mu.Unlock()

	if conn != nil {
		conn.MustDisconnect()
	}
	if ws == nil {
		return nil
	}
	if err := ws.Err(); err != nil {
		return errs.E(errs.KindTransport, "transport.Receive", err)
	}
	return errs.E(errs.KindTransport, "transport.Receive", errors.New("connection closed"))
}

// shutdown sends DISCONNECT, waiting a bounded time for the receipt, and
// closes the socket
func (c *Client) shutdown() {
	c.mu.Lock()
	conn, ws := c.conn, c.ws
	c.conn, c.ws = nil, nil
	c.mu.Unlock()

	if conn != nil {
		result := make(chan error, 1)
		go func() { result <- conn.Disconnect() }()

		select {
		case err := <-result:
			if err != nil {
				c.log.Debug().Err(err).Msg("Disconnect failed")
			}
		case <-time.After(disconnectTimeout):
			c.log.Warn().Msg("Disconnect receipt timed out")
		}
	}
	if ws != nil {
		ws.Close()
	}
	c.log.Info().Msg("Disconnected from broker")
}

type subscription struct {
	sub         *stomp.Subscription
	destination string
	done        chan struct{}
	once        sync.Once
}

func (s *subscription) pump(deliver func([]byte), onErr func(error)) {
	defer close(s.done)

	for msg := range s.sub.C {
		if msg.Err != nil {
			onErr(msg.Err)
			continue
		}
		deliver(msg.Body)
	}
}

// Unsubscribe sends UNSUBSCRIBE and waits a bounded time for the broker's
// receipt. Repeated calls are no-ops.
func (s *subscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		result := make(chan error, 1)
		go func() { result <- s.sub.Unsubscribe() }()

		select {
		case err = <-result:
		case <-time.After(unsubscribeTimeout):
			err = errs.E(errs.KindTimedOut, "transport.Unsubscribe",
				fmt.Errorf("no receipt for %s", s.destination))
		}
	})
	return err
}
