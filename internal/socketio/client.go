// Package socketio implements the coordinator's persistent channel to the
// backend: a Socket.IO (EIO=4) client over a single websocket, with
// reconnect, a typed publish/subscribe surface, and liveness metrics.
package socketio

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrNotConnected = errors.New("socket not connected")
	ErrClosed       = errors.New("socket closed")
	ErrAckTimeout   = errors.New("ack timeout")
)

// Handler receives the argument list of one inbound event. Handlers run on
// the read loop; a panicking handler is recovered and logged, never allowed
// to take the loop down.
type Handler func(args []json.RawMessage)

type Metrics struct {
	EventsSent     uint64
	EventsReceived uint64
	Reconnects     uint64
	LastActivity   int64 // unix milliseconds
}

type Options struct {
	URL  string // http(s) base URL of the backend
	Path string // socket endpoint path, default /socket.io/

	// Auth builds the payload for the Socket.IO connect packet. Called on
	// every (re)connect so a refreshed token is picked up.
	Auth func() map[string]any

	Logger           *slog.Logger
	Dialer           *websocket.Dialer
	HandshakeTimeout time.Duration
	ReconnectMin     time.Duration
	ReconnectMax     time.Duration
}

// Client owns exactly one live channel to the backend. Lost connections are
// re-dialed with exponential backoff; session membership is NOT re-established
// automatically because that requires session context the transport does not
// own — owners re-join from the OnConnect hook, which fires on every
// successful connect and reconnect.
type Client struct {
	opts Options
	log  *slog.Logger

	// OnConnect must be set before Connect.
	OnConnect func()

	mu     sync.Mutex
	ws     *websocket.Conn
	connID string

	connected atomic.Bool
	closed    atomic.Bool
	stop      chan struct{}

	handlerMu sync.RWMutex
	handlers  map[string]Handler

	sendMu sync.Mutex

	ackMu      sync.Mutex
	nextAckID  int
	pendingAck map[int]chan []json.RawMessage

	eventsSent     atomic.Uint64
	eventsReceived atomic.Uint64
	reconnects     atomic.Uint64
	lastActivity   atomic.Int64
}

func NewClient(opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, errors.New("missing URL")
	}
	if opts.Path == "" {
		opts.Path = "/socket.io/"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = 500 * time.Millisecond
	}
	if opts.ReconnectMax <= 0 {
		opts.ReconnectMax = 15 * time.Second
	}

	return &Client{
		opts:       opts,
		log:        opts.Logger,
		stop:       make(chan struct{}),
		handlers:   make(map[string]Handler),
		pendingAck: make(map[int]chan []json.RawMessage),
	}, nil
}

func (c *Client) wsURL() (string, error) {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", errors.New("unsupported scheme " + u.Scheme)
	}
	u.Path = strings.TrimSuffix(c.opts.Path, "/") + "/"
	u.RawQuery = "EIO=4&transport=websocket"
	return u.String(), nil
}

// Connect dials the backend and performs the engine open + socket connect
// handshake. On success a background loop keeps the channel alive until
// Close.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if c.connected.Load() {
		return errors.New("already connected")
	}

	ws, sid, err := c.dialAndHandshake(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.ws = ws
	c.connID = sid
	c.mu.Unlock()
	c.connected.Store(true)
	c.markActivity()

	if c.OnConnect != nil {
		c.OnConnect()
	}

	go c.run(ws)
	return nil
}

func (c *Client) dialAndHandshake(ctx context.Context) (*websocket.Conn, string, error) {
	target, err := c.wsURL()
	if err != nil {
		return nil, "", err
	}

	ws, _, err := c.opts.Dialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, "", err
	}

	deadline := time.Now().Add(c.opts.HandshakeTimeout)
	_ = ws.SetReadDeadline(deadline)

	_, data, err := ws.ReadMessage()
	if err != nil {
		_ = ws.Close()
		return nil, "", err
	}
	open, err := parseEngineOpen(string(data))
	if err != nil {
		_ = ws.Close()
		return nil, "", err
	}

	var auth map[string]any
	if c.opts.Auth != nil {
		auth = c.opts.Auth()
	}
	connectPkt, err := buildConnectPacket("/", auth)
	if err != nil {
		_ = ws.Close()
		return nil, "", err
	}
	if err := ws.WriteMessage(websocket.TextMessage, []byte(string(engineMessage)+connectPkt)); err != nil {
		_ = ws.Close()
		return nil, "", err
	}

	// Wait for the connect confirmation, answering engine pings meanwhile.
	for time.Now().Before(deadline) {
		_, data, err := ws.ReadMessage()
		if err != nil {
			_ = ws.Close()
			return nil, "", err
		}
		msg := string(data)
		if msg == string(enginePing) {
			_ = ws.WriteMessage(websocket.TextMessage, []byte{byte(enginePong)})
			continue
		}
		if len(msg) < 2 || enginePacketType(msg[0]) != engineMessage {
			continue
		}
		switch socketPacketType(msg[1]) {
		case socketConnect:
			_ = ws.SetReadDeadline(time.Time{})
			return ws, open.SID, nil
		case socketConnectError:
			_ = ws.Close()
			return nil, "", errors.New("connect rejected: " + msg[2:])
		case socketEvent:
			if pkt, err := parseEventPacket(msg[1:]); err == nil && pkt.Event == "error" {
				_ = ws.Close()
				return nil, "", errors.New("connect rejected: " + pkt.Event)
			}
		}
	}
	_ = ws.Close()
	return nil, "", errors.New("handshake timeout")
}

func (c *Client) run(ws *websocket.Conn) {
	for {
		c.readLoop(ws)

		c.connected.Store(false)
		c.mu.Lock()
		c.ws = nil
		c.mu.Unlock()
		c.failPendingAcks()

		if c.closed.Load() {
			return
		}
		c.log.Warn("socket disconnected, reconnecting")

		next, ok := c.reconnect()
		if !ok {
			return
		}
		ws = next
	}
}

func (c *Client) readLoop(ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			_ = ws.Close()
			return
		}
		c.handleMessage(ws, string(data))
	}
}

func (c *Client) reconnect() (*websocket.Conn, bool) {
	backoff := c.opts.ReconnectMin
	for {
		select {
		case <-c.stop:
			return nil, false
		case <-time.After(backoff):
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.opts.HandshakeTimeout)
		ws, sid, err := c.dialAndHandshake(ctx)
		cancel()
		if err != nil {
			c.log.Warn("reconnect failed", "err", err, "backoff", backoff)
			backoff *= 2
			if backoff > c.opts.ReconnectMax {
				backoff = c.opts.ReconnectMax
			}
			continue
		}

		c.mu.Lock()
		c.ws = ws
		c.connID = sid
		c.mu.Unlock()
		c.connected.Store(true)
		c.reconnects.Add(1)
		c.markActivity()
		c.log.Info("socket reconnected", "sid", sid)

		if c.OnConnect != nil {
			c.OnConnect()
		}
		return ws, true
	}
}

func (c *Client) handleMessage(ws *websocket.Conn, msg string) {
	if msg == "" {
		return
	}
	c.markActivity()

	switch enginePacketType(msg[0]) {
	case enginePing:
		_ = c.writeText(ws, string(enginePong))
	case engineMessage:
		c.handleSocketPayload(msg[1:])
	case engineClose:
		_ = ws.Close()
	}
}

func (c *Client) handleSocketPayload(payload string) {
	if payload == "" {
		return
	}
	switch socketPacketType(payload[0]) {
	case socketEvent:
		pkt, err := parseEventPacket(payload)
		if err != nil {
			c.log.Debug("unparseable event packet", "err", err)
			return
		}
		c.eventsReceived.Add(1)
		c.dispatch(pkt)
	case socketAck:
		ack, err := parseAckPacket(payload)
		if err != nil {
			return
		}
		c.resolveAck(ack.ID, ack.Args)
	}
}

func (c *Client) dispatch(pkt eventPacket) {
	c.handlerMu.RLock()
	handler := c.handlers[pkt.Event]
	c.handlerMu.RUnlock()
	if handler == nil {
		c.log.Debug("no handler for event", "event", pkt.Event)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.log.Error("event handler panic", "event", pkt.Event, "panic", r)
		}
	}()
	handler(pkt.Args)
}

// On registers the handler for an event name, replacing any previous one:
// re-subscription is idempotent, there is never more than one live handler
// per name.
func (c *Client) On(event string, handler Handler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.handlers[event] = handler
}

func (c *Client) Off(event string) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	delete(c.handlers, event)
}

// Emit sends one event, best effort. A send while disconnected is dropped
// with ErrNotConnected; retrying after reconnect is the caller's job.
func (c *Client) Emit(event string, payload any) error {
	ws, err := c.liveConn()
	if err != nil {
		return err
	}
	pkt, err := buildEventPacket("/", nil, event, payload)
	if err != nil {
		return err
	}
	if err := c.writeText(ws, string(engineMessage)+pkt); err != nil {
		return err
	}
	c.eventsSent.Add(1)
	c.markActivity()
	return nil
}

// EmitWithAck sends one event and waits for the server's ack arguments.
func (c *Client) EmitWithAck(event string, payload any, timeout time.Duration) ([]json.RawMessage, error) {
	ws, err := c.liveConn()
	if err != nil {
		return nil, err
	}

	c.ackMu.Lock()
	c.nextAckID++
	id := c.nextAckID
	ch := make(chan []json.RawMessage, 1)
	c.pendingAck[id] = ch
	c.ackMu.Unlock()

	pkt, err := buildEventPacket("/", &id, event, payload)
	if err != nil {
		c.dropAck(id)
		return nil, err
	}
	if err := c.writeText(ws, string(engineMessage)+pkt); err != nil {
		c.dropAck(id)
		return nil, err
	}
	c.eventsSent.Add(1)
	c.markActivity()

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrNotConnected
		}
		return resp, nil
	case <-time.After(timeout):
		c.dropAck(id)
		return nil, ErrAckTimeout
	case <-c.stop:
		c.dropAck(id)
		return nil, ErrClosed
	}
}

func (c *Client) resolveAck(id int, args []json.RawMessage) {
	c.ackMu.Lock()
	ch := c.pendingAck[id]
	delete(c.pendingAck, id)
	c.ackMu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- args:
	default:
	}
}

func (c *Client) dropAck(id int) {
	c.ackMu.Lock()
	delete(c.pendingAck, id)
	c.ackMu.Unlock()
}

func (c *Client) failPendingAcks() {
	c.ackMu.Lock()
	for id, ch := range c.pendingAck {
		delete(c.pendingAck, id)
		close(ch)
	}
	c.ackMu.Unlock()
}

func (c *Client) liveConn() (*websocket.Conn, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil || !c.connected.Load() {
		return nil, ErrNotConnected
	}
	return ws, nil
}

func (c *Client) writeText(ws *websocket.Conn, msg string) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := ws.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return err
	}
	return ws.WriteMessage(websocket.TextMessage, []byte(msg))
}

func (c *Client) Connected() bool { return c.connected.Load() }

func (c *Client) ConnectionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected.Load() {
		return ""
	}
	return c.connID
}

func (c *Client) Metrics() Metrics {
	return Metrics{
		EventsSent:     c.eventsSent.Load(),
		EventsReceived: c.eventsReceived.Load(),
		Reconnects:     c.reconnects.Load(),
		LastActivity:   c.lastActivity.Load(),
	}
}

func (c *Client) markActivity() {
	c.lastActivity.Store(time.Now().UnixMilli())
}

// Close tears the channel down permanently.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.stop)
	c.connected.Store(false)

	c.mu.Lock()
	ws := c.ws
	c.ws = nil
	c.mu.Unlock()
	if ws != nil {
		_ = ws.Close()
	}
	c.failPendingAcks()
	return nil
}
