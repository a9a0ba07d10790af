package backendtest

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type conn struct {
	ws  *websocket.Conn
	sid string

	connected atomic.Bool
	closed    atomic.Bool

	userID    string
	sessionID string

	sendMu sync.Mutex
}

func (c *conn) writeText(msg string) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, []byte(msg))
}

func (c *conn) close() {
	if c.closed.Swap(true) {
		return
	}
	_ = c.ws.Close()
}

func (b *Backend) serveSocket(g *gin.Context) {
	ws, err := upgrader.Upgrade(g.Writer, g.Request, nil)
	if err != nil {
		return
	}

	c := &conn{ws: ws, sid: uuid.NewString()}
	b.mu.Lock()
	b.conns[c] = struct{}{}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.conns, c)
		b.mu.Unlock()
		c.close()
	}()

	open, _ := json.Marshal(map[string]any{
		"sid":          c.sid,
		"upgrades":     []string{},
		"pingInterval": 25000,
		"pingTimeout":  20000,
		"maxPayload":   1000000,
	})
	_ = c.writeText("0" + string(open))

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		b.handleMessage(c, string(data))
	}
}

// DropConnections closes every live socket, forcing clients through their
// reconnect path.
func (b *Backend) DropConnections() {
	b.mu.Lock()
	conns := make([]*conn, 0, len(b.conns))
	for c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}

func (b *Backend) handleMessage(c *conn, msg string) {
	if msg == "" {
		return
	}
	switch msg[0] {
	case '3': // engine pong
		return
	case '4': // engine message
		b.handleSocketPayload(c, msg[1:])
	case '1':
		c.close()
	}
}

type connectAuth struct {
	Token     string `json:"token"`
	SessionID string `json:"sessionId"`
}

func (b *Backend) handleSocketPayload(c *conn, payload string) {
	if payload == "" {
		return
	}
	switch payload[0] {
	case '0':
		b.handleConnect(c, payload[1:])
	case '2':
		b.handleEvent(c, payload[1:])
	}
}

func (b *Backend) handleConnect(c *conn, rest string) {
	if c.connected.Load() {
		return
	}

	var auth connectAuth
	if err := json.Unmarshal([]byte(rest), &auth); err != nil || auth.Token == "" {
		_ = c.writeText(`44{"message":"Missing auth"}`)
		c.close()
		return
	}
	claims, err := VerifyToken(auth.Token, b.tokenCfg)
	if err != nil {
		_ = c.writeText(`44{"message":"Invalid authentication token"}`)
		c.close()
		return
	}
	if auth.SessionID != "" {
		b.mu.RLock()
		_, ok := b.sessions[auth.SessionID]
		b.mu.RUnlock()
		if !ok {
			_ = c.writeText(`44{"message":"Session not found"}`)
			c.close()
			return
		}
	}

	c.userID = claims.UserID
	c.sessionID = auth.SessionID
	c.connected.Store(true)
	_ = c.writeText(`40{"sid":"` + c.sid + `"}`)
}

func (b *Backend) handleEvent(c *conn, rest string) {
	if !c.connected.Load() {
		return
	}

	ackID, rest := splitAckID(rest)
	var arr []json.RawMessage
	if err := json.Unmarshal([]byte(rest), &arr); err != nil || len(arr) == 0 {
		return
	}
	var event string
	if err := json.Unmarshal(arr[0], &event); err != nil {
		return
	}
	args := arr[1:]

	switch event {
	case "ping":
		if ackID != nil {
			_ = c.writeText("43" + strconv.Itoa(*ackID) + "[]")
		}

	case "create_room":
		var body createRoomBody
		if len(args) < 1 || json.Unmarshal(args[0], &body) != nil || body.Name == "" {
			return
		}
		b.createRoom(c.sessionID, c.userID, body)

	case "join_room":
		var body struct {
			RoomID      string `json:"roomId"`
			Participant struct {
				ID    string `json:"id"`
				Alias string `json:"alias"`
			} `json:"participant"`
		}
		if len(args) < 1 || json.Unmarshal(args[0], &body) != nil || body.RoomID == "" {
			return
		}
		b.joinRoom(c.sessionID, body.RoomID, c.userID, body.Participant.Alias)

	case "leave_room":
		var body struct {
			RoomID string `json:"roomId"`
		}
		if len(args) < 1 || json.Unmarshal(args[0], &body) != nil || body.RoomID == "" {
			return
		}
		b.leaveRoom(c.sessionID, body.RoomID, c.userID)

	case "typing_start", "typing_stop":
		// Presence-adjacent signals, not part of room state.
	}
}

func splitAckID(s string) (*int, string) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return nil, s
	}
	v, err := strconv.Atoi(s[:i])
	if err != nil {
		return nil, s
	}
	return &v, s[i:]
}

func (b *Backend) broadcast(sessionID, event string, payload any) {
	data, err := json.Marshal([]any{event, payload})
	if err != nil {
		return
	}
	msg := "42" + string(data)

	b.mu.RLock()
	conns := make([]*conn, 0, len(b.conns))
	for c := range b.conns {
		if c.connected.Load() && c.sessionID == sessionID {
			conns = append(conns, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range conns {
		if err := c.writeText(msg); err != nil {
			c.close()
		}
	}
}
