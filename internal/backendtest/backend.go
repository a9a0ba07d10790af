// Package backendtest hosts an in-process backend implementing the session
// and breakout-room contract: the REST snapshot endpoints plus the Socket.IO
// event fan-out. Tests run the coordinator against it instead of a mock.
package backendtest

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"sanctuary-client/internal/model"
)

type sessionState struct {
	session model.Session
	rooms   map[string]*model.BreakoutRoom
	order   []string
}

type Backend struct {
	tokenCfg TokenConfig

	mu       sync.RWMutex
	sessions map[string]*sessionState
	conns    map[*conn]struct{}
}

func New() *Backend {
	return &Backend{
		tokenCfg: DefaultTokenConfig(),
		sessions: make(map[string]*sessionState),
		conns:    make(map[*conn]struct{}),
	}
}

func (b *Backend) Token(userID string) (string, error) {
	return MintToken(userID, b.tokenCfg)
}

// AddSession seeds one session the coordinator can operate against.
func (b *Backend) AddSession(session model.Session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions[session.ID] = &sessionState{
		session: session,
		rooms:   make(map[string]*model.BreakoutRoom),
	}
}

// Rooms returns the current room list for assertions.
func (b *Backend) Rooms(sessionID string) []model.BreakoutRoom {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st := b.sessions[sessionID]
	if st == nil {
		return nil
	}
	out := make([]model.BreakoutRoom, 0, len(st.order))
	for _, id := range st.order {
		out = append(out, *st.rooms[id])
	}
	return out
}

func (b *Backend) Router() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	protected := r.Group("/v1")
	protected.Use(b.requireAuth())
	protected.GET("/sessions/:id", b.getSession)
	protected.GET("/sessions/:id/breakout-rooms", b.listRooms)
	protected.POST("/sessions/:id/breakout-rooms", b.createRoomREST)
	protected.POST("/sessions/:id/breakout-rooms/auto-assign", b.autoAssign)
	protected.POST("/sessions/:id/breakout-rooms/:roomId/leave", b.leaveRoomREST)
	protected.DELETE("/sessions/:id/breakout-rooms/:roomId", b.closeRoomREST)

	r.GET("/socket.io/", b.serveSocket)

	return r
}

func (b *Backend) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("x-auth-token")
		if token == "" {
			parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
				token = parts[1]
			}
		}
		claims, err := VerifyToken(token, b.tokenCfg)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
			c.Abort()
			return
		}
		c.Set("userID", claims.UserID)
		c.Next()
	}
}

func userID(c *gin.Context) string {
	v, _ := c.Get("userID")
	s, _ := v.(string)
	return s
}

func (b *Backend) getSession(c *gin.Context) {
	b.mu.RLock()
	st := b.sessions[c.Param("id")]
	b.mu.RUnlock()
	if st == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sessionJSON(st.session)})
}

func (b *Backend) listRooms(c *gin.Context) {
	b.mu.RLock()
	st := b.sessions[c.Param("id")]
	if st == nil {
		b.mu.RUnlock()
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	rooms := make([]gin.H, 0, len(st.order))
	for _, id := range st.order {
		rooms = append(rooms, roomJSON(*st.rooms[id]))
	}
	b.mu.RUnlock()
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

type createRoomBody struct {
	Name            string `json:"name"`
	Topic           string `json:"topic"`
	MaxParticipants int    `json:"maxParticipants"`
	DurationMinutes int    `json:"durationMinutes"`
	FacilitatorID   string `json:"facilitatorId"`
}

func (b *Backend) createRoomREST(c *gin.Context) {
	var body createRoomBody
	if err := c.ShouldBindJSON(&body); err != nil || body.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	room, ok := b.createRoom(c.Param("id"), userID(c), body)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": roomJSON(room)})
}

func (b *Backend) createRoom(sessionID, creatorID string, body createRoomBody) (model.BreakoutRoom, bool) {
	b.mu.Lock()
	st := b.sessions[sessionID]
	if st == nil {
		b.mu.Unlock()
		return model.BreakoutRoom{}, false
	}

	now := time.Now().UnixMilli()
	room := model.BreakoutRoom{
		ID:              uuid.NewString(),
		Name:            body.Name,
		Topic:           body.Topic,
		CreatorID:       creatorID,
		MaxParticipants: body.MaxParticipants,
		Status:          model.RoomStatusWaiting,
		Channel:         model.ChannelRef{Name: "sanctuary-" + uuid.NewString(), Token: uuid.NewString()},
		CreatedAt:       now,
	}
	if body.DurationMinutes > 0 {
		room.ClosesAt = now + int64(body.DurationMinutes)*60_000
	}
	if p, ok := st.session.Participant(creatorID); ok {
		room.CreatorAlias = p.Alias
	}
	st.rooms[room.ID] = &room
	st.order = append(st.order, room.ID)
	b.mu.Unlock()

	b.broadcast(sessionID, "room_created", roomJSON(room))
	return room, true
}

func (b *Backend) joinRoom(sessionID, roomID, uid, alias string) {
	b.mu.Lock()
	st := b.sessions[sessionID]
	if st == nil {
		b.mu.Unlock()
		return
	}
	room := st.rooms[roomID]
	if room == nil || room.Status == model.RoomStatusEnded {
		b.mu.Unlock()
		return
	}
	if room.MaxParticipants > 0 && len(room.Participants) >= room.MaxParticipants {
		b.mu.Unlock()
		return
	}
	for _, p := range room.Participants {
		if p.ID == uid {
			b.mu.Unlock()
			return
		}
	}
	room.Participants = append(room.Participants, model.RoomParticipant{ID: uid, Alias: alias})
	room.Status = model.RoomStatusActive
	b.mu.Unlock()

	// Deliberately sparse payload: real deployments do not reliably embed
	// the membership list, clients refetch.
	b.broadcast(sessionID, "room_joined", gin.H{"roomId": roomID, "userId": uid})
}

func (b *Backend) leaveRoom(sessionID, roomID, uid string) {
	b.mu.Lock()
	st := b.sessions[sessionID]
	if st == nil {
		b.mu.Unlock()
		return
	}
	room := st.rooms[roomID]
	if room == nil {
		b.mu.Unlock()
		return
	}
	for i, p := range room.Participants {
		if p.ID == uid {
			room.Participants = append(room.Participants[:i], room.Participants[i+1:]...)
			break
		}
	}
	b.mu.Unlock()

	b.broadcast(sessionID, "room_left", gin.H{"roomId": roomID, "userId": uid})
}

func (b *Backend) leaveRoomREST(c *gin.Context) {
	b.leaveRoom(c.Param("id"), c.Param("roomId"), userID(c))
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (b *Backend) closeRoomREST(c *gin.Context) {
	sessionID := c.Param("id")
	roomID := c.Param("roomId")

	b.mu.Lock()
	st := b.sessions[sessionID]
	if st == nil {
		b.mu.Unlock()
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	room := st.rooms[roomID]
	if room == nil {
		b.mu.Unlock()
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}
	room.Status = model.RoomStatusEnded
	delete(st.rooms, roomID)
	for i, id := range st.order {
		if id == roomID {
			st.order = append(st.order[:i], st.order[i+1:]...)
			break
		}
	}
	b.mu.Unlock()

	b.broadcast(sessionID, "room_closed", gin.H{"roomId": roomID})
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// autoAssign distributes roster participants not yet in any room across the
// joinable rooms: round-robin in creation order, each room filled up to its
// capacity before moving on.
func (b *Backend) autoAssign(c *gin.Context) {
	sessionID := c.Param("id")

	b.mu.Lock()
	st := b.sessions[sessionID]
	if st == nil {
		b.mu.Unlock()
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	assigned := make(map[string]bool)
	for _, id := range st.order {
		for _, p := range st.rooms[id].Participants {
			assigned[p.ID] = true
		}
	}

	var unassigned []model.Participant
	for _, p := range st.session.Participants {
		if !assigned[p.ID] {
			unassigned = append(unassigned, p)
		}
	}

	next := 0
	for _, id := range st.order {
		room := st.rooms[id]
		if room.Status == model.RoomStatusEnded {
			continue
		}
		for next < len(unassigned) {
			if room.MaxParticipants > 0 && len(room.Participants) >= room.MaxParticipants {
				break
			}
			p := unassigned[next]
			room.Participants = append(room.Participants, model.RoomParticipant{ID: p.ID, Alias: p.Alias})
			room.Status = model.RoomStatusActive
			next++
		}
	}
	b.mu.Unlock()

	b.broadcast(sessionID, "auto_assignment_completed", gin.H{"assigned": next})
	c.JSON(http.StatusOK, gin.H{"success": true, "assigned": next})
}

func sessionJSON(s model.Session) gin.H {
	participants := make([]gin.H, 0, len(s.Participants))
	for _, p := range s.Participants {
		participants = append(participants, gin.H{
			"id":               p.ID,
			"alias":            p.Alias,
			"isHost":           p.IsHost,
			"isModerator":      p.IsModerator,
			"connectionStatus": string(p.Connection),
			"muted":            p.Muted,
			"handRaised":       p.HandRaised,
		})
	}
	return gin.H{
		"id":           s.ID,
		"hostId":       s.HostID,
		"participants": participants,
		"capacity":     s.Capacity,
		"flags": gin.H{
			"moderation":       s.Flags.Moderation,
			"recording":        s.Flags.Recording,
			"anonymousAllowed": s.Flags.AnonymousAllowed,
		},
		"createdAt": s.CreatedAt,
		"updatedAt": s.UpdatedAt,
	}
}

func roomJSON(r model.BreakoutRoom) gin.H {
	participants := make([]gin.H, 0, len(r.Participants))
	for _, p := range r.Participants {
		participants = append(participants, gin.H{"id": p.ID, "alias": p.Alias})
	}
	return gin.H{
		"id":              r.ID,
		"name":            r.Name,
		"topic":           r.Topic,
		"creatorId":       r.CreatorID,
		"creatorAlias":    r.CreatorAlias,
		"maxParticipants": r.MaxParticipants,
		"participants":    participants,
		"status":          string(r.Status),
		"channelName":     r.Channel.Name,
		"channelToken":    r.Channel.Token,
		"createdAt":       r.CreatedAt,
		"closesAt":        r.ClosesAt,
	}
}
