package rooms

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"sanctuary-client/internal/auth"
	"sanctuary-client/internal/model"
	"sanctuary-client/internal/permission"
	"sanctuary-client/internal/presence"
	"sanctuary-client/internal/rest"
	"sanctuary-client/internal/socketio"
)

// Emitter is the slice of the socket client the controller uses.
type Emitter interface {
	Emit(event string, payload any) error
	On(event string, handler socketio.Handler)
	Off(event string)
	Connected() bool
}

// API is the slice of the REST client the controller uses.
type API interface {
	Session(ctx context.Context, sessionID string) (model.Session, error)
	ListRooms(ctx context.Context, sessionID string) ([]model.BreakoutRoom, error)
	CreateRoom(ctx context.Context, sessionID string, body rest.CreateRoomBody) (model.BreakoutRoom, error)
	LeaveRoom(ctx context.Context, sessionID, roomID string) error
	CloseRoom(ctx context.Context, sessionID, roomID string) error
	AutoAssign(ctx context.Context, sessionID string) error
}

type Config struct {
	SessionID string
	API       API
	Socket    Emitter
	Creds     *auth.Store
	Resolver  *permission.Resolver
	Logger    *slog.Logger

	JoinTimeout   time.Duration
	CreateTimeout time.Duration
}

type joinTxn struct {
	roomID string
	done   chan error
}

type createTxn struct {
	name string
	done chan model.BreakoutRoom
}

// Controller is the command surface for breakout-room operations. Commands
// are gated by the permission resolver, applied optimistically where the
// spec of the operation allows it, and reconciled against server broadcasts.
// Every user-initiated mutation is a pending transaction with a bounded
// timer: it confirms or rolls back, never dangles.
type Controller struct {
	log       *slog.Logger
	sessionID string

	api      API
	socket   Emitter
	creds    *auth.Store
	resolver *permission.Resolver
	store    *Store
	presence *presence.Tracker

	joinTimeout   time.Duration
	createTimeout time.Duration

	closed atomic.Bool

	mu            sync.Mutex
	currentRoomID string
	pendingJoin   *joinTxn
	pendingCreate *createTxn
}

func NewController(cfg Config) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = 5 * time.Second
	}
	if cfg.CreateTimeout <= 0 {
		cfg.CreateTimeout = 10 * time.Second
	}
	return &Controller{
		log:           cfg.Logger,
		sessionID:     cfg.SessionID,
		api:           cfg.API,
		socket:        cfg.Socket,
		creds:         cfg.Creds,
		resolver:      cfg.Resolver,
		store:         NewStore(),
		presence:      presence.NewTracker(),
		joinTimeout:   cfg.JoinTimeout,
		createTimeout: cfg.CreateTimeout,
	}
}

func (c *Controller) Store() *Store               { return c.store }
func (c *Controller) Presence() *presence.Tracker { return c.presence }

func (c *Controller) CurrentRoomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentRoomID
}

var controllerEvents = []string{
	model.EventRoomCreated,
	model.EventRoomClosed,
	model.EventRoomJoined,
	model.EventRoomLeft,
	model.EventAutoAssignmentCompleted,
	model.EventParticipantJoined,
	model.EventParticipantLeft,
}

// Bind subscribes the controller to the broadcast events it reconciles
// against. Call once after construction; Close unsubscribes.
func (c *Controller) Bind() {
	c.socket.On(model.EventRoomCreated, c.onRoomCreated)
	c.socket.On(model.EventRoomClosed, c.onRoomClosed)
	c.socket.On(model.EventRoomJoined, c.onMembershipChanged)
	c.socket.On(model.EventRoomLeft, c.onMembershipChanged)
	c.socket.On(model.EventAutoAssignmentCompleted, c.onMembershipChanged)
	c.socket.On(model.EventParticipantJoined, c.onRosterChanged)
	c.socket.On(model.EventParticipantLeft, c.onRosterChanged)
}

// Close tears the controller down: handlers are unsubscribed so no event is
// delivered into a dead view, and in-flight transactions fail. Late REST
// continuations are discarded by the liveness guard.
func (c *Controller) Close() {
	if c.closed.Swap(true) {
		return
	}
	for _, event := range controllerEvents {
		c.socket.Off(event)
	}

	c.mu.Lock()
	if c.pendingJoin != nil {
		c.pendingJoin.done <- ErrClosed
		c.pendingJoin = nil
	}
	c.pendingCreate = nil
	c.mu.Unlock()
}

// Refresh replaces the room store from a REST snapshot. The snapshot is the
// whole truth: rooms it omits are removed.
func (c *Controller) Refresh(ctx context.Context) error {
	rooms, err := c.api.ListRooms(ctx, c.sessionID)
	if err != nil {
		return err
	}
	if c.closed.Load() {
		return ErrClosed
	}
	c.store.Replace(rooms)
	c.reconcilePending()
	return nil
}

// RefreshSession replaces the presence roster from a REST snapshot.
func (c *Controller) RefreshSession(ctx context.Context) error {
	session, err := c.api.Session(ctx, c.sessionID)
	if err != nil {
		return err
	}
	if c.closed.Load() {
		return ErrClosed
	}
	c.presence.Replace(session)
	return nil
}

// Resync re-establishes the baseline after a (re)connect: both snapshots are
// refetched and, if we were in a room, the join command is re-emitted so the
// server restores our membership. The socket client never does this on its
// own because it lacks the session context.
func (c *Controller) Resync(ctx context.Context) {
	if err := c.RefreshSession(ctx); err != nil {
		c.log.Warn("session resync failed", "err", err)
	}
	if err := c.Refresh(ctx); err != nil {
		c.log.Warn("room resync failed", "err", err)
	}
	if roomID := c.CurrentRoomID(); roomID != "" {
		if err := c.emitJoin(roomID); err != nil {
			c.log.Warn("rejoin after reconnect failed", "roomId", roomID, "err", err)
		}
	}
}

type CreateRoomRequest struct {
	Name            string
	Topic           string
	MaxParticipants int
	DurationMinutes int
	FacilitatorID   string
	Flags           map[string]bool
}

// CreateRoom asks the server to create a room. There is no optimistic insert
// because room ids are server-assigned; the call stays pending until the
// room_created broadcast arrives or the timer fires. Precondition failures
// are rejected locally with no network traffic.
func (c *Controller) CreateRoom(ctx context.Context, req CreateRoomRequest) (model.BreakoutRoom, error) {
	if c.closed.Load() {
		return model.BreakoutRoom{}, ErrClosed
	}
	if req.Name == "" {
		return model.BreakoutRoom{}, ErrInvalidName
	}
	if req.MaxParticipants < 2 || req.MaxParticipants > 20 {
		return model.BreakoutRoom{}, ErrInvalidCapacity
	}
	if req.FacilitatorID != "" && !c.presence.IsParticipant(req.FacilitatorID) {
		return model.BreakoutRoom{}, ErrUnknownFacilitator
	}

	grant := c.resolver.Resolve(c.presence.Session())
	if !grant.Has(model.PermCreateRoom) {
		return model.BreakoutRoom{}, ErrPermissionDenied
	}
	if grant.Degraded {
		c.log.Warn("creating room on a degraded-confidence grant", "session", c.sessionID)
	}

	body := rest.CreateRoomBody{
		Name:            req.Name,
		Topic:           req.Topic,
		MaxParticipants: req.MaxParticipants,
		DurationMinutes: req.DurationMinutes,
		FacilitatorID:   req.FacilitatorID,
	}

	if !c.socket.Connected() {
		// REST fallback: the response is the confirmation.
		room, err := c.api.CreateRoom(ctx, c.sessionID, body)
		if err != nil {
			return model.BreakoutRoom{}, err
		}
		if c.closed.Load() {
			return model.BreakoutRoom{}, ErrClosed
		}
		c.store.ApplyCreated(room)
		return room, nil
	}

	txn := &createTxn{name: req.Name, done: make(chan model.BreakoutRoom, 1)}
	c.mu.Lock()
	if c.pendingCreate != nil {
		c.mu.Unlock()
		return model.BreakoutRoom{}, ErrCreatePending
	}
	c.pendingCreate = txn
	c.mu.Unlock()

	payload := map[string]any{
		"sessionId":       c.sessionID,
		"name":            req.Name,
		"topic":           req.Topic,
		"maxParticipants": req.MaxParticipants,
		"durationMinutes": req.DurationMinutes,
		"facilitatorId":   req.FacilitatorID,
		"flags":           req.Flags,
	}
	if err := c.socket.Emit(model.EventCreateRoom, payload); err != nil {
		c.clearPendingCreate(txn)
		return model.BreakoutRoom{}, err
	}

	select {
	case room := <-txn.done:
		return room, nil
	case <-time.After(c.createTimeout):
		c.clearPendingCreate(txn)
		return model.BreakoutRoom{}, ErrCreateTimeout
	case <-ctx.Done():
		c.clearPendingCreate(txn)
		return model.BreakoutRoom{}, ctx.Err()
	}
}

// JoinRoom optimistically marks the caller as in the room, emits the join
// command and waits a bounded time for the membership to show up in an
// authoritative snapshot. On timeout the optimistic marker rolls back rather
// than dangling in a phantom pending state. Leaving the current room is
// never implicit: joining while in another room is rejected.
func (c *Controller) JoinRoom(ctx context.Context, roomID string) error {
	if c.closed.Load() {
		return ErrClosed
	}

	grant := c.resolver.Resolve(c.presence.Session())
	if grant.Role == model.RoleNone {
		return ErrPermissionDenied
	}

	room, ok := c.store.Get(roomID)
	if !ok {
		return ErrRoomNotFound
	}
	if !room.Joinable() {
		return ErrRoomNotActive
	}
	if room.Full() {
		return ErrRoomFull
	}

	txn := &joinTxn{roomID: roomID, done: make(chan error, 1)}
	c.mu.Lock()
	if c.currentRoomID != "" && c.currentRoomID != roomID {
		c.mu.Unlock()
		return ErrAlreadyInRoom
	}
	if c.pendingJoin != nil {
		c.mu.Unlock()
		return ErrJoinPending
	}
	c.currentRoomID = roomID
	c.pendingJoin = txn
	c.mu.Unlock()

	if err := c.emitJoin(roomID); err != nil {
		c.rollbackJoin(txn)
		return err
	}

	select {
	case err := <-txn.done:
		if err != nil {
			c.rollbackJoin(txn)
		}
		return err
	case <-time.After(c.joinTimeout):
		c.rollbackJoin(txn)
		return ErrJoinTimeout
	case <-ctx.Done():
		c.rollbackJoin(txn)
		return ctx.Err()
	}
}

func (c *Controller) emitJoin(roomID string) error {
	ident, ok := c.creds.Identity()
	if !ok {
		return ErrPermissionDenied
	}
	alias := ""
	if p, ok := c.presence.Session().Participant(ident.UserID); ok {
		alias = p.Alias
	}
	return c.socket.Emit(model.EventJoinRoom, map[string]any{
		"sessionId": c.sessionID,
		"roomId":    roomID,
		"participant": map[string]any{
			"id":    ident.UserID,
			"alias": alias,
		},
	})
}

func (c *Controller) rollbackJoin(txn *joinTxn) {
	c.mu.Lock()
	if c.pendingJoin == txn {
		c.pendingJoin = nil
		if c.currentRoomID == txn.roomID {
			c.currentRoomID = ""
		}
	}
	c.mu.Unlock()
}

// LeaveRoom clears the local membership marker immediately and tells the
// server best effort, falling back from socket to REST. The store is
// refreshed regardless of the command outcome so a failed leave cannot
// strand the view in a stale membership.
func (c *Controller) LeaveRoom(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.mu.Lock()
	roomID := c.currentRoomID
	c.currentRoomID = ""
	if c.pendingJoin != nil {
		c.pendingJoin.done <- ErrClosed
		c.pendingJoin = nil
	}
	c.mu.Unlock()
	if roomID == "" {
		return ErrNotInRoom
	}

	if err := c.socket.Emit(model.EventLeaveRoom, map[string]any{
		"sessionId": c.sessionID,
		"roomId":    roomID,
	}); err != nil {
		if restErr := c.api.LeaveRoom(ctx, c.sessionID, roomID); restErr != nil {
			c.log.Warn("leave command failed", "roomId", roomID, "err", restErr)
		}
	}

	if err := c.Refresh(ctx); err != nil {
		c.log.Warn("refresh after leave failed", "err", err)
	}
	return nil
}

// AutoAssign asks the server to distribute unassigned session participants
// across the existing rooms (round-robin in creation order, capped by
// capacity — computed server side). Requires at least one room and an
// elevated grant; rejected locally otherwise.
func (c *Controller) AutoAssign(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if c.store.Len() == 0 {
		return ErrNoRooms
	}

	grant := c.resolver.Resolve(c.presence.Session())
	if !grant.Has(model.PermCreateRoom) && !grant.Has(model.PermModerate) {
		return ErrPermissionDenied
	}

	return c.api.AutoAssign(ctx, c.sessionID)
}

// SetTyping signals the typing indicator, best effort: it is presence
// decoration, so a send failure is returned but never retried and nothing is
// tracked locally.
func (c *Controller) SetTyping(active bool) error {
	if c.closed.Load() {
		return ErrClosed
	}
	ident, ok := c.creds.Identity()
	if !ok {
		return ErrPermissionDenied
	}

	event := model.EventTypingStop
	if active {
		event = model.EventTypingStart
	}
	return c.socket.Emit(event, map[string]any{
		"sessionId": c.sessionID,
		"roomId":    c.CurrentRoomID(),
		"userId":    ident.UserID,
	})
}

// CloseRoom asks the server to tear a room down. Closing affects other
// users' live sessions, so there is no optimistic removal: the store drops
// the room only when the room_closed broadcast confirms it.
func (c *Controller) CloseRoom(ctx context.Context, roomID string) error {
	if c.closed.Load() {
		return ErrClosed
	}

	grant := c.resolver.Resolve(c.presence.Session())
	if !grant.Has(model.PermModerate) {
		return ErrPermissionDenied
	}
	if _, ok := c.store.Get(roomID); !ok {
		return ErrRoomNotFound
	}

	return c.api.CloseRoom(ctx, c.sessionID, roomID)
}

func (c *Controller) clearPendingCreate(txn *createTxn) {
	c.mu.Lock()
	if c.pendingCreate == txn {
		c.pendingCreate = nil
	}
	c.mu.Unlock()
}

// --- inbound event reconciliation ---

type roomClosedPayload struct {
	RoomID string `json:"roomId"`
	ID     string `json:"id"`
}

func (c *Controller) onRoomCreated(args []json.RawMessage) {
	if c.closed.Load() {
		return
	}
	var dto rest.RoomDTO
	if len(args) < 1 || json.Unmarshal(args[0], &dto) != nil || dto.ID == "" {
		// Unparseable payload: fall back to the authoritative snapshot.
		go c.refreshAsync()
		return
	}
	room := dto.ToModel()
	c.store.ApplyCreated(room)

	c.mu.Lock()
	txn := c.pendingCreate
	if txn != nil && txn.name == room.Name {
		c.pendingCreate = nil
		txn.done <- room
	}
	c.mu.Unlock()
}

func (c *Controller) onRoomClosed(args []json.RawMessage) {
	if c.closed.Load() {
		return
	}
	var p roomClosedPayload
	if len(args) < 1 || json.Unmarshal(args[0], &p) != nil {
		go c.refreshAsync()
		return
	}
	roomID := p.RoomID
	if roomID == "" {
		roomID = p.ID
	}
	if roomID == "" {
		go c.refreshAsync()
		return
	}

	c.store.ApplyClosed(roomID)

	c.mu.Lock()
	if c.pendingJoin != nil && c.pendingJoin.roomID == roomID {
		c.pendingJoin.done <- ErrRoomClosedWhilePending
		c.pendingJoin = nil
	}
	if c.currentRoomID == roomID {
		c.currentRoomID = ""
	}
	c.mu.Unlock()
}

// onMembershipChanged covers room_joined, room_left and
// auto_assignment_completed. Their payloads do not reliably carry the new
// membership, so the event is a trigger to refetch, not a delta to apply.
func (c *Controller) onMembershipChanged(args []json.RawMessage) {
	if c.closed.Load() {
		return
	}
	go c.refreshAsync()
}

func (c *Controller) onRosterChanged(args []json.RawMessage) {
	if c.closed.Load() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.RefreshSession(ctx); err != nil && !c.closed.Load() {
			c.log.Warn("roster refresh failed", "err", err)
		}
	}()
}

func (c *Controller) refreshAsync() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.Refresh(ctx); err != nil && !c.closed.Load() {
		c.log.Warn("room refresh failed", "err", err)
	}
}

// reconcilePending runs after every snapshot replace: a pending join
// confirms once the authoritative membership contains us, and a confirmed
// marker for a room the snapshot no longer knows is rolled back.
func (c *Controller) reconcilePending() {
	ident, ok := c.creds.Identity()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pendingJoin != nil && ok {
		if room, found := c.store.Get(c.pendingJoin.roomID); found {
			for _, p := range room.Participants {
				if p.ID == ident.UserID {
					c.pendingJoin.done <- nil
					c.pendingJoin = nil
					break
				}
			}
		}
	}

	if c.currentRoomID != "" && c.pendingJoin == nil {
		if _, found := c.store.Get(c.currentRoomID); !found {
			c.currentRoomID = ""
		}
	}
}
