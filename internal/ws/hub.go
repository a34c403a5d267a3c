package ws

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"chat-core/internal/observability"
)

// ConnectionIndex lists a user's live connection ids.
type ConnectionIndex interface {
	ConnectionsOf(userID string) []string
}

// ConversationLister loads the conversations a user belongs to.
type ConversationLister interface {
	ListConversationIDsForUser(ctx context.Context, userID string) ([]string, error)
}

// Hub tracks live connections and the rooms they are joined to. Targets are
// snapshotted under the read lock and written to outside it.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	rooms    map[string]map[string]struct{}
	joined   map[string]map[string]struct{}
	presence ConnectionIndex
	lister   ConversationLister
	logger   *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(presence ConnectionIndex, lister ConversationLister, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:  make(map[string]*Client),
		rooms:    make(map[string]map[string]struct{}),
		joined:   make(map[string]map[string]struct{}),
		presence: presence,
		lister:   lister,
		logger:   logger.With(zap.String("component", "hub")),
	}
}

// Register adds a client to the connection table.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.session.ConnID] = c
	h.joined[c.session.ConnID] = make(map[string]struct{})
}

// Unregister removes a client and leaves all of its rooms. Safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	connID := c.session.ConnID
	if current, ok := h.clients[connID]; !ok || current != c {
		return
	}
	for room := range h.joined[connID] {
		h.leaveLocked(connID, room)
	}
	delete(h.joined, connID)
	delete(h.clients, connID)
}

// JoinAllConversations joins the connection to every conversation of the
// user and returns how many rooms were joined. A load failure leaves the
// connection with no rooms.
func (h *Hub) JoinAllConversations(ctx context.Context, connID, userID string) int {
	if h.lister == nil {
		return 0
	}
	ids, err := h.lister.ListConversationIDsForUser(ctx, userID)
	if err != nil {
		h.logger.Warn("load conversations failed", zap.String("conn_id", connID), zap.String("user_id", userID), zap.Error(err))
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[connID]; !ok {
		return 0
	}
	for _, room := range ids {
		h.joinLocked(connID, room)
	}
	return len(ids)
}

// Join adds the connection to a room. Unknown connections are ignored.
func (h *Hub) Join(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[connID]; ok {
		h.joinLocked(connID, room)
	}
}

// Leave removes the connection from a room.
func (h *Hub) Leave(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(connID, room)
}

// JoinUser joins every live connection of the user to the room.
func (h *Hub) JoinUser(userID, room string) {
	conns := h.connectionsOf(userID)
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, connID := range conns {
		if _, ok := h.clients[connID]; ok {
			h.joinLocked(connID, room)
		}
	}
}

// LeaveUser removes every live connection of the user from the room.
func (h *Hub) LeaveUser(userID, room string) {
	conns := h.connectionsOf(userID)
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, connID := range conns {
		h.leaveLocked(connID, room)
	}
}

// InRoom reports whether the connection is joined to the room.
func (h *Hub) InRoom(connID, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[room][connID]
	return ok
}

// Members returns the sorted connection ids joined to the room.
func (h *Hub) Members(room string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.rooms[room]))
	for connID := range h.rooms[room] {
		out = append(out, connID)
	}
	sort.Strings(out)
	return out
}

// ClientCount reports the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) joinLocked(connID, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		h.rooms[room] = members
	}
	members[connID] = struct{}{}
	if rooms, ok := h.joined[connID]; ok {
		rooms[room] = struct{}{}
	}
}

func (h *Hub) leaveLocked(connID, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	if rooms, ok := h.joined[connID]; ok {
		delete(rooms, room)
	}
}

func (h *Hub) connectionsOf(userID string) []string {
	if h.presence != nil {
		return h.presence.ConnectionsOf(userID)
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []string
	for connID, c := range h.clients {
		if c.session.UserID == userID {
			out = append(out, connID)
		}
	}
	return out
}

// Emit delivers to every connection in the room.
func (h *Hub) Emit(room, event string, payload interface{}) {
	h.EmitExcept(room, "", event, payload)
}

// EmitExcept delivers to every connection in the room but one.
func (h *Hub) EmitExcept(room, exceptConn, event string, payload interface{}) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[room]))
	for connID := range h.rooms[room] {
		if connID == exceptConn {
			continue
		}
		if c, ok := h.clients[connID]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	h.deliver(targets, event, payload)
}

// EmitToUser delivers to every live connection of the user.
func (h *Hub) EmitToUser(userID, event string, payload interface{}) {
	h.EmitToUserExcept(userID, "", event, payload)
}

// EmitToUserExcept delivers to the user's connections except one.
func (h *Hub) EmitToUserExcept(userID, exceptConn, event string, payload interface{}) {
	conns := h.connectionsOf(userID)
	h.mu.RLock()
	targets := make([]*Client, 0, len(conns))
	for _, connID := range conns {
		if connID == exceptConn {
			continue
		}
		if c, ok := h.clients[connID]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	h.deliver(targets, event, payload)
}

// EmitToConn delivers to a single connection.
func (h *Hub) EmitToConn(connID, event string, payload interface{}) {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if ok {
		h.deliver([]*Client{c}, event, payload)
	}
}

// EmitToAll delivers to every live connection.
func (h *Hub) EmitToAll(event string, payload interface{}) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	h.deliver(targets, event, payload)
}

// Fanout delivers to the room and to the personal channel of each listed
// user, at most once per connection. Connections already in the room never
// get the personal copy.
func (h *Hub) Fanout(room string, userIDs []string, event string, payload interface{}) {
	var personal []string
	for _, userID := range userIDs {
		personal = append(personal, h.connectionsOf(userID)...)
	}

	h.mu.RLock()
	seen := make(map[string]struct{}, len(h.rooms[room])+len(personal))
	targets := make([]*Client, 0, len(personal)+len(h.rooms[room]))
	add := func(connID string) {
		if _, dup := seen[connID]; dup {
			return
		}
		seen[connID] = struct{}{}
		if c, ok := h.clients[connID]; ok {
			targets = append(targets, c)
		}
	}
	for connID := range h.rooms[room] {
		add(connID)
	}
	for _, connID := range personal {
		add(connID)
	}
	h.mu.RUnlock()
	h.deliver(targets, event, payload)
}

func (h *Hub) deliver(targets []*Client, event string, payload interface{}) {
	if len(targets) == 0 {
		return
	}
	frame, err := encodeEvent(event, payload)
	if err != nil {
		h.logger.Error("encode event failed", zap.String("event", event), zap.Error(err))
		return
	}
	for _, c := range targets {
		if !c.enqueue(frame) {
			h.drop(c)
		}
	}
}

// drop disconnects a client whose send queue overflowed. The read pump then
// runs the normal disconnect path.
func (h *Hub) drop(c *Client) {
	if !c.close() {
		return
	}
	h.logger.Warn("send queue full, dropping client", zap.String("conn_id", c.session.ConnID), zap.String("user_id", c.session.UserID))
	observability.IncWSDropped()
	h.publishWSError(c, errSendQueueFull)
}

func (h *Hub) publishWSError(c *Client, err error) {
	publishWSEvent(context.Background(), c.info, "ws_error", err.Error())
}
