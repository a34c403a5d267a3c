package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"chat-core/internal/models"
)

// Emission is one broadcast captured by RecordingHub.
type Emission struct {
	Kind    string
	Target  string
	Except  string
	Users   []string
	Event   string
	Payload interface{}
}

// RecordingHub records broadcasts and room membership changes instead of
// writing to sockets.
type RecordingHub struct {
	mu        sync.Mutex
	emissions []Emission
	rooms     map[string]map[string]struct{}
	joinedAll []string
	joinCount int
}

// NewRecordingHub constructs an empty RecordingHub. JoinAllConversations
// reports joinCount rooms.
func NewRecordingHub(joinCount int) *RecordingHub {
	return &RecordingHub{rooms: map[string]map[string]struct{}{}, joinCount: joinCount}
}

func (h *RecordingHub) record(e Emission) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.emissions = append(h.emissions, e)
}

func (h *RecordingHub) Emit(room, event string, payload interface{}) {
	h.record(Emission{Kind: "room", Target: room, Event: event, Payload: payload})
}

func (h *RecordingHub) EmitExcept(room, exceptConn, event string, payload interface{}) {
	h.record(Emission{Kind: "room", Target: room, Except: exceptConn, Event: event, Payload: payload})
}

func (h *RecordingHub) EmitToUser(userID, event string, payload interface{}) {
	h.record(Emission{Kind: "user", Target: userID, Event: event, Payload: payload})
}

func (h *RecordingHub) EmitToUserExcept(userID, exceptConn, event string, payload interface{}) {
	h.record(Emission{Kind: "user", Target: userID, Except: exceptConn, Event: event, Payload: payload})
}

func (h *RecordingHub) EmitToConn(connID, event string, payload interface{}) {
	h.record(Emission{Kind: "conn", Target: connID, Event: event, Payload: payload})
}

func (h *RecordingHub) EmitToAll(event string, payload interface{}) {
	h.record(Emission{Kind: "all", Event: event, Payload: payload})
}

func (h *RecordingHub) Fanout(room string, userIDs []string, event string, payload interface{}) {
	h.record(Emission{Kind: "fanout", Target: room, Users: append([]string(nil), userIDs...), Event: event, Payload: payload})
}

func (h *RecordingHub) JoinAllConversations(ctx context.Context, connID, userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.joinedAll = append(h.joinedAll, connID)
	return h.joinCount
}

func (h *RecordingHub) Join(connID, room string) { h.add("conn:"+connID, room) }

func (h *RecordingHub) Leave(connID, room string) { h.remove("conn:"+connID, room) }

func (h *RecordingHub) JoinUser(userID, room string) { h.add("user:"+userID, room) }

func (h *RecordingHub) LeaveUser(userID, room string) { h.remove("user:"+userID, room) }

// InRoom reports whether the connection joined the room.
func (h *RecordingHub) InRoom(connID, room string) bool {
	return h.Has("conn:"+connID, room)
}

func (h *RecordingHub) add(member, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = map[string]struct{}{}
	}
	h.rooms[room][member] = struct{}{}
}

func (h *RecordingHub) remove(member, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms[room], member)
}

// Has reports whether member ("conn:<id>" or "user:<id>") is in the room.
func (h *RecordingHub) Has(member, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.rooms[room][member]
	return ok
}

// Members returns the sorted members of the room.
func (h *RecordingHub) Members(room string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.rooms[room]))
	for member := range h.rooms[room] {
		out = append(out, member)
	}
	sort.Strings(out)
	return out
}

// JoinedAll returns the connections that joined all of their conversations.
func (h *RecordingHub) JoinedAll() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.joinedAll...)
}

// Emissions returns every recorded broadcast in order.
func (h *RecordingHub) Emissions() []Emission {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Emission(nil), h.emissions...)
}

// Events returns the recorded broadcasts of one event.
func (h *RecordingHub) Events(event string) []Emission {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Emission
	for _, e := range h.emissions {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

// Reset forgets recorded broadcasts.
func (h *RecordingHub) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.emissions = nil
}

// Online is a fixed presence answer keyed by user id.
type Online map[string]bool

func (o Online) IsOnline(userID string) bool { return o[userID] }

type VerifierMock struct {
	mock.Mock
}

func (m *VerifierMock) Verify(ctx context.Context, credential string) (models.Identity, error) {
	args := m.Called(ctx, credential)
	var identity models.Identity
	if val := args.Get(0); val != nil {
		identity = val.(models.Identity)
	}
	return identity, args.Error(1)
}

type ConversationServiceMock struct {
	mock.Mock
}

func (m *ConversationServiceMock) Summaries(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	args := m.Called(ctx, userID)
	var list []models.ConversationSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.ConversationSummary)
	}
	return list, args.Error(1)
}

func (m *ConversationServiceMock) StartDirectChat(ctx context.Context, userID string, otherUsername string) (models.Conversation, bool, error) {
	args := m.Called(ctx, userID, otherUsername)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Bool(1), args.Error(2)
}

func (m *ConversationServiceMock) ListMessages(ctx context.Context, userID string, conversationID string, before time.Time, limit int) ([]models.Message, error) {
	args := m.Called(ctx, userID, conversationID, before, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *ConversationServiceMock) MarkUnread(ctx context.Context, s models.Session, conversationID string) error {
	args := m.Called(ctx, s, conversationID)
	return args.Error(0)
}

func (m *ConversationServiceMock) OnlineUsers() []string {
	args := m.Called()
	var ids []string
	if val := args.Get(0); val != nil {
		ids = val.([]string)
	}
	return ids
}

type AuditMock struct {
	mock.Mock
}

func (m *AuditMock) Emit(ctx context.Context, level, text, requestID string, userID *string) {
	m.Called(ctx, level, text, requestID, userID)
}

type GroupServiceMock struct {
	mock.Mock
}

func (m *GroupServiceMock) CreateGroup(ctx context.Context, s models.Session, name string, memberIDs []string) (models.Conversation, error) {
	args := m.Called(ctx, s, name, memberIDs)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *GroupServiceMock) AddToGroup(ctx context.Context, s models.Session, conversationID, userID string) error {
	return m.Called(ctx, s, conversationID, userID).Error(0)
}

func (m *GroupServiceMock) RemoveFromGroup(ctx context.Context, s models.Session, conversationID, userID string) error {
	return m.Called(ctx, s, conversationID, userID).Error(0)
}

func (m *GroupServiceMock) LeaveGroup(ctx context.Context, s models.Session, conversationID string) error {
	return m.Called(ctx, s, conversationID).Error(0)
}

func (m *GroupServiceMock) DeleteGroup(ctx context.Context, s models.Session, conversationID string) error {
	return m.Called(ctx, s, conversationID).Error(0)
}
