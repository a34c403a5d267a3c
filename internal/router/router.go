package router

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"chat-core/internal/apperr"
	"chat-core/internal/models"
	"chat-core/internal/observability"
	"chat-core/internal/presence"
	"chat-core/internal/reconcile"
	"chat-core/internal/repositories"
	"chat-core/internal/telemetry"
)

// Hub is the room membership and broadcast surface the router drives.
type Hub interface {
	Emit(room, event string, payload interface{})
	EmitExcept(room, exceptConn, event string, payload interface{})
	EmitToUser(userID, event string, payload interface{})
	EmitToUserExcept(userID, exceptConn, event string, payload interface{})
	EmitToConn(connID, event string, payload interface{})
	EmitToAll(event string, payload interface{})
	Fanout(room string, userIDs []string, event string, payload interface{})
	JoinAllConversations(ctx context.Context, connID, userID string) int
	Join(connID, room string)
	Leave(connID, room string)
	JoinUser(userID, room string)
	LeaveUser(userID, room string)
	InRoom(connID, room string) bool
}

// Presence tracks which users have live connections.
type Presence interface {
	Register(userID, connID string) bool
	Deregister(ctx context.Context, userID, connID string) (presence.Departure, error)
	StillOffline(userID string, d presence.Departure) bool
	IsOnline(userID string) bool
	OnlineUsers() []string
}

// Auditor records group administration.
type Auditor interface {
	Emit(ctx context.Context, level, text, requestID string, userID *string)
}

type handlerFunc func(ctx context.Context, s models.Session, data json.RawMessage) (models.Ack, error)

// Router validates client events, persists their effects and broadcasts
// the results.
type Router struct {
	store      repositories.Store
	hub        Hub
	presence   Presence
	reconciler *reconcile.Reconciler
	audit      Auditor
	logger     *zap.Logger
	locks      *keyedMutex
	now        func() time.Time
	handlers   map[string]handlerFunc
}

// New constructs a Router. audit may be nil.
func New(store repositories.Store, hub Hub, presence Presence, reconciler *reconcile.Reconciler, audit Auditor, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{
		store:      store,
		hub:        hub,
		presence:   presence,
		reconciler: reconciler,
		audit:      audit,
		logger:     logger.With(zap.String("component", "router")),
		locks:      newKeyedMutex(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	r.handlers = map[string]handlerFunc{
		models.EventJoinConversation:       r.joinConversation,
		models.EventLeaveConversation:      r.leaveConversation,
		models.EventTyping:                 r.typing,
		models.EventSendMessage:            r.sendMessage,
		models.EventTogglePinMessage:       r.togglePinMessage,
		models.EventAddReaction:            r.react,
		models.EventToggleReaction:         r.react,
		models.EventDeleteMessage:          r.deleteMessage,
		models.EventDeleteMessageForMe:     r.deleteMessageForMe,
		models.EventMarkMessagesRead:       r.markRead,
		models.EventMarkConversationUnread: r.markUnread,
		models.EventTogglePinConversation:  r.togglePinConversation,
		models.EventCreateGroup:            r.createGroup,
		models.EventAddToGroup:             r.addToGroup,
		models.EventRemoveFromGroup:        r.removeFromGroup,
		models.EventLeaveGroup:             r.leaveGroup,
		models.EventDeleteGroup:            r.deleteGroup,
	}
	return r
}

// Connect registers the session with presence, announces the user when
// this is their first connection and joins every conversation room.
func (r *Router) Connect(ctx context.Context, s models.Session) {
	if r.presence.Register(s.UserID, s.ConnID) {
		r.hub.EmitToAll(models.EventUserOnline, models.UserOnlineEvent{
			UserID:    s.UserID,
			Username:  s.Username,
			Timestamp: r.now(),
		})
	}
	r.hub.EmitToConn(s.ConnID, models.EventActiveUsers, models.ActiveUsersEvent{UserIDs: r.presence.OnlineUsers()})

	rooms := r.hub.JoinAllConversations(ctx, s.ConnID, s.UserID)
	if _, err := r.reconciler.OnConnect(ctx, s.UserID); err != nil {
		r.logger.Warn("mark delivered on connect failed", zap.String("user_id", s.UserID), zap.Error(err))
	}
	r.logger.Debug("session connected", zap.String("conn_id", s.ConnID), zap.String("user_id", s.UserID), zap.Int("rooms", rooms))
}

// Disconnect removes the session from presence and announces the user as
// offline once their last connection is gone.
func (r *Router) Disconnect(ctx context.Context, s models.Session) {
	departure, err := r.presence.Deregister(ctx, s.UserID, s.ConnID)
	if err != nil {
		r.logger.Warn("persist last seen failed", zap.String("user_id", s.UserID), zap.Error(err))
	}
	if departure.Offline && r.presence.StillOffline(s.UserID, departure) {
		r.hub.EmitToAll(models.EventUserOffline, models.UserOfflineEvent{
			UserID:   s.UserID,
			Username: s.Username,
			LastSeen: departure.LastSeen,
		})
	}
	r.logger.Debug("session disconnected", zap.String("conn_id", s.ConnID), zap.String("user_id", s.UserID), zap.Bool("offline", departure.Offline))
}

// Dispatch runs one client event and returns its acknowledgement.
func (r *Router) Dispatch(ctx context.Context, s models.Session, event string, data json.RawMessage) models.Ack {
	start := time.Now()
	handler, ok := r.handlers[event]
	if !ok {
		observability.ObserveRouterEvent("unknown", "rejected", time.Since(start))
		return models.Ack{Error: "unknown event"}
	}

	ctx, span := otel.Tracer("chat-core/router").Start(ctx, "router."+event,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("chat.conn_id", s.ConnID),
			attribute.String("chat.user_id", s.UserID),
		),
	)
	defer span.End()

	ack, err := handler(ctx, s, data)
	outcome := "ok"
	if err != nil {
		kind := apperr.KindOf(err)
		outcome = string(kind)
		span.SetAttributes(attribute.String("chat.error_kind", outcome))
		fields := []zap.Field{zap.String("event", event), zap.String("conn_id", s.ConnID), zap.String("user_id", s.UserID), zap.Error(err)}
		if kind == apperr.KindPersistence {
			span.RecordError(err)
			span.SetStatus(codes.Error, "persistence failure")
			r.logger.Error("event failed", fields...)
		} else {
			r.logger.Debug("event rejected", fields...)
		}
		ack = models.Ack{Error: apperr.PublicMessage(err)}
	} else {
		ack.Success = true
	}
	observability.ObserveRouterEvent(event, outcome, time.Since(start))
	return ack
}

func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return apperr.Validation("missing payload")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperr.Validation("invalid payload")
	}
	return nil
}

// participantConversation loads a conversation the user belongs to.
func (r *Router) participantConversation(ctx context.Context, userID, conversationID string) (models.Conversation, error) {
	if conversationID == "" {
		return models.Conversation{}, apperr.Validation("conversationId is required")
	}
	conv, err := r.store.Conversations().GetConversation(ctx, conversationID)
	if err != nil {
		return models.Conversation{}, err
	}
	if !conv.HasParticipant(userID) {
		return models.Conversation{}, apperr.Validation("not a participant")
	}
	return conv, nil
}

// participantMessage loads a message and its conversation, checking that
// the user belongs to it.
func (r *Router) participantMessage(ctx context.Context, userID, messageID string) (models.Message, models.Conversation, error) {
	if messageID == "" {
		return models.Message{}, models.Conversation{}, apperr.Validation("messageId is required")
	}
	msg, err := r.store.Messages().GetMessage(ctx, messageID)
	if err != nil {
		return models.Message{}, models.Conversation{}, err
	}
	conv, err := r.participantConversation(ctx, userID, msg.ConversationID)
	if err != nil {
		return models.Message{}, models.Conversation{}, err
	}
	return msg, conv, nil
}

func (r *Router) auditf(ctx context.Context, s models.Session, text string) {
	if r.audit == nil {
		return
	}
	requestID := telemetry.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = s.ConnID
	}
	userID := s.UserID
	r.audit.Emit(ctx, "INFO", text, requestID, &userID)
}
