package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"chat-core/internal/auth"
	"chat-core/internal/models"
	"chat-core/internal/observability"
)

// Handler authenticates and upgrades websocket connections.
type Handler struct {
	hub       *Hub
	verifier  auth.Verifier
	lifecycle Lifecycle
	settings  Settings
	logger    *zap.Logger
}

// NewHandler constructs a Handler.
func NewHandler(hub *Hub, verifier auth.Verifier, lifecycle Lifecycle, settings Settings, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		hub:       hub,
		verifier:  verifier,
		lifecycle: lifecycle,
		settings:  settings,
		logger:    logger.With(zap.String("component", "ws")),
	}
}

const tracerName = "chat-core/ws"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handle verifies the credential, upgrades the connection and starts the pumps.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer(tracerName).Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	credential := auth.BearerToken(c.GetHeader("Authorization"), c.Query("token"))
	identity, err := h.verifier.Verify(ctx, credential)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	meta := observability.MetaFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      identity.UserID,
		DeviceID:    meta.DeviceID,
		IP:          meta.IP,
		RequestID:   meta.RequestID,
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	session := models.Session{ConnID: info.ConnID, UserID: identity.UserID, Username: identity.Username}
	client := NewClient(h.hub, conn, session, info, h.settings, h.logger)
	h.hub.Register(client)

	observability.IncWSActive(wsKind)
	publishWSEvent(ctx, info, "ws_connect", "")
	h.logger.Info("websocket connected", zap.String("conn_id", info.ConnID), zap.String("user_id", info.UserID))

	// the session outlives the handshake request and its span
	sessionCtx, sessionSpan := otel.Tracer(tracerName).Start(context.Background(), "ws.session",
		trace.WithLinks(trace.LinkFromContext(ctx)),
		trace.WithAttributes(
			attribute.String("chat.conn_id", info.ConnID),
			attribute.String("chat.user_id", info.UserID),
		),
	)
	go client.writePump()
	go h.serve(sessionCtx, sessionSpan, client)
}

// serve runs the connect lifecycle, blocks in the read pump and then tears
// the session down. Disconnect always runs after the last dispatch returned.
func (h *Handler) serve(ctx context.Context, span trace.Span, client *Client) {
	defer span.End()
	h.lifecycle.Connect(ctx, client.session)
	reason := client.readPump(ctx, h.lifecycle)

	h.hub.Unregister(client)
	client.close()
	h.lifecycle.Disconnect(ctx, client.session)

	observability.DecWSActive(wsKind)
	publishWSEvent(ctx, client.info, "ws_disconnect", reason)
	h.logger.Info("websocket disconnected", zap.String("conn_id", client.info.ConnID), zap.String("user_id", client.info.UserID), zap.String("reason", reason))
}
