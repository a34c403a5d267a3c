package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"chat-core/internal/models"
)

// Settings tunes per-connection limits.
type Settings struct {
	SendBuffer      int
	MaxMessageSize  int64
	WriteWait       time.Duration
	PongWait        time.Duration
	RequestTimeout  time.Duration
	EventsPerSecond float64
	EventBurst      int
}

// DefaultSettings returns the limits used when none are configured.
func DefaultSettings() Settings {
	return Settings{
		SendBuffer:      256,
		MaxMessageSize:  64 * 1024,
		WriteWait:       10 * time.Second,
		PongWait:        60 * time.Second,
		RequestTimeout:  10 * time.Second,
		EventsPerSecond: 20,
		EventBurst:      40,
	}
}

func (s Settings) pingPeriod() time.Duration {
	return (s.PongWait * 9) / 10
}

// Lifecycle is the session logic driven by a connection.
type Lifecycle interface {
	Connect(ctx context.Context, s models.Session)
	Disconnect(ctx context.Context, s models.Session)
	Dispatch(ctx context.Context, s models.Session, event string, data json.RawMessage) models.Ack
}

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	session  models.Session
	info     ConnInfo
	settings Settings
	limiter  *rate.Limiter
	logger   *zap.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// NewClient constructs a Client for an authenticated session. conn may be nil
// in tests that only inspect the send queue.
func NewClient(hub *Hub, conn *websocket.Conn, session models.Session, info ConnInfo, settings Settings, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		hub:      hub,
		conn:     conn,
		session:  session,
		info:     info,
		settings: settings,
		limiter:  rate.NewLimiter(rate.Limit(settings.EventsPerSecond), settings.EventBurst),
		logger:   logger.With(zap.String("conn_id", session.ConnID), zap.String("user_id", session.UserID)),
		send:     make(chan []byte, settings.SendBuffer),
	}
}

// Session returns the identity bound to the connection.
func (c *Client) Session() models.Session { return c.session }

// enqueue hands a frame to the write pump without blocking. It returns false
// when the queue is full.
func (c *Client) enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// close stops the write pump, which closes the socket and ends the read
// pump. It reports whether this call closed the queue.
func (c *Client) close() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	close(c.send)
	return true
}

func (c *Client) reply(id string, ack models.Ack) {
	frame, err := encodeAck(id, ack)
	if err != nil {
		c.logger.Error("encode ack failed", zap.Error(err))
		return
	}
	if !c.enqueue(frame) {
		c.hub.drop(c)
	}
}

// readPump processes inbound frames one at a time until the socket fails.
// It returns the close reason.
func (c *Client) readPump(ctx context.Context, lifecycle Lifecycle) string {
	c.conn.SetReadLimit(c.settings.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.settings.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.settings.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("websocket read error", zap.Error(err))
				publishWSEvent(ctx, c.info, "ws_error", err.Error())
			}
			return err.Error()
		}

		var frame models.Frame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Event == "" {
			id := frame.ID
			if id == "" {
				id = frameID(data)
			}
			if id != "" {
				c.reply(id, models.Ack{Error: "malformed frame"})
			}
			continue
		}
		if !c.limiter.Allow() {
			if frame.ID != "" {
				c.reply(frame.ID, models.Ack{Error: "rate limit exceeded"})
			}
			continue
		}

		// in-flight work outlives the socket
		reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.settings.RequestTimeout)
		ack := lifecycle.Dispatch(reqCtx, c.session, frame.Event, frame.Data)
		cancel()
		if frame.ID != "" {
			c.reply(frame.ID, ack)
		}
	}
}

// writePump drains the send queue to the socket and keeps it alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.settings.pingPeriod())
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.settings.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.hub.publishWSError(c, err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.settings.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
