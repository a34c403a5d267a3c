package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"chat-core/internal/models"
)

// ConversationService is the read and bookkeeping surface behind the
// conversation endpoints.
type ConversationService interface {
	Summaries(ctx context.Context, userID string) ([]models.ConversationSummary, error)
	StartDirectChat(ctx context.Context, userID, otherUsername string) (models.Conversation, bool, error)
	ListMessages(ctx context.Context, userID, conversationID string, before time.Time, limit int) ([]models.Message, error)
	MarkUnread(ctx context.Context, s models.Session, conversationID string) error
	OnlineUsers() []string
}

// ConversationHandler manages conversation endpoints.
type ConversationHandler struct {
	service ConversationService
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(service ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

// Register mounts the conversation routes on an authenticated group.
func (h *ConversationHandler) Register(api gin.IRoutes) {
	api.GET("/conversations", h.ListConversations)
	api.POST("/conversations/direct", h.StartDirectChat)
	api.GET("/conversations/:conversation_id/messages", h.ListMessages)
	api.POST("/conversations/:conversation_id/unread", h.MarkUnread)
	api.GET("/presence", h.OnlineUsers)
}

// ListConversations returns the caller's conversation list, pinned first.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	summaries, err := h.service.Summaries(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		writeError(c, err)
		return
	}
	if summaries == nil {
		summaries = []models.ConversationSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"conversations": summaries})
}

// StartDirectChat creates or returns the direct conversation with a user.
func (h *ConversationHandler) StartDirectChat(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username is required"})
		return
	}

	conv, created, err := h.service.StartDirectChat(c.Request.Context(), c.GetString("userID"), req.Username)
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"conversation": conv, "created": created})
}

// ListMessages returns one page of history, oldest first.
func (h *ConversationHandler) ListMessages(c *gin.Context) {
	var before time.Time
	if raw := c.Query("before"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid before cursor"})
			return
		}
		before = parsed
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	msgs, err := h.service.ListMessages(c.Request.Context(), c.GetString("userID"), c.Param("conversation_id"), before, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// MarkUnread flags a conversation as unread for the caller.
func (h *ConversationHandler) MarkUnread(c *gin.Context) {
	s := sessionFromContext(c)
	if err := h.service.MarkUnread(c.Request.Context(), s, c.Param("conversation_id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// OnlineUsers lists users with at least one live connection.
func (h *ConversationHandler) OnlineUsers(c *gin.Context) {
	users := h.service.OnlineUsers()
	if users == nil {
		users = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"userIds": users})
}
