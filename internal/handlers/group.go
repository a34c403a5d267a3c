package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-core/internal/models"
)

// GroupService performs group administration on behalf of a session.
type GroupService interface {
	CreateGroup(ctx context.Context, s models.Session, name string, memberIDs []string) (models.Conversation, error)
	AddToGroup(ctx context.Context, s models.Session, conversationID, userID string) error
	RemoveFromGroup(ctx context.Context, s models.Session, conversationID, userID string) error
	LeaveGroup(ctx context.Context, s models.Session, conversationID string) error
	DeleteGroup(ctx context.Context, s models.Session, conversationID string) error
}

// Auditor records audit log entries.
type Auditor interface {
	Emit(ctx context.Context, level, text, requestID string, userID *string)
}

// GroupHandler manages group-related endpoints.
type GroupHandler struct {
	service GroupService
	audit   Auditor
}

// NewGroupHandler constructs a GroupHandler. audit may be nil.
func NewGroupHandler(service GroupService, audit Auditor) *GroupHandler {
	return &GroupHandler{service: service, audit: audit}
}

// Register mounts the group routes on an authenticated group.
func (h *GroupHandler) Register(api gin.IRoutes) {
	api.POST("/groups", h.CreateGroup)
	api.POST("/groups/:conversation_id/members", h.AddMember)
	api.DELETE("/groups/:conversation_id/members/:user_id", h.RemoveMember)
	api.POST("/groups/:conversation_id/leave", h.LeaveGroup)
	api.DELETE("/groups/:conversation_id", h.DeleteGroup)
}

// CreateGroup handles POST /groups.
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	var req struct {
		Name      string   `json:"name" binding:"required"`
		MemberIDs []string `json:"memberIds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	s := sessionFromContext(c)
	conv, err := h.service.CreateGroup(c.Request.Context(), s, req.Name, req.MemberIDs)
	if err != nil {
		h.fail(c, "create group", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"conversation": conv})
}

// AddMember handles POST /groups/:conversation_id/members.
func (h *GroupHandler) AddMember(c *gin.Context) {
	var req struct {
		UserID string `json:"userId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}

	s := sessionFromContext(c)
	if err := h.service.AddToGroup(c.Request.Context(), s, c.Param("conversation_id"), req.UserID); err != nil {
		h.fail(c, "add member", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveMember handles DELETE /groups/:conversation_id/members/:user_id.
func (h *GroupHandler) RemoveMember(c *gin.Context) {
	s := sessionFromContext(c)
	if err := h.service.RemoveFromGroup(c.Request.Context(), s, c.Param("conversation_id"), c.Param("user_id")); err != nil {
		h.fail(c, "remove member", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// LeaveGroup handles POST /groups/:conversation_id/leave.
func (h *GroupHandler) LeaveGroup(c *gin.Context) {
	s := sessionFromContext(c)
	if err := h.service.LeaveGroup(c.Request.Context(), s, c.Param("conversation_id")); err != nil {
		h.fail(c, "leave group", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteGroup handles DELETE /groups/:conversation_id.
func (h *GroupHandler) DeleteGroup(c *gin.Context) {
	s := sessionFromContext(c)
	if err := h.service.DeleteGroup(c.Request.Context(), s, c.Param("conversation_id")); err != nil {
		h.fail(c, "delete group", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *GroupHandler) fail(c *gin.Context, action string, err error) {
	h.emitAudit(c, "ERROR", action+" failed: "+err.Error())
	writeError(c, err)
}

func (h *GroupHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
