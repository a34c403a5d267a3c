package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// PresenceSnapshot exposes live presence for debugging.
type PresenceSnapshot interface {
	OnlineUsers() []string
}

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router gin.IRoutes, emitter Auditor, presence PresenceSnapshot, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		requestID := requestIDFromContext(c)
		emitter.Emit(c.Request.Context(), "INFO", "audit test", requestID, userIDFromContext(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok", "request_id": requestID})
	})

	router.GET("/debug/presence", func(c *gin.Context) {
		online := presence.OnlineUsers()
		if online == nil {
			online = []string{}
		}
		c.JSON(http.StatusOK, gin.H{"online": online, "count": len(online)})
	})
}
