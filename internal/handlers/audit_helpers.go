package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chat-core/internal/apperr"
	"chat-core/internal/models"
	"chat-core/internal/telemetry"
)

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) *string {
	if userID := c.GetString("userID"); userID != "" {
		return &userID
	}
	return nil
}

// sessionFromContext builds a connection-less session for REST callers and
// attaches the request id to the request context.
func sessionFromContext(c *gin.Context) models.Session {
	ctx := telemetry.ContextWithRequestID(c.Request.Context(), requestIDFromContext(c))
	c.Request = c.Request.WithContext(ctx)
	return models.Session{
		UserID:   c.GetString("userID"),
		Username: c.GetString("username"),
	}
}

func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindAuth:
		return http.StatusUnauthorized
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": apperr.PublicMessage(err)})
}
