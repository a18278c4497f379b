package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"studygroup-chat/internal/middleware"
	"studygroup-chat/internal/session"
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
	if header := c.GetHeader("X-User-ID"); header != "" {
		return &header
	}
	return nil
}

// emitAudit records a group-scoped action of the signed-in user.
func emitAudit(c *gin.Context, s *session.Session, level, text, groupID string) {
	if s == nil {
		return
	}
	s.Emit(c.Request.Context(), level, text, requestIDFromContext(c), groupID)
}

func currentSession(c *gin.Context) *session.Session {
	return middleware.SessionFrom(c)
}
