package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"studygroup-chat/internal/session"
)

const sessionContextKey = "session"

// RequireSession rejects requests while nobody is signed in and exposes the
// current session to handlers.
func RequireSession(holder *session.Holder) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := holder.Current()
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
			return
		}

		c.Set(sessionContextKey, s)
		c.Set("userID", s.Identity().UserID)
		c.Next()
	}
}

// SessionFrom returns the session stored by RequireSession, or nil.
func SessionFrom(c *gin.Context) *session.Session {
	if val, ok := c.Get(sessionContextKey); ok {
		if s, ok := val.(*session.Session); ok {
			return s
		}
	}
	return nil
}
