package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"studygroup-chat/internal/session"
	"studygroup-chat/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, holder *session.Holder, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "INFO", "audit test", requestIDFromContext(c), userIDFromContext(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/debug/state", func(c *gin.Context) {
		s, ok := holder.Current()
		if !ok {
			c.JSON(http.StatusOK, gin.H{"session": nil})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"session":   s.ID(),
			"connected": s.Connected(),
			"active":    s.Hub().Active(),
			"pending":   s.Hub().Pending(),
			"groups":    s.Store().Groups(),
			"outbox":    s.Transport().Outbox().Len(),
			"typing":    s.Typing().Active(),
		})
	})
}
