package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"studygroup-chat/internal/models"
	"studygroup-chat/internal/repositories"
	"studygroup-chat/internal/session"
)

// SessionHandler signs the local user in and out.
type SessionHandler struct {
	holder *session.Holder
	repo   repositories.SessionRepository
	logger *zap.SugaredLogger
}

// NewSessionHandler builds a SessionHandler.
func NewSessionHandler(holder *session.Holder, repo repositories.SessionRepository, logger *zap.SugaredLogger) *SessionHandler {
	return &SessionHandler{holder: holder, repo: repo, logger: logger.Named("session_handler")}
}

type sessionResponse struct {
	SessionID string    `json:"sessionId"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Connected bool      `json:"connected"`
	StartedAt time.Time `json:"startedAt"`
	Groups    []string  `json:"groups"`
	Outbox    int       `json:"outbox"`
}

func describe(s *session.Session) sessionResponse {
	identity := s.Identity()
	return sessionResponse{
		SessionID: s.ID(),
		UserID:    identity.UserID,
		UserName:  identity.UserName,
		Connected: s.Connected(),
		StartedAt: s.StartedAt(),
		Groups:    s.Hub().Active(),
		Outbox:    s.Transport().Outbox().Len(),
	}
}

// Get describes the current session.
func (h *SessionHandler) Get(c *gin.Context) {
	s, ok := h.holder.Current()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not signed in"})
		return
	}
	c.JSON(http.StatusOK, describe(s))
}

// Login replaces the current session with one for the posted identity.
func (h *SessionHandler) Login(c *gin.Context) {
	var req struct {
		Token    string `json:"token" binding:"required"`
		UserID   string `json:"userId" binding:"required"`
		UserName string `json:"userName"`
		Email    string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	identity := models.Identity{Token: req.Token, UserID: req.UserID, UserName: req.UserName, Email: req.Email}
	s, err := h.holder.Login(c.Request.Context(), identity)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, session.ErrUnauthenticated) {
			status = http.StatusUnauthorized
		}
		c.JSON(status, gin.H{"error": "could not start session"})
		return
	}

	if err := h.repo.Save(c.Request.Context(), identity); err != nil {
		h.logger.Warnw("persist identity failed", "user_id", identity.UserID, "error", err)
	}
	emitAudit(c, s, "INFO", "signed in", "")

	c.JSON(http.StatusCreated, describe(s))
}

// Logout closes the current session and forgets the persisted identity.
func (h *SessionHandler) Logout(c *gin.Context) {
	s, _ := h.holder.Current()
	emitAudit(c, s, "INFO", "signed out", "")

	closed, err := h.holder.Logout(c.Request.Context())
	if err != nil {
		h.logger.Warnw("session close failed", "error", err)
	}
	if err := h.repo.Clear(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear identity"})
		return
	}
	if !closed {
		c.JSON(http.StatusNotFound, gin.H{"error": "not signed in"})
		return
	}

	c.Status(http.StatusNoContent)
}
