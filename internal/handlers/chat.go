package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"studygroup-chat/internal/models"
)

const maxUploadBytes = 25 << 20

// ChatHandler turns local requests into outgoing chat commands.
type ChatHandler struct {
	api    BackendAPI
	logger *zap.SugaredLogger
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(api BackendAPI, logger *zap.SugaredLogger) *ChatHandler {
	return &ChatHandler{api: api, logger: logger.Named("chat_handler")}
}

// PostMessage sends a text message and returns its optimistic echo.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s := currentSession(c)
	groupID := models.GroupKey(c.Param("group_id"))
	msg, ok := s.Store().Send(groupID, req.Content)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message content is empty"})
		return
	}
	s.Typing().Stop(groupID)

	c.JSON(http.StatusAccepted, gin.H{"message": msg})
}

// UploadFile stores the multipart "file" on the backend and sends it.
func (h *ChatHandler) UploadFile(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	f, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}
	defer f.Close()

	s := currentSession(c)
	groupID := models.GroupKey(c.Param("group_id"))
	meta, err := h.api.UploadFile(c.Request.Context(), s.Identity().Token, header.Filename, f)
	if err != nil {
		h.logger.Warnw("upload failed", "group_id", groupID, "file", header.Filename, "error", err)
		c.JSON(backendStatus(err), gin.H{"error": "upload failed"})
		return
	}
	if meta.Name == "" {
		meta.Name = header.Filename
	}
	if meta.Size == 0 {
		meta.Size = header.Size
	}

	msg, ok := s.Store().SendFile(groupID, meta)
	if !ok {
		c.JSON(http.StatusBadGateway, gin.H{"error": "upload returned no file url"})
		return
	}
	emitAudit(c, s, "INFO", "file shared", groupID)

	c.JSON(http.StatusAccepted, gin.H{"message": msg})
}

// CreatePoll sends a new poll.
func (h *ChatHandler) CreatePoll(c *gin.Context) {
	var draft models.PollDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s := currentSession(c)
	msg, ok := s.Store().CreatePoll(models.GroupKey(c.Param("group_id")), draft)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "poll needs a question and two options"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": msg})
}

// VotePoll records the user's choice on a confirmed poll.
func (h *ChatHandler) VotePoll(c *gin.Context) {
	var req struct {
		OptionIDs []string `json:"optionIds" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s := currentSession(c)
	if !s.Store().VotePoll(models.GroupKey(c.Param("group_id")), c.Param("poll_id"), req.OptionIDs) {
		c.JSON(http.StatusConflict, gin.H{"error": "poll is not confirmed yet"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}

// React sends an emoji reaction to a message.
func (h *ChatHandler) React(c *gin.Context) {
	var req struct {
		MessageID string `json:"messageId" binding:"required"`
		Emoji     string `json:"emoji" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s := currentSession(c)
	if !s.Store().React(models.GroupKey(c.Param("group_id")), req.MessageID, req.Emoji) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reaction"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}

// MarkRead acknowledges the listed messages, or every unread one.
func (h *ChatHandler) MarkRead(c *gin.Context) {
	var req struct {
		MessageIDs []string `json:"messageIds"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	s := currentSession(c)
	marked := s.Store().MarkRead(models.GroupKey(c.Param("group_id")), req.MessageIDs...)

	c.JSON(http.StatusOK, gin.H{"marked": marked})
}

// Typing reports a keystroke in the group's composer.
func (h *ChatHandler) Typing(c *gin.Context) {
	s := currentSession(c)
	s.Typing().Keystroke(models.GroupKey(c.Param("group_id")))
	c.Status(http.StatusNoContent)
}

// StopTyping clears the composer state immediately.
func (h *ChatHandler) StopTyping(c *gin.Context) {
	s := currentSession(c)
	s.Typing().Stop(models.GroupKey(c.Param("group_id")))
	c.Status(http.StatusNoContent)
}

// Presence returns who is online and who is typing.
func (h *ChatHandler) Presence(c *gin.Context) {
	s := currentSession(c)
	groupID := models.GroupKey(c.Param("group_id"))

	online := s.Store().Online(groupID)
	if online == nil {
		online = []string{}
	}
	typing := s.Store().Typing(groupID)
	if typing == nil {
		typing = []models.TypingEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"online": online, "typing": typing})
}
