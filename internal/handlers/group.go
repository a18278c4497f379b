package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"studygroup-chat/internal/models"
	"studygroup-chat/internal/repositories"
	"studygroup-chat/internal/restclient"
	"studygroup-chat/internal/store"
)

const defaultHistorySize = 50

// BackendAPI is the subset of the REST backend used by the bridge.
type BackendAPI interface {
	ListGroups(ctx context.Context, token string) ([]models.Group, error)
	GroupMembers(ctx context.Context, token, groupID string) ([]models.Member, error)
	History(ctx context.Context, token, groupID string, page, size int) ([]models.Message, error)
	UploadFile(ctx context.Context, token, name string, content io.Reader) (models.FileMeta, error)
}

// GroupHandler serves group listings, subscriptions and merged history.
type GroupHandler struct {
	api       BackendAPI
	snapshots repositories.SnapshotRepository
	logger    *zap.SugaredLogger
}

// NewGroupHandler builds a GroupHandler.
func NewGroupHandler(api BackendAPI, snapshots repositories.SnapshotRepository, logger *zap.SugaredLogger) *GroupHandler {
	return &GroupHandler{api: api, snapshots: snapshots, logger: logger.Named("group_handler")}
}

// ListGroups returns the user's groups and seeds recipient counts.
func (h *GroupHandler) ListGroups(c *gin.Context) {
	s := currentSession(c)
	groups, err := h.api.ListGroups(c.Request.Context(), s.Identity().Token)
	if err != nil {
		c.JSON(backendStatus(err), gin.H{"error": "failed to load groups"})
		return
	}

	for _, g := range groups {
		if g.MemberCount > 0 {
			s.Store().SetMembers(models.GroupKey(g.ID), g.MemberCount-1)
		}
	}
	if groups == nil {
		groups = []models.Group{}
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// Subscribe acquires a listener on the group's live feed.
func (h *GroupHandler) Subscribe(c *gin.Context) {
	s := currentSession(c)
	groupID := models.GroupKey(c.Param("group_id"))

	listeners, err := s.Hub().Acquire(groupID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return
	}

	if listeners == 1 {
		members, err := h.api.GroupMembers(c.Request.Context(), s.Identity().Token, groupID)
		if err != nil {
			h.logger.Warnw("load members failed", "group_id", groupID, "error", err)
		} else if len(members) > 0 {
			s.Store().SetMembers(groupID, len(members)-1)
		}
		emitAudit(c, s, "INFO", "group subscribed", groupID)
	}

	c.JSON(http.StatusOK, gin.H{"groupId": groupID, "listeners": listeners})
}

// Unsubscribe releases one listener, or all of them with force=true.
func (h *GroupHandler) Unsubscribe(c *gin.Context) {
	s := currentSession(c)
	groupID := models.GroupKey(c.Param("group_id"))
	force, _ := strconv.ParseBool(c.DefaultQuery("force", "false"))

	listeners, err := s.Hub().Release(groupID, force)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return
	}
	if listeners == 0 {
		emitAudit(c, s, "INFO", "group unsubscribed", groupID)
	}

	c.JSON(http.StatusOK, gin.H{"groupId": groupID, "listeners": listeners})
}

// Messages returns backend history merged with live and optimistic entries.
// A failed fetch falls back to the last stored snapshot.
func (h *GroupHandler) Messages(c *gin.Context) {
	s := currentSession(c)
	groupID := models.GroupKey(c.Param("group_id"))

	page, err := strconv.Atoi(c.DefaultQuery("page", "0"))
	if err != nil || page < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid page"})
		return
	}
	size, err := strconv.Atoi(c.DefaultQuery("size", strconv.Itoa(defaultHistorySize)))
	if err != nil || size <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid size"})
		return
	}

	ctx := c.Request.Context()
	source := "backend"
	history, err := h.api.History(ctx, s.Identity().Token, groupID, page, size)
	if err != nil {
		h.logger.Warnw("history fetch failed", "group_id", groupID, "error", err)
		source = "snapshot"
		history, err = h.snapshots.Load(ctx, groupID)
		if err != nil {
			if !errors.Is(err, repositories.ErrSnapshotNotFound) {
				h.logger.Warnw("snapshot load failed", "group_id", groupID, "error", err)
			}
			source = "none"
			history = nil
		}
	} else if page == 0 {
		if err := h.snapshots.Save(ctx, groupID, history); err != nil {
			h.logger.Warnw("snapshot save failed", "group_id", groupID, "error", err)
		}
	}

	merged := store.Merge(history, s.Store().Get(groupID))
	c.JSON(http.StatusOK, gin.H{"messages": merged, "source": source})
}

func backendStatus(err error) int {
	if errors.Is(err, restclient.ErrUnauthorized) {
		return http.StatusUnauthorized
	}
	return http.StatusBadGateway
}
