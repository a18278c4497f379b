package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"studygroup-chat/internal/models"
	"studygroup-chat/internal/observability"
	"studygroup-chat/internal/session"
	"studygroup-chat/internal/store"
)

const (
	streamBuffer       = 64
	streamWriteTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamFrame is pushed to local UI clients whenever a group changes.
type streamFrame struct {
	Kind     store.ChangeKind     `json:"kind"`
	GroupID  string               `json:"groupId"`
	Messages []models.Message     `json:"messages,omitempty"`
	Typing   []models.TypingEntry `json:"typing,omitempty"`
	Online   []string             `json:"online,omitempty"`
}

// StreamHandler upgrades to a websocket that mirrors one group's state.
// The connection holds a hub listener for its whole lifetime.
type StreamHandler struct {
	logger *zap.SugaredLogger
}

// NewStreamHandler constructs a StreamHandler.
func NewStreamHandler(logger *zap.SugaredLogger) *StreamHandler {
	return &StreamHandler{logger: logger.Named("stream")}
}

// Handle upgrades the request and starts the stream.
func (h *StreamHandler) Handle(c *gin.Context) {
	s := currentSession(c)
	groupID := models.GroupKey(c.Param("group_id"))
	requestID := requestIDFromContext(c)

	ctx, span := otel.Tracer("studygroup-chat/handlers").Start(c.Request.Context(), "stream.open")
	defer span.End()

	if _, err := s.Hub().Acquire(groupID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warnw("upgrade failed", "group_id", groupID, "error", err)
		_, _ = s.Hub().Release(groupID, false)
		return
	}

	changes, stop := s.Store().Watch(streamBuffer)
	meta := observability.MetaFromRequest(c.Request)
	headers := observability.BuildHeaders(requestID, trace.SpanContextFromContext(ctx).TraceID().String())
	userID := s.Identity().UserID
	h.publish(ctx, observability.NewStreamEvent("stream_open", userID, groupID, meta), headers)
	observability.IncStreams()

	var once sync.Once
	closeStream := func() {
		once.Do(func() {
			stop()
			_ = conn.Close()
			_, _ = s.Hub().Release(groupID, false)
			observability.DecStreams()
			h.publish(context.Background(), observability.NewStreamEvent("stream_close", userID, groupID, meta), headers)
		})
	}

	if err := writeFrame(conn, snapshot(s, groupID, store.ChangeMessages)); err != nil {
		closeStream()
		return
	}

	go func() {
		defer closeStream()
		for change := range changes {
			if change.Kind == store.ChangeReset {
				_ = writeFrame(conn, streamFrame{Kind: store.ChangeReset, GroupID: groupID})
				return
			}
			if change.GroupID != groupID {
				continue
			}
			if err := writeFrame(conn, snapshot(s, groupID, change.Kind)); err != nil {
				return
			}
		}
	}()

	go func() {
		defer closeStream()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *StreamHandler) publish(ctx context.Context, event observability.EventEnvelope, headers map[string]string) {
	if err := observability.PublishEvent(ctx, observability.StreamRoutingKey, event, headers); err != nil {
		h.logger.Debugw("stream event publish failed", "event", event.EventName, "error", err)
	}
}

func snapshot(s *session.Session, groupID string, kind store.ChangeKind) streamFrame {
	frame := streamFrame{Kind: kind, GroupID: groupID}
	switch kind {
	case store.ChangeMessages:
		frame.Messages = s.Store().Get(groupID)
		if frame.Messages == nil {
			frame.Messages = []models.Message{}
		}
	case store.ChangeTyping:
		frame.Typing = s.Store().Typing(groupID)
	case store.ChangePresence:
		frame.Online = s.Store().Online(groupID)
	}
	return frame
}

func writeFrame(conn *websocket.Conn, frame streamFrame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	return conn.WriteJSON(frame)
}
