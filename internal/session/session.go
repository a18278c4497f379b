// Package session owns the sync core for one signed-in user: transport,
// subscription hub, message store and typing notifier. A Session is
// created at login and torn down at logout.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"studygroup-chat/internal/codec"
	"studygroup-chat/internal/models"
	"studygroup-chat/internal/observability"
	"studygroup-chat/internal/presence"
	"studygroup-chat/internal/store"
	"studygroup-chat/internal/ws"
)

// ErrUnauthenticated is returned when no auth token is available.
var ErrUnauthenticated = errors.New("session: not authenticated")

// Auditor records session activity.
type Auditor interface {
	EmitGroup(ctx context.Context, level, text, requestID string, userID *string, groupID string)
}

// Config tunes the components a Session builds.
type Config struct {
	ReconnectDelay  time.Duration
	OutboxLimit     int
	ReconcileWindow time.Duration
	TypingIdle      time.Duration
	PeerTypingTTL   time.Duration
}

// Session owns one signed-in user's sync core: the broker transport, the
// subscription hub, the message store and the typing notifier.
type Session struct {
	id        string
	identity  models.Identity
	startedAt time.Time

	transport *ws.Transport
	hub       *ws.Hub
	store     *store.Store
	typing    *presence.Notifier
	decoder   *codec.Decoder
	audit     Auditor
	logger    *zap.SugaredLogger

	closeOnce sync.Once
	closeErr  error
}

// Start builds a Session for identity and begins connecting in the
// background. It fails with ErrUnauthenticated when identity has no token.
func Start(ctx context.Context, identity models.Identity, dialer ws.Dialer, cfg Config, audit Auditor, logger *zap.SugaredLogger) (*Session, error) {
	if !identity.Authenticated() {
		return nil, ErrUnauthenticated
	}

	s := &Session{
		id:        uuid.NewString(),
		identity:  identity,
		startedAt: time.Now(),
		decoder:   codec.NewDecoder(time.Now),
		audit:     audit,
	}
	s.logger = logger.Named("session").With("session_id", s.id, "user_id", identity.UserID)

	s.transport = ws.NewTransport(dialer, ws.TransportConfig{
		ReconnectDelay: cfg.ReconnectDelay,
		OutboxLimit:    cfg.OutboxLimit,
		UserID:         identity.UserID,
	}, s.logger)
	tracker := presence.NewTracker(cfg.PeerTypingTTL, s.logger)
	s.store = store.New(s.transport, tracker, store.Config{
		UserID:          models.ID(identity.UserID),
		UserName:        identity.UserName,
		ReconcileWindow: cfg.ReconcileWindow,
	}, s.logger)
	s.hub = ws.NewHub(s.transport, s.handleFrame, s.logger)
	s.typing = presence.NewNotifier(s.transport, cfg.TypingIdle, models.TypingEntry{
		UserID:   models.ID(identity.UserID),
		UserName: identity.UserName,
	}, s.logger)

	if err := s.transport.Connect(ctx, identity.Token); err != nil {
		return nil, err
	}
	s.emit(ctx, "INFO", "session started", "")
	s.logger.Infow("session started")
	return s, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) Identity() models.Identity { return s.identity }

func (s *Session) StartedAt() time.Time { return s.startedAt }

func (s *Session) Store() *store.Store { return s.store }

func (s *Session) Hub() *ws.Hub { return s.hub }

func (s *Session) Typing() *presence.Notifier { return s.typing }

func (s *Session) Transport() *ws.Transport { return s.transport }

// Connected reports whether the broker connection is up.
func (s *Session) Connected() bool {
	return s.transport.Connected()
}

// Close stops typing, disconnects and drops all state. It is safe to call
// more than once.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.typing.StopAll()
		s.closeErr = s.transport.Disconnect()
		s.store.Reset()
		s.emit(ctx, "INFO", "session closed", "")
		s.logger.Infow("session closed", "duration", time.Since(s.startedAt))
	})
	return s.closeErr
}

// Emit records an audit entry on behalf of the session's user.
func (s *Session) Emit(ctx context.Context, level, text, requestID, groupID string) {
	if s.audit == nil {
		return
	}
	user := s.identity.UserID
	s.audit.EmitGroup(ctx, level, text, requestID, &user, groupID)
}

func (s *Session) emit(ctx context.Context, level, text, groupID string) {
	s.Emit(ctx, level, text, s.id, groupID)
}

// handleFrame decodes one pushed frame and folds it into the store. Bad
// frames are dropped without affecting others.
func (s *Session) handleFrame(groupID string, body []byte) {
	ev, err := s.decoder.Decode(body, groupID)
	if err != nil {
		observability.IncFrameDropped(dropReason(err))
		s.logger.Warnw("dropping inbound frame", "group_id", groupID, "error", err)
		return
	}
	observability.IncFrame(string(ev.Kind))

	if !s.store.Apply(ev.GroupID, ev) {
		s.logger.Debugw("frame ignored", "group_id", ev.GroupID, "kind", ev.Kind)
		return
	}
	if m := ev.Message; m != nil && m.ID != "" && string(m.SenderID) != s.identity.UserID {
		switch ev.Kind {
		case models.KindMessage, models.KindFile:
			s.store.MarkDelivered(ev.GroupID, string(m.ID))
		}
	}
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, codec.ErrUnknownKind):
		return "unknown_kind"
	case errors.Is(err, codec.ErrMissingGroup):
		return "missing_group"
	default:
		return "malformed"
	}
}
