// Package store keeps the per-group message state of the signed-in user.
// All inbound changes flow through Apply; local commands append optimistic
// entries and publish through the transport.
package store

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"studygroup-chat/internal/models"
	"studygroup-chat/internal/observability"
	"studygroup-chat/internal/presence"
)

// DefaultReconcileWindow bounds how far apart a local echo and its server
// copy may be for the two to be treated as one message.
const DefaultReconcileWindow = 1500 * time.Millisecond

// Publisher sends a command to the broker, queueing it while offline.
type Publisher interface {
	Publish(destination string, payload any) error
}

// Config identifies the local user and tunes reconciliation.
type Config struct {
	UserID          models.ID
	UserName        string
	ReconcileWindow time.Duration
}

// Store is the in-memory message state, keyed by normalized group id.
// Readers always receive copies.
type Store struct {
	pub      Publisher
	presence *presence.Tracker
	cfg      Config
	now      func() time.Time
	logger   *zap.SugaredLogger

	mu      sync.RWMutex
	groups  map[string][]models.Message
	members map[string]int

	watchers watchers
}

// New returns an empty Store.
func New(pub Publisher, tracker *presence.Tracker, cfg Config, logger *zap.SugaredLogger) *Store {
	if cfg.ReconcileWindow <= 0 {
		cfg.ReconcileWindow = DefaultReconcileWindow
	}
	return &Store{
		pub:      pub,
		presence: tracker,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger.Named("store"),
		groups:   make(map[string][]models.Message),
		members:  make(map[string]int),
		watchers: watchers{subs: make(map[int]chan Change)},
	}
}

// Apply folds one inbound event into the state of groupID, falling back to
// the event's own group. It reports whether anything visible changed.
// Duplicates, unknown targets and empty group ids are ignored.
func (s *Store) Apply(groupID string, ev models.Event) bool {
	key := models.GroupKey(groupID)
	if key == "" {
		key = models.GroupKey(ev.GroupID)
	}
	if key == "" {
		observability.IncStoreApplied(string(ev.Kind), false)
		return false
	}

	var (
		changed bool
		kind    = ChangeMessages
	)
	switch ev.Kind {
	case models.KindMessage, models.KindFile, models.KindSession:
		if ev.Message != nil {
			changed = s.applyMessage(key, *ev.Message)
		}
	case models.KindPoll:
		changed = s.applyPoll(key, ev.Message, ev.PollPatch)
	case models.KindPollVote:
		if ev.PollPatch != nil {
			changed = s.applyPollPatch(key, *ev.PollPatch)
		}
	case models.KindStatus:
		if ev.Status != nil {
			changed = s.applyStatus(key, *ev.Status)
		}
	case models.KindTyping:
		kind = ChangeTyping
		if ev.Typing != nil && ev.Typing.UserID != s.cfg.UserID {
			changed = s.presence.SetTyping(key, *ev.Typing)
		}
	case models.KindTypingStop:
		kind = ChangeTyping
		if ev.Typing != nil {
			changed = s.presence.ClearTyping(key, string(ev.Typing.UserID))
		}
	case models.KindPresence:
		kind = ChangePresence
		changed = s.presence.SetPresence(key, ev.Online)
	}

	observability.IncStoreApplied(string(ev.Kind), changed)
	if changed {
		s.watchers.notify(Change{GroupID: key, Kind: kind})
	}
	return changed
}

// Get returns a copy of groupID's messages in insertion order.
func (s *Store) Get(groupID string) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seq := s.groups[models.GroupKey(groupID)]
	out := make([]models.Message, len(seq))
	for i, m := range seq {
		out[i] = m.Clone()
	}
	return out
}

// Groups returns the group ids that hold at least one message.
func (s *Store) Groups() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.groups))
	for key := range s.groups {
		out = append(out, key)
	}
	return out
}

// SetMembers records how many recipients a message in groupID has, which
// seeds TotalRecipients of local messages.
func (s *Store) SetMembers(groupID string, recipients int) {
	key := models.GroupKey(groupID)
	if key == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[key] = recipients
}

// Typing returns who is typing in groupID.
func (s *Store) Typing(groupID string) []models.TypingEntry {
	return s.presence.Typing(groupID)
}

// Online returns the online users of groupID.
func (s *Store) Online(groupID string) []string {
	return s.presence.Online(groupID)
}

// Reset drops every group, member count and presence entry.
func (s *Store) Reset() {
	s.mu.Lock()
	s.groups = make(map[string][]models.Message)
	s.members = make(map[string]int)
	s.mu.Unlock()

	s.presence.Reset()
	s.watchers.notify(Change{Kind: ChangeReset})
}

func (s *Store) applyMessage(key string, m models.Message) bool {
	m = m.Clone()
	m.GroupID = models.ID(key)
	m.Optimistic = false
	if m.Type == "" {
		m.Type = models.TypeText
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.groups[key]

	if idx := indexOf(seq, m.Identity()); idx >= 0 {
		if m.Type == models.TypeSessionEvent && seq[idx].Session != nil && m.Session != nil {
			mergeSession(seq[idx].Session, m.Session)
			return true
		}
		return false
	}
	if m.Identity() == "" {
		s.logger.Debugw("message without identity", "group_id", key, "type", m.Type)
	}

	if idx := s.placeholderFor(seq, m); idx >= 0 {
		m = adoptPlaceholder(seq[idx], m)
		seq = append(seq[:idx:idx], seq[idx+1:]...)
		observability.IncReconciled()
	}
	s.seedStatus(key, &m)
	s.groups[key] = append(seq, m)
	return true
}

// applyPoll patches a known poll, or appends msg when the poll is new. The
// lookup and the merge happen under one lock.
func (s *Store) applyPoll(key string, msg *models.Message, patch *models.PollPatch) bool {
	if patch != nil && patch.ID != "" {
		s.mu.Lock()
		merged := s.applyPollPatchLocked(key, *patch)
		s.mu.Unlock()
		if merged {
			return true
		}
	}
	if msg == nil {
		return false
	}
	return s.applyMessage(key, *msg)
}

func (s *Store) applyPollPatch(key string, patch models.PollPatch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyPollPatchLocked(key, patch)
}

func (s *Store) applyPollPatchLocked(key string, patch models.PollPatch) bool {
	seq := s.groups[key]
	idx := indexOfPoll(seq, patch.ID)
	if idx < 0 {
		return false
	}
	mergePoll(seq[idx].Poll, patch)
	return true
}

func (s *Store) applyStatus(key string, upd models.StatusUpdate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.groups[key]
	for i := range seq {
		m := &seq[i]
		if m.ID != upd.MessageID {
			continue
		}
		m.ReadBy = union(m.ReadBy, upd.ReadBy)
		m.DeliveredBy = union(m.DeliveredBy, upd.DeliveredBy, m.ReadBy)
		if upd.TotalRecipients > 0 {
			m.TotalRecipients = upd.TotalRecipients
		}
		if m.SenderID == s.cfg.UserID {
			m.Status = StatusOf(*m)
		}
		return true
	}
	return false
}

// seedStatus gives the local user's own messages a status and leaves
// everyone else's blank.
func (s *Store) seedStatus(key string, m *models.Message) {
	if m.SenderID == "" || m.SenderID != s.cfg.UserID {
		m.Status = ""
		return
	}
	if m.TotalRecipients <= 0 {
		m.TotalRecipients = s.members[key]
	}
	m.DeliveredBy = union(m.DeliveredBy, m.ReadBy)
	m.Status = StatusOf(*m)
}
