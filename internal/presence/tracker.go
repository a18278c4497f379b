// Package presence tracks who is online and who is typing in each group,
// and debounces the local user's own typing signals.
package presence

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"studygroup-chat/internal/models"
)

type typingState struct {
	entry models.TypingEntry
	seen  time.Time
}

// Tracker holds per-group typing entries and online sets. Typing entries of
// peers expire after ttl unless refreshed; a zero ttl keeps them until an
// explicit stop.
type Tracker struct {
	ttl    time.Duration
	now    func() time.Time
	logger *zap.SugaredLogger

	mu     sync.Mutex
	typing map[string]map[string]typingState
	online map[string][]string
}

// NewTracker returns an empty Tracker.
func NewTracker(ttl time.Duration, logger *zap.SugaredLogger) *Tracker {
	return &Tracker{
		ttl:    ttl,
		now:    time.Now,
		logger: logger.Named("presence"),
		typing: make(map[string]map[string]typingState),
		online: make(map[string][]string),
	}
}

// SetTyping adds or replaces entry for groupID. It reports whether the
// visible typing set changed.
func (t *Tracker) SetTyping(groupID string, entry models.TypingEntry) bool {
	key := models.GroupKey(groupID)
	user := string(entry.UserID)
	if key == "" || user == "" {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	users, ok := t.typing[key]
	if !ok {
		users = make(map[string]typingState)
		t.typing[key] = users
	}
	prev, existed := users[user]
	users[user] = typingState{entry: entry, seen: t.now()}
	return !existed || t.expired(prev) || prev.entry.UserName != entry.UserName
}

// ClearTyping removes userID's entry for groupID.
func (t *Tracker) ClearTyping(groupID, userID string) bool {
	key := models.GroupKey(groupID)
	if key == "" || userID == "" {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	users := t.typing[key]
	if _, ok := users[userID]; !ok {
		return false
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(t.typing, key)
	}
	return true
}

// Typing returns the live typing entries for groupID ordered by user id.
// Expired entries are pruned.
func (t *Tracker) Typing(groupID string) []models.TypingEntry {
	key := models.GroupKey(groupID)

	t.mu.Lock()
	defer t.mu.Unlock()
	users := t.typing[key]
	out := make([]models.TypingEntry, 0, len(users))
	for id, st := range users {
		if t.expired(st) {
			delete(users, id)
			continue
		}
		out = append(out, st.entry)
	}
	if len(users) == 0 {
		delete(t.typing, key)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// SetPresence replaces the online set of groupID wholesale.
func (t *Tracker) SetPresence(groupID string, userIDs []string) bool {
	key := models.GroupKey(groupID)
	if key == "" {
		return false
	}
	seen := make(map[string]struct{}, len(userIDs))
	next := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		next = append(next, id)
	}
	sort.Strings(next)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.online[key] = next
	return true
}

// Online returns the online user ids for groupID, sorted.
func (t *Tracker) Online(groupID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string{}, t.online[models.GroupKey(groupID)]...)
}

// Reset drops all presence and typing state.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.typing = make(map[string]map[string]typingState)
	t.online = make(map[string][]string)
}

func (t *Tracker) expired(st typingState) bool {
	return t.ttl > 0 && t.now().Sub(st.seen) >= t.ttl
}
