package presence

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"studygroup-chat/internal/models"
	"studygroup-chat/internal/ws"
)

// DefaultTypingIdle is how long after the last keystroke a stop is sent.
const DefaultTypingIdle = 2 * time.Second

// Publisher sends a command to the broker, queueing it while offline.
type Publisher interface {
	Publish(destination string, payload any) error
}

type typingPayload struct {
	GroupID  string `json:"groupId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// Notifier turns local keystrokes into typing and typing/stop commands.
// The first keystroke in a burst publishes typing; a stop follows once no
// keystroke arrives for the idle window.
type Notifier struct {
	pub    Publisher
	idle   time.Duration
	user   models.TypingEntry
	logger *zap.SugaredLogger

	mu     sync.Mutex
	timers map[string]*pending
}

type pending struct {
	timer *time.Timer
}

// NewNotifier builds a Notifier publishing on behalf of user.
func NewNotifier(pub Publisher, idle time.Duration, user models.TypingEntry, logger *zap.SugaredLogger) *Notifier {
	if idle <= 0 {
		idle = DefaultTypingIdle
	}
	return &Notifier{
		pub:    pub,
		idle:   idle,
		user:   user,
		logger: logger.Named("typing"),
		timers: make(map[string]*pending),
	}
}

// Keystroke records local typing activity in groupID.
func (n *Notifier) Keystroke(groupID string) {
	key := models.GroupKey(groupID)
	if key == "" {
		return
	}

	n.mu.Lock()
	if p, ok := n.timers[key]; ok {
		p.timer.Reset(n.idle)
		n.mu.Unlock()
		return
	}
	p := &pending{}
	p.timer = time.AfterFunc(n.idle, func() { n.expire(key, p) })
	n.timers[key] = p
	n.mu.Unlock()

	n.publish(key, ws.ActionTyping)
}

// Stop ends typing in groupID immediately. It reports whether a stop was sent.
func (n *Notifier) Stop(groupID string) bool {
	key := models.GroupKey(groupID)

	n.mu.Lock()
	p, ok := n.timers[key]
	if ok {
		p.timer.Stop()
		delete(n.timers, key)
	}
	n.mu.Unlock()

	if ok {
		n.publish(key, ws.ActionTypingStop)
	}
	return ok
}

// StopAll sends a stop for every group with pending typing.
func (n *Notifier) StopAll() {
	for _, key := range n.Active() {
		n.Stop(key)
	}
}

// Active returns the groups the local user is currently typing in.
func (n *Notifier) Active() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.timers))
	for key := range n.timers {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

func (n *Notifier) expire(key string, p *pending) {
	n.mu.Lock()
	if n.timers[key] != p {
		n.mu.Unlock()
		return
	}
	delete(n.timers, key)
	n.mu.Unlock()

	n.publish(key, ws.ActionTypingStop)
}

func (n *Notifier) publish(key, action string) {
	payload := typingPayload{GroupID: key, UserID: string(n.user.UserID), UserName: n.user.UserName}
	if err := n.pub.Publish(ws.AppDestination(key, action), payload); err != nil {
		n.logger.Warnw("typing publish failed", "group_id", key, "action", action, "error", err)
	}
}
