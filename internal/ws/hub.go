package ws

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"studygroup-chat/internal/models"
	"studygroup-chat/internal/observability"
)

// InboundHandler receives every frame pushed on a group's topics.
type InboundHandler func(groupID string, body []byte)

// hubTransport is the part of Transport the Hub depends on.
type hubTransport interface {
	Subscribe(destination string, handler func(body []byte)) (Subscription, error)
	Connected() bool
	OnConnect(fn func())
	OnConnectionLost(fn func())
	OnDisconnect(fn func())
}

// Record is the bookkeeping for one group's live feed.
type Record struct {
	GroupID      string
	Listeners    int
	SubscribedAt time.Time
	handles      []Subscription
}

// Live reports whether the record currently holds broker subscriptions.
func (r *Record) Live() bool {
	return len(r.handles) > 0
}

// Hub reference-counts interest in group feeds so that several consumers
// can share one subscription pair per group. A group is subscribed on the
// first Acquire and unsubscribed when the last listener releases it.
type Hub struct {
	transport hubTransport
	inbound   InboundHandler
	logger    *zap.SugaredLogger

	mu      sync.Mutex
	records map[string]*Record
}

// NewHub creates an empty hub and wires it to the transport lifecycle.
func NewHub(transport hubTransport, inbound InboundHandler, logger *zap.SugaredLogger) *Hub {
	h := &Hub{
		transport: transport,
		inbound:   inbound,
		logger:    logger.Named("hub"),
		records:   make(map[string]*Record),
	}
	transport.OnConnect(h.resubscribe)
	transport.OnConnectionLost(h.markLost)
	transport.OnDisconnect(h.reset)
	return h
}

// Acquire registers one more listener for groupID and returns the new count.
// The first listener establishes the subscription, or leaves it pending
// until the transport connects.
func (h *Hub) Acquire(groupID string) (int, error) {
	key := models.GroupKey(groupID)
	if key == "" {
		return 0, ErrInvalidGroup
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	rec, ok := h.records[key]
	if !ok {
		rec = &Record{GroupID: key}
		h.records[key] = rec
	}
	rec.Listeners++
	if rec.Listeners == 1 && h.transport.Connected() {
		h.subscribeLocked(rec)
	}
	observability.SetActiveSubscriptions(len(h.records))
	return rec.Listeners, nil
}

// Release drops one listener, or all of them when force is set, and tears
// the subscription down once none remain. It returns the remaining count.
func (h *Hub) Release(groupID string, force bool) (int, error) {
	key := models.GroupKey(groupID)
	if key == "" {
		return 0, ErrInvalidGroup
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	rec, ok := h.records[key]
	if !ok {
		return 0, nil
	}
	if force || rec.Listeners <= 1 {
		rec.Listeners = 0
	} else {
		rec.Listeners--
	}
	if rec.Listeners > 0 {
		return rec.Listeners, nil
	}

	h.unsubscribeLocked(rec)
	delete(h.records, key)
	observability.SetActiveSubscriptions(len(h.records))
	return 0, nil
}

// Listeners returns the listener count for groupID.
func (h *Hub) Listeners(groupID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if rec, ok := h.records[models.GroupKey(groupID)]; ok {
		return rec.Listeners
	}
	return 0
}

// Active returns the groups with a live subscription, sorted.
func (h *Hub) Active() []string {
	return h.groups(func(r *Record) bool { return r.Live() })
}

// Pending returns the groups waiting for a connection to subscribe, sorted.
func (h *Hub) Pending() []string {
	return h.groups(func(r *Record) bool { return !r.Live() })
}

func (h *Hub) groups(match func(*Record) bool) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.records))
	for key, rec := range h.records {
		if match(rec) {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

// resubscribe re-establishes every group that still has listeners. Counts
// are left untouched and groups already live are skipped.
func (h *Hub) resubscribe() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, rec := range h.records {
		if rec.Listeners > 0 {
			h.subscribeLocked(rec)
		}
	}
	h.logger.Infow("groups resubscribed", "groups", len(h.records))
}

// markLost forgets handles that belonged to a dropped connection.
func (h *Hub) markLost() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, rec := range h.records {
		rec.handles = nil
	}
}

// reset unsubscribes everything and clears all bookkeeping.
func (h *Hub) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key, rec := range h.records {
		h.unsubscribeLocked(rec)
		delete(h.records, key)
	}
	observability.SetActiveSubscriptions(0)
}

func (h *Hub) subscribeLocked(rec *Record) {
	if rec.Live() {
		return
	}
	groupID := rec.GroupID
	handler := func(body []byte) {
		if h.inbound != nil {
			h.inbound(groupID, body)
		}
	}

	handles := make([]Subscription, 0, 2)
	for _, topic := range GroupTopics(groupID) {
		sub, err := h.transport.Subscribe(topic, handler)
		if err != nil {
			h.logger.Warnw("subscribe failed, group left pending", "group_id", groupID, "topic", topic, "error", err)
			for _, s := range handles {
				_ = s.Unsubscribe()
			}
			return
		}
		handles = append(handles, sub)
	}
	rec.handles = handles
	rec.SubscribedAt = time.Now()
	h.logger.Debugw("group subscribed", "group_id", groupID)
}

func (h *Hub) unsubscribeLocked(rec *Record) {
	for _, sub := range rec.handles {
		if err := sub.Unsubscribe(); err != nil {
			h.logger.Warnw("unsubscribe failed", "group_id", rec.GroupID, "error", err)
		}
	}
	rec.handles = nil
	h.logger.Debugw("group unsubscribed", "group_id", rec.GroupID)
}
