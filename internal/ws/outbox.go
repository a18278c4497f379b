package ws

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"studygroup-chat/internal/models"
	"studygroup-chat/internal/observability"
)

// DefaultOutboxLimit caps the number of envelopes held while offline.
const DefaultOutboxLimit = 500

// Outbox buffers publishes made while the transport is offline and replays
// them in enqueue order. When full, the oldest envelope is evicted.
type Outbox struct {
	mu     sync.Mutex
	items  []models.Envelope
	limit  int
	send   func(models.Envelope) error
	logger *zap.SugaredLogger
}

// NewOutbox constructs an Outbox that publishes through send.
// A non-positive limit selects DefaultOutboxLimit.
func NewOutbox(limit int, send func(models.Envelope) error, logger *zap.SugaredLogger) *Outbox {
	if limit <= 0 {
		limit = DefaultOutboxLimit
	}
	return &Outbox{limit: limit, send: send, logger: logger.Named("outbox")}
}

// EnqueueOrSend publishes env immediately when possible, otherwise queues it.
// Envelopes are never sent ahead of ones already queued: a non-empty queue
// is drained first, and env is queued behind whatever remains. It reports
// whether env went out immediately.
func (o *Outbox) EnqueueOrSend(env models.Envelope) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.items) > 0 {
		o.drainLocked()
	}
	if len(o.items) == 0 {
		err := o.send(env)
		if err == nil {
			observability.IncPublished("sent")
			return true
		}
		if !errors.Is(err, ErrNotConnected) {
			o.logger.Warnw("publish failed, queueing", "destination", env.Destination, "error", err)
		}
	}

	if len(o.items) >= o.limit {
		dropped := o.items[0]
		o.items = o.items[1:]
		observability.IncOutboxEvicted()
		o.logger.Warnw("outbox full, dropping oldest", "destination", dropped.Destination, "limit", o.limit)
	}
	o.items = append(o.items, env)
	observability.IncPublished("queued")
	observability.SetOutboxDepth(len(o.items))
	return false
}

// Flush publishes queued envelopes in FIFO order. It stops at the first
// failure and keeps the remainder queued. It returns the number sent.
func (o *Outbox) Flush() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.drainLocked()
}

func (o *Outbox) drainLocked() int {
	sent := 0
	for len(o.items) > 0 {
		if err := o.send(o.items[0]); err != nil {
			if !errors.Is(err, ErrNotConnected) || sent > 0 {
				o.logger.Warnw("flush interrupted", "remaining", len(o.items), "error", err)
			}
			break
		}
		o.items = o.items[1:]
		sent++
	}
	if len(o.items) == 0 {
		o.items = nil
	}
	if sent > 0 {
		o.logger.Infow("outbox flushed", "sent", sent)
	}
	observability.SetOutboxDepth(len(o.items))
	return sent
}

// Len returns the number of queued envelopes.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}

// Pending returns a copy of the queued envelopes in send order.
func (o *Outbox) Pending() []models.Envelope {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]models.Envelope(nil), o.items...)
}
