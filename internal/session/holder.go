package session

import (
	"context"
	"sync"

	"studygroup-chat/internal/models"
)

// Factory starts a Session for identity.
type Factory func(ctx context.Context, identity models.Identity) (*Session, error)

// Holder keeps the current Session and swaps it on login and logout.
type Holder struct {
	factory Factory

	mu      sync.RWMutex
	current *Session
}

func NewHolder(factory Factory) *Holder {
	return &Holder{factory: factory}
}

// Login starts a session for identity and closes the previous one.
func (h *Holder) Login(ctx context.Context, identity models.Identity) (*Session, error) {
	next, err := h.factory(ctx, identity)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	prev := h.current
	h.current = next
	h.mu.Unlock()

	if prev != nil {
		_ = prev.Close(ctx)
	}
	return next, nil
}

// Logout closes the current session, if any. It reports whether one was open.
func (h *Holder) Logout(ctx context.Context) (bool, error) {
	h.mu.Lock()
	prev := h.current
	h.current = nil
	h.mu.Unlock()

	if prev == nil {
		return false, nil
	}
	return true, prev.Close(ctx)
}

// Current returns the open session.
func (h *Holder) Current() (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current, h.current != nil
}
