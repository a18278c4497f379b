package store

import "sync"

// ChangeKind says which part of a group's state changed.
type ChangeKind string

const (
	ChangeMessages ChangeKind = "messages"
	ChangeTyping   ChangeKind = "typing"
	ChangePresence ChangeKind = "presence"
	// ChangeReset is sent with an empty GroupID when all state was dropped.
	ChangeReset ChangeKind = "reset"
)

// Change notifies watchers that GroupID's state of the given kind moved.
type Change struct {
	GroupID string     `json:"groupId"`
	Kind    ChangeKind `json:"kind"`
}

type watchers struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Change
}

// Watch returns a channel receiving every change and a function that
// unregisters it. A watcher whose buffer is full misses changes instead
// of blocking writers.
func (s *Store) Watch(buffer int) (<-chan Change, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Change, buffer)

	w := &s.watchers
	w.mu.Lock()
	id := w.next
	w.next++
	w.subs[id] = ch
	w.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			w.mu.Lock()
			delete(w.subs, id)
			w.mu.Unlock()
			close(ch)
		})
	}
}

func (w *watchers) notify(c Change) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ch := range w.subs {
		select {
		case ch <- c:
		default:
		}
	}
}
