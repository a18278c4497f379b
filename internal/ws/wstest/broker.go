// Package wstest provides an in-memory broker for exercising ws.Transport
// and its consumers without a network.
package wstest

import (
	"context"
	"errors"
	"sort"
	"sync"

	"studygroup-chat/internal/models"
	"studygroup-chat/internal/ws"
)

// ErrClosed is returned by operations on a dropped broker.
var ErrClosed = errors.New("wstest: broker closed")

// ErrDial is returned for dials configured to fail.
var ErrDial = errors.New("wstest: dial refused")

// Dialer hands out in-memory brokers.
type Dialer struct {
	mu      sync.Mutex
	failN   int
	tokens  []string
	brokers []*Broker
}

// NewDialer returns a Dialer whose dials succeed.
func NewDialer() *Dialer {
	return &Dialer{}
}

// FailNext makes the next n dials fail.
func (d *Dialer) FailNext(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failN = n
}

// Dial implements ws.Dialer.
func (d *Dialer) Dial(ctx context.Context, token string) (ws.Broker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tokens = append(d.tokens, token)
	if d.failN > 0 {
		d.failN--
		return nil, ErrDial
	}
	b := newBroker()
	d.brokers = append(d.brokers, b)
	return b, nil
}

// Dials returns the number of dial attempts.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tokens)
}

// Tokens returns the tokens passed to Dial in order.
func (d *Dialer) Tokens() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.tokens...)
}

// Broker returns the most recently dialed broker, or nil.
func (d *Dialer) Broker() *Broker {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.brokers) == 0 {
		return nil
	}
	return d.brokers[len(d.brokers)-1]
}

// Brokers returns the number of successful dials.
func (d *Dialer) Brokers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.brokers)
}

type subscription struct {
	broker      *Broker
	destination string
	handler     func([]byte)
	active      bool
}

func (s *subscription) Unsubscribe() error {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	if s.broker.closed {
		return ErrClosed
	}
	s.active = false
	return nil
}

// Broker is an in-memory ws.Broker that records sends and lets tests push
// frames to subscribers.
type Broker struct {
	mu         sync.Mutex
	sent       []models.Envelope
	subs       []*subscription
	closed     bool
	failSends  bool
	done       chan struct{}
	subscribed map[string]int
}

func newBroker() *Broker {
	return &Broker{done: make(chan struct{}), subscribed: make(map[string]int)}
}

// Send implements ws.Broker.
func (b *Broker) Send(destination string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if b.failSends {
		return errors.New("wstest: send refused")
	}
	b.sent = append(b.sent, models.Envelope{Destination: destination, Body: append([]byte(nil), body...)})
	return nil
}

// Subscribe implements ws.Broker.
func (b *Broker) Subscribe(destination string, handler func([]byte)) (ws.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	sub := &subscription{broker: b, destination: destination, handler: handler, active: true}
	b.subs = append(b.subs, sub)
	b.subscribed[destination]++
	return sub, nil
}

// Done implements ws.Broker.
func (b *Broker) Done() <-chan struct{} {
	return b.done
}

// Disconnect implements ws.Broker.
func (b *Broker) Disconnect() error {
	b.Drop()
	return nil
}

// Drop simulates the connection being lost.
func (b *Broker) Drop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.done)
}

// FailSends makes subsequent sends fail without closing the broker.
func (b *Broker) FailSends(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failSends = fail
}

// Deliver pushes body to every active subscriber of destination and returns
// how many handlers received it.
func (b *Broker) Deliver(destination string, body []byte) int {
	b.mu.Lock()
	var handlers []func([]byte)
	for _, s := range b.subs {
		if s.active && s.destination == destination {
			handlers = append(handlers, s.handler)
		}
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(body)
	}
	return len(handlers)
}

// Sent returns every envelope sent so far.
func (b *Broker) Sent() []models.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.Envelope(nil), b.sent...)
}

// SentTo returns the bodies sent to destination.
func (b *Broker) SentTo(destination string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out [][]byte
	for _, env := range b.sent {
		if env.Destination == destination {
			out = append(out, env.Body)
		}
	}
	return out
}

// Active returns the destinations with an active subscription, sorted,
// one entry per subscription.
func (b *Broker) Active() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, s := range b.subs {
		if s.active {
			out = append(out, s.destination)
		}
	}
	sort.Strings(out)
	return out
}

// SubscribeCalls returns how many times destination was subscribed.
func (b *Broker) SubscribeCalls(destination string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subscribed[destination]
}
