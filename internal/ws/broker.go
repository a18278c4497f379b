package ws

import (
	"context"
	"errors"
)

var (
	// ErrNotConnected is returned by operations that need a live broker connection.
	ErrNotConnected = errors.New("transport not connected")
	// ErrMissingToken is returned by Connect when no auth token is supplied.
	ErrMissingToken = errors.New("missing auth token")
	// ErrInvalidGroup is returned for empty group identifiers.
	ErrInvalidGroup = errors.New("invalid group id")
)

// Broker is a single established publish/subscribe connection.
type Broker interface {
	Send(destination string, body []byte) error
	Subscribe(destination string, handler func(body []byte)) (Subscription, error)
	// Done is closed when the underlying connection is lost.
	Done() <-chan struct{}
	Disconnect() error
}

// Subscription is a live topic subscription on a Broker.
type Subscription interface {
	Unsubscribe() error
}

// Dialer opens broker connections authenticated with a bearer token.
type Dialer interface {
	Dial(ctx context.Context, token string) (Broker, error)
}
