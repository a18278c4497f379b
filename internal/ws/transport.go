package ws

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"studygroup-chat/internal/models"
	"studygroup-chat/internal/observability"
)

// DefaultReconnectDelay is the fixed pause between connection attempts.
const DefaultReconnectDelay = 5 * time.Second

type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
)

// TransportConfig tunes a Transport.
type TransportConfig struct {
	ReconnectDelay time.Duration
	OutboxLimit    int
	// UserID labels lifecycle events.
	UserID string
}

// Transport owns the broker connection. It reconnects at a fixed delay,
// buffers publishes while offline and notifies hooks on state changes.
type Transport struct {
	dialer Dialer
	cfg    TransportConfig
	outbox *Outbox
	logger *zap.SugaredLogger

	mu     sync.Mutex
	state  connState
	broker Broker
	ready  chan struct{}
	cancel context.CancelFunc
	done   chan struct{}

	connected atomic.Bool

	hooksMu      sync.Mutex
	onConnect    []func()
	onLost       []func()
	onDisconnect []func()
}

// NewTransport constructs a disconnected Transport.
func NewTransport(dialer Dialer, cfg TransportConfig, logger *zap.SugaredLogger) *Transport {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	t := &Transport{
		dialer: dialer,
		cfg:    cfg,
		logger: logger.Named("transport"),
		ready:  make(chan struct{}),
	}
	t.outbox = NewOutbox(cfg.OutboxLimit, t.send, logger)
	return t
}

// OnConnect registers fn to run after every successful (re)connect, before
// the outbox is flushed.
func (t *Transport) OnConnect(fn func()) {
	t.hooksMu.Lock()
	defer t.hooksMu.Unlock()
	t.onConnect = append(t.onConnect, fn)
}

// OnConnectionLost registers fn to run when an established connection drops.
func (t *Transport) OnConnectionLost(fn func()) {
	t.hooksMu.Lock()
	defer t.hooksMu.Unlock()
	t.onLost = append(t.onLost, fn)
}

// OnDisconnect registers fn to run when Disconnect is called, while the
// connection is still usable.
func (t *Transport) OnDisconnect(fn func()) {
	t.hooksMu.Lock()
	defer t.hooksMu.Unlock()
	t.onDisconnect = append(t.onDisconnect, fn)
}

// Connect starts connecting in the background. It is a no-op when already
// connected or while an attempt is in flight.
func (t *Transport) Connect(ctx context.Context, token string) error {
	if token == "" {
		return ErrMissingToken
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != stateDisconnected {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t.state = stateConnecting
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.run(runCtx, token, t.done)
	return nil
}

// Connected reports whether the broker connection is established.
func (t *Transport) Connected() bool {
	return t.connected.Load()
}

// WaitConnected blocks until the transport is connected or ctx ends.
func (t *Transport) WaitConnected(ctx context.Context) error {
	for {
		t.mu.Lock()
		if t.state == stateConnected {
			t.mu.Unlock()
			return nil
		}
		ready := t.ready
		t.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ready:
		}
	}
}

// Publish marshals payload and sends it, queueing it while offline.
// Only marshalling failures are reported.
func (t *Transport) Publish(destination string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	t.outbox.EnqueueOrSend(models.Envelope{Destination: destination, Body: body})
	return nil
}

// Subscribe subscribes on the current connection.
func (t *Transport) Subscribe(destination string, handler func(body []byte)) (Subscription, error) {
	t.mu.Lock()
	broker := t.broker
	t.mu.Unlock()
	if broker == nil {
		return nil, ErrNotConnected
	}
	return broker.Subscribe(destination, handler)
}

// Outbox exposes the offline queue.
func (t *Transport) Outbox() *Outbox {
	return t.outbox
}

// Disconnect runs disconnect hooks, closes the connection and stops
// reconnecting.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	if t.state == stateDisconnected {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	t.runHooks(t.disconnectHooks())

	t.mu.Lock()
	cancel, done, broker := t.cancel, t.done, t.broker
	t.broker = nil
	t.cancel = nil
	if t.state == stateConnected {
		t.ready = make(chan struct{})
	}
	t.state = stateDisconnected
	t.mu.Unlock()

	t.connected.Store(false)
	observability.SetTransportConnected(false)
	if cancel != nil {
		cancel()
	}

	var err error
	if broker != nil {
		err = broker.Disconnect()
	}
	if done != nil {
		<-done
	}

	observability.IncTransportEvent("disconnect")
	_ = observability.PublishEvent(context.Background(), observability.TransportRoutingKey,
		observability.NewTransportEvent("disconnect", t.cfg.UserID, "", 0), nil)
	t.logger.Infow("transport disconnected")
	return err
}

func (t *Transport) run(ctx context.Context, token string, done chan struct{}) {
	defer close(done)
	tracer := otel.Tracer("studygroup-chat/ws")

	attempt := 0
	for {
		var broker Broker
		dial := func() error {
			attempt++
			dialCtx, span := tracer.Start(ctx, "broker.dial",
				trace.WithSpanKind(trace.SpanKindClient),
				trace.WithAttributes(attribute.Int("attempt", attempt)))
			defer span.End()

			b, err := t.dialer.Dial(dialCtx, token)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return err
			}
			broker = b
			return nil
		}
		notify := func(err error, next time.Duration) {
			t.logger.Warnw("broker connect failed", "attempt", attempt, "retry_in", next, "error", err)
			observability.IncTransportEvent("connect_error")
			_ = observability.PublishEvent(ctx, observability.TransportRoutingKey,
				observability.NewTransportEvent("connect_error", t.cfg.UserID, err.Error(), attempt), nil)
		}

		policy := backoff.WithContext(backoff.NewConstantBackOff(t.cfg.ReconnectDelay), ctx)
		if err := backoff.RetryNotify(dial, policy, notify); err != nil {
			return
		}
		if !t.established(ctx, broker, attempt) {
			_ = broker.Disconnect()
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-broker.Done():
		}
		if !t.lost(broker) {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(t.cfg.ReconnectDelay):
		}
	}
}

func (t *Transport) established(ctx context.Context, broker Broker, attempt int) bool {
	t.mu.Lock()
	if ctx.Err() != nil || t.state == stateDisconnected {
		t.mu.Unlock()
		return false
	}
	t.broker = broker
	t.state = stateConnected
	close(t.ready)
	t.mu.Unlock()

	t.connected.Store(true)
	observability.SetTransportConnected(true)
	observability.IncTransportEvent("connect")
	t.logger.Infow("transport connected", "attempt", attempt)
	_ = observability.PublishEvent(ctx, observability.TransportRoutingKey,
		observability.NewTransportEvent("connect", t.cfg.UserID, "", attempt), nil)

	t.runHooks(t.connectHooks())

	_, span := otel.Tracer("studygroup-chat/ws").Start(ctx, "outbox.flush")
	sent := t.outbox.Flush()
	span.SetAttributes(attribute.Int("sent", sent))
	span.End()
	return true
}

// lost reports whether the run loop should keep reconnecting.
func (t *Transport) lost(broker Broker) bool {
	t.mu.Lock()
	if t.broker != broker || t.state != stateConnected {
		t.mu.Unlock()
		return false
	}
	t.broker = nil
	t.state = stateConnecting
	t.ready = make(chan struct{})
	t.mu.Unlock()

	t.connected.Store(false)
	observability.SetTransportConnected(false)
	observability.IncTransportEvent("connection_lost")
	t.logger.Warnw("broker connection lost, reconnecting", "delay", t.cfg.ReconnectDelay)
	_ = observability.PublishEvent(context.Background(), observability.TransportRoutingKey,
		observability.NewTransportEvent("connection_lost", t.cfg.UserID, "", 0), nil)

	t.runHooks(t.lostHooks())
	_ = broker.Disconnect()
	return true
}

func (t *Transport) send(env models.Envelope) error {
	t.mu.Lock()
	broker := t.broker
	t.mu.Unlock()
	if broker == nil {
		return ErrNotConnected
	}
	return broker.Send(env.Destination, env.Body)
}

func (t *Transport) connectHooks() []func() {
	t.hooksMu.Lock()
	defer t.hooksMu.Unlock()
	return append([]func(){}, t.onConnect...)
}

func (t *Transport) lostHooks() []func() {
	t.hooksMu.Lock()
	defer t.hooksMu.Unlock()
	return append([]func(){}, t.onLost...)
}

func (t *Transport) disconnectHooks() []func() {
	t.hooksMu.Lock()
	defer t.hooksMu.Unlock()
	return append([]func(){}, t.onDisconnect...)
}

func (t *Transport) runHooks(hooks []func()) {
	for _, fn := range hooks {
		fn()
	}
}
