package ws

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-stomp/stomp/v3"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const disconnectTimeout = 5 * time.Second

// StompDialer connects to a STOMP broker exposed over a WebSocket endpoint.
type StompDialer struct {
	url       string
	host      string
	heartbeat time.Duration
	ws        *websocket.Dialer
	logger    *zap.SugaredLogger
}

// NewStompDialer constructs a StompDialer for url. host is sent as the
// STOMP virtual host when non-empty.
func NewStompDialer(url, host string, heartbeat time.Duration, logger *zap.SugaredLogger) *StompDialer {
	return &StompDialer{
		url:       url,
		host:      host,
		heartbeat: heartbeat,
		ws: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 15 * time.Second,
			Subprotocols:     []string{"v12.stomp", "v11.stomp", "v10.stomp"},
		},
		logger: logger.Named("stomp"),
	}
}

// Dial opens the websocket and performs the STOMP CONNECT handshake.
func (d *StompDialer) Dial(ctx context.Context, token string) (Broker, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := d.ws.DialContext(ctx, d.url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial broker: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial broker: %w", err)
	}

	rwc := newWSConn(conn)
	opts := []func(*stomp.Conn) error{
		stomp.ConnOpt.Header("Authorization", "Bearer "+token),
		stomp.ConnOpt.HeartBeat(d.heartbeat, d.heartbeat),
	}
	if d.host != "" {
		opts = append(opts, stomp.ConnOpt.Host(d.host))
	}

	sc, err := stomp.Connect(rwc, opts...)
	if err != nil {
		_ = rwc.Close()
		return nil, fmt.Errorf("stomp connect: %w", err)
	}
	return &stompBroker{conn: sc, rwc: rwc, logger: d.logger}, nil
}

type stompBroker struct {
	conn   *stomp.Conn
	rwc    *wsConn
	logger *zap.SugaredLogger
}

func (b *stompBroker) Send(destination string, body []byte) error {
	return b.conn.Send(destination, "application/json", body)
}

func (b *stompBroker) Subscribe(destination string, handler func(body []byte)) (Subscription, error) {
	sub, err := b.conn.Subscribe(destination, stomp.AckAuto)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", destination, err)
	}

	go func() {
		for msg := range sub.C {
			if msg.Err != nil {
				b.logger.Warnw("subscription error", "destination", destination, "error", msg.Err)
				continue
			}
			handler(msg.Body)
		}
	}()
	return stompSubscription{sub: sub}, nil
}

func (b *stompBroker) Done() <-chan struct{} {
	return b.rwc.done
}

func (b *stompBroker) Disconnect() error {
	select {
	case <-b.rwc.done:
		err := b.conn.MustDisconnect()
		_ = b.rwc.Close()
		return err
	default:
	}

	graceful := make(chan error, 1)
	go func() { graceful <- b.conn.Disconnect() }()

	var err error
	select {
	case err = <-graceful:
	case <-time.After(disconnectTimeout):
		b.logger.Warnw("graceful disconnect timed out", "timeout", disconnectTimeout)
		err = b.conn.MustDisconnect()
	}
	_ = b.rwc.Close()
	return err
}

type stompSubscription struct {
	sub *stomp.Subscription
}

func (s stompSubscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}
