package ws_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"studygroup-chat/internal/ws"
	"studygroup-chat/internal/ws/wstest"
)

const eventually = 2 * time.Second
const tick = 5 * time.Millisecond

func newTransport(t *testing.T, d *wstest.Dialer) *ws.Transport {
	t.Helper()
	tr := ws.NewTransport(d, ws.TransportConfig{ReconnectDelay: 10 * time.Millisecond, UserID: "me"}, zap.NewNop().Sugar())
	t.Cleanup(func() { _ = tr.Disconnect() })
	return tr
}

func connect(t *testing.T, tr *ws.Transport) {
	t.Helper()
	require.NoError(t, tr.Connect(context.Background(), "token"))
	ctx, cancel := context.WithTimeout(context.Background(), eventually)
	defer cancel()
	require.NoError(t, tr.WaitConnected(ctx))
}

func TestConnectRequiresToken(t *testing.T) {
	tr := newTransport(t, wstest.NewDialer())
	require.ErrorIs(t, tr.Connect(context.Background(), ""), ws.ErrMissingToken)
}

func TestConnectIsIdempotent(t *testing.T) {
	d := wstest.NewDialer()
	tr := newTransport(t, d)

	require.NoError(t, tr.Connect(context.Background(), "token"))
	require.NoError(t, tr.Connect(context.Background(), "token"))
	connect(t, tr)
	require.NoError(t, tr.Connect(context.Background(), "token"))

	require.True(t, tr.Connected())
	require.Equal(t, 1, d.Dials())
	require.Equal(t, []string{"token"}, d.Tokens())
}

func TestPublishWhileOfflineFlushesInOrder(t *testing.T) {
	d := wstest.NewDialer()
	tr := newTransport(t, d)

	require.NoError(t, tr.Publish("/app/chat/1/send", map[string]string{"content": "A"}))
	require.NoError(t, tr.Publish("/app/chat/1/send", map[string]string{"content": "B"}))
	require.Equal(t, 2, tr.Outbox().Len())

	connect(t, tr)
	require.Eventually(t, func() bool { return len(d.Broker().Sent()) == 2 }, eventually, tick)

	sent := d.Broker().Sent()
	require.JSONEq(t, `{"content":"A"}`, string(sent[0].Body))
	require.JSONEq(t, `{"content":"B"}`, string(sent[1].Body))
	require.Equal(t, 0, tr.Outbox().Len())
}

func TestPublishWhileConnectedSendsImmediately(t *testing.T) {
	d := wstest.NewDialer()
	tr := newTransport(t, d)
	connect(t, tr)

	require.NoError(t, tr.Publish("/app/chat/1/read", map[string]int{"n": 1}))
	require.Len(t, d.Broker().SentTo("/app/chat/1/read"), 1)
}

func TestPublishRejectsUnmarshalablePayload(t *testing.T) {
	tr := newTransport(t, wstest.NewDialer())
	require.Error(t, tr.Publish("/app/x", make(chan int)))
	require.Equal(t, 0, tr.Outbox().Len())
}

func TestConnectRetriesAtFixedDelay(t *testing.T) {
	d := wstest.NewDialer()
	d.FailNext(2)
	tr := newTransport(t, d)

	connect(t, tr)
	require.Equal(t, 3, d.Dials())
}

func TestReconnectsAfterConnectionLost(t *testing.T) {
	d := wstest.NewDialer()
	tr := newTransport(t, d)
	connect(t, tr)

	d.Broker().Drop()
	require.Eventually(t, func() bool { return d.Brokers() == 2 && tr.Connected() }, eventually, tick)
}

func TestPublishDuringOutageIsFlushedAfterReconnect(t *testing.T) {
	d := wstest.NewDialer()
	tr := ws.NewTransport(d, ws.TransportConfig{ReconnectDelay: 100 * time.Millisecond}, zap.NewNop().Sugar())
	t.Cleanup(func() { _ = tr.Disconnect() })
	connect(t, tr)

	first := d.Broker()
	first.Drop()
	require.Eventually(t, func() bool { return !tr.Connected() }, eventually, tick)

	require.NoError(t, tr.Publish("/app/chat/1/send", map[string]string{"content": "late"}))
	require.Eventually(t, func() bool {
		b := d.Broker()
		return b != first && len(b.SentTo("/app/chat/1/send")) == 1
	}, eventually, tick)
}

func TestDisconnectStopsReconnecting(t *testing.T) {
	d := wstest.NewDialer()
	tr := newTransport(t, d)
	connect(t, tr)

	var disconnected bool
	tr.OnDisconnect(func() { disconnected = true })

	require.NoError(t, tr.Disconnect())
	require.True(t, disconnected)
	require.False(t, tr.Connected())
	require.ErrorIs(t, d.Broker().Send("/x", nil), wstest.ErrClosed)

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, d.Brokers())
	require.NoError(t, tr.Disconnect())
}

func TestConnectAfterDisconnectDialsAgain(t *testing.T) {
	d := wstest.NewDialer()
	tr := newTransport(t, d)
	connect(t, tr)
	require.NoError(t, tr.Disconnect())

	connect(t, tr)
	require.Equal(t, 2, d.Brokers())
}

func TestSubscribeRequiresConnection(t *testing.T) {
	tr := newTransport(t, wstest.NewDialer())
	_, err := tr.Subscribe("/topic/group/1", func([]byte) {})
	require.ErrorIs(t, err, ws.ErrNotConnected)
}
