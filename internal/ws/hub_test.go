package ws_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"studygroup-chat/internal/models"
	"studygroup-chat/internal/ws"
	"studygroup-chat/internal/ws/wstest"
)

type inbox struct {
	mu     sync.Mutex
	frames map[string][]string
}

func (i *inbox) handle(groupID string, body []byte) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.frames == nil {
		i.frames = map[string][]string{}
	}
	i.frames[groupID] = append(i.frames[groupID], string(body))
}

func (i *inbox) get(groupID string) []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.frames[groupID]...)
}

func newHub(t *testing.T) (*ws.Hub, *ws.Transport, *wstest.Dialer, *inbox) {
	t.Helper()
	d := wstest.NewDialer()
	tr := newTransport(t, d)
	in := &inbox{}
	hub := ws.NewHub(tr, in.handle, zap.NewNop().Sugar())
	return hub, tr, d, in
}

func TestHubRefCountsSubscriptions(t *testing.T) {
	hub, tr, d, _ := newHub(t)
	connect(t, tr)

	n, err := hub.Acquire("g1")
	require.NoError(t, err)
	require.Equal(t, 1, n)
	n, err = hub.Acquire("g1")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	require.Equal(t, []string{"g1"}, hub.Active())
	require.Equal(t, 1, d.Broker().SubscribeCalls("/topic/group/g1"))
	require.Equal(t, []string{"/topic/group/g1", "/topic/group/g1/events"}, d.Broker().Active())

	n, err = hub.Release("g1", false)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, []string{"g1"}, hub.Active())

	n, err = hub.Release("g1", false)
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.Empty(t, hub.Active())
	require.Empty(t, d.Broker().Active())
}

func TestHubNormalizesGroupIDs(t *testing.T) {
	hub, tr, d, _ := newHub(t)
	connect(t, tr)

	_, err := hub.Acquire(models.GroupKey(42))
	require.NoError(t, err)
	_, err = hub.Acquire("42")
	require.NoError(t, err)

	require.Equal(t, 2, hub.Listeners("42"))
	require.Equal(t, 1, d.Broker().SubscribeCalls("/topic/group/42"))
}

func TestHubRejectsEmptyGroup(t *testing.T) {
	hub, _, _, _ := newHub(t)

	_, err := hub.Acquire("  ")
	require.ErrorIs(t, err, ws.ErrInvalidGroup)
	_, err = hub.Release("", false)
	require.ErrorIs(t, err, ws.ErrInvalidGroup)
}

func TestHubReleaseUnknownGroupIsNoop(t *testing.T) {
	hub, _, _, _ := newHub(t)

	n, err := hub.Release("nope", false)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestHubForceRelease(t *testing.T) {
	hub, tr, d, _ := newHub(t)
	connect(t, tr)

	hub.Acquire("g1")
	hub.Acquire("g1")
	hub.Acquire("g1")

	n, err := hub.Release("g1", true)
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.Empty(t, d.Broker().Active())
}

func TestHubPendingUntilConnected(t *testing.T) {
	hub, tr, d, _ := newHub(t)

	hub.Acquire("g1")
	require.Equal(t, []string{"g1"}, hub.Pending())
	require.Empty(t, hub.Active())

	connect(t, tr)
	require.Eventually(t, func() bool { return len(hub.Active()) == 1 }, eventually, tick)
	require.Equal(t, 1, hub.Listeners("g1"))
	require.Equal(t, 1, d.Broker().SubscribeCalls("/topic/group/g1"))
}

func TestHubResubscribesAfterReconnectWithoutCounting(t *testing.T) {
	hub, tr, d, _ := newHub(t)
	connect(t, tr)
	hub.Acquire("g1")
	hub.Acquire("g1")
	first := d.Broker()

	first.Drop()
	require.Eventually(t, func() bool {
		b := d.Broker()
		return b != first && b.SubscribeCalls("/topic/group/g1") == 1 && b.SubscribeCalls("/topic/group/g1/events") == 1
	}, eventually, tick)
	require.Equal(t, 2, hub.Listeners("g1"))
}

func TestHubKeepsFeedForRemainingConsumer(t *testing.T) {
	hub, tr, d, in := newHub(t)
	connect(t, tr)

	hub.Acquire("g7")
	hub.Acquire("g7")
	hub.Release("g7", false)

	delivered := d.Broker().Deliver("/topic/group/g7", []byte(`{"type":"message"}`))
	require.Equal(t, 1, delivered)
	require.Equal(t, []string{`{"type":"message"}`}, in.get("g7"))
}

func TestHubDisconnectClearsBookkeeping(t *testing.T) {
	hub, tr, d, _ := newHub(t)
	connect(t, tr)
	hub.Acquire("g1")
	hub.Acquire("g2")
	broker := d.Broker()

	require.NoError(t, tr.Disconnect())
	require.Equal(t, 0, hub.Listeners("g1"))
	require.Empty(t, hub.Active())
	require.Empty(t, hub.Pending())
	require.Empty(t, broker.Active())
}
