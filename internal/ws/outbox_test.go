package ws

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"studygroup-chat/internal/models"
)

type recordingSender struct {
	online bool
	failAt int
	sent   []string
}

func (r *recordingSender) send(env models.Envelope) error {
	if !r.online {
		return ErrNotConnected
	}
	if r.failAt > 0 && len(r.sent)+1 == r.failAt {
		r.failAt = 0
		return errors.New("boom")
	}
	r.sent = append(r.sent, env.Destination)
	return nil
}

func env(dest string) models.Envelope {
	return models.Envelope{Destination: dest, Body: []byte(`{}`)}
}

func TestOutboxSendsImmediatelyWhenOnline(t *testing.T) {
	sender := &recordingSender{online: true}
	box := NewOutbox(10, sender.send, zap.NewNop().Sugar())

	require.True(t, box.EnqueueOrSend(env("a")))
	require.Equal(t, []string{"a"}, sender.sent)
	require.Equal(t, 0, box.Len())
}

func TestOutboxQueuesOfflineAndFlushesFIFO(t *testing.T) {
	sender := &recordingSender{}
	box := NewOutbox(10, sender.send, zap.NewNop().Sugar())

	require.False(t, box.EnqueueOrSend(env("A")))
	require.False(t, box.EnqueueOrSend(env("B")))
	require.Equal(t, 2, box.Len())

	sender.online = true
	require.Equal(t, 2, box.Flush())
	require.Equal(t, []string{"A", "B"}, sender.sent)
	require.Equal(t, 0, box.Len())
}

func TestOutboxNeverSendsAheadOfQueue(t *testing.T) {
	sender := &recordingSender{}
	box := NewOutbox(10, sender.send, zap.NewNop().Sugar())
	box.EnqueueOrSend(env("A"))
	require.False(t, box.EnqueueOrSend(env("B")))
	require.Empty(t, sender.sent)

	sender.online = true
	require.True(t, box.EnqueueOrSend(env("C")))
	require.Equal(t, []string{"A", "B", "C"}, sender.sent)
	require.Equal(t, 0, box.Len())
}

func TestOutboxRetriesQueueAfterSendFailureWhileConnected(t *testing.T) {
	sender := &recordingSender{online: true, failAt: 1}
	box := NewOutbox(10, sender.send, zap.NewNop().Sugar())

	require.False(t, box.EnqueueOrSend(env("A")))
	require.Equal(t, 1, box.Len())
	require.Empty(t, sender.sent)

	require.True(t, box.EnqueueOrSend(env("B")))
	require.Equal(t, []string{"A", "B"}, sender.sent)
	require.Equal(t, 0, box.Len())
}

func TestOutboxQueuesBehindUndrainableRemainder(t *testing.T) {
	sender := &recordingSender{online: true, failAt: 1}
	box := NewOutbox(10, sender.send, zap.NewNop().Sugar())
	require.False(t, box.EnqueueOrSend(env("A")))

	sender.online = false
	require.False(t, box.EnqueueOrSend(env("B")))

	pending := box.Pending()
	require.Len(t, pending, 2)
	require.Equal(t, "A", pending[0].Destination)
	require.Equal(t, "B", pending[1].Destination)
}

func TestOutboxEvictsOldestWhenFull(t *testing.T) {
	sender := &recordingSender{}
	box := NewOutbox(2, sender.send, zap.NewNop().Sugar())

	box.EnqueueOrSend(env("A"))
	box.EnqueueOrSend(env("B"))
	box.EnqueueOrSend(env("C"))

	pending := box.Pending()
	require.Len(t, pending, 2)
	require.Equal(t, "B", pending[0].Destination)
	require.Equal(t, "C", pending[1].Destination)
}

func TestOutboxFlushKeepsRemainderOnFailure(t *testing.T) {
	sender := &recordingSender{}
	box := NewOutbox(10, sender.send, zap.NewNop().Sugar())
	box.EnqueueOrSend(env("A"))
	box.EnqueueOrSend(env("B"))
	box.EnqueueOrSend(env("C"))

	sender.online = true
	sender.failAt = 2
	require.Equal(t, 1, box.Flush())
	require.Equal(t, 2, box.Len())

	require.Equal(t, 2, box.Flush())
	require.Equal(t, []string{"A", "B", "C"}, sender.sent)
}

func TestOutboxDefaultLimit(t *testing.T) {
	box := NewOutbox(0, (&recordingSender{}).send, zap.NewNop().Sugar())
	require.Equal(t, DefaultOutboxLimit, box.limit)
}

func TestDestinations(t *testing.T) {
	require.Equal(t, []string{"/topic/group/7", "/topic/group/7/events"}, GroupTopics("7"))
	require.Equal(t, "/app/chat/7/typing/stop", AppDestination("7", ActionTypingStop))
}
