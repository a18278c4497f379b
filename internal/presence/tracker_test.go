package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"studygroup-chat/internal/models"
)

func newTestTracker(ttl time.Duration) (*Tracker, *time.Time) {
	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(ttl, zap.NewNop().Sugar())
	tr.now = func() time.Time { return clock }
	return tr, &clock
}

func TestTypingAddReplaceAndStop(t *testing.T) {
	tr, _ := newTestTracker(0)

	require.True(t, tr.SetTyping("g1", models.TypingEntry{UserID: "u2", UserName: "Bo"}))
	require.True(t, tr.SetTyping("g1", models.TypingEntry{UserID: "u1", UserName: "Al"}))
	require.False(t, tr.SetTyping("g1", models.TypingEntry{UserID: "u1", UserName: "Al"}))
	require.True(t, tr.SetTyping("g1", models.TypingEntry{UserID: "u1", UserName: "Alice"}))

	require.Equal(t, []models.TypingEntry{
		{UserID: "u1", UserName: "Alice"},
		{UserID: "u2", UserName: "Bo"},
	}, tr.Typing("g1"))

	require.True(t, tr.ClearTyping("g1", "u1"))
	require.False(t, tr.ClearTyping("g1", "u1"))
	require.Len(t, tr.Typing("g1"), 1)
}

func TestTypingRejectsEmptyKeys(t *testing.T) {
	tr, _ := newTestTracker(0)

	require.False(t, tr.SetTyping("", models.TypingEntry{UserID: "u1"}))
	require.False(t, tr.SetTyping("g1", models.TypingEntry{}))
	require.False(t, tr.ClearTyping("", "u1"))
	require.Empty(t, tr.Typing("g1"))
}

func TestPeerTypingExpires(t *testing.T) {
	tr, clock := newTestTracker(6 * time.Second)
	tr.SetTyping("g1", models.TypingEntry{UserID: "u1"})

	*clock = clock.Add(5 * time.Second)
	require.Len(t, tr.Typing("g1"), 1)

	*clock = clock.Add(time.Second)
	require.Empty(t, tr.Typing("g1"))

	require.True(t, tr.SetTyping("g1", models.TypingEntry{UserID: "u1"}))
}

func TestPresenceIsReplacedWholesale(t *testing.T) {
	tr, _ := newTestTracker(0)

	require.True(t, tr.SetPresence("42", []string{"b", "a", "a", ""}))
	require.Equal(t, []string{"a", "b"}, tr.Online(models.GroupKey(42)))

	tr.SetPresence("42", []string{"c"})
	require.Equal(t, []string{"c"}, tr.Online("42"))

	require.False(t, tr.SetPresence("", []string{"x"}))
	require.Empty(t, tr.Online("unknown"))
}

func TestTrackerReset(t *testing.T) {
	tr, _ := newTestTracker(0)
	tr.SetPresence("g1", []string{"a"})
	tr.SetTyping("g1", models.TypingEntry{UserID: "u1"})

	tr.Reset()
	require.Empty(t, tr.Online("g1"))
	require.Empty(t, tr.Typing("g1"))
}
