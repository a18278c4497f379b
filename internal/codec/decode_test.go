package codec

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"studygroup-chat/internal/models"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestDecoder() *Decoder {
	return NewDecoder(func() time.Time { return fixedNow })
}

func TestDecodeFlatMessage(t *testing.T) {
	raw := []byte(`{"type":"message","groupId":7,"id":101,"senderId":3,"senderName":"ann","content":"hi","timestamp":"2024-03-01T11:59:59Z","totalRecipients":4}`)

	ev, err := newTestDecoder().Decode(raw, "")
	require.NoError(t, err)
	require.Equal(t, models.KindMessage, ev.Kind)
	require.Equal(t, "7", ev.GroupID)
	require.NotNil(t, ev.Message)
	require.Equal(t, models.ID("101"), ev.Message.ID)
	require.Equal(t, models.ID("3"), ev.Message.SenderID)
	require.Equal(t, models.TypeText, ev.Message.Type)
	require.Equal(t, models.ID("7"), ev.Message.GroupID)
	require.Equal(t, 4, ev.Message.TotalRecipients)
	require.True(t, ev.Message.Timestamp.Equal(time.Date(2024, 3, 1, 11, 59, 59, 0, time.UTC)))
}

func TestDecodeRecoversGroupFromNestedMessage(t *testing.T) {
	raw := []byte(`{"type":"message","message":{"id":"m1","groupId":"12","content":"x","senderId":"u"}}`)

	ev, err := newTestDecoder().Decode(raw, "99")
	require.NoError(t, err)
	require.Equal(t, "12", ev.GroupID)
	require.Equal(t, models.ID("m1"), ev.Message.ID)
}

func TestDecodeFallsBackToSubscriptionGroup(t *testing.T) {
	raw := []byte(`{"type":"typing","userId":5,"userName":"bo"}`)

	ev, err := newTestDecoder().Decode(raw, "g7")
	require.NoError(t, err)
	require.Equal(t, "g7", ev.GroupID)
	require.Equal(t, models.TypingEntry{UserID: "5", UserName: "bo"}, *ev.Typing)
}

func TestDecodeObjectContentAsBody(t *testing.T) {
	d := newTestDecoder()

	ev, err := d.Decode([]byte(`{"type":"typing","content":{"groupId":5,"userId":7,"userName":"cy"}}`), "")
	require.NoError(t, err)
	require.Equal(t, models.KindTyping, ev.Kind)
	require.Equal(t, "5", ev.GroupID)
	require.Equal(t, models.TypingEntry{UserID: "7", UserName: "cy"}, *ev.Typing)

	ev, err = d.Decode([]byte(`{"type":"message","content":{"groupId":5,"id":1,"senderId":2,"content":"hi"}}`), "")
	require.NoError(t, err)
	require.Equal(t, "5", ev.GroupID)
	require.NotNil(t, ev.Message)
	require.Equal(t, models.ID("1"), ev.Message.ID)
	require.Equal(t, models.ID("2"), ev.Message.SenderID)
	require.Equal(t, "hi", ev.Message.Content)

	// string content stays a field of the top-level body
	ev, err = d.Decode([]byte(`{"type":"message","groupId":5,"id":2,"senderId":2,"content":"plain"}`), "")
	require.NoError(t, err)
	require.Equal(t, "plain", ev.Message.Content)
}

func TestDecodeMissingGroup(t *testing.T) {
	_, err := newTestDecoder().Decode([]byte(`{"type":"typing","userId":5}`), "")
	require.True(t, errors.Is(err, ErrMissingGroup))
}

func TestDecodeMalformedFrames(t *testing.T) {
	d := newTestDecoder()

	_, err := d.Decode([]byte(`{not json`), "1")
	require.True(t, errors.Is(err, ErrMalformedFrame))

	_, err = d.Decode([]byte(`[1,2]`), "1")
	require.True(t, errors.Is(err, ErrMalformedFrame))

	_, err = d.Decode([]byte(`{"type":"reaction","groupId":1}`), "1")
	require.True(t, errors.Is(err, ErrUnknownKind))
}

func TestDecodeZonelessTimestampAndDefault(t *testing.T) {
	d := newTestDecoder()

	ev, err := d.Decode([]byte(`{"type":"message","groupId":1,"id":1,"content":"a","timestamp":"2024-03-01T10:00:00"}`), "")
	require.NoError(t, err)
	require.True(t, ev.Message.Timestamp.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)))

	ev, err = d.Decode([]byte(`{"type":"message","groupId":1,"id":2,"content":"b"}`), "")
	require.NoError(t, err)
	require.True(t, ev.Message.Timestamp.Equal(fixedNow))

	ev, err = d.Decode([]byte(`{"type":"message","groupId":1,"id":3,"content":"c","timestamp":1709290800000}`), "")
	require.NoError(t, err)
	require.Equal(t, int64(1709290800000), ev.Message.Timestamp.UnixMilli())
}

func TestDecodePollFrame(t *testing.T) {
	raw := []byte(`{"type":"poll","groupId":"3","poll":{"id":55,"question":"When?","totalVotes":4,"creatorId":9,"creatorName":"kim","options":[{"id":1,"text":"Mon","votes":[1,2]}]}}`)

	ev, err := newTestDecoder().Decode(raw, "")
	require.NoError(t, err)
	require.Equal(t, models.KindPoll, ev.Kind)
	require.Equal(t, models.TypePoll, ev.Message.Type)
	require.Equal(t, models.ID("55"), ev.Message.Poll.ID)
	require.Equal(t, models.ID("9"), ev.Message.SenderID)
	require.Equal(t, "poll:55", ev.Message.Identity())

	require.NotNil(t, ev.PollPatch)
	require.Equal(t, models.ID("55"), ev.PollPatch.ID)
	require.NotNil(t, ev.PollPatch.TotalVotes)
	require.Equal(t, 4, *ev.PollPatch.TotalVotes)
	require.NotNil(t, ev.PollPatch.Question)
}

func TestDecodeBarePollBody(t *testing.T) {
	raw := []byte(`{"type":"poll","groupId":"3","id":55,"question":"When?","options":[]}`)

	ev, err := newTestDecoder().Decode(raw, "")
	require.NoError(t, err)
	require.Equal(t, models.ID("55"), ev.Message.Poll.ID)
	require.Equal(t, "When?", ev.Message.Content)
}

func TestDecodePollVote(t *testing.T) {
	raw := []byte(`{"type":"poll_vote","groupId":3,"pollId":55,"options":[{"id":1,"text":"Mon","votes":[1,2,3]}]}`)

	ev, err := newTestDecoder().Decode(raw, "")
	require.NoError(t, err)
	require.Equal(t, models.ID("55"), ev.PollPatch.ID)
	require.Nil(t, ev.PollPatch.TotalVotes)
	require.Len(t, ev.PollPatch.Options, 1)

	_, err = newTestDecoder().Decode([]byte(`{"type":"poll_vote","groupId":3}`), "")
	require.True(t, errors.Is(err, ErrMalformedFrame))
}

func TestDecodeStatus(t *testing.T) {
	raw := []byte(`{"type":"status","groupId":3,"messageId":101,"deliveredBy":[1,"2"],"readBy":[1],"totalRecipients":3}`)

	ev, err := newTestDecoder().Decode(raw, "")
	require.NoError(t, err)
	require.Equal(t, models.ID("101"), ev.Status.MessageID)
	require.Equal(t, []models.ID{"1", "2"}, ev.Status.DeliveredBy)
	require.Equal(t, 3, ev.Status.TotalRecipients)
}

func TestDecodePresence(t *testing.T) {
	raw := []byte(`{"type":"presence","groupId":3,"onlineUsers":[1,"2",{"userId":3},1]}`)

	ev, err := newTestDecoder().Decode(raw, "")
	require.NoError(t, err)
	require.Equal(t, []string{"1", "2", "3"}, ev.Online)
}

func TestDecodeSessionFrame(t *testing.T) {
	raw := []byte(`{"type":"session","groupId":3,"session":{"id":8,"title":"Exam prep","isPoll":true,"timeSlots":[{"id":1,"startTime":"2024-03-02T10:00:00","endTime":"2024-03-02T11:00:00"}]}}`)

	ev, err := newTestDecoder().Decode(raw, "")
	require.NoError(t, err)
	require.Equal(t, models.TypeSessionEvent, ev.Message.Type)
	require.Equal(t, models.ID("session-8"), ev.Message.ID)
	require.Len(t, ev.Message.Session.TimeSlots, 1)
	require.Equal(t, 10, ev.Message.Session.TimeSlots[0].StartTime.Hour())
}

func TestDecodeFileFrame(t *testing.T) {
	raw := []byte(`{"type":"file","groupId":3,"id":4,"content":"notes.pdf","fileUrl":"/files/4","fileType":"application/pdf","size":2048}`)

	ev, err := newTestDecoder().Decode(raw, "")
	require.NoError(t, err)
	require.Equal(t, models.TypeFile, ev.Message.Type)
	require.Equal(t, int64(2048), ev.Message.Size)
	require.Equal(t, "/files/4", ev.Message.FileURL)
}
