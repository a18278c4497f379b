// Package codec normalizes inbound broker frames into models.Event.
//
// Frames arrive in several shapes depending on which backend path produced
// them: message fields may be top-level or nested under "message",
// "payload" or an object-valued "content", the group id may be a number,
// a string, nested, or missing, and timestamps may lack a zone. Decode
// hides all of that so the rest of the core only sees the canonical shape.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fastjson"

	"studygroup-chat/internal/models"
)

var (
	// ErrMalformedFrame is returned for frames that are not JSON objects.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrUnknownKind is returned for frames with an unrecognised type.
	ErrUnknownKind = errors.New("unknown frame type")
	// ErrMissingGroup is returned when no group id can be recovered.
	ErrMissingGroup = errors.New("frame has no group id")
)

var nestedBodies = []string{"message", "payload", "content"}

var groupCarriers = []string{"message", "payload", "poll", "session", "content"}

var timeKeys = map[string]struct{}{
	"timestamp": {},
	"createdAt": {},
	"startTime": {},
	"endTime":   {},
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Decoder turns raw frames into events. It is safe for concurrent use.
type Decoder struct {
	parsers fastjson.ParserPool
	arenas  fastjson.ArenaPool
	now     func() time.Time
}

// NewDecoder builds a Decoder using now for frames without a timestamp.
func NewDecoder(now func() time.Time) *Decoder {
	if now == nil {
		now = time.Now
	}
	return &Decoder{now: now}
}

// Decode parses raw. subscriptionGroup is the group of the topic the frame
// arrived on and is used when the payload carries no group id itself.
func (d *Decoder) Decode(raw []byte, subscriptionGroup string) (models.Event, error) {
	p := d.parsers.Get()
	defer d.parsers.Put(p)
	a := d.arenas.Get()
	defer d.arenas.Put(a)

	root, err := p.ParseBytes(raw)
	if err != nil {
		return models.Event{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if root.Type() != fastjson.TypeObject {
		return models.Event{}, fmt.Errorf("%w: expected object, got %s", ErrMalformedFrame, root.Type())
	}

	body := root
	for _, key := range nestedBodies {
		if nested := root.Get(key); nested != nil && nested.Type() == fastjson.TypeObject {
			body = nested
			break
		}
	}

	kind := kindOf(root, body)
	if !kind.Known() {
		return models.Event{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	groupID := groupOf(root, subscriptionGroup)
	if groupID == "" {
		return models.Event{}, ErrMissingGroup
	}

	normalizeTimes(body, a)

	ev := models.Event{Kind: kind, GroupID: groupID}
	switch kind {
	case models.KindMessage, models.KindFile, models.KindPoll, models.KindSession:
		msg, err := d.decodeMessage(kind, body, groupID)
		if err != nil {
			return models.Event{}, err
		}
		ev.Message = &msg
		if kind == models.KindPoll {
			patch, err := decodePollPatch(body)
			if err != nil {
				return models.Event{}, err
			}
			ev.PollPatch = patch
		}
	case models.KindPollVote:
		patch, err := decodePollPatch(body)
		if err != nil {
			return models.Event{}, err
		}
		if patch == nil || patch.ID == "" {
			return models.Event{}, fmt.Errorf("%w: poll_vote without poll id", ErrMalformedFrame)
		}
		ev.PollPatch = patch
	case models.KindStatus:
		var st models.StatusUpdate
		if err := unmarshalValue(body, &st); err != nil {
			return models.Event{}, err
		}
		if st.MessageID == "" {
			st.MessageID = idOf(body, "id")
		}
		if st.MessageID == "" {
			return models.Event{}, fmt.Errorf("%w: status without message id", ErrMalformedFrame)
		}
		ev.Status = &st
	case models.KindTyping, models.KindTypingStop:
		entry := models.TypingEntry{
			UserID:   idOf(body, "userId", "senderId", "user_id"),
			UserName: stringOf(body, "userName", "senderName", "username"),
		}
		if entry.UserID == "" {
			return models.Event{}, fmt.Errorf("%w: typing without user id", ErrMalformedFrame)
		}
		ev.Typing = &entry
	case models.KindPresence:
		ev.Online = onlineOf(body)
	}
	return ev, nil
}

func (d *Decoder) decodeMessage(kind models.EventKind, body *fastjson.Value, groupID string) (models.Message, error) {
	var msg models.Message
	if err := unmarshalValue(body, &msg); err != nil {
		return models.Message{}, err
	}
	msg.Type = messageType(kind, msg.Type)
	msg.GroupID = models.ID(groupID)

	switch msg.Type {
	case models.TypePoll:
		if msg.Poll == nil && body.Exists("question") {
			var poll models.Poll
			if err := unmarshalValue(body, &poll); err != nil {
				return models.Message{}, err
			}
			msg.Poll = &poll
			msg.ID = ""
			msg.Content = poll.Question
		}
		if msg.Poll == nil {
			return models.Message{}, fmt.Errorf("%w: poll frame without poll", ErrMalformedFrame)
		}
		if msg.SenderID == "" {
			msg.SenderID = msg.Poll.CreatorID
			msg.SenderName = msg.Poll.CreatorName
		}
		if msg.Timestamp.IsZero() {
			msg.Timestamp = msg.Poll.CreatedAt
		}
	case models.TypeSessionEvent:
		if msg.Session == nil && body.Exists("title") {
			var session models.Session
			if err := unmarshalValue(body, &session); err != nil {
				return models.Message{}, err
			}
			msg.Session = &session
			msg.ID = ""
		}
		if msg.Session == nil {
			return models.Message{}, fmt.Errorf("%w: session frame without session", ErrMalformedFrame)
		}
		if msg.ID == "" && msg.Session.ID != "" {
			msg.ID = models.ID("session-" + string(msg.Session.ID))
		}
	}

	if msg.Timestamp.IsZero() {
		msg.Timestamp = d.now().UTC()
	}
	return msg, nil
}

func decodePollPatch(body *fastjson.Value) (*models.PollPatch, error) {
	src := body
	if nested := body.Get("poll"); nested != nil && nested.Type() == fastjson.TypeObject {
		src = nested
	}
	var patch models.PollPatch
	if err := unmarshalValue(src, &patch); err != nil {
		return nil, err
	}
	if id := idOf(body, "pollId", "poll_id"); id != "" {
		patch.ID = id
	}
	if patch.ID == "" {
		return nil, nil
	}
	return &patch, nil
}

func unmarshalValue(v *fastjson.Value, dst any) error {
	if err := json.Unmarshal(v.MarshalTo(nil), dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return nil
}

func kindOf(root, body *fastjson.Value) models.EventKind {
	kind := strings.ToLower(strings.TrimSpace(string(root.GetStringBytes("type"))))
	if kind == "" && body != root {
		kind = strings.ToLower(strings.TrimSpace(string(body.GetStringBytes("type"))))
	}
	switch kind {
	case "text", "chat":
		return models.KindMessage
	case "session-event", "session_event":
		return models.KindSession
	case "typing-stop", "stop_typing":
		return models.KindTypingStop
	case "":
		if body.Exists("content") {
			return models.KindMessage
		}
	}
	return models.EventKind(kind)
}

func messageType(kind models.EventKind, declared models.MessageType) models.MessageType {
	switch kind {
	case models.KindFile:
		return models.TypeFile
	case models.KindPoll:
		return models.TypePoll
	case models.KindSession:
		return models.TypeSessionEvent
	}
	switch strings.ToLower(string(declared)) {
	case "file", "image":
		return models.TypeFile
	case "poll":
		return models.TypePoll
	case "session", "session-event", "session_event":
		return models.TypeSessionEvent
	default:
		return models.TypeText
	}
}

// groupOf looks for a group id at the top level, then in nested carriers,
// then falls back to the subscription's group.
func groupOf(root *fastjson.Value, subscriptionGroup string) string {
	if id := idOf(root, "groupId", "group_id"); id != "" {
		return string(id)
	}
	for _, key := range groupCarriers {
		nested := root.Get(key)
		if nested == nil || nested.Type() != fastjson.TypeObject {
			continue
		}
		if id := idOf(nested, "groupId", "group_id"); id != "" {
			return string(id)
		}
	}
	return models.GroupKey(subscriptionGroup)
}

func idOf(v *fastjson.Value, keys ...string) models.ID {
	for _, key := range keys {
		if id := idValue(v.Get(key)); id != "" {
			return id
		}
	}
	return ""
}

func idValue(v *fastjson.Value) models.ID {
	if v == nil {
		return ""
	}
	switch v.Type() {
	case fastjson.TypeString:
		return models.ID(strings.TrimSpace(string(v.GetStringBytes())))
	case fastjson.TypeNumber:
		return models.ID(models.GroupKey(json.Number(v.String())))
	case fastjson.TypeObject:
		return idOf(v, "userId", "id")
	}
	return ""
}

func stringOf(v *fastjson.Value, keys ...string) string {
	for _, key := range keys {
		if s := v.GetStringBytes(key); len(s) > 0 {
			return string(s)
		}
	}
	return ""
}

func onlineOf(body *fastjson.Value) []string {
	for _, key := range []string{"onlineUsers", "users", "online", "userIds"} {
		arr := body.GetArray(key)
		if arr == nil {
			continue
		}
		ids := make([]models.ID, 0, len(arr))
		for _, item := range arr {
			ids = append(ids, idValue(item))
		}
		return models.IDs(ids)
	}
	return []string{}
}

// normalizeTimes rewrites known timestamp fields into RFC 3339 so that
// encoding/json can decode them into time.Time. Unparseable values are
// dropped.
func normalizeTimes(v *fastjson.Value, a *fastjson.Arena) {
	switch v.Type() {
	case fastjson.TypeArray:
		for _, item := range v.GetArray() {
			normalizeTimes(item, a)
		}
	case fastjson.TypeObject:
		obj := v.GetObject()
		var keys []string
		obj.Visit(func(key []byte, _ *fastjson.Value) {
			keys = append(keys, string(key))
		})
		for _, key := range keys {
			child := obj.Get(key)
			if _, ok := timeKeys[key]; !ok {
				normalizeTimes(child, a)
				continue
			}
			if child.Type() == fastjson.TypeNull {
				obj.Del(key)
				continue
			}
			ts, ok := parseTime(child)
			if !ok {
				obj.Del(key)
				continue
			}
			obj.Set(key, a.NewString(ts.UTC().Format(time.RFC3339Nano)))
		}
	}
}

func parseTime(v *fastjson.Value) (time.Time, bool) {
	switch v.Type() {
	case fastjson.TypeNumber:
		ms, err := v.Int64()
		if err != nil {
			return time.Time{}, false
		}
		return time.UnixMilli(ms), true
	case fastjson.TypeString:
		s := strings.TrimSpace(string(v.GetStringBytes()))
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}
