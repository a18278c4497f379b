package store

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"studygroup-chat/internal/models"
	"studygroup-chat/internal/ws"
)

type sendPayload struct {
	GroupID    string             `json:"groupId"`
	Type       models.MessageType `json:"type"`
	Content    string             `json:"content"`
	SenderID   models.ID          `json:"senderId"`
	SenderName string             `json:"senderName"`
	TempID     models.ID          `json:"tempId"`
	FileURL    string             `json:"fileUrl,omitempty"`
	FileType   string             `json:"fileType,omitempty"`
	Size       int64              `json:"size,omitempty"`
}

type pollCreatePayload struct {
	GroupID       string    `json:"groupId"`
	TempID        models.ID `json:"tempId"`
	Question      string    `json:"question"`
	Options       []string  `json:"options"`
	AllowMultiple bool      `json:"allowMultiple"`
	Anonymous     bool      `json:"anonymous"`
	CreatorID     models.ID `json:"creatorId"`
	CreatorName   string    `json:"creatorName"`
}

type pollVotePayload struct {
	GroupID   string   `json:"groupId"`
	PollID    string   `json:"pollId"`
	OptionIDs []string `json:"optionIds"`
	UserID    string   `json:"userId"`
}

type reactionPayload struct {
	GroupID   string `json:"groupId"`
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
	UserID    string `json:"userId"`
}

type receiptPayload struct {
	GroupID    string   `json:"groupId"`
	MessageIDs []string `json:"messageIds"`
	UserID     string   `json:"userId"`
}

// Send appends an optimistic text message to groupID and publishes it.
// It reports false for an empty group or blank content.
func (s *Store) Send(groupID, content string) (models.Message, bool) {
	key := models.GroupKey(groupID)
	if key == "" || strings.TrimSpace(content) == "" {
		return models.Message{}, false
	}
	m := s.local(key, models.TypeText)
	m.Content = content
	s.appendLocal(key, &m)

	s.publish(key, ws.ActionSend, sendPayload{
		GroupID: key, Type: m.Type, Content: content,
		SenderID: m.SenderID, SenderName: m.SenderName, TempID: m.ID,
	})
	return m.Clone(), true
}

// SendFile appends an optimistic file message for an uploaded attachment
// and publishes it.
func (s *Store) SendFile(groupID string, file models.FileMeta) (models.Message, bool) {
	key := models.GroupKey(groupID)
	if key == "" || file.URL == "" {
		return models.Message{}, false
	}
	m := s.local(key, models.TypeFile)
	m.Content = file.Name
	m.FileURL, m.FileType, m.Size = file.URL, file.FileType, file.Size
	s.appendLocal(key, &m)

	s.publish(key, ws.ActionSend, sendPayload{
		GroupID: key, Type: m.Type, Content: file.Name,
		SenderID: m.SenderID, SenderName: m.SenderName, TempID: m.ID,
		FileURL: file.URL, FileType: file.FileType, Size: file.Size,
	})
	return m.Clone(), true
}

// CreatePoll appends an optimistic poll with a temporary id and publishes
// the creation command. The server copy replaces it once broadcast.
func (s *Store) CreatePoll(groupID string, draft models.PollDraft) (models.Message, bool) {
	key := models.GroupKey(groupID)
	question := strings.TrimSpace(draft.Question)
	var texts []string
	for _, o := range draft.Options {
		if o = strings.TrimSpace(o); o != "" {
			texts = append(texts, o)
		}
	}
	if key == "" || question == "" || len(texts) < 2 {
		return models.Message{}, false
	}

	m := s.local(key, models.TypePoll)
	m.Content = question
	poll := &models.Poll{
		Question:      question,
		AllowMultiple: draft.AllowMultiple,
		Anonymous:     draft.Anonymous,
		CreatedAt:     m.Timestamp,
		CreatorID:     m.SenderID,
		CreatorName:   m.SenderName,
	}
	for i, text := range texts {
		poll.Options = append(poll.Options, models.PollOption{ID: models.ID(strconv.Itoa(i)), Text: text, Votes: []models.ID{}})
	}
	m.Poll = poll

	s.mu.Lock()
	poll.ID = s.tempPollIDLocked(key, m.Timestamp.Unix())
	m.ID = poll.ID
	s.seedStatus(key, &m)
	s.groups[key] = append(s.groups[key], m)
	s.mu.Unlock()
	s.watchers.notify(Change{GroupID: key, Kind: ChangeMessages})

	s.publish(key, ws.ActionPollCreate, pollCreatePayload{
		GroupID: key, TempID: poll.ID, Question: question, Options: texts,
		AllowMultiple: draft.AllowMultiple, Anonymous: draft.Anonymous,
		CreatorID: m.SenderID, CreatorName: m.SenderName,
	})
	return m.Clone(), true
}

// VotePoll publishes the local user's choice. The store changes once the
// server broadcasts the updated tally.
func (s *Store) VotePoll(groupID, pollID string, optionIDs []string) bool {
	key := models.GroupKey(groupID)
	pollID = models.GroupKey(pollID)
	if key == "" || pollID == "" || len(optionIDs) == 0 {
		return false
	}
	if strings.HasPrefix(pollID, models.TempPrefix) {
		s.logger.Debugw("vote on unconfirmed poll", "group_id", key, "poll_id", pollID)
		return false
	}
	s.publish(key, ws.ActionPollVote, pollVotePayload{
		GroupID: key, PollID: pollID, OptionIDs: optionIDs, UserID: string(s.cfg.UserID),
	})
	return true
}

// React publishes an emoji reaction to messageID.
func (s *Store) React(groupID, messageID, emoji string) bool {
	key := models.GroupKey(groupID)
	messageID = models.GroupKey(messageID)
	if key == "" || messageID == "" || emoji == "" {
		return false
	}
	s.publish(key, ws.ActionReaction, reactionPayload{
		GroupID: key, MessageID: messageID, Emoji: emoji, UserID: string(s.cfg.UserID),
	})
	return true
}

// MarkDelivered acknowledges receipt of other users' messages. With no ids
// every unacknowledged message is marked. It returns how many were sent.
func (s *Store) MarkDelivered(groupID string, messageIDs ...string) int {
	return s.receipt(groupID, ws.ActionDelivered, messageIDs, func(m models.Message) []models.ID { return m.DeliveredBy })
}

// MarkRead acknowledges reading other users' messages, like MarkDelivered.
func (s *Store) MarkRead(groupID string, messageIDs ...string) int {
	return s.receipt(groupID, ws.ActionRead, messageIDs, func(m models.Message) []models.ID { return m.ReadBy })
}

func (s *Store) receipt(groupID, action string, ids []string, seen func(models.Message) []models.ID) int {
	key := models.GroupKey(groupID)
	if key == "" {
		return 0
	}
	if len(ids) == 0 {
		ids = s.unacknowledged(key, seen)
	}
	if len(ids) == 0 {
		return 0
	}
	s.publish(key, action, receiptPayload{GroupID: key, MessageIDs: ids, UserID: string(s.cfg.UserID)})
	return len(ids)
}

func (s *Store) unacknowledged(key string, seen func(models.Message) []models.ID) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, m := range s.groups[key] {
		if m.ID == "" || m.IsTemporary() || m.SenderID == s.cfg.UserID {
			continue
		}
		if !containsID(seen(m), s.cfg.UserID) {
			out = append(out, string(m.ID))
		}
	}
	return out
}

func (s *Store) local(key string, typ models.MessageType) models.Message {
	return models.Message{
		ID:         models.ID(models.TempPrefix + uuid.NewString()),
		GroupID:    models.ID(key),
		Type:       typ,
		SenderID:   s.cfg.UserID,
		SenderName: s.cfg.UserName,
		Timestamp:  s.now(),
		// The sender has the message, so it counts as delivered to self.
		DeliveredBy: []models.ID{s.cfg.UserID},
		Optimistic:  true,
	}
}

// appendLocal seeds m's status in place and appends a copy of it.
func (s *Store) appendLocal(key string, m *models.Message) {
	s.mu.Lock()
	s.seedStatus(key, m)
	s.groups[key] = append(s.groups[key], m.Clone())
	s.mu.Unlock()
	s.watchers.notify(Change{GroupID: key, Kind: ChangeMessages})
}

func (s *Store) tempPollIDLocked(key string, unix int64) models.ID {
	base := fmt.Sprintf("%spoll-%d", models.TempPrefix, unix)
	id := models.ID(base)
	for n := 2; indexOfPoll(s.groups[key], id) >= 0; n++ {
		id = models.ID(fmt.Sprintf("%s-%d", base, n))
	}
	return id
}

func (s *Store) publish(key, action string, payload any) {
	if err := s.pub.Publish(ws.AppDestination(key, action), payload); err != nil {
		s.logger.Warnw("publish failed", "group_id", key, "action", action, "error", err)
	}
}

func containsID(ids []models.ID, id models.ID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
