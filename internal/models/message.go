package models

import (
	"strings"
	"time"
)

// MessageType discriminates the Message variants.
type MessageType string

const (
	TypeText         MessageType = "text"
	TypeFile         MessageType = "file"
	TypePoll         MessageType = "poll"
	TypeSessionEvent MessageType = "session-event"
)

// Status is the sender-side delivery state of a message.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

// TempPrefix marks identifiers generated locally before the server assigns one.
const TempPrefix = "temp-"

// Message is a group chat entry. Exactly one of the variant payloads is set
// according to Type: Poll for polls, Session for session events and the
// File* fields for files.
type Message struct {
	ID              ID          `json:"id"`
	GroupID         ID          `json:"groupId"`
	Type            MessageType `json:"type"`
	SenderID        ID          `json:"senderId"`
	SenderName      string      `json:"senderName"`
	Content         string      `json:"content"`
	Timestamp       time.Time   `json:"timestamp"`
	Status          Status      `json:"status,omitempty"`
	DeliveredBy     []ID        `json:"deliveredBy,omitempty"`
	ReadBy          []ID        `json:"readBy,omitempty"`
	TotalRecipients int         `json:"totalRecipients,omitempty"`

	FileURL  string `json:"fileUrl,omitempty"`
	FileType string `json:"fileType,omitempty"`
	Size     int64  `json:"size,omitempty"`

	Poll    *Poll    `json:"poll,omitempty"`
	Session *Session `json:"session,omitempty"`

	// Optimistic is set on local echoes that have not been confirmed yet.
	Optimistic bool `json:"optimistic,omitempty"`
}

// Identity returns the key used for deduplication: the poll id for polls,
// the message id otherwise. An empty result means the entry has no identity.
func (m Message) Identity() string {
	if m.Type == TypePoll && m.Poll != nil && m.Poll.ID != "" {
		return "poll:" + string(m.Poll.ID)
	}
	if m.ID == "" {
		return ""
	}
	return "id:" + string(m.ID)
}

// IsTemporary reports whether the message still carries a locally generated id.
func (m Message) IsTemporary() bool {
	if m.Optimistic {
		return true
	}
	if strings.HasPrefix(string(m.ID), TempPrefix) {
		return true
	}
	return m.Poll != nil && strings.HasPrefix(string(m.Poll.ID), TempPrefix)
}

// Clone returns a deep copy so callers can never mutate store-owned state.
func (m Message) Clone() Message {
	out := m
	out.DeliveredBy = append([]ID(nil), m.DeliveredBy...)
	out.ReadBy = append([]ID(nil), m.ReadBy...)
	if m.Poll != nil {
		p := m.Poll.Clone()
		out.Poll = &p
	}
	if m.Session != nil {
		s := m.Session.Clone()
		out.Session = &s
	}
	return out
}

// FileMeta describes an uploaded attachment.
type FileMeta struct {
	Name     string `json:"name"`
	URL      string `json:"fileUrl"`
	FileType string `json:"fileType"`
	Size     int64  `json:"size"`
}

// PollOption is a single answer of a poll.
type PollOption struct {
	ID    ID     `json:"id"`
	Text  string `json:"text"`
	Votes []ID   `json:"votes"`
}

// Poll is embedded in poll messages.
type Poll struct {
	ID            ID           `json:"id"`
	Question      string       `json:"question"`
	Options       []PollOption `json:"options"`
	AllowMultiple bool         `json:"allowMultiple"`
	Anonymous     bool         `json:"anonymous"`
	TotalVotes    int          `json:"totalVotes"`
	CreatedAt     time.Time    `json:"createdAt"`
	CreatorID     ID           `json:"creatorId"`
	CreatorName   string       `json:"creatorName"`
}

// Clone deep-copies the poll.
func (p Poll) Clone() Poll {
	out := p
	if p.Options == nil {
		return out
	}
	out.Options = make([]PollOption, len(p.Options))
	for i, o := range p.Options {
		o.Votes = append([]ID(nil), o.Votes...)
		out.Options[i] = o
	}
	return out
}

// PollPatch is a partial poll update; nil fields were omitted by the sender.
type PollPatch struct {
	ID            ID           `json:"id"`
	Question      *string      `json:"question"`
	Options       []PollOption `json:"options"`
	AllowMultiple *bool        `json:"allowMultiple"`
	Anonymous     *bool        `json:"anonymous"`
	TotalVotes    *int         `json:"totalVotes"`
	CreatorID     *ID          `json:"creatorId"`
	CreatorName   *string      `json:"creatorName"`
}

// PollDraft is the input for a locally created poll.
type PollDraft struct {
	Question      string   `json:"question" binding:"required"`
	Options       []string `json:"options" binding:"required,min=2"`
	AllowMultiple bool     `json:"allowMultiple"`
	Anonymous     bool     `json:"anonymous"`
}

// TimeSlot is a candidate time for a session poll.
type TimeSlot struct {
	ID        ID        `json:"id"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Votes     []ID      `json:"votes,omitempty"`
}

// Session is a study session scheduled for a group.
type Session struct {
	ID         ID                `json:"id"`
	Title      string            `json:"title"`
	IsPoll     bool              `json:"isPoll"`
	Confirmed  bool              `json:"confirmed"`
	StartTime  *time.Time        `json:"startTime,omitempty"`
	EndTime    *time.Time        `json:"endTime,omitempty"`
	TimeSlots  []TimeSlot        `json:"timeSlots,omitempty"`
	RSVPByUser map[string]string `json:"rsvpByUser,omitempty"`
	RSVPCounts map[string]int    `json:"rsvpCounts,omitempty"`
}

// Clone deep-copies the session.
func (s Session) Clone() Session {
	out := s
	if s.TimeSlots != nil {
		out.TimeSlots = make([]TimeSlot, len(s.TimeSlots))
		for i, slot := range s.TimeSlots {
			slot.Votes = append([]ID(nil), slot.Votes...)
			out.TimeSlots[i] = slot
		}
	}
	if s.RSVPByUser != nil {
		out.RSVPByUser = make(map[string]string, len(s.RSVPByUser))
		for k, v := range s.RSVPByUser {
			out.RSVPByUser[k] = v
		}
	}
	if s.RSVPCounts != nil {
		out.RSVPCounts = make(map[string]int, len(s.RSVPCounts))
		for k, v := range s.RSVPCounts {
			out.RSVPCounts[k] = v
		}
	}
	return out
}
