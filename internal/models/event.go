package models

// EventKind is the inbound frame discriminator.
type EventKind string

const (
	KindMessage    EventKind = "message"
	KindTyping     EventKind = "typing"
	KindTypingStop EventKind = "typing_stop"
	KindStatus     EventKind = "status"
	KindPoll       EventKind = "poll"
	KindPollVote   EventKind = "poll_vote"
	KindFile       EventKind = "file"
	KindSession    EventKind = "session"
	KindPresence   EventKind = "presence"
)

// Known reports whether k is a kind the core understands.
func (k EventKind) Known() bool {
	switch k {
	case KindMessage, KindTyping, KindTypingStop, KindStatus, KindPoll,
		KindPollVote, KindFile, KindSession, KindPresence:
		return true
	}
	return false
}

// Event is the canonical form of every inbound state change. Which pointer
// is populated depends on Kind.
type Event struct {
	Kind    EventKind
	GroupID string

	Message   *Message
	Status    *StatusUpdate
	PollPatch *PollPatch
	Typing    *TypingEntry
	Online    []string
}

// StatusUpdate is a delivered/read receipt for a single message.
type StatusUpdate struct {
	MessageID       ID   `json:"messageId"`
	DeliveredBy     []ID `json:"deliveredBy"`
	ReadBy          []ID `json:"readBy"`
	TotalRecipients int  `json:"totalRecipients"`
}

// TypingEntry identifies a user currently typing in a group.
type TypingEntry struct {
	UserID   ID     `json:"userId"`
	UserName string `json:"userName"`
}

// Envelope is an outbound publish buffered while the transport is offline.
type Envelope struct {
	Destination string
	Body        []byte
}
