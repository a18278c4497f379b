package ws

const (
	ActionSend       = "send"
	ActionTyping     = "typing"
	ActionTypingStop = "typing/stop"
	ActionReaction   = "reaction"
	ActionPollCreate = "poll/create"
	ActionPollVote   = "poll/vote"
	ActionDelivered  = "delivered"
	ActionRead       = "read"
)

// GroupTopics returns the broadcast topics that make up one group's live
// feed: the message topic and the ephemeral events topic.
func GroupTopics(groupID string) []string {
	base := "/topic/group/" + groupID
	return []string{base, base + "/events"}
}

// AppDestination returns the application destination for a group command.
func AppDestination(groupID, action string) string {
	return "/app/chat/" + groupID + "/" + action
}
