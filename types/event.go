package types

type ConversationEventKind string

const (
	ConversationEventMessageAppended ConversationEventKind = "message_appended"
	ConversationEventMessageUpdated  ConversationEventKind = "message_updated"
	ConversationEventMessageDeleted  ConversationEventKind = "message_deleted"
	ConversationEventStatusChanged   ConversationEventKind = "status_changed"
)

// ConversationEvent is the incremental diff published on a conversation's
// stream. Subscribers merge these into their local view; a full replace is
// never sent.
type ConversationEvent struct {
	Kind           ConversationEventKind `json:"kind"`
	ConversationID string                `json:"conversationID"`
	Message        *Message              `json:"message,omitempty"`
	Status         ConversationStatus    `json:"status,omitempty"`
}
