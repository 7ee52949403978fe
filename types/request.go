package types

// SenderState is the fresh conversation state read immediately before a
// send or lifecycle decision. Never cached.
type SenderState struct {
	ConversationID string             `db:"conversation_id"`
	Status         ConversationStatus `db:"status"`
	IsGroup        bool               `db:"is_group"`
	RequesterID    *string            `db:"requester_id"`
	MessageCount   int32              `db:"message_count"`
	Blocked        bool               `db:"blocked"`
}

// MarkRequestRead acknowledges a pending request without accepting it.
type MarkRequestRead struct {
	ConversationID string

	loggedInUserID string
}

func (in *MarkRequestRead) SetLoggedInUserID(userID string) {
	in.loggedInUserID = userID
}

func (in MarkRequestRead) LoggedInUserID() string {
	return in.loggedInUserID
}
