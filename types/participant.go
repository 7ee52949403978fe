package types

import "time"

// Participant is one user's membership row in a conversation. The archived,
// muted, pinned, hidden and deleted flags are participant-scoped: one
// participant's setting is invisible to and non-mutating for the others.
type Participant struct {
	ConversationID string     `db:"conversation_id"`
	UserID         string     `db:"user_id"`
	UnreadCount    int32      `db:"unread_count"`
	MessageCount   int32      `db:"message_count"`
	Archived       bool       `db:"archived"`
	Muted          bool       `db:"muted"`
	Pinned         bool       `db:"pinned"`
	Hidden         bool       `db:"hidden"`
	Deleted        bool       `db:"deleted"`
	Admin          bool       `db:"admin"`
	JoinedAt       time.Time  `db:"joined_at"`
	LastReadAt     *time.Time `db:"last_read_at"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`

	User *User `db:"user,omitempty"`
}
