package types

import "time"

type NotificationKind string

func (k NotificationKind) String() string {
	return string(k)
}

const (
	NotificationKindMessage NotificationKind = "message"
	NotificationKindRequest NotificationKind = "request"
	NotificationKindGroup   NotificationKind = "group"
)

// Notification is a delivery intent. The engine enqueues these; actual push
// delivery is someone else's job.
type Notification struct {
	ID             string           `db:"id"`
	RecipientID    string           `db:"recipient_id"`
	Kind           NotificationKind `db:"kind"`
	Title          string           `db:"title"`
	Body           string           `db:"body"`
	ConversationID *string          `db:"conversation_id"`
	ReadAt         *time.Time       `db:"read_at"`
	CreatedAt      time.Time        `db:"created_at"`
}

func (n Notification) Read() bool {
	return n.ReadAt != nil
}

type ListNotifications struct {
	PageArgs PageArgs

	loggedInUserID string
}

func (in *ListNotifications) SetLoggedInUserID(userID string) {
	in.loggedInUserID = userID
}

func (in ListNotifications) LoggedInUserID() string {
	return in.loggedInUserID
}

func (in *ListNotifications) Validate() error {
	return in.PageArgs.Validate()
}

type CreateNotification struct {
	RecipientID    string
	Kind           NotificationKind
	Title          string
	Body           string
	ConversationID *string
}
