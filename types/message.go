package types

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/parleyhq/parley/id"
	"github.com/parleyhq/parley/validator"
)

const messageMaxLength = 4000

type Message struct {
	ID               string       `db:"id"`
	ConversationID   string       `db:"conversation_id"`
	SenderID         *string      `db:"sender_id"`
	Text             string       `db:"text"`
	Attachments      []Attachment `db:"attachments"`
	ReplyToMessageID *string      `db:"reply_to_message_id"`
	// Seq is the server-assigned per-conversation sequence. It is the only
	// ordering key; client clocks are never trusted.
	Seq       int64      `db:"seq"`
	IsSystem  bool       `db:"is_system"`
	IsPinned  bool       `db:"is_pinned"`
	IsDeleted bool       `db:"is_deleted"`
	EditedAt  *time.Time `db:"edited_at"`
	CreatedAt time.Time  `db:"created_at"`

	Reactions []Reaction `db:"reactions"`
	ReadBy    []string   `db:"read_by"`
	StarredBy []string   `db:"starred_by"`

	Sender       *User                `db:"sender,omitempty"`
	Relationship *MessageRelationship `db:"relationship,omitempty"`
}

type MessageRelationship struct {
	IsMine bool `json:"isMine"`
}

type Reaction struct {
	UserID string `json:"userID" db:"user_id"`
	Emoji  string `json:"emoji" db:"emoji"`
}

type CreateMessage struct {
	ConversationID   string
	Text             string
	Attachments      []Attachment
	ReplyToMessageID *string

	loggedInUserID string
}

func (in *CreateMessage) SetLoggedInUserID(userID string) {
	in.loggedInUserID = userID
}

func (in CreateMessage) LoggedInUserID() string {
	return in.loggedInUserID
}

func (in *CreateMessage) Validate() error {
	v := validator.New()

	in.Text = strings.TrimSpace(in.Text)

	if in.ConversationID == "" {
		v.AddError("ConversationID", "Conversation ID is required")
	} else if !id.Valid(in.ConversationID) {
		v.AddError("ConversationID", "Conversation ID is invalid")
	}
	if in.Text == "" && len(in.Attachments) == 0 {
		v.AddError("Text", "Either text or attachments are required")
	}
	if utf8.RuneCountInString(in.Text) > messageMaxLength {
		v.AddError("Text", "Text must be at most 4000 characters")
	}
	if in.ReplyToMessageID != nil && !id.Valid(*in.ReplyToMessageID) {
		v.AddError("ReplyToMessageID", "Reply-to message ID is invalid")
	}

	return v.AsError()
}

type ListMessages struct {
	ConversationID string
	PageArgs       PageArgs

	loggedInUserID string
}

func (in *ListMessages) SetLoggedInUserID(userID string) {
	in.loggedInUserID = userID
}

func (in ListMessages) LoggedInUserID() string {
	return in.loggedInUserID
}

func (in *ListMessages) Validate() error {
	v := validator.New()

	if in.ConversationID == "" {
		v.AddError("ConversationID", "Conversation ID is required")
	} else if !id.Valid(in.ConversationID) {
		v.AddError("ConversationID", "Conversation ID is invalid")
	}

	if err := v.AsError(); err != nil {
		return err
	}

	return in.PageArgs.Validate()
}

type EditMessage struct {
	MessageID string
	Text      string

	loggedInUserID string
}

func (in *EditMessage) SetLoggedInUserID(userID string) {
	in.loggedInUserID = userID
}

func (in EditMessage) LoggedInUserID() string {
	return in.loggedInUserID
}

func (in *EditMessage) Validate() error {
	v := validator.New()

	in.Text = strings.TrimSpace(in.Text)

	if in.MessageID == "" {
		v.AddError("MessageID", "Message ID is required")
	} else if !id.Valid(in.MessageID) {
		v.AddError("MessageID", "Message ID is invalid")
	}
	if in.Text == "" {
		v.AddError("Text", "Text is required")
	}
	if utf8.RuneCountInString(in.Text) > messageMaxLength {
		v.AddError("Text", "Text must be at most 4000 characters")
	}

	return v.AsError()
}

// DeleteMessage soft-deletes: the row stays so replies keep resolving, the
// text is cleared.
type DeleteMessage struct {
	MessageID string

	loggedInUserID string
}

func (in *DeleteMessage) SetLoggedInUserID(userID string) {
	in.loggedInUserID = userID
}

func (in DeleteMessage) LoggedInUserID() string {
	return in.loggedInUserID
}

func (in *DeleteMessage) Validate() error {
	v := validator.New()

	if in.MessageID == "" {
		v.AddError("MessageID", "Message ID is required")
	} else if !id.Valid(in.MessageID) {
		v.AddError("MessageID", "Message ID is invalid")
	}

	return v.AsError()
}

type ToggleReaction struct {
	MessageID string
	Emoji     string

	loggedInUserID string
}

func (in *ToggleReaction) SetLoggedInUserID(userID string) {
	in.loggedInUserID = userID
}

func (in ToggleReaction) LoggedInUserID() string {
	return in.loggedInUserID
}

func (in *ToggleReaction) Validate() error {
	v := validator.New()

	if in.MessageID == "" {
		v.AddError("MessageID", "Message ID is required")
	} else if !id.Valid(in.MessageID) {
		v.AddError("MessageID", "Message ID is invalid")
	}
	if in.Emoji == "" {
		v.AddError("Emoji", "Emoji is required")
	}
	if utf8.RuneCountInString(in.Emoji) > 16 {
		v.AddError("Emoji", "Emoji is too long")
	}

	return v.AsError()
}

// ToggleMessagePin flips the shared pinned flag on a message, visible to all
// participants alike.
type ToggleMessagePin struct {
	MessageID string

	loggedInUserID string
}

func (in *ToggleMessagePin) SetLoggedInUserID(userID string) {
	in.loggedInUserID = userID
}

func (in ToggleMessagePin) LoggedInUserID() string {
	return in.loggedInUserID
}

func (in *ToggleMessagePin) Validate() error {
	v := validator.New()

	if in.MessageID == "" {
		v.AddError("MessageID", "Message ID is required")
	} else if !id.Valid(in.MessageID) {
		v.AddError("MessageID", "Message ID is invalid")
	}

	return v.AsError()
}

// ToggleMessageStar flips the viewer's star on a message. Stars are
// participant-scoped.
type ToggleMessageStar struct {
	MessageID string

	loggedInUserID string
}

func (in *ToggleMessageStar) SetLoggedInUserID(userID string) {
	in.loggedInUserID = userID
}

func (in ToggleMessageStar) LoggedInUserID() string {
	return in.loggedInUserID
}

func (in *ToggleMessageStar) Validate() error {
	v := validator.New()

	if in.MessageID == "" {
		v.AddError("MessageID", "Message ID is required")
	} else if !id.Valid(in.MessageID) {
		v.AddError("MessageID", "Message ID is invalid")
	}

	return v.AsError()
}
