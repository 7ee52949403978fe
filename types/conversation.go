package types

import (
	"time"

	"github.com/parleyhq/parley/id"
	"github.com/parleyhq/parley/validator"
)

type ConversationStatus string

const (
	ConversationStatusPending  ConversationStatus = "pending"
	ConversationStatusAccepted ConversationStatus = "accepted"
	ConversationStatusDeclined ConversationStatus = "declined"
	ConversationStatusBlocked  ConversationStatus = "blocked"
)

func (s ConversationStatus) String() string {
	return string(s)
}

func (s ConversationStatus) Valid() bool {
	switch s {
	case ConversationStatusPending, ConversationStatusAccepted,
		ConversationStatusDeclined, ConversationStatusBlocked:
		return true
	}
	return false
}

type Conversation struct {
	ID                 string              `db:"id"`
	IsGroup            bool                `db:"is_group"`
	GroupName          *string             `db:"group_name"`
	GroupAvatar        *string             `db:"group_avatar"`
	Status             ConversationStatus  `db:"status"`
	PrevStatus         *ConversationStatus `db:"prev_status"`
	RequesterID        *string             `db:"requester_id"`
	LastSeq            int64               `db:"last_seq"`
	LastMessagePreview *string             `db:"last_message_preview"`
	LastMessageAt      *time.Time          `db:"last_message_at"`
	CreatedAt          time.Time           `db:"created_at"`
	UpdatedAt          time.Time           `db:"updated_at"`

	// Participation is the viewer's own membership row.
	Participation *Participant `db:"participation,omitempty"`
}

// PendingFor reports whether the conversation is a message request from the
// viewer's perspective, that is pending and requested by someone else.
func (c Conversation) PendingFor(userID string) bool {
	return c.Status == ConversationStatusPending &&
		c.RequesterID != nil && *c.RequesterID != userID
}

type RetrieveConversation struct {
	ConversationID string

	loggedInUserID string
}

func (in *RetrieveConversation) SetLoggedInUserID(userID string) {
	in.loggedInUserID = userID
}

func (in RetrieveConversation) LoggedInUserID() string {
	return in.loggedInUserID
}

func (in *RetrieveConversation) Validate() error {
	v := validator.New()

	if in.ConversationID == "" {
		v.AddError("ConversationID", "Conversation ID is required")
	} else if !id.Valid(in.ConversationID) {
		v.AddError("ConversationID", "Conversation ID is invalid")
	}

	return v.AsError()
}

// CreateDirectConversation backs getOrCreateDirect: it resolves the single
// direct conversation for the pair, creating it if absent.
type CreateDirectConversation struct {
	OtherUserID string

	loggedInUserID  string
	status          ConversationStatus
	requiresRequest bool
}

func (in *CreateDirectConversation) SetLoggedInUserID(userID string) {
	in.loggedInUserID = userID
}

func (in CreateDirectConversation) LoggedInUserID() string {
	return in.loggedInUserID
}

func (in *CreateDirectConversation) SetStatus(status ConversationStatus) {
	in.status = status
}

func (in CreateDirectConversation) Status() ConversationStatus {
	return in.status
}

func (in *CreateDirectConversation) SetRequiresRequest(requiresRequest bool) {
	in.requiresRequest = requiresRequest
}

func (in CreateDirectConversation) RequiresRequest() bool {
	return in.requiresRequest
}

func (in *CreateDirectConversation) Validate() error {
	v := validator.New()

	if in.OtherUserID == "" {
		v.AddError("OtherUserID", "Other user ID is required")
	} else if !id.Valid(in.OtherUserID) {
		v.AddError("OtherUserID", "Other user ID is invalid")
	}

	return v.AsError()
}

type ListConversations struct {
	PageArgs PageArgs
	// Archived switches the listing to the viewer's archived conversations.
	Archived bool

	loggedInUserID string
}

func (in *ListConversations) SetLoggedInUserID(userID string) {
	in.loggedInUserID = userID
}

func (in ListConversations) LoggedInUserID() string {
	return in.loggedInUserID
}

func (in *ListConversations) Validate() error {
	return in.PageArgs.Validate()
}

// ListRequests lists pending conversations requested by someone else, the
// derived message-request view.
type ListRequests struct {
	PageArgs PageArgs

	loggedInUserID string
}

func (in *ListRequests) SetLoggedInUserID(userID string) {
	in.loggedInUserID = userID
}

func (in ListRequests) LoggedInUserID() string {
	return in.loggedInUserID
}

func (in *ListRequests) Validate() error {
	return in.PageArgs.Validate()
}

type AcceptRequest struct {
	ConversationID string

	loggedInUserID string
}

func (in *AcceptRequest) SetLoggedInUserID(userID string) {
	in.loggedInUserID = userID
}

func (in AcceptRequest) LoggedInUserID() string {
	return in.loggedInUserID
}

func (in *AcceptRequest) Validate() error {
	v := validator.New()

	if in.ConversationID == "" {
		v.AddError("ConversationID", "Conversation ID is required")
	} else if !id.Valid(in.ConversationID) {
		v.AddError("ConversationID", "Conversation ID is invalid")
	}

	return v.AsError()
}

type DeclineRequest struct {
	ConversationID string

	loggedInUserID string
}

func (in *DeclineRequest) SetLoggedInUserID(userID string) {
	in.loggedInUserID = userID
}

func (in DeclineRequest) LoggedInUserID() string {
	return in.loggedInUserID
}

func (in *DeclineRequest) Validate() error {
	v := validator.New()

	if in.ConversationID == "" {
		v.AddError("ConversationID", "Conversation ID is required")
	} else if !id.Valid(in.ConversationID) {
		v.AddError("ConversationID", "Conversation ID is invalid")
	}

	return v.AsError()
}

// ConversationFlag is one of the participant-scoped projection flags.
type ConversationFlag string

const (
	ConversationFlagArchived ConversationFlag = "archived"
	ConversationFlagMuted    ConversationFlag = "muted"
	ConversationFlagPinned   ConversationFlag = "pinned"
)

func (f ConversationFlag) Valid() bool {
	switch f {
	case ConversationFlagArchived, ConversationFlagMuted, ConversationFlagPinned:
		return true
	}
	return false
}

// SetConversationFlag flips one participant-scoped flag for the viewer only.
type SetConversationFlag struct {
	ConversationID string
	Flag           ConversationFlag
	Value          bool

	loggedInUserID string
}

func (in *SetConversationFlag) SetLoggedInUserID(userID string) {
	in.loggedInUserID = userID
}

func (in SetConversationFlag) LoggedInUserID() string {
	return in.loggedInUserID
}

func (in *SetConversationFlag) Validate() error {
	v := validator.New()

	if in.ConversationID == "" {
		v.AddError("ConversationID", "Conversation ID is required")
	} else if !id.Valid(in.ConversationID) {
		v.AddError("ConversationID", "Conversation ID is invalid")
	}
	if !in.Flag.Valid() {
		v.AddError("Flag", "Flag must be one of archived, muted or pinned")
	}

	return v.AsError()
}

// MarkConversationRead acknowledges delivery for the viewer: resets their
// unread count and records last read time.
type MarkConversationRead struct {
	ConversationID string

	loggedInUserID string
}

func (in *MarkConversationRead) SetLoggedInUserID(userID string) {
	in.loggedInUserID = userID
}

func (in MarkConversationRead) LoggedInUserID() string {
	return in.loggedInUserID
}

func (in *MarkConversationRead) Validate() error {
	v := validator.New()

	if in.ConversationID == "" {
		v.AddError("ConversationID", "Conversation ID is required")
	} else if !id.Valid(in.ConversationID) {
		v.AddError("ConversationID", "Conversation ID is invalid")
	}

	return v.AsError()
}

// DeleteConversation soft-deletes the conversation for the viewer only.
type DeleteConversation struct {
	ConversationID string

	loggedInUserID string
}

func (in *DeleteConversation) SetLoggedInUserID(userID string) {
	in.loggedInUserID = userID
}

func (in DeleteConversation) LoggedInUserID() string {
	return in.loggedInUserID
}

func (in *DeleteConversation) Validate() error {
	v := validator.New()

	if in.ConversationID == "" {
		v.AddError("ConversationID", "Conversation ID is required")
	} else if !id.Valid(in.ConversationID) {
		v.AddError("ConversationID", "Conversation ID is invalid")
	}

	return v.AsError()
}
