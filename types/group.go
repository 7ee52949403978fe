package types

import (
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/parleyhq/parley/id"
	"github.com/parleyhq/parley/validator"
)

const (
	groupNameMaxLength = 100
	groupMaxMembers    = 256
)

type CreateGroup struct {
	Name           string
	ParticipantIDs []string

	loggedInUserID string
}

func (in *CreateGroup) SetLoggedInUserID(userID string) {
	in.loggedInUserID = userID
}

func (in CreateGroup) LoggedInUserID() string {
	return in.loggedInUserID
}

func (in *CreateGroup) Validate() error {
	v := validator.New()

	in.Name = strings.TrimSpace(in.Name)

	if in.Name == "" {
		v.AddError("Name", "Group name is required")
	}
	if utf8.RuneCountInString(in.Name) > groupNameMaxLength {
		v.AddError("Name", "Group name must be at most 100 characters")
	}
	if len(in.ParticipantIDs) == 0 {
		v.AddError("ParticipantIDs", "At least one other participant is required")
	}
	if len(in.ParticipantIDs) > groupMaxMembers-1 {
		v.AddError("ParticipantIDs", "Too many participants")
	}
	for _, participantID := range in.ParticipantIDs {
		if !id.Valid(participantID) {
			v.AddError("ParticipantIDs", "Participant ID "+participantID+" is invalid")
			break
		}
	}

	return v.AsError()
}

// Dedupe drops duplicate participant ids and the creator's own id, keeping
// first-seen order.
func (in *CreateGroup) Dedupe() {
	seen := make(map[string]bool, len(in.ParticipantIDs))
	in.ParticipantIDs = slices.DeleteFunc(in.ParticipantIDs, func(participantID string) bool {
		if participantID == in.loggedInUserID || seen[participantID] {
			return true
		}
		seen[participantID] = true
		return false
	})
}

type AddMembers struct {
	ConversationID string
	MemberIDs      []string

	loggedInUserID string
}

func (in *AddMembers) SetLoggedInUserID(userID string) {
	in.loggedInUserID = userID
}

func (in AddMembers) LoggedInUserID() string {
	return in.loggedInUserID
}

func (in *AddMembers) Validate() error {
	v := validator.New()

	if in.ConversationID == "" {
		v.AddError("ConversationID", "Conversation ID is required")
	} else if !id.Valid(in.ConversationID) {
		v.AddError("ConversationID", "Conversation ID is invalid")
	}
	if len(in.MemberIDs) == 0 {
		v.AddError("MemberIDs", "At least one member ID is required")
	}
	for _, memberID := range in.MemberIDs {
		if !id.Valid(memberID) {
			v.AddError("MemberIDs", "Member ID "+memberID+" is invalid")
			break
		}
	}

	return v.AsError()
}

type RemoveMembers struct {
	ConversationID string
	MemberIDs      []string

	loggedInUserID string
}

func (in *RemoveMembers) SetLoggedInUserID(userID string) {
	in.loggedInUserID = userID
}

func (in RemoveMembers) LoggedInUserID() string {
	return in.loggedInUserID
}

func (in *RemoveMembers) Validate() error {
	v := validator.New()

	if in.ConversationID == "" {
		v.AddError("ConversationID", "Conversation ID is required")
	} else if !id.Valid(in.ConversationID) {
		v.AddError("ConversationID", "Conversation ID is invalid")
	}
	if len(in.MemberIDs) == 0 {
		v.AddError("MemberIDs", "At least one member ID is required")
	}
	for _, memberID := range in.MemberIDs {
		if !id.Valid(memberID) {
			v.AddError("MemberIDs", "Member ID "+memberID+" is invalid")
			break
		}
	}

	return v.AsError()
}

type LeaveGroup struct {
	ConversationID string

	loggedInUserID string
}

func (in *LeaveGroup) SetLoggedInUserID(userID string) {
	in.loggedInUserID = userID
}

func (in LeaveGroup) LoggedInUserID() string {
	return in.loggedInUserID
}

func (in *LeaveGroup) Validate() error {
	v := validator.New()

	if in.ConversationID == "" {
		v.AddError("ConversationID", "Conversation ID is required")
	} else if !id.Valid(in.ConversationID) {
		v.AddError("ConversationID", "Conversation ID is invalid")
	}

	return v.AsError()
}

type RenameGroup struct {
	ConversationID string
	Name           string

	loggedInUserID string
}

func (in *RenameGroup) SetLoggedInUserID(userID string) {
	in.loggedInUserID = userID
}

func (in RenameGroup) LoggedInUserID() string {
	return in.loggedInUserID
}

func (in *RenameGroup) Validate() error {
	v := validator.New()

	in.Name = strings.TrimSpace(in.Name)

	if in.ConversationID == "" {
		v.AddError("ConversationID", "Conversation ID is required")
	} else if !id.Valid(in.ConversationID) {
		v.AddError("ConversationID", "Conversation ID is invalid")
	}
	if in.Name == "" {
		v.AddError("Name", "Group name is required")
	}
	if utf8.RuneCountInString(in.Name) > groupNameMaxLength {
		v.AddError("Name", "Group name must be at most 100 characters")
	}

	return v.AsError()
}

type ChangeGroupAvatar struct {
	ConversationID string
	// AvatarRef is the blob store reference returned by the upload; the
	// engine never sees the bytes.
	AvatarRef string

	loggedInUserID string
}

func (in *ChangeGroupAvatar) SetLoggedInUserID(userID string) {
	in.loggedInUserID = userID
}

func (in ChangeGroupAvatar) LoggedInUserID() string {
	return in.loggedInUserID
}

func (in *ChangeGroupAvatar) Validate() error {
	v := validator.New()

	if in.ConversationID == "" {
		v.AddError("ConversationID", "Conversation ID is required")
	} else if !id.Valid(in.ConversationID) {
		v.AddError("ConversationID", "Conversation ID is invalid")
	}
	if strings.TrimSpace(in.AvatarRef) == "" {
		v.AddError("AvatarRef", "Avatar reference is required")
	}

	return v.AsError()
}
