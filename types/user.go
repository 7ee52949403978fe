package types

import (
	"regexp"

	"github.com/parleyhq/parley/id"
	"github.com/parleyhq/parley/validator"
)

type User struct {
	ID        string  `json:"id" db:"id"`
	Username  string  `json:"username" db:"username"`
	AvatarURL *string `json:"avatarURL" db:"avatar"`
}

// MessagingPolicy is the recipient side of the permission check, owned by
// the profile store.
type MessagingPolicy struct {
	AllowFromEveryone      bool `json:"allowFromEveryone" db:"allow_from_everyone"`
	RequireFollowToMessage bool `json:"requireFollowToMessage" db:"require_follow_to_message"`
}

var reUsername = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]{0,17}$`)

func ValidUsername(s string) bool {
	return reUsername.MatchString(s)
}

type CreateUser struct {
	Username string
}

func (in *CreateUser) Validate() error {
	v := validator.New()

	if in.Username == "" {
		v.AddError("Username", "Username is required")
	} else if !ValidUsername(in.Username) {
		v.AddError("Username", "Username is invalid")
	}

	return v.AsError()
}

type SetMessagingPolicy struct {
	Policy MessagingPolicy

	loggedInUserID string
}

func (in *SetMessagingPolicy) SetLoggedInUserID(userID string) {
	in.loggedInUserID = userID
}

func (in SetMessagingPolicy) LoggedInUserID() string {
	return in.loggedInUserID
}

type ToggleFollow struct {
	FolloweeID string

	loggedInUserID string
}

func (in *ToggleFollow) SetLoggedInUserID(userID string) {
	in.loggedInUserID = userID
}

func (in ToggleFollow) LoggedInUserID() string {
	return in.loggedInUserID
}

func (in *ToggleFollow) Validate() error {
	v := validator.New()

	if in.FolloweeID == "" {
		v.AddError("FolloweeID", "Followee ID is required")
	} else if !id.Valid(in.FolloweeID) {
		v.AddError("FolloweeID", "Followee ID is invalid")
	}

	return v.AsError()
}
