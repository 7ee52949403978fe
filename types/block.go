package types

import (
	"time"

	"github.com/parleyhq/parley/id"
	"github.com/parleyhq/parley/validator"
)

type BlockEdge struct {
	BlockerID string    `db:"blocker_id"`
	BlockedID string    `db:"blocked_id"`
	CreatedAt time.Time `db:"created_at"`
}

type BlockUser struct {
	BlockedID string

	loggedInUserID string
}

func (in *BlockUser) SetLoggedInUserID(userID string) {
	in.loggedInUserID = userID
}

func (in BlockUser) LoggedInUserID() string {
	return in.loggedInUserID
}

func (in *BlockUser) Validate() error {
	v := validator.New()

	if in.BlockedID == "" {
		v.AddError("BlockedID", "Blocked user ID is required")
	} else if !id.Valid(in.BlockedID) {
		v.AddError("BlockedID", "Blocked user ID is invalid")
	}

	return v.AsError()
}

type UnblockUser struct {
	BlockedID string

	loggedInUserID string
}

func (in *UnblockUser) SetLoggedInUserID(userID string) {
	in.loggedInUserID = userID
}

func (in UnblockUser) LoggedInUserID() string {
	return in.loggedInUserID
}

func (in *UnblockUser) Validate() error {
	v := validator.New()

	if in.BlockedID == "" {
		v.AddError("BlockedID", "Blocked user ID is required")
	} else if !id.Valid(in.BlockedID) {
		v.AddError("BlockedID", "Blocked user ID is invalid")
	}

	return v.AsError()
}
