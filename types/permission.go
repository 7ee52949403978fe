package types

import (
	"github.com/parleyhq/parley/id"
	"github.com/parleyhq/parley/validator"
)

type PermissionReason string

const (
	PermissionReasonBlocked          PermissionReason = "blocked"
	PermissionReasonPolicyRestricted PermissionReason = "policy_restricted"
	PermissionReasonFollowRequired   PermissionReason = "follow_required"
)

// Permission is the outcome of evaluating whether a sender may message a
// recipient. When Allowed and RequiresRequest, the first message opens a
// pending conversation instead of an accepted one.
type Permission struct {
	Allowed         bool             `json:"allowed"`
	RequiresRequest bool             `json:"requiresRequest"`
	Reason          PermissionReason `json:"reason,omitempty"`
}

type EvaluatePermission struct {
	RecipientID string

	loggedInUserID string
}

func (in *EvaluatePermission) SetLoggedInUserID(userID string) {
	in.loggedInUserID = userID
}

func (in EvaluatePermission) LoggedInUserID() string {
	return in.loggedInUserID
}

func (in *EvaluatePermission) Validate() error {
	v := validator.New()

	if in.RecipientID == "" {
		v.AddError("RecipientID", "Recipient ID is required")
	} else if !id.Valid(in.RecipientID) {
		v.AddError("RecipientID", "Recipient ID is invalid")
	}

	return v.AsError()
}
