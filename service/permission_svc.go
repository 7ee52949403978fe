package service

import (
	"context"

	"github.com/parleyhq/parley/auth"
	"github.com/parleyhq/parley/errs"
	"github.com/parleyhq/parley/id"
)

// PermissionReason says why messaging was refused. Callers surface the
// specific reason, never a generic failure.
type PermissionReason string

const (
	PermissionReasonBlocked          PermissionReason = "blocked"
	PermissionReasonPolicyRestricted PermissionReason = "policy_restricted"
	PermissionReasonFollowRequired   PermissionReason = "follow_required"
)

type Permission struct {
	Allowed bool `json:"allowed"`
	// RequiresRequest means the first message opens a pending request
	// instead of an accepted conversation.
	RequiresRequest bool             `json:"requiresRequest"`
	Reason          PermissionReason `json:"reason,omitempty"`
}

// PermissionInput is everything the evaluation depends on, read fresh from
// the stores by the caller.
type PermissionInput struct {
	Blocked                   bool
	AllowFromEveryone         bool
	RequireFollowToMessage    bool
	RequesterFollowsRecipient bool
	RecipientFollowsRequester bool
}

// EvaluatePermission decides whether a sender may message a recipient.
// Pure and read-only, safe to call repeatedly.
func EvaluatePermission(in PermissionInput) Permission {
	if in.Blocked {
		return Permission{Reason: PermissionReasonBlocked}
	}

	if !in.AllowFromEveryone {
		return Permission{Reason: PermissionReasonPolicyRestricted}
	}

	if in.RequireFollowToMessage && !in.RequesterFollowsRecipient {
		return Permission{Reason: PermissionReasonFollowRequired}
	}

	if in.RequesterFollowsRecipient && in.RecipientFollowsRequester {
		return Permission{Allowed: true}
	}

	return Permission{Allowed: true, RequiresRequest: true}
}

// CanMessage evaluates the logged in user against another user.
func (svc *Service) CanMessage(ctx context.Context, otherUserID string) (Permission, error) {
	var out Permission

	loggedInUser, loggedIn := auth.UserFromContext(ctx)
	if !loggedIn {
		return out, errs.Unauthenticated
	}

	if !id.Valid(otherUserID) {
		return out, errs.NewInvalidArgumentError("OtherUserID", "Other user ID is invalid")
	}

	if otherUserID == loggedInUser.ID {
		return out, errs.NewInvalidArgumentError("OtherUserID", "You cannot message yourself")
	}

	return svc.evaluatePermission(ctx, loggedInUser.ID, otherUserID)
}

func (svc *Service) evaluatePermission(ctx context.Context, senderID, recipientID string) (Permission, error) {
	var out Permission

	blocked, err := svc.Postgres.Blocked(ctx, senderID, recipientID)
	if err != nil {
		return out, err
	}

	policy, err := svc.Postgres.MessagingPolicy(ctx, recipientID)
	if err != nil {
		return out, err
	}

	senderFollows, err := svc.Postgres.Follows(ctx, senderID, recipientID)
	if err != nil {
		return out, err
	}

	recipientFollows, err := svc.Postgres.Follows(ctx, recipientID, senderID)
	if err != nil {
		return out, err
	}

	return EvaluatePermission(PermissionInput{
		Blocked:                   blocked,
		AllowFromEveryone:         policy.AllowFromEveryone,
		RequireFollowToMessage:    policy.RequireFollowToMessage,
		RequesterFollowsRecipient: senderFollows,
		RecipientFollowsRequester: recipientFollows,
	}), nil
}
