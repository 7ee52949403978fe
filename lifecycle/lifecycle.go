// Package lifecycle holds the conversation state machine. Every rule about
// who may send, accept or decline lives here; the store and service apply
// these decisions but never re-derive them.
package lifecycle

import (
	"github.com/parleyhq/parley/errs"
	"github.com/parleyhq/parley/types"
)

// RequestCap is the number of messages the requester may send while the
// conversation is pending.
const RequestCap = 1

// SendContext is the fresh state read immediately before a send. It must
// come from the current transaction, never from a cache.
type SendContext struct {
	Status             types.ConversationStatus
	IsGroup            bool
	RequesterID        string
	SenderID           string
	SenderMessageCount int32
	// Blocked reports a block edge in either direction between the sender
	// and the other direct participant.
	Blocked bool
}

// SendDecision says what a permitted send does to the conversation.
type SendDecision struct {
	// Transition, when set, is applied atomically with the message insert.
	Transition *types.ConversationStatus
	// ResetRequesterCount restarts the request cap when a declined
	// conversation is reopened by its requester.
	ResetRequesterCount bool
}

// CanSend decides whether the sender may append a message right now and
// which status transition, if any, rides along with it.
func CanSend(c SendContext) (SendDecision, error) {
	var d SendDecision

	if c.Blocked {
		return d, errs.NewPermissionDeniedError("blocked")
	}

	if c.IsGroup {
		// Group membership is checked by the caller; groups have no
		// request lifecycle.
		return d, nil
	}

	switch c.Status {
	case types.ConversationStatusAccepted:
		return d, nil

	case types.ConversationStatusPending:
		if c.SenderID == c.RequesterID {
			if c.SenderMessageCount >= RequestCap {
				return d, errs.NewRequestLimitError("wait for the other person to respond before sending more messages")
			}
			return d, nil
		}
		// The other side replying is an implicit accept.
		d.Transition = new(types.ConversationStatusAccepted)
		return d, nil

	case types.ConversationStatusDeclined:
		if c.SenderID == c.RequesterID {
			// A new message from the original requester reopens the
			// request with a fresh cap.
			d.Transition = new(types.ConversationStatusPending)
			d.ResetRequesterCount = true
			return d, nil
		}
		return d, errs.NewInvalidStateError("conversation was declined")

	case types.ConversationStatusBlocked:
		return d, errs.NewPermissionDeniedError("conversation is blocked")
	}

	return d, errs.NewInvalidStateError("conversation status " + c.Status.String() + " is unknown")
}

// CanAccept decides an accept call. A nil error with apply=false means the
// call is an idempotent no-op.
func CanAccept(status types.ConversationStatus, requesterID, callerID string) (apply bool, err error) {
	switch status {
	case types.ConversationStatusPending:
		if callerID == requesterID {
			return false, errs.NewPermissionDeniedError("only the recipient of a request can accept it")
		}
		return true, nil
	case types.ConversationStatusAccepted:
		return false, nil
	}
	return false, errs.NewInvalidStateError("cannot accept a " + status.String() + " conversation")
}

// CanDecline mirrors CanAccept for declines.
func CanDecline(status types.ConversationStatus, requesterID, callerID string) (apply bool, err error) {
	switch status {
	case types.ConversationStatusPending:
		if callerID == requesterID {
			return false, errs.NewPermissionDeniedError("only the recipient of a request can decline it")
		}
		return true, nil
	case types.ConversationStatusDeclined:
		return false, nil
	}
	return false, errs.NewInvalidStateError("cannot decline a " + status.String() + " conversation")
}

// Unblocked returns the status a conversation goes back to on unblock:
// whatever it was before the block, or accepted when that is unknown.
func Unblocked(prev *types.ConversationStatus) types.ConversationStatus {
	if prev != nil && prev.Valid() && *prev != types.ConversationStatusBlocked {
		return *prev
	}
	return types.ConversationStatusAccepted
}
