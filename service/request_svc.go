package service

import (
	"context"

	"github.com/parleyhq/parley/auth"
	"github.com/parleyhq/parley/errs"
	"github.com/parleyhq/parley/types"
)

func (svc *Service) AcceptRequest(ctx context.Context, in types.AcceptRequest) (types.Conversation, error) {
	var out types.Conversation

	if err := in.Validate(); err != nil {
		return out, err
	}

	loggedInUser, loggedIn := auth.UserFromContext(ctx)
	if !loggedIn {
		return out, errs.Unauthenticated
	}

	in.SetLoggedInUserID(loggedInUser.ID)

	ctx, cancel := svc.interactive(ctx)
	defer cancel()

	out, err := svc.Postgres.AcceptConversation(ctx, in)
	if err != nil {
		return out, err
	}

	svc.publishConversationEvent(types.ConversationEvent{
		Kind:           types.ConversationEventStatusChanged,
		ConversationID: out.ID,
		Status:         out.Status,
	})

	return out, nil
}

func (svc *Service) DeclineRequest(ctx context.Context, in types.DeclineRequest) (types.Conversation, error) {
	var out types.Conversation

	if err := in.Validate(); err != nil {
		return out, err
	}

	loggedInUser, loggedIn := auth.UserFromContext(ctx)
	if !loggedIn {
		return out, errs.Unauthenticated
	}

	in.SetLoggedInUserID(loggedInUser.ID)

	ctx, cancel := svc.interactive(ctx)
	defer cancel()

	out, err := svc.Postgres.DeclineConversation(ctx, in)
	if err != nil {
		return out, err
	}

	svc.publishConversationEvent(types.ConversationEvent{
		Kind:           types.ConversationEventStatusChanged,
		ConversationID: out.ID,
		Status:         out.Status,
	})

	return out, nil
}

// MarkRequestRead acknowledges a pending request without accepting it. The
// requester never learns about it.
func (svc *Service) MarkRequestRead(ctx context.Context, in types.MarkRequestRead) error {
	loggedInUser, loggedIn := auth.UserFromContext(ctx)
	if !loggedIn {
		return errs.Unauthenticated
	}

	in.SetLoggedInUserID(loggedInUser.ID)

	return svc.Postgres.MarkRequestRead(ctx, in)
}
