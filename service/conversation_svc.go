package service

import (
	"context"

	"github.com/parleyhq/parley/auth"
	"github.com/parleyhq/parley/errs"
	"github.com/parleyhq/parley/types"
)

func (svc *Service) Conversation(ctx context.Context, in types.RetrieveConversation) (types.Conversation, error) {
	var out types.Conversation

	if err := in.Validate(); err != nil {
		return out, err
	}

	loggedInUser, loggedIn := auth.UserFromContext(ctx)
	if !loggedIn {
		return out, errs.Unauthenticated
	}

	in.SetLoggedInUserID(loggedInUser.ID)

	return svc.Postgres.Conversation(ctx, in)
}

// CreateDirectConversation resolves the single direct conversation for the
// pair, creating it lazily on first contact. The initial status comes from
// the permission evaluation: accepted on mutual follow, pending otherwise.
func (svc *Service) CreateDirectConversation(ctx context.Context, in types.CreateDirectConversation) (types.Created, error) {
	var out types.Created

	if err := in.Validate(); err != nil {
		return out, err
	}

	loggedInUser, loggedIn := auth.UserFromContext(ctx)
	if !loggedIn {
		return out, errs.Unauthenticated
	}

	if in.OtherUserID == loggedInUser.ID {
		return out, errs.NewInvalidArgumentError("OtherUserID", "You cannot message yourself")
	}

	in.SetLoggedInUserID(loggedInUser.ID)

	ctx, cancel := svc.interactive(ctx)
	defer cancel()

	// Look the pair up first. An existing conversation is returned as is;
	// its lifecycle, not a fresh permission evaluation, governs sends.
	existing, err := svc.Postgres.DirectConversationFromParticipants(ctx, loggedInUser.ID, in.OtherUserID)
	if err == nil {
		return types.Created{ID: existing.ID, CreatedAt: existing.CreatedAt}, nil
	}

	if errs.KindOf(err) != errs.KindNotFound {
		return out, err
	}

	perm, err := svc.evaluatePermission(ctx, loggedInUser.ID, in.OtherUserID)
	if err != nil {
		return out, err
	}

	if !perm.Allowed {
		return out, errs.NewPermissionDeniedError(string(perm.Reason))
	}

	in.SetRequiresRequest(perm.RequiresRequest)
	if perm.RequiresRequest {
		in.SetStatus(types.ConversationStatusPending)
	} else {
		in.SetStatus(types.ConversationStatusAccepted)
	}

	return svc.Postgres.CreateDirectConversation(ctx, in)
}

func (svc *Service) Conversations(ctx context.Context, in types.ListConversations) (types.Page[types.Conversation], error) {
	var out types.Page[types.Conversation]

	if err := in.Validate(); err != nil {
		return out, err
	}

	loggedInUser, loggedIn := auth.UserFromContext(ctx)
	if !loggedIn {
		return out, errs.Unauthenticated
	}

	in.SetLoggedInUserID(loggedInUser.ID)

	return svc.Postgres.Conversations(ctx, in)
}

func (svc *Service) Requests(ctx context.Context, in types.ListRequests) (types.Page[types.Conversation], error) {
	var out types.Page[types.Conversation]

	if err := in.Validate(); err != nil {
		return out, err
	}

	loggedInUser, loggedIn := auth.UserFromContext(ctx)
	if !loggedIn {
		return out, errs.Unauthenticated
	}

	in.SetLoggedInUserID(loggedInUser.ID)

	return svc.Postgres.Requests(ctx, in)
}

func (svc *Service) SetConversationFlag(ctx context.Context, in types.SetConversationFlag) error {
	if err := in.Validate(); err != nil {
		return err
	}

	loggedInUser, loggedIn := auth.UserFromContext(ctx)
	if !loggedIn {
		return errs.Unauthenticated
	}

	in.SetLoggedInUserID(loggedInUser.ID)

	return svc.Postgres.SetConversationFlag(ctx, in)
}

func (svc *Service) MarkConversationRead(ctx context.Context, in types.MarkConversationRead) error {
	if err := in.Validate(); err != nil {
		return err
	}

	loggedInUser, loggedIn := auth.UserFromContext(ctx)
	if !loggedIn {
		return errs.Unauthenticated
	}

	in.SetLoggedInUserID(loggedInUser.ID)

	return svc.Postgres.MarkConversationRead(ctx, in)
}

func (svc *Service) DeleteConversation(ctx context.Context, in types.DeleteConversation) error {
	if err := in.Validate(); err != nil {
		return err
	}

	loggedInUser, loggedIn := auth.UserFromContext(ctx)
	if !loggedIn {
		return errs.Unauthenticated
	}

	in.SetLoggedInUserID(loggedInUser.ID)

	return svc.Postgres.DeleteConversationFor(ctx, in)
}
