package service

import (
	"context"

	"github.com/parleyhq/parley/auth"
	"github.com/parleyhq/parley/errs"
	"github.com/parleyhq/parley/types"
)

// CreateGroup creates a group conversation with the caller as initial
// admin. Groups are born accepted; no request workflow applies.
func (svc *Service) CreateGroup(ctx context.Context, in types.CreateGroup) (types.Created, error) {
	var out types.Created

	loggedInUser, loggedIn := auth.UserFromContext(ctx)
	if !loggedIn {
		return out, errs.Unauthenticated
	}

	in.SetLoggedInUserID(loggedInUser.ID)
	in.Dedupe()

	if err := in.Validate(); err != nil {
		return out, err
	}

	ctx, cancel := svc.interactive(ctx)
	defer cancel()

	out, err := svc.Postgres.CreateGroupConversation(ctx, in)
	if err != nil {
		return out, err
	}

	svc.background(func(ctx context.Context) error {
		return svc.notifyGroup(ctx, loggedInUser.ID, out.ID, loggedInUser.Username+" added you to a group")
	})

	return out, nil
}

func (svc *Service) AddMembers(ctx context.Context, in types.AddMembers) error {
	if err := in.Validate(); err != nil {
		return err
	}

	loggedInUser, loggedIn := auth.UserFromContext(ctx)
	if !loggedIn {
		return errs.Unauthenticated
	}

	in.SetLoggedInUserID(loggedInUser.ID)

	msg, err := svc.Postgres.AddGroupMembers(ctx, in)
	if err != nil {
		return err
	}

	svc.publishConversationEvent(types.ConversationEvent{
		Kind:           types.ConversationEventMessageAppended,
		ConversationID: msg.ConversationID,
		Message:        &msg,
	})

	return nil
}

func (svc *Service) RemoveMembers(ctx context.Context, in types.RemoveMembers) error {
	if err := in.Validate(); err != nil {
		return err
	}

	loggedInUser, loggedIn := auth.UserFromContext(ctx)
	if !loggedIn {
		return errs.Unauthenticated
	}

	in.SetLoggedInUserID(loggedInUser.ID)

	msg, err := svc.Postgres.RemoveGroupMembers(ctx, in)
	if err != nil {
		return err
	}

	svc.publishConversationEvent(types.ConversationEvent{
		Kind:           types.ConversationEventMessageAppended,
		ConversationID: msg.ConversationID,
		Message:        &msg,
	})

	return nil
}

func (svc *Service) LeaveGroup(ctx context.Context, in types.LeaveGroup) error {
	if err := in.Validate(); err != nil {
		return err
	}

	loggedInUser, loggedIn := auth.UserFromContext(ctx)
	if !loggedIn {
		return errs.Unauthenticated
	}

	in.SetLoggedInUserID(loggedInUser.ID)

	msg, err := svc.Postgres.LeaveGroup(ctx, in)
	if err != nil {
		return err
	}

	// The group may have emptied out; then there is nothing to announce.
	if msg.ID != "" {
		svc.publishConversationEvent(types.ConversationEvent{
			Kind:           types.ConversationEventMessageAppended,
			ConversationID: msg.ConversationID,
			Message:        &msg,
		})
	}

	return nil
}

func (svc *Service) RenameGroup(ctx context.Context, in types.RenameGroup) error {
	if err := in.Validate(); err != nil {
		return err
	}

	loggedInUser, loggedIn := auth.UserFromContext(ctx)
	if !loggedIn {
		return errs.Unauthenticated
	}

	in.SetLoggedInUserID(loggedInUser.ID)

	msg, err := svc.Postgres.RenameGroup(ctx, in)
	if err != nil {
		return err
	}

	svc.publishConversationEvent(types.ConversationEvent{
		Kind:           types.ConversationEventMessageAppended,
		ConversationID: msg.ConversationID,
		Message:        &msg,
	})

	return nil
}

// ChangeGroupAvatar stores the blob reference for the group avatar. The
// upload itself goes through UploadAttachments first.
func (svc *Service) ChangeGroupAvatar(ctx context.Context, in types.ChangeGroupAvatar) error {
	if err := in.Validate(); err != nil {
		return err
	}

	loggedInUser, loggedIn := auth.UserFromContext(ctx)
	if !loggedIn {
		return errs.Unauthenticated
	}

	in.SetLoggedInUserID(loggedInUser.ID)

	msg, err := svc.Postgres.SetGroupAvatar(ctx, in)
	if err != nil {
		return err
	}

	svc.publishConversationEvent(types.ConversationEvent{
		Kind:           types.ConversationEventMessageAppended,
		ConversationID: msg.ConversationID,
		Message:        &msg,
	})

	return nil
}

func (svc *Service) notifyGroup(ctx context.Context, actorID, conversationID, body string) error {
	targets, err := svc.Postgres.NotificationTargets(ctx, conversationID, actorID)
	if err != nil {
		return err
	}

	retrieve := types.RetrieveConversation{ConversationID: conversationID}
	retrieve.SetLoggedInUserID(actorID)
	conv, err := svc.Postgres.Conversation(ctx, retrieve)
	if err != nil {
		return err
	}

	title := "Group"
	if conv.GroupName != nil {
		title = *conv.GroupName
	}

	for _, target := range targets {
		if target.Muted {
			continue
		}

		n, err := svc.Postgres.CreateNotification(ctx, types.CreateNotification{
			RecipientID:    target.UserID,
			Kind:           types.NotificationKindGroup,
			Title:          title,
			Body:           body,
			ConversationID: &conversationID,
		})
		if err != nil {
			return err
		}

		svc.publishNotification(n)
	}

	return nil
}
