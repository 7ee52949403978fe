package service

import (
	"context"
	"fmt"
	"path"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/parleyhq/parley/auth"
	"github.com/parleyhq/parley/errs"
	"github.com/parleyhq/parley/textutil"
	"github.com/parleyhq/parley/types"
)

const attachmentsBucket = "parley-attachments"

// CreateMessage appends a message. The store applies the lifecycle decision
// atomically with the insert; here we only fan the result out.
func (svc *Service) CreateMessage(ctx context.Context, in types.CreateMessage) (types.Message, error) {
	var out types.Message

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

	out, err := svc.Postgres.CreateMessage(ctx, in)
	if err != nil {
		return out, err
	}

	svc.publishConversationEvent(types.ConversationEvent{
		Kind:           types.ConversationEventMessageAppended,
		ConversationID: out.ConversationID,
		Message:        &out,
	})

	msg := out
	svc.background(func(ctx context.Context) error {
		return svc.notifyMessage(ctx, loggedInUser.ID, msg)
	})

	return out, nil
}

// UploadAttachments pushes blobs to the blob store and returns the stored
// references a message can carry. The engine never keeps the bytes.
func (svc *Service) UploadAttachments(ctx context.Context, uploads []types.Upload) ([]types.Attachment, error) {
	if _, loggedIn := auth.UserFromContext(ctx); !loggedIn {
		return nil, errs.Unauthenticated
	}

	// Client file names are untrusted; blobs get generated object keys.
	for i := range uploads {
		name, err := gonanoid.New()
		if err != nil {
			return nil, fmt.Errorf("generate attachment name: %w", err)
		}

		uploads[i].Path = name + path.Ext(uploads[i].Path)
	}

	if _, err := svc.Minio.UploadMany(ctx, attachmentsBucket, uploads); err != nil {
		return nil, err
	}

	attachments := make([]types.Attachment, len(uploads))
	for i, u := range uploads {
		attachments[i] = types.Attachment{
			Type: u.ContentType,
			URL:  "/" + attachmentsBucket + "/" + u.Path,
			Size: int64(u.FileSize),
		}
	}

	return attachments, nil
}

func (svc *Service) Messages(ctx context.Context, in types.ListMessages) (types.Page[types.Message], error) {
	var out types.Page[types.Message]

	if err := in.Validate(); err != nil {
		return out, err
	}

	loggedInUser, loggedIn := auth.UserFromContext(ctx)
	if !loggedIn {
		return out, errs.Unauthenticated
	}

	in.SetLoggedInUserID(loggedInUser.ID)

	out, err := svc.Postgres.Messages(ctx, in)
	if err != nil {
		return out, err
	}

	for i := range out.Items {
		item := &out.Items[i]
		item.Relationship = &types.MessageRelationship{
			IsMine: item.SenderID != nil && *item.SenderID == loggedInUser.ID,
		}
	}

	return out, nil
}

func (svc *Service) EditMessage(ctx context.Context, in types.EditMessage) (types.Message, error) {
	var out types.Message

	if err := in.Validate(); err != nil {
		return out, err
	}

	loggedInUser, loggedIn := auth.UserFromContext(ctx)
	if !loggedIn {
		return out, errs.Unauthenticated
	}

	in.SetLoggedInUserID(loggedInUser.ID)

	out, err := svc.Postgres.EditMessage(ctx, in)
	if err != nil {
		return out, err
	}

	svc.publishConversationEvent(types.ConversationEvent{
		Kind:           types.ConversationEventMessageUpdated,
		ConversationID: out.ConversationID,
		Message:        &out,
	})

	return out, nil
}

func (svc *Service) DeleteMessage(ctx context.Context, in types.DeleteMessage) (types.Message, error) {
	var out types.Message

	if err := in.Validate(); err != nil {
		return out, err
	}

	loggedInUser, loggedIn := auth.UserFromContext(ctx)
	if !loggedIn {
		return out, errs.Unauthenticated
	}

	in.SetLoggedInUserID(loggedInUser.ID)

	out, err := svc.Postgres.SoftDeleteMessage(ctx, in)
	if err != nil {
		return out, err
	}

	svc.publishConversationEvent(types.ConversationEvent{
		Kind:           types.ConversationEventMessageDeleted,
		ConversationID: out.ConversationID,
		Message:        &out,
	})

	return out, nil
}

func (svc *Service) ToggleReaction(ctx context.Context, in types.ToggleReaction) (types.Message, bool, error) {
	var out types.Message

	if err := in.Validate(); err != nil {
		return out, false, err
	}

	loggedInUser, loggedIn := auth.UserFromContext(ctx)
	if !loggedIn {
		return out, false, errs.Unauthenticated
	}

	in.SetLoggedInUserID(loggedInUser.ID)

	out, added, err := svc.Postgres.ToggleReaction(ctx, in)
	if err != nil {
		return out, false, err
	}

	svc.publishConversationEvent(types.ConversationEvent{
		Kind:           types.ConversationEventMessageUpdated,
		ConversationID: out.ConversationID,
		Message:        &out,
	})

	return out, added, nil
}

func (svc *Service) ToggleMessagePin(ctx context.Context, in types.ToggleMessagePin) (types.Message, bool, error) {
	var out types.Message

	if err := in.Validate(); err != nil {
		return out, false, err
	}

	loggedInUser, loggedIn := auth.UserFromContext(ctx)
	if !loggedIn {
		return out, false, errs.Unauthenticated
	}

	in.SetLoggedInUserID(loggedInUser.ID)

	out, pinned, err := svc.Postgres.ToggleMessagePin(ctx, in)
	if err != nil {
		return out, false, err
	}

	svc.publishConversationEvent(types.ConversationEvent{
		Kind:           types.ConversationEventMessageUpdated,
		ConversationID: out.ConversationID,
		Message:        &out,
	})

	return out, pinned, nil
}

// ToggleMessageStar is participant-scoped; nothing is published.
func (svc *Service) ToggleMessageStar(ctx context.Context, in types.ToggleMessageStar) (types.Message, bool, error) {
	var out types.Message

	if err := in.Validate(); err != nil {
		return out, false, err
	}

	loggedInUser, loggedIn := auth.UserFromContext(ctx)
	if !loggedIn {
		return out, false, errs.Unauthenticated
	}

	in.SetLoggedInUserID(loggedInUser.ID)

	return svc.Postgres.ToggleMessageStar(ctx, in)
}

// notifyMessage enqueues notification intents for everyone else in the
// conversation, skipping muted participants.
func (svc *Service) notifyMessage(ctx context.Context, senderID string, msg types.Message) error {
	retrieve := types.RetrieveConversation{ConversationID: msg.ConversationID}
	retrieve.SetLoggedInUserID(senderID)
	conv, err := svc.Postgres.Conversation(ctx, retrieve)
	if err != nil {
		return err
	}

	sender, err := svc.Postgres.User(ctx, senderID)
	if err != nil {
		return err
	}

	title := sender.Username
	if conv.IsGroup && conv.GroupName != nil {
		title = *conv.GroupName
	}

	kind := types.NotificationKindMessage
	if conv.Status == types.ConversationStatusPending {
		kind = types.NotificationKindRequest
		title = sender.Username + " wants to message you"
	}

	body := textutil.Preview(msg.Text, 120)
	if body == "" {
		body = "Sent an attachment"
	}

	targets, err := svc.Postgres.NotificationTargets(ctx, msg.ConversationID, senderID)
	if err != nil {
		return err
	}

	for _, target := range targets {
		if target.Muted {
			continue
		}

		n, err := svc.Postgres.CreateNotification(ctx, types.CreateNotification{
			RecipientID:    target.UserID,
			Kind:           kind,
			Title:          title,
			Body:           body,
			ConversationID: &msg.ConversationID,
		})
		if err != nil {
			return err
		}

		svc.publishNotification(n)
	}

	return nil
}
