package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgxutil"
	"github.com/nicolasparada/go-db"
	"github.com/parleyhq/parley/errs"
	"github.com/parleyhq/parley/lifecycle"
	"github.com/parleyhq/parley/types"
)

// lockedConversation is the minimal state lifecycle decisions run against,
// read under FOR UPDATE.
type lockedConversation struct {
	ID          string                    `db:"id"`
	IsGroup     bool                      `db:"is_group"`
	Status      types.ConversationStatus  `db:"status"`
	PrevStatus  *types.ConversationStatus `db:"prev_status"`
	RequesterID *string                   `db:"requester_id"`
	Admin       bool                      `db:"admin"`
}

// lockConversation locks the conversation row for the caller, who must be a
// participant.
func (p *Postgres) lockConversation(ctx context.Context, conversationID, userID string) (lockedConversation, error) {
	const q = `
		SELECT conversations.id,
			conversations.is_group,
			conversations.status,
			conversations.prev_status,
			conversations.requester_id,
			participants.admin
		FROM conversations
		INNER JOIN participants
			ON participants.conversation_id = conversations.id
			AND participants.user_id = @user_id
		WHERE conversations.id = @conversation_id
		FOR UPDATE OF conversations
	`

	args := pgx.StrictNamedArgs{
		"conversation_id": conversationID,
		"user_id":         userID,
	}

	locked, err := pgxutil.SelectRow(ctx, p.db, q, []any{args}, pgx.RowToStructByNameLax[lockedConversation])
	if db.IsNotFoundError(err) {
		return locked, errs.NewNotFoundError("conversation not found")
	}

	if err != nil {
		return locked, fmt.Errorf("sql lock conversation: %w", err)
	}

	return locked, nil
}

// AcceptConversation applies an accept to a pending request. Repeated
// accepts are no-ops; the decision itself lives in the state machine.
func (p *Postgres) AcceptConversation(ctx context.Context, in types.AcceptRequest) (types.Conversation, error) {
	var out types.Conversation
	err := p.db.RunTx(ctx, func(ctx context.Context) error {
		locked, err := p.lockConversation(ctx, in.ConversationID, in.LoggedInUserID())
		if err != nil {
			return err
		}

		if locked.IsGroup {
			return errs.NewInvalidStateError("group conversations have no request lifecycle")
		}

		apply, err := lifecycle.CanAccept(locked.Status, derefStr(locked.RequesterID), in.LoggedInUserID())
		if err != nil {
			return err
		}

		if apply {
			const q = `
				UPDATE conversations
				SET status = 'accepted',
					updated_at = now()
				WHERE id = @conversation_id
			`

			if _, err := p.db.Exec(ctx, q, pgx.StrictNamedArgs{"conversation_id": in.ConversationID}); err != nil {
				return fmt.Errorf("sql accept conversation: %w", err)
			}
		}

		retrieve := types.RetrieveConversation{ConversationID: in.ConversationID}
		retrieve.SetLoggedInUserID(in.LoggedInUserID())
		out, err = p.Conversation(ctx, retrieve)
		return err
	})
	return out, err
}

// DeclineConversation mirrors AcceptConversation. The conversation stays
// retrievable; only new messages from the recipient side are refused.
func (p *Postgres) DeclineConversation(ctx context.Context, in types.DeclineRequest) (types.Conversation, error) {
	var out types.Conversation
	err := p.db.RunTx(ctx, func(ctx context.Context) error {
		locked, err := p.lockConversation(ctx, in.ConversationID, in.LoggedInUserID())
		if err != nil {
			return err
		}

		if locked.IsGroup {
			return errs.NewInvalidStateError("group conversations have no request lifecycle")
		}

		apply, err := lifecycle.CanDecline(locked.Status, derefStr(locked.RequesterID), in.LoggedInUserID())
		if err != nil {
			return err
		}

		if apply {
			const q = `
				UPDATE conversations
				SET status = 'declined',
					updated_at = now()
				WHERE id = @conversation_id
			`

			if _, err := p.db.Exec(ctx, q, pgx.StrictNamedArgs{"conversation_id": in.ConversationID}); err != nil {
				return fmt.Errorf("sql decline conversation: %w", err)
			}
		}

		retrieve := types.RetrieveConversation{ConversationID: in.ConversationID}
		retrieve.SetLoggedInUserID(in.LoggedInUserID())
		out, err = p.Conversation(ctx, retrieve)
		return err
	})
	return out, err
}

// MarkRequestRead acknowledges a pending request without accepting it. The
// requester is not told; only the viewer's unread state changes. On a
// conversation that already transitioned out of pending it is a no-op.
func (p *Postgres) MarkRequestRead(ctx context.Context, in types.MarkRequestRead) error {
	const q = `
		UPDATE participants
		SET unread_count = 0,
			last_read_at = now(),
			updated_at = now()
		FROM conversations
		WHERE conversations.id = participants.conversation_id
			AND participants.conversation_id = @conversation_id
			AND participants.user_id = @user_id
			AND conversations.status = 'pending'
	`

	args := pgx.StrictNamedArgs{
		"conversation_id": in.ConversationID,
		"user_id":         in.LoggedInUserID(),
	}

	tag, err := p.db.Exec(ctx, q, args)
	if err != nil {
		return fmt.Errorf("sql mark request read: %w", err)
	}

	if tag.RowsAffected() == 0 {
		const member = `
			SELECT EXISTS (
				SELECT 1 FROM participants
				WHERE conversation_id = @conversation_id
					AND user_id = @user_id
			)
		`

		exists, err := pgxutil.SelectRow(ctx, p.db, member, []any{args}, pgx.RowTo[bool])
		if err != nil {
			return fmt.Errorf("sql select request membership: %w", err)
		}

		if !exists {
			return errs.NewNotFoundError("request not found")
		}
	}

	return nil
}
