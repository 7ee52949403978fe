package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nicolasparada/go-db"
	"github.com/parleyhq/parley/errs"
	"github.com/parleyhq/parley/id"
	"github.com/parleyhq/parley/types"
)

// participationJSON is the viewer's own membership row, attached to every
// conversation read so participant-scoped flags come along for free.
const participationJSON = `
	json_build_object(
		'conversationID', participants.conversation_id,
		'userID', participants.user_id,
		'unreadCount', participants.unread_count,
		'messageCount', participants.message_count,
		'archived', participants.archived,
		'muted', participants.muted,
		'pinned', participants.pinned,
		'hidden', participants.hidden,
		'deleted', participants.deleted,
		'admin', participants.admin,
		'joinedAt', participants.joined_at,
		'lastReadAt', participants.last_read_at,
		'createdAt', participants.created_at,
		'updatedAt', participants.updated_at
	) AS participation
`

func (p *Postgres) Conversation(ctx context.Context, in types.RetrieveConversation) (types.Conversation, error) {
	var out types.Conversation

	const q = `
		SELECT conversations.*, ` + participationJSON + `
		FROM conversations
		INNER JOIN participants ON participants.conversation_id = conversations.id
		WHERE conversations.id = @conversation_id
			AND participants.user_id = @user_id
	`

	rows, err := p.db.Query(ctx, q, pgx.StrictNamedArgs{
		"conversation_id": in.ConversationID,
		"user_id":         in.LoggedInUserID(),
	})
	if err != nil {
		return out, fmt.Errorf("sql select conversation: %w", err)
	}

	out, err = pgx.CollectExactlyOneRow(rows, pgx.RowToStructByNameLax[types.Conversation])
	if db.IsNotFoundError(err) {
		return out, errs.NewNotFoundError("conversation not found")
	}

	if err != nil {
		return out, fmt.Errorf("sql collect conversation: %w", err)
	}

	return out, nil
}

// DirectConversationFromParticipants resolves the single direct conversation
// for the pair, without creating it.
func (p *Postgres) DirectConversationFromParticipants(ctx context.Context, userID, otherUserID string) (types.Conversation, error) {
	var out types.Conversation

	const q = `
		SELECT conversations.*, ` + participationJSON + `
		FROM conversations
		INNER JOIN participants ON participants.conversation_id = conversations.id
		WHERE conversations.direct_key = @direct_key
			AND participants.user_id = @user_id
	`

	rows, err := p.db.Query(ctx, q, pgx.StrictNamedArgs{
		"direct_key": pairKey(userID, otherUserID),
		"user_id":    userID,
	})
	if err != nil {
		return out, fmt.Errorf("sql select direct conversation: %w", err)
	}

	out, err = pgx.CollectExactlyOneRow(rows, pgx.RowToStructByNameLax[types.Conversation])
	if db.IsNotFoundError(err) {
		return out, errs.NewNotFoundError("conversation not found")
	}

	if err != nil {
		return out, fmt.Errorf("sql collect direct conversation: %w", err)
	}

	return out, nil
}

// CreateDirectConversation is conditional on the pair key: when both sides
// race to create, exactly one insert wins and the loser comes back with the
// winner's row. There is never a duplicate.
func (p *Postgres) CreateDirectConversation(ctx context.Context, in types.CreateDirectConversation) (types.Created, error) {
	var out types.Created
	err := p.db.RunTx(ctx, func(ctx context.Context) error {
		key := pairKey(in.LoggedInUserID(), in.OtherUserID)

		const insert = `
			INSERT INTO conversations (id, is_group, status, requester_id, direct_key)
			VALUES (@conversation_id, false, @status, @requester_id, @direct_key)
			ON CONFLICT (direct_key) WHERE direct_key IS NOT NULL DO NOTHING
			RETURNING id, created_at
		`

		rows, err := p.db.Query(ctx, insert, pgx.StrictNamedArgs{
			"conversation_id": id.Generate(),
			"status":          in.Status(),
			"requester_id":    in.LoggedInUserID(),
			"direct_key":      key,
		})
		if err != nil {
			return fmt.Errorf("sql insert direct conversation: %w", err)
		}

		created, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByNameLax[types.Created])
		if db.IsNotFoundError(err) {
			// Lost the race; the other participant created it first.
			const winner = `
				SELECT id, created_at
				FROM conversations
				WHERE direct_key = @direct_key
			`

			rows, err := p.db.Query(ctx, winner, pgx.StrictNamedArgs{"direct_key": key})
			if err != nil {
				return fmt.Errorf("sql select winning conversation: %w", err)
			}

			out, err = pgx.CollectExactlyOneRow(rows, pgx.RowToStructByNameLax[types.Created])
			if err != nil {
				return fmt.Errorf("sql collect winning conversation: %w", err)
			}

			return nil
		}

		if err != nil {
			return fmt.Errorf("sql collect inserted conversation: %w", err)
		}

		const insertParticipants = `
			INSERT INTO participants (conversation_id, user_id)
			VALUES (@conversation_id, @user_id)
				 , (@conversation_id, @other_user_id)
		`

		_, err = p.db.Exec(ctx, insertParticipants, pgx.StrictNamedArgs{
			"conversation_id": created.ID,
			"user_id":         in.LoggedInUserID(),
			"other_user_id":   in.OtherUserID,
		})
		if isForeignKeyViolation(err) {
			return errs.NewNotFoundError("user not found")
		}

		if err != nil {
			return fmt.Errorf("sql insert participants: %w", err)
		}

		out = created
		return nil
	})
	return out, err
}

func (p *Postgres) Conversations(ctx context.Context, in types.ListConversations) (types.Page[types.Conversation], error) {
	var out types.Page[types.Conversation]

	page, err := ParsePageArgs[time.Time](in.PageArgs)
	if err != nil {
		return out, err
	}

	query := `
		SELECT conversations.*, ` + participationJSON + `
		FROM conversations
		INNER JOIN participants ON participants.conversation_id = conversations.id
		WHERE participants.user_id = @user_id
			AND NOT participants.hidden
			AND NOT participants.deleted
			AND participants.archived = @archived
			AND NOT (conversations.status = 'pending' AND conversations.requester_id IS DISTINCT FROM @user_id)
	`
	args := pgx.NamedArgs{
		"user_id":  in.LoggedInUserID(),
		"archived": in.Archived,
	}

	query = addPageFilter(query, "conversations", "updated_at", args, page)
	query = addPageOrder(query, "conversations", "updated_at", page)
	query = addPageLimit(query, args, page)

	rows, err := p.db.Query(ctx, query, args)
	if err != nil {
		return out, fmt.Errorf("sql select conversations: %w", err)
	}

	out.Items, err = pgx.CollectRows(rows, pgx.RowToStructByNameLax[types.Conversation])
	if err != nil {
		return out, fmt.Errorf("sql collect conversations: %w", err)
	}

	err = applyPageInfo(&out, page, func(c types.Conversation) Cursor[time.Time] {
		return Cursor[time.Time]{ID: c.ID, Value: c.UpdatedAt}
	})
	if err != nil {
		return out, err
	}

	return out, nil
}

// Requests is the derived message-request view: pending conversations
// requested by someone else.
func (p *Postgres) Requests(ctx context.Context, in types.ListRequests) (types.Page[types.Conversation], error) {
	var out types.Page[types.Conversation]

	page, err := ParsePageArgs[time.Time](in.PageArgs)
	if err != nil {
		return out, err
	}

	query := `
		SELECT conversations.*, ` + participationJSON + `
		FROM conversations
		INNER JOIN participants ON participants.conversation_id = conversations.id
		WHERE participants.user_id = @user_id
			AND NOT participants.hidden
			AND NOT participants.deleted
			AND conversations.status = 'pending'
			AND conversations.requester_id IS DISTINCT FROM @user_id
	`
	args := pgx.NamedArgs{
		"user_id": in.LoggedInUserID(),
	}

	query = addPageFilter(query, "conversations", "updated_at", args, page)
	query = addPageOrder(query, "conversations", "updated_at", page)
	query = addPageLimit(query, args, page)

	rows, err := p.db.Query(ctx, query, args)
	if err != nil {
		return out, fmt.Errorf("sql select requests: %w", err)
	}

	out.Items, err = pgx.CollectRows(rows, pgx.RowToStructByNameLax[types.Conversation])
	if err != nil {
		return out, fmt.Errorf("sql collect requests: %w", err)
	}

	err = applyPageInfo(&out, page, func(c types.Conversation) Cursor[time.Time] {
		return Cursor[time.Time]{ID: c.ID, Value: c.UpdatedAt}
	})
	if err != nil {
		return out, err
	}

	return out, nil
}

// SetConversationFlag flips one participant-scoped flag for the viewer's
// row only. It never reads or rewrites the whole record, so concurrent
// writers on other columns are untouched.
func (p *Postgres) SetConversationFlag(ctx context.Context, in types.SetConversationFlag) error {
	var column string
	switch in.Flag {
	case types.ConversationFlagArchived:
		column = "archived"
	case types.ConversationFlagMuted:
		column = "muted"
	case types.ConversationFlagPinned:
		column = "pinned"
	default:
		return errs.NewInvalidArgumentError("Flag", "unknown conversation flag")
	}

	q := fmt.Sprintf(`
		UPDATE participants
		SET %s = @value,
			updated_at = now()
		WHERE conversation_id = @conversation_id
			AND user_id = @user_id
	`, column)

	tag, err := p.db.Exec(ctx, q, pgx.StrictNamedArgs{
		"conversation_id": in.ConversationID,
		"user_id":         in.LoggedInUserID(),
		"value":           in.Value,
	})
	if err != nil {
		return fmt.Errorf("sql update conversation flag: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return errs.NewNotFoundError("conversation not found")
	}

	return nil
}

// MarkConversationRead acknowledges delivery for the viewer: unread drops to
// zero and read receipts are recorded for every message they hadn't seen.
func (p *Postgres) MarkConversationRead(ctx context.Context, in types.MarkConversationRead) error {
	return p.db.RunTx(ctx, func(ctx context.Context) error {
		const q = `
			UPDATE participants
			SET unread_count = 0,
				last_read_at = now(),
				updated_at = now()
			WHERE conversation_id = @conversation_id
				AND user_id = @user_id
		`

		args := pgx.StrictNamedArgs{
			"conversation_id": in.ConversationID,
			"user_id":         in.LoggedInUserID(),
		}

		tag, err := p.db.Exec(ctx, q, args)
		if err != nil {
			return fmt.Errorf("sql mark conversation read: %w", err)
		}

		if tag.RowsAffected() == 0 {
			return errs.NewNotFoundError("conversation not found")
		}

		const receipts = `
			INSERT INTO message_reads (message_id, user_id)
			SELECT id, @user_id
			FROM messages
			WHERE conversation_id = @conversation_id
			ON CONFLICT DO NOTHING
		`

		if _, err := p.db.Exec(ctx, receipts, args); err != nil {
			return fmt.Errorf("sql insert read receipts: %w", err)
		}

		return nil
	})
}

// DeleteConversationFor soft-deletes the conversation for the viewer only.
// The other participants' history is untouched.
func (p *Postgres) DeleteConversationFor(ctx context.Context, in types.DeleteConversation) error {
	const q = `
		UPDATE participants
		SET deleted = true,
			updated_at = now()
		WHERE conversation_id = @conversation_id
			AND user_id = @user_id
	`

	tag, err := p.db.Exec(ctx, q, pgx.StrictNamedArgs{
		"conversation_id": in.ConversationID,
		"user_id":         in.LoggedInUserID(),
	})
	if err != nil {
		return fmt.Errorf("sql soft delete conversation: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return errs.NewNotFoundError("conversation not found")
	}

	return nil
}
