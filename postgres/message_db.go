package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgxutil"
	"github.com/nicolasparada/go-db"
	"github.com/parleyhq/parley/errs"
	"github.com/parleyhq/parley/id"
	"github.com/parleyhq/parley/lifecycle"
	"github.com/parleyhq/parley/textutil"
	"github.com/parleyhq/parley/types"
)

const previewMaxLength = 120

// messageColumns is the shared projection for message reads. Deleted
// messages keep their row so replies still resolve; their text and
// attachments are cleared in place and blanked here as well.
const messageColumns = `
	messages.id,
	messages.conversation_id,
	messages.sender_id,
	(CASE WHEN messages.is_deleted THEN '' ELSE messages.text END) AS text,
	(CASE WHEN messages.is_deleted THEN '[]'::jsonb ELSE messages.attachments END) AS attachments,
	messages.reply_to_message_id,
	messages.seq,
	messages.is_system,
	messages.is_pinned,
	messages.is_deleted,
	messages.edited_at,
	messages.created_at,
	(
		SELECT COALESCE(json_agg(json_build_object(
			'userID', message_reactions.user_id,
			'emoji', message_reactions.emoji
		)), '[]')
		FROM message_reactions
		WHERE message_reactions.message_id = messages.id
	) AS reactions,
	(
		SELECT COALESCE(array_agg(message_reads.user_id), '{}'::varchar[])
		FROM message_reads
		WHERE message_reads.message_id = messages.id
	) AS read_by,
	(
		SELECT COALESCE(array_agg(message_stars.user_id), '{}'::varchar[])
		FROM message_stars
		WHERE message_stars.message_id = messages.id
	) AS starred_by,
	(CASE WHEN users.id IS NULL THEN NULL ELSE json_build_object(
		'id', users.id,
		'username', users.username,
		'avatarURL', users.avatar
	) END) AS sender
`

// SenderState reads the conversation state a send decision runs against.
// Inside a transaction it locks the conversation and the sender's
// participant row so concurrent sends serialize on the same counters.
func (p *Postgres) SenderState(ctx context.Context, conversationID, senderID string) (types.SenderState, error) {
	const q = `
		SELECT conversations.id AS conversation_id,
			conversations.status,
			conversations.is_group,
			conversations.requester_id,
			participants.message_count,
			EXISTS (
				SELECT 1
				FROM blocks
				INNER JOIN participants others
					ON others.conversation_id = conversations.id
					AND others.user_id <> @user_id
				WHERE NOT conversations.is_group
					AND (
						(blocks.blocker_id = @user_id AND blocks.blocked_id = others.user_id)
						OR (blocks.blocker_id = others.user_id AND blocks.blocked_id = @user_id)
					)
			) AS blocked
		FROM conversations
		INNER JOIN participants
			ON participants.conversation_id = conversations.id
			AND participants.user_id = @user_id
		WHERE conversations.id = @conversation_id
		FOR UPDATE OF conversations, participants
	`

	args := pgx.StrictNamedArgs{
		"conversation_id": conversationID,
		"user_id":         senderID,
	}

	state, err := pgxutil.SelectRow(ctx, p.db, q, []any{args}, pgx.RowToStructByNameLax[types.SenderState])
	if db.IsNotFoundError(err) {
		return state, errs.NewNotFoundError("conversation not found")
	}

	if err != nil {
		return state, fmt.Errorf("sql select sender state: %w", err)
	}

	return state, nil
}

// CreateMessage appends a message inside one transaction: the conversation
// row is locked, the state machine decides, the next sequence number is
// taken from the lock holder, and any status transition rides along
// atomically. Order within a conversation is total and gapless.
func (p *Postgres) CreateMessage(ctx context.Context, in types.CreateMessage) (types.Message, error) {
	var out types.Message
	err := p.db.RunTx(ctx, func(ctx context.Context) error {
		state, err := p.SenderState(ctx, in.ConversationID, in.LoggedInUserID())
		if err != nil {
			return err
		}

		decision, err := lifecycle.CanSend(lifecycle.SendContext{
			Status:             state.Status,
			IsGroup:            state.IsGroup,
			RequesterID:        derefStr(state.RequesterID),
			SenderID:           in.LoggedInUserID(),
			SenderMessageCount: state.MessageCount,
			Blocked:            state.Blocked,
		})
		if err != nil {
			return err
		}

		if in.ReplyToMessageID != nil {
			const q = `
				SELECT EXISTS (
					SELECT 1 FROM messages
					WHERE id = @message_id
						AND conversation_id = @conversation_id
				)
			`

			ok, err := pgxutil.SelectRow(ctx, p.db, q, []any{pgx.StrictNamedArgs{
				"message_id":      *in.ReplyToMessageID,
				"conversation_id": in.ConversationID,
			}}, pgx.RowTo[bool])
			if err != nil {
				return fmt.Errorf("sql select reply-to exists: %w", err)
			}

			if !ok {
				return errs.NewNotFoundError("reply-to message not found")
			}
		}

		senderID := in.LoggedInUserID()
		out, err = p.appendTx(ctx, appendMessage{
			ConversationID:   in.ConversationID,
			SenderID:         &senderID,
			Text:             in.Text,
			Attachments:      in.Attachments,
			ReplyToMessageID: in.ReplyToMessageID,
			Transition:       decision.Transition,
		})
		if err != nil {
			return err
		}

		const updateSender = `
			UPDATE participants
			SET message_count = (CASE WHEN @reset THEN 1 ELSE message_count + 1 END),
				updated_at = now()
			WHERE conversation_id = @conversation_id
				AND user_id = @user_id
		`

		_, err = p.db.Exec(ctx, updateSender, pgx.StrictNamedArgs{
			"conversation_id": in.ConversationID,
			"user_id":         in.LoggedInUserID(),
			"reset":           decision.ResetRequesterCount,
		})
		if err != nil {
			return fmt.Errorf("sql update sender participant: %w", err)
		}

		// Everyone else gets an unread bump, and an incoming message
		// resurfaces conversations they had hidden or soft-deleted.
		const updateOthers = `
			UPDATE participants
			SET unread_count = unread_count + 1,
				hidden = false,
				deleted = false,
				updated_at = now()
			WHERE conversation_id = @conversation_id
				AND user_id <> @user_id
		`

		_, err = p.db.Exec(ctx, updateOthers, pgx.StrictNamedArgs{
			"conversation_id": in.ConversationID,
			"user_id":         in.LoggedInUserID(),
		})
		if err != nil {
			return fmt.Errorf("sql update other participants: %w", err)
		}

		return nil
	})
	return out, err
}

type appendMessage struct {
	ConversationID   string
	SenderID         *string
	Text             string
	Attachments      []types.Attachment
	ReplyToMessageID *string
	Transition       *types.ConversationStatus
	System           bool
}

// appendTx does the sequence-assigned insert shared by user sends and
// system messages. The caller must already hold the conversation lock.
func (p *Postgres) appendTx(ctx context.Context, in appendMessage) (types.Message, error) {
	var out types.Message

	const bump = `
		UPDATE conversations
		SET last_seq = last_seq + 1,
			status = COALESCE(@status, status),
			last_message_preview = @preview,
			last_message_at = now(),
			updated_at = now()
		WHERE id = @conversation_id
		RETURNING last_seq
	`

	preview := textutil.Preview(in.Text, previewMaxLength)
	if preview == "" && len(in.Attachments) != 0 {
		preview = "Sent an attachment"
	}

	seq, err := pgxutil.SelectRow(ctx, p.db, bump, []any{pgx.NamedArgs{
		"conversation_id": in.ConversationID,
		"status":          in.Transition,
		"preview":         preview,
	}}, pgx.RowTo[int64])
	if err != nil {
		return out, fmt.Errorf("sql bump conversation seq: %w", err)
	}

	attachments := in.Attachments
	if attachments == nil {
		attachments = []types.Attachment{}
	}

	const insert = `
		INSERT INTO messages (id, conversation_id, sender_id, text, attachments, reply_to_message_id, seq, is_system)
		VALUES (@message_id, @conversation_id, @sender_id, @text, @attachments, @reply_to_message_id, @seq, @is_system)
		RETURNING created_at
	`

	messageID := id.Generate()
	createdAt, err := pgxutil.SelectRow(ctx, p.db, insert, []any{pgx.NamedArgs{
		"message_id":          messageID,
		"conversation_id":     in.ConversationID,
		"sender_id":           in.SenderID,
		"text":                in.Text,
		"attachments":         attachments,
		"reply_to_message_id": in.ReplyToMessageID,
		"seq":                 seq,
		"is_system":           in.System,
	}}, pgx.RowToStructByNameLax[types.Created])
	if err != nil {
		return out, fmt.Errorf("sql insert message: %w", err)
	}

	if in.SenderID != nil {
		const read = `
			INSERT INTO message_reads (message_id, user_id)
			VALUES (@message_id, @user_id)
		`

		_, err = p.db.Exec(ctx, read, pgx.StrictNamedArgs{
			"message_id": messageID,
			"user_id":    *in.SenderID,
		})
		if err != nil {
			return out, fmt.Errorf("sql insert sender read receipt: %w", err)
		}
	}

	out = types.Message{
		ID:               messageID,
		ConversationID:   in.ConversationID,
		SenderID:         in.SenderID,
		Text:             in.Text,
		Attachments:      attachments,
		ReplyToMessageID: in.ReplyToMessageID,
		Seq:              seq,
		IsSystem:         in.System,
		CreatedAt:        createdAt.CreatedAt,
		Reactions:        []types.Reaction{},
		StarredBy:        []string{},
	}
	if in.SenderID != nil {
		out.ReadBy = []string{*in.SenderID}
	}
	return out, nil
}

// Messages pages over a conversation's history ordered by sequence,
// newest first.
func (p *Postgres) Messages(ctx context.Context, in types.ListMessages) (types.Page[types.Message], error) {
	var out types.Page[types.Message]

	page, err := ParsePageArgs[int64](in.PageArgs)
	if err != nil {
		return out, err
	}

	query := `
		SELECT ` + messageColumns + `
		FROM messages
		LEFT JOIN users ON users.id = messages.sender_id
		WHERE messages.conversation_id = @conversation_id
			AND EXISTS (
				SELECT 1 FROM participants
				WHERE participants.conversation_id = messages.conversation_id
					AND participants.user_id = @user_id
			)
	`
	args := pgx.NamedArgs{
		"conversation_id": in.ConversationID,
		"user_id":         in.LoggedInUserID(),
	}

	query = addPageFilter(query, "messages", "seq", args, page)
	query = addPageOrder(query, "messages", "seq", page)
	query = addPageLimit(query, args, page)

	rows, err := p.db.Query(ctx, query, args)
	if err != nil {
		return out, fmt.Errorf("sql select messages: %w", err)
	}

	out.Items, err = pgx.CollectRows(rows, pgx.RowToStructByNameLax[types.Message])
	if err != nil {
		return out, fmt.Errorf("sql collect messages: %w", err)
	}

	err = applyPageInfo(&out, page, func(m types.Message) Cursor[int64] {
		return Cursor[int64]{ID: m.ID, Value: m.Seq}
	})
	if err != nil {
		return out, err
	}

	return out, nil
}

// Message reads a single message the viewer can see.
func (p *Postgres) Message(ctx context.Context, messageID, viewerID string) (types.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		LEFT JOIN users ON users.id = messages.sender_id
		WHERE messages.id = @message_id
			AND EXISTS (
				SELECT 1 FROM participants
				WHERE participants.conversation_id = messages.conversation_id
					AND participants.user_id = @user_id
			)
	`

	args := pgx.StrictNamedArgs{
		"message_id": messageID,
		"user_id":    viewerID,
	}

	msg, err := pgxutil.SelectRow(ctx, p.db, query, []any{args}, pgx.RowToStructByNameLax[types.Message])
	if db.IsNotFoundError(err) {
		return msg, errs.NewNotFoundError("message not found")
	}

	if err != nil {
		return msg, fmt.Errorf("sql select message: %w", err)
	}

	return msg, nil
}

// EditMessage rewrites the text of the caller's own message.
func (p *Postgres) EditMessage(ctx context.Context, in types.EditMessage) (types.Message, error) {
	var out types.Message
	err := p.db.RunTx(ctx, func(ctx context.Context) error {
		owned, err := p.ownedMessage(ctx, in.MessageID)
		if err != nil {
			return err
		}

		if owned.SenderID == nil || *owned.SenderID != in.LoggedInUserID() {
			return errs.NewPermissionDeniedError("you can only edit your own messages")
		}

		if owned.IsDeleted {
			return errs.NewInvalidStateError("message was deleted")
		}

		const q = `
			UPDATE messages
			SET text = @text,
				edited_at = now()
			WHERE id = @message_id
		`

		_, err = p.db.Exec(ctx, q, pgx.StrictNamedArgs{
			"message_id": in.MessageID,
			"text":       in.Text,
		})
		if err != nil {
			return fmt.Errorf("sql update message text: %w", err)
		}

		// Keep the conversation preview in sync when the latest message
		// is the one edited.
		const preview = `
			UPDATE conversations
			SET last_message_preview = @preview,
				updated_at = now()
			WHERE id = @conversation_id
				AND last_seq = @seq
		`

		_, err = p.db.Exec(ctx, preview, pgx.StrictNamedArgs{
			"conversation_id": owned.ConversationID,
			"seq":             owned.Seq,
			"preview":         textutil.Preview(in.Text, previewMaxLength),
		})
		if err != nil {
			return fmt.Errorf("sql update conversation preview: %w", err)
		}

		out, err = p.Message(ctx, in.MessageID, in.LoggedInUserID())
		return err
	})
	return out, err
}

// SoftDeleteMessage tombstones the caller's own message. The row stays so
// replies and sequence numbers keep resolving.
func (p *Postgres) SoftDeleteMessage(ctx context.Context, in types.DeleteMessage) (types.Message, error) {
	var out types.Message
	err := p.db.RunTx(ctx, func(ctx context.Context) error {
		owned, err := p.ownedMessage(ctx, in.MessageID)
		if err != nil {
			return err
		}

		if owned.SenderID == nil || *owned.SenderID != in.LoggedInUserID() {
			return errs.NewPermissionDeniedError("you can only delete your own messages")
		}

		if owned.IsDeleted {
			out = owned
			return nil
		}

		const q = `
			UPDATE messages
			SET is_deleted = true,
				text = '',
				attachments = '[]'::jsonb
			WHERE id = @message_id
		`

		_, err = p.db.Exec(ctx, q, pgx.StrictNamedArgs{"message_id": in.MessageID})
		if err != nil {
			return fmt.Errorf("sql soft delete message: %w", err)
		}

		const preview = `
			UPDATE conversations
			SET last_message_preview = NULL,
				updated_at = now()
			WHERE id = @conversation_id
				AND last_seq = @seq
		`

		_, err = p.db.Exec(ctx, preview, pgx.StrictNamedArgs{
			"conversation_id": owned.ConversationID,
			"seq":             owned.Seq,
		})
		if err != nil {
			return fmt.Errorf("sql clear conversation preview: %w", err)
		}

		out, err = p.Message(ctx, in.MessageID, in.LoggedInUserID())
		return err
	})
	return out, err
}

// ownedMessage reads the minimal fields ownership checks need, under lock.
func (p *Postgres) ownedMessage(ctx context.Context, messageID string) (types.Message, error) {
	const q = `
		SELECT id, conversation_id, sender_id, seq, is_deleted
		FROM messages
		WHERE id = @message_id
			AND NOT is_system
		FOR UPDATE
	`

	msg, err := pgxutil.SelectRow(ctx, p.db, q, []any{pgx.StrictNamedArgs{
		"message_id": messageID,
	}}, pgx.RowToStructByNameLax[types.Message])
	if db.IsNotFoundError(err) {
		return msg, errs.NewNotFoundError("message not found")
	}

	if err != nil {
		return msg, fmt.Errorf("sql select message for update: %w", err)
	}

	return msg, nil
}

// ToggleReaction reports whether the reaction was added (true) or removed
// (false), along with the refreshed message.
func (p *Postgres) ToggleReaction(ctx context.Context, in types.ToggleReaction) (types.Message, bool, error) {
	var out types.Message
	var added bool
	err := p.db.RunTx(ctx, func(ctx context.Context) error {
		const del = `
			DELETE FROM message_reactions
			WHERE message_id = @message_id
				AND user_id = @user_id
				AND emoji = @emoji
		`

		args := pgx.StrictNamedArgs{
			"message_id": in.MessageID,
			"user_id":    in.LoggedInUserID(),
			"emoji":      in.Emoji,
		}

		tag, err := p.db.Exec(ctx, del, args)
		if err != nil {
			return fmt.Errorf("sql delete reaction: %w", err)
		}

		if tag.RowsAffected() == 0 {
			const ins = `
				INSERT INTO message_reactions (message_id, user_id, emoji)
				SELECT @message_id, @user_id, @emoji
				WHERE EXISTS (
					SELECT 1 FROM messages
					INNER JOIN participants
						ON participants.conversation_id = messages.conversation_id
						AND participants.user_id = @user_id
					WHERE messages.id = @message_id
						AND NOT messages.is_deleted
				)
			`

			tag, err := p.db.Exec(ctx, ins, args)
			if err != nil {
				return fmt.Errorf("sql insert reaction: %w", err)
			}

			if tag.RowsAffected() == 0 {
				return errs.NewNotFoundError("message not found")
			}

			added = true
		}

		out, err = p.Message(ctx, in.MessageID, in.LoggedInUserID())
		return err
	})
	return out, added, err
}

// ToggleMessagePin flips the shared pinned flag. Any participant may pin.
func (p *Postgres) ToggleMessagePin(ctx context.Context, in types.ToggleMessagePin) (types.Message, bool, error) {
	var out types.Message
	var pinned bool
	err := p.db.RunTx(ctx, func(ctx context.Context) error {
		const q = `
			UPDATE messages
			SET is_pinned = NOT is_pinned
			WHERE id = @message_id
				AND NOT is_deleted
				AND EXISTS (
					SELECT 1 FROM participants
					WHERE participants.conversation_id = messages.conversation_id
						AND participants.user_id = @user_id
				)
			RETURNING is_pinned
		`

		args := pgx.StrictNamedArgs{
			"message_id": in.MessageID,
			"user_id":    in.LoggedInUserID(),
		}

		var err error
		pinned, err = pgxutil.SelectRow(ctx, p.db, q, []any{args}, pgx.RowTo[bool])
		if db.IsNotFoundError(err) {
			return errs.NewNotFoundError("message not found")
		}

		if err != nil {
			return fmt.Errorf("sql toggle message pin: %w", err)
		}

		out, err = p.Message(ctx, in.MessageID, in.LoggedInUserID())
		return err
	})
	return out, pinned, err
}

// ToggleMessageStar flips the viewer's private star.
func (p *Postgres) ToggleMessageStar(ctx context.Context, in types.ToggleMessageStar) (types.Message, bool, error) {
	var out types.Message
	var starred bool
	err := p.db.RunTx(ctx, func(ctx context.Context) error {
		const del = `
			DELETE FROM message_stars
			WHERE message_id = @message_id
				AND user_id = @user_id
		`

		args := pgx.StrictNamedArgs{
			"message_id": in.MessageID,
			"user_id":    in.LoggedInUserID(),
		}

		tag, err := p.db.Exec(ctx, del, args)
		if err != nil {
			return fmt.Errorf("sql delete star: %w", err)
		}

		if tag.RowsAffected() == 0 {
			const ins = `
				INSERT INTO message_stars (message_id, user_id)
				SELECT @message_id, @user_id
				WHERE EXISTS (
					SELECT 1 FROM messages
					INNER JOIN participants
						ON participants.conversation_id = messages.conversation_id
						AND participants.user_id = @user_id
					WHERE messages.id = @message_id
				)
			`

			tag, err := p.db.Exec(ctx, ins, args)
			if err != nil {
				return fmt.Errorf("sql insert star: %w", err)
			}

			if tag.RowsAffected() == 0 {
				return errs.NewNotFoundError("message not found")
			}

			starred = true
		}

		out, err = p.Message(ctx, in.MessageID, in.LoggedInUserID())
		return err
	})
	return out, starred, err
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
