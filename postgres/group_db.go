package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgxutil"
	"github.com/nicolasparada/go-db"
	"github.com/parleyhq/parley/errs"
	"github.com/parleyhq/parley/id"
	"github.com/parleyhq/parley/types"
)

const maxGroupMembers = 256

// CreateGroupConversation creates a group with the creator as its only
// admin. Groups are born accepted; the request lifecycle never applies.
func (p *Postgres) CreateGroupConversation(ctx context.Context, in types.CreateGroup) (types.Created, error) {
	var out types.Created
	err := p.db.RunTx(ctx, func(ctx context.Context) error {
		const insert = `
			INSERT INTO conversations (id, is_group, group_name, status)
			VALUES (@conversation_id, true, @group_name, 'accepted')
			RETURNING id, created_at
		`

		created, err := pgxutil.SelectRow(ctx, p.db, insert, []any{pgx.StrictNamedArgs{
			"conversation_id": id.Generate(),
			"group_name":      in.Name,
		}}, pgx.RowToStructByNameLax[types.Created])
		if err != nil {
			return fmt.Errorf("sql insert group conversation: %w", err)
		}

		const insertCreator = `
			INSERT INTO participants (conversation_id, user_id, admin)
			VALUES (@conversation_id, @user_id, true)
		`

		_, err = p.db.Exec(ctx, insertCreator, pgx.StrictNamedArgs{
			"conversation_id": created.ID,
			"user_id":         in.LoggedInUserID(),
		})
		if err != nil {
			return fmt.Errorf("sql insert group creator: %w", err)
		}

		const insertMembers = `
			INSERT INTO participants (conversation_id, user_id)
			SELECT @conversation_id, unnest(@member_ids::varchar[])
		`

		_, err = p.db.Exec(ctx, insertMembers, pgx.StrictNamedArgs{
			"conversation_id": created.ID,
			"member_ids":      in.ParticipantIDs,
		})
		if isForeignKeyViolation(err) {
			return errs.NewNotFoundError("user not found")
		}

		if err != nil {
			return fmt.Errorf("sql insert group members: %w", err)
		}

		creator, err := p.username(ctx, in.LoggedInUserID())
		if err != nil {
			return err
		}

		_, err = p.appendTx(ctx, appendMessage{
			ConversationID: created.ID,
			Text:           creator + " created the group",
			System:         true,
		})
		if err != nil {
			return err
		}

		// One system message per initial member, all in the same
		// transaction as the roster insert.
		members, err := p.usernameList(ctx, in.ParticipantIDs)
		if err != nil {
			return err
		}

		for _, member := range members {
			_, err = p.appendTx(ctx, appendMessage{
				ConversationID: created.ID,
				Text:           creator + " added " + member,
				System:         true,
			})
			if err != nil {
				return err
			}
		}

		out = created
		return nil
	})
	return out, err
}

// AddGroupMembers adds users to a group. Only admins may change the roster.
// Returns the system message announcing the change.
func (p *Postgres) AddGroupMembers(ctx context.Context, in types.AddMembers) (types.Message, error) {
	var out types.Message
	err := p.db.RunTx(ctx, func(ctx context.Context) error {
		if err := p.groupAdminGate(ctx, in.ConversationID, in.LoggedInUserID()); err != nil {
			return err
		}

		const insert = `
			INSERT INTO participants (conversation_id, user_id)
			SELECT @conversation_id, unnest(@member_ids::varchar[])
			ON CONFLICT DO NOTHING
		`

		_, err := p.db.Exec(ctx, insert, pgx.StrictNamedArgs{
			"conversation_id": in.ConversationID,
			"member_ids":      in.MemberIDs,
		})
		if isForeignKeyViolation(err) {
			return errs.NewNotFoundError("user not found")
		}

		if err != nil {
			return fmt.Errorf("sql insert group members: %w", err)
		}

		const count = `
			SELECT count(*) FROM participants
			WHERE conversation_id = @conversation_id
		`

		total, err := pgxutil.SelectRow(ctx, p.db, count, []any{pgx.StrictNamedArgs{
			"conversation_id": in.ConversationID,
		}}, pgx.RowTo[int64])
		if err != nil {
			return fmt.Errorf("sql count group members: %w", err)
		}

		if total > maxGroupMembers {
			return errs.NewInvalidArgumentError("MemberIDs", "group is full")
		}

		actor, err := p.username(ctx, in.LoggedInUserID())
		if err != nil {
			return err
		}

		added, err := p.usernames(ctx, in.MemberIDs)
		if err != nil {
			return err
		}

		out, err = p.appendTx(ctx, appendMessage{
			ConversationID: in.ConversationID,
			Text:           actor + " added " + added,
			System:         true,
		})
		return err
	})
	return out, err
}

// RemoveGroupMembers removes users from a group. Admin only; removing
// yourself is LeaveGroup.
func (p *Postgres) RemoveGroupMembers(ctx context.Context, in types.RemoveMembers) (types.Message, error) {
	var out types.Message
	err := p.db.RunTx(ctx, func(ctx context.Context) error {
		if err := p.groupAdminGate(ctx, in.ConversationID, in.LoggedInUserID()); err != nil {
			return err
		}

		const del = `
			DELETE FROM participants
			WHERE conversation_id = @conversation_id
				AND user_id = ANY(@member_ids::varchar[])
				AND user_id <> @user_id
		`

		tag, err := p.db.Exec(ctx, del, pgx.StrictNamedArgs{
			"conversation_id": in.ConversationID,
			"member_ids":      in.MemberIDs,
			"user_id":         in.LoggedInUserID(),
		})
		if err != nil {
			return fmt.Errorf("sql delete group members: %w", err)
		}

		if tag.RowsAffected() == 0 {
			return errs.NewNotFoundError("member not found")
		}

		actor, err := p.username(ctx, in.LoggedInUserID())
		if err != nil {
			return err
		}

		removed, err := p.usernames(ctx, in.MemberIDs)
		if err != nil {
			return err
		}

		out, err = p.appendTx(ctx, appendMessage{
			ConversationID: in.ConversationID,
			Text:           actor + " removed " + removed,
			System:         true,
		})
		return err
	})
	return out, err
}

// LeaveGroup removes the caller from a group. When the sole admin leaves,
// the longest-standing remaining member is promoted so the group is never
// left unmanaged. Returns the system message announcing the departure; the
// zero message when the group emptied out.
func (p *Postgres) LeaveGroup(ctx context.Context, in types.LeaveGroup) (types.Message, error) {
	var out types.Message
	err := p.db.RunTx(ctx, func(ctx context.Context) error {
		locked, err := p.lockConversation(ctx, in.ConversationID, in.LoggedInUserID())
		if err != nil {
			return err
		}

		if !locked.IsGroup {
			return errs.NewInvalidStateError("not a group conversation")
		}

		const del = `
			DELETE FROM participants
			WHERE conversation_id = @conversation_id
				AND user_id = @user_id
		`

		args := pgx.StrictNamedArgs{
			"conversation_id": in.ConversationID,
			"user_id":         in.LoggedInUserID(),
		}

		if _, err := p.db.Exec(ctx, del, args); err != nil {
			return fmt.Errorf("sql delete leaving member: %w", err)
		}

		const promote = `
			UPDATE participants
			SET admin = true,
				updated_at = now()
			WHERE conversation_id = @conversation_id
				AND user_id = (
					SELECT user_id FROM participants
					WHERE conversation_id = @conversation_id
					ORDER BY joined_at ASC, user_id ASC
					LIMIT 1
				)
				AND NOT EXISTS (
					SELECT 1 FROM participants
					WHERE conversation_id = @conversation_id
						AND admin
				)
		`

		promoteArgs := pgx.StrictNamedArgs{"conversation_id": in.ConversationID}

		if _, err := p.db.Exec(ctx, promote, promoteArgs); err != nil {
			return fmt.Errorf("sql promote group admin: %w", err)
		}

		const remaining = `
			SELECT count(*) FROM participants
			WHERE conversation_id = @conversation_id
		`

		left, err := pgxutil.SelectRow(ctx, p.db, remaining, []any{promoteArgs}, pgx.RowTo[int64])
		if err != nil {
			return fmt.Errorf("sql count remaining members: %w", err)
		}

		if left == 0 {
			return nil
		}

		leaver, err := p.username(ctx, in.LoggedInUserID())
		if err != nil {
			return err
		}

		out, err = p.appendTx(ctx, appendMessage{
			ConversationID: in.ConversationID,
			Text:           leaver + " left the group",
			System:         true,
		})
		return err
	})
	return out, err
}

// RenameGroup renames a group. Admin only.
func (p *Postgres) RenameGroup(ctx context.Context, in types.RenameGroup) (types.Message, error) {
	var out types.Message
	err := p.db.RunTx(ctx, func(ctx context.Context) error {
		if err := p.groupAdminGate(ctx, in.ConversationID, in.LoggedInUserID()); err != nil {
			return err
		}

		const q = `
			UPDATE conversations
			SET group_name = @group_name,
				updated_at = now()
			WHERE id = @conversation_id
		`

		_, err := p.db.Exec(ctx, q, pgx.StrictNamedArgs{
			"conversation_id": in.ConversationID,
			"group_name":      in.Name,
		})
		if err != nil {
			return fmt.Errorf("sql rename group: %w", err)
		}

		actor, err := p.username(ctx, in.LoggedInUserID())
		if err != nil {
			return err
		}

		out, err = p.appendTx(ctx, appendMessage{
			ConversationID: in.ConversationID,
			Text:           actor + " renamed the group to " + in.Name,
			System:         true,
		})
		return err
	})
	return out, err
}

// SetGroupAvatar stores the blob reference for the group avatar. Admin only.
// Returns the system message announcing the change.
func (p *Postgres) SetGroupAvatar(ctx context.Context, in types.ChangeGroupAvatar) (types.Message, error) {
	var out types.Message
	err := p.db.RunTx(ctx, func(ctx context.Context) error {
		if err := p.groupAdminGate(ctx, in.ConversationID, in.LoggedInUserID()); err != nil {
			return err
		}

		const q = `
			UPDATE conversations
			SET group_avatar = @group_avatar,
				updated_at = now()
			WHERE id = @conversation_id
		`

		_, err := p.db.Exec(ctx, q, pgx.StrictNamedArgs{
			"conversation_id": in.ConversationID,
			"group_avatar":    in.AvatarRef,
		})
		if err != nil {
			return fmt.Errorf("sql set group avatar: %w", err)
		}

		actor, err := p.username(ctx, in.LoggedInUserID())
		if err != nil {
			return err
		}

		out, err = p.appendTx(ctx, appendMessage{
			ConversationID: in.ConversationID,
			Text:           actor + " changed the group photo",
			System:         true,
		})
		return err
	})
	return out, err
}

// groupAdminGate locks the conversation and checks the caller is an admin
// of the group.
func (p *Postgres) groupAdminGate(ctx context.Context, conversationID, userID string) error {
	locked, err := p.lockConversation(ctx, conversationID, userID)
	if err != nil {
		return err
	}

	if !locked.IsGroup {
		return errs.NewInvalidStateError("not a group conversation")
	}

	if !locked.Admin {
		return errs.NewPermissionDeniedError("only group admins can do that")
	}

	return nil
}

func (p *Postgres) username(ctx context.Context, userID string) (string, error) {
	const q = `
		SELECT username FROM users
		WHERE id = @user_id
	`

	username, err := pgxutil.SelectRow(ctx, p.db, q, []any{pgx.StrictNamedArgs{
		"user_id": userID,
	}}, pgx.RowTo[string])
	if db.IsNotFoundError(err) {
		return "", errs.NewNotFoundError("user not found")
	}

	if err != nil {
		return "", fmt.Errorf("sql select username: %w", err)
	}

	return username, nil
}

func (p *Postgres) usernameList(ctx context.Context, userIDs []string) ([]string, error) {
	const q = `
		SELECT username FROM users
		WHERE id = ANY(@user_ids::varchar[])
		ORDER BY username
	`

	rows, err := p.db.Query(ctx, q, pgx.StrictNamedArgs{"user_ids": userIDs})
	if err != nil {
		return nil, fmt.Errorf("sql select usernames: %w", err)
	}

	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("sql collect usernames: %w", err)
	}

	return names, nil
}

func (p *Postgres) usernames(ctx context.Context, userIDs []string) (string, error) {
	names, err := p.usernameList(ctx, userIDs)
	if err != nil {
		return "", err
	}

	return strings.Join(names, ", "), nil
}
