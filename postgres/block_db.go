package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgxutil"
	"github.com/parleyhq/parley/errs"
	"github.com/parleyhq/parley/lifecycle"
	"github.com/parleyhq/parley/types"
)

// CreateBlock records the block edge and, when a direct conversation exists
// between the pair, freezes it: the current status is remembered so an
// unblock can restore it. Blocking twice is a no-op.
func (p *Postgres) CreateBlock(ctx context.Context, in types.BlockUser) error {
	return p.db.RunTx(ctx, func(ctx context.Context) error {
		const ins = `
			INSERT INTO blocks (blocker_id, blocked_id)
			VALUES (@blocker_id, @blocked_id)
			ON CONFLICT DO NOTHING
		`

		_, err := p.db.Exec(ctx, ins, pgx.StrictNamedArgs{
			"blocker_id": in.LoggedInUserID(),
			"blocked_id": in.BlockedID,
		})
		if isForeignKeyViolation(err) {
			return errs.NewNotFoundError("user not found")
		}

		if err != nil {
			return fmt.Errorf("sql insert block: %w", err)
		}

		const freeze = `
			UPDATE conversations
			SET prev_status = status,
				status = 'blocked',
				updated_at = now()
			WHERE direct_key = @direct_key
				AND status <> 'blocked'
		`

		key := pairKey(in.LoggedInUserID(), in.BlockedID)

		if _, err := p.db.Exec(ctx, freeze, pgx.StrictNamedArgs{"direct_key": key}); err != nil {
			return fmt.Errorf("sql freeze conversation: %w", err)
		}

		// The blocker stops seeing the conversation in their lists; the
		// blocked user keeps their history.
		const hide = `
			UPDATE participants
			SET hidden = true,
				updated_at = now()
			FROM conversations
			WHERE conversations.id = participants.conversation_id
				AND conversations.direct_key = @direct_key
				AND participants.user_id = @user_id
		`

		_, err = p.db.Exec(ctx, hide, pgx.StrictNamedArgs{
			"direct_key": key,
			"user_id":    in.LoggedInUserID(),
		})
		if err != nil {
			return fmt.Errorf("sql hide conversation for blocker: %w", err)
		}

		return nil
	})
}

// DeleteBlock removes the block edge. The frozen conversation thaws back to
// its remembered status only when no block remains in either direction.
func (p *Postgres) DeleteBlock(ctx context.Context, in types.UnblockUser) error {
	return p.db.RunTx(ctx, func(ctx context.Context) error {
		const del = `
			DELETE FROM blocks
			WHERE blocker_id = @blocker_id
				AND blocked_id = @blocked_id
		`

		_, err := p.db.Exec(ctx, del, pgx.StrictNamedArgs{
			"blocker_id": in.LoggedInUserID(),
			"blocked_id": in.BlockedID,
		})
		if err != nil {
			return fmt.Errorf("sql delete block: %w", err)
		}

		blocked, err := p.Blocked(ctx, in.LoggedInUserID(), in.BlockedID)
		if err != nil {
			return err
		}

		if blocked {
			return nil
		}

		const frozen = `
			SELECT id, is_group, status, prev_status, requester_id, false AS admin
			FROM conversations
			WHERE direct_key = @direct_key
				AND status = 'blocked'
			FOR UPDATE
		`

		key := pairKey(in.LoggedInUserID(), in.BlockedID)

		rows, err := p.db.Query(ctx, frozen, pgx.StrictNamedArgs{"direct_key": key})
		if err != nil {
			return fmt.Errorf("sql select frozen conversation: %w", err)
		}

		convs, err := pgx.CollectRows(rows, pgx.RowToStructByNameLax[lockedConversation])
		if err != nil {
			return fmt.Errorf("sql collect frozen conversation: %w", err)
		}

		if len(convs) == 0 {
			return nil
		}

		const thaw = `
			UPDATE conversations
			SET status = @status,
				prev_status = NULL,
				updated_at = now()
			WHERE id = @conversation_id
		`

		_, err = p.db.Exec(ctx, thaw, pgx.StrictNamedArgs{
			"conversation_id": convs[0].ID,
			"status":          lifecycle.Unblocked(convs[0].PrevStatus),
		})
		if err != nil {
			return fmt.Errorf("sql thaw conversation: %w", err)
		}

		const unhide = `
			UPDATE participants
			SET hidden = false,
				updated_at = now()
			WHERE conversation_id = @conversation_id
				AND user_id = @user_id
		`

		_, err = p.db.Exec(ctx, unhide, pgx.StrictNamedArgs{
			"conversation_id": convs[0].ID,
			"user_id":         in.LoggedInUserID(),
		})
		if err != nil {
			return fmt.Errorf("sql unhide conversation: %w", err)
		}

		return nil
	})
}

// Blocked reports a block edge in either direction between the pair.
func (p *Postgres) Blocked(ctx context.Context, a, b string) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM blocks
			WHERE (blocker_id = @a AND blocked_id = @b)
				OR (blocker_id = @b AND blocked_id = @a)
		)
	`

	args := pgx.StrictNamedArgs{"a": a, "b": b}

	blocked, err := pgxutil.SelectRow(ctx, p.db, q, []any{args}, pgx.RowTo[bool])
	if err != nil {
		return false, fmt.Errorf("sql select blocked: %w", err)
	}

	return blocked, nil
}

// BlockedUsers lists everyone the user has blocked, most recent first.
func (p *Postgres) BlockedUsers(ctx context.Context, userID string) ([]types.User, error) {
	const q = `
		SELECT users.id, users.username, users.avatar
		FROM blocks
		INNER JOIN users ON users.id = blocks.blocked_id
		WHERE blocks.blocker_id = @blocker_id
		ORDER BY blocks.created_at DESC
	`

	rows, err := p.db.Query(ctx, q, pgx.StrictNamedArgs{"blocker_id": userID})
	if err != nil {
		return nil, fmt.Errorf("sql select blocked users: %w", err)
	}

	users, err := pgx.CollectRows(rows, pgx.RowToStructByNameLax[types.User])
	if err != nil {
		return nil, fmt.Errorf("sql collect blocked users: %w", err)
	}

	return users, nil
}
