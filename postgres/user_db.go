package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgxutil"
	"github.com/nicolasparada/go-db"
	"github.com/parleyhq/parley/errs"
	"github.com/parleyhq/parley/id"
	"github.com/parleyhq/parley/types"
)

func (p *Postgres) CreateUser(ctx context.Context, in types.CreateUser) (types.Created, error) {
	const q = `
		INSERT INTO users (id, username)
		VALUES (@user_id, @username)
		RETURNING id, created_at
	`

	args := pgx.StrictNamedArgs{
		"user_id":  id.Generate(),
		"username": in.Username,
	}

	out, err := pgxutil.SelectRow(ctx, p.db, q, []any{args}, pgx.RowToStructByNameLax[types.Created])
	if isUniqueViolation(err) {
		return out, errs.NewAlreadyExistsError("Username", "username already taken")
	}

	if err != nil {
		return out, fmt.Errorf("sql insert user: %w", err)
	}

	return out, nil
}

func (p *Postgres) User(ctx context.Context, userID string) (types.User, error) {
	const q = `
		SELECT id, username, avatar
		FROM users
		WHERE id = @user_id
	`

	args := pgx.StrictNamedArgs{"user_id": userID}

	user, err := pgxutil.SelectRow(ctx, p.db, q, []any{args}, pgx.RowToStructByNameLax[types.User])
	if db.IsNotFoundError(err) {
		return user, errs.NewNotFoundError("user not found")
	}

	if err != nil {
		return user, fmt.Errorf("sql select user: %w", err)
	}

	return user, nil
}

// MessagingPolicy is the profile-store lookup the permission evaluator runs
// against the recipient.
func (p *Postgres) MessagingPolicy(ctx context.Context, userID string) (types.MessagingPolicy, error) {
	const q = `
		SELECT allow_from_everyone, require_follow_to_message
		FROM users
		WHERE id = @user_id
	`

	args := pgx.StrictNamedArgs{"user_id": userID}

	policy, err := pgxutil.SelectRow(ctx, p.db, q, []any{args}, pgx.RowToStructByNameLax[types.MessagingPolicy])
	if db.IsNotFoundError(err) {
		return policy, errs.NewNotFoundError("user not found")
	}

	if err != nil {
		return policy, fmt.Errorf("sql select messaging policy: %w", err)
	}

	return policy, nil
}

func (p *Postgres) SetMessagingPolicy(ctx context.Context, in types.SetMessagingPolicy) error {
	const q = `
		UPDATE users
		SET allow_from_everyone = @allow_from_everyone,
			require_follow_to_message = @require_follow_to_message,
			updated_at = now()
		WHERE id = @user_id
	`

	_, err := p.db.Exec(ctx, q, pgx.StrictNamedArgs{
		"user_id":                   in.LoggedInUserID(),
		"allow_from_everyone":       in.Policy.AllowFromEveryone,
		"require_follow_to_message": in.Policy.RequireFollowToMessage,
	})
	if err != nil {
		return fmt.Errorf("sql update messaging policy: %w", err)
	}

	return nil
}

// Follows answers the relationship-oracle question: does a follow b?
func (p *Postgres) Follows(ctx context.Context, followerID, followeeID string) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM follows
			WHERE follower_id = @follower_id
				AND followee_id = @followee_id
		)
	`

	args := pgx.StrictNamedArgs{
		"follower_id": followerID,
		"followee_id": followeeID,
	}

	exists, err := pgxutil.SelectRow(ctx, p.db, q, []any{args}, pgx.RowTo[bool])
	if err != nil {
		return false, fmt.Errorf("sql select follow exists: %w", err)
	}

	return exists, nil
}

// ToggleFollow reports whether the follow edge was inserted (true) or
// removed (false).
func (p *Postgres) ToggleFollow(ctx context.Context, in types.ToggleFollow) (bool, error) {
	var inserted bool
	err := p.db.RunTx(ctx, func(ctx context.Context) error {
		const del = `
			DELETE FROM follows
			WHERE follower_id = @follower_id
				AND followee_id = @followee_id
		`

		args := pgx.StrictNamedArgs{
			"follower_id": in.LoggedInUserID(),
			"followee_id": in.FolloweeID,
		}

		tag, err := p.db.Exec(ctx, del, args)
		if err != nil {
			return fmt.Errorf("sql delete follow: %w", err)
		}

		if tag.RowsAffected() != 0 {
			return nil
		}

		const ins = `
			INSERT INTO follows (follower_id, followee_id)
			VALUES (@follower_id, @followee_id)
		`

		if _, err := p.db.Exec(ctx, ins, args); err != nil {
			return fmt.Errorf("sql insert follow: %w", err)
		}

		inserted = true
		return nil
	})
	return inserted, err
}
