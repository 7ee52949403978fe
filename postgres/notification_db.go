package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgxutil"
	"github.com/parleyhq/parley/errs"
	"github.com/parleyhq/parley/id"
	"github.com/parleyhq/parley/types"
)

// CreateNotification enqueues a delivery intent. Actual push delivery is
// outside the engine.
func (p *Postgres) CreateNotification(ctx context.Context, in types.CreateNotification) (types.Notification, error) {
	const q = `
		INSERT INTO notifications (id, recipient_id, kind, title, body, conversation_id)
		VALUES (@notification_id, @recipient_id, @kind, @title, @body, @conversation_id)
		RETURNING id, recipient_id, kind, title, body, conversation_id, read_at, created_at
	`

	args := pgx.NamedArgs{
		"notification_id": id.Generate(),
		"recipient_id":    in.RecipientID,
		"kind":            in.Kind,
		"title":           in.Title,
		"body":            in.Body,
		"conversation_id": in.ConversationID,
	}

	out, err := pgxutil.SelectRow(ctx, p.db, q, []any{args}, pgx.RowToStructByNameLax[types.Notification])
	if isForeignKeyViolation(err) {
		return out, errs.NewNotFoundError("user not found")
	}

	if err != nil {
		return out, fmt.Errorf("sql insert notification: %w", err)
	}

	return out, nil
}

func (p *Postgres) Notifications(ctx context.Context, in types.ListNotifications) (types.Page[types.Notification], error) {
	var out types.Page[types.Notification]

	page, err := ParsePageArgs[time.Time](in.PageArgs)
	if err != nil {
		return out, err
	}

	query := `
		SELECT notifications.id,
			notifications.recipient_id,
			notifications.kind,
			notifications.title,
			notifications.body,
			notifications.conversation_id,
			notifications.read_at,
			notifications.created_at
		FROM notifications
		WHERE notifications.recipient_id = @user_id
	`
	args := pgx.NamedArgs{"user_id": in.LoggedInUserID()}

	query = addPageFilter(query, "notifications", "created_at", args, page)
	query = addPageOrder(query, "notifications", "created_at", page)
	query = addPageLimit(query, args, page)

	rows, err := p.db.Query(ctx, query, args)
	if err != nil {
		return out, fmt.Errorf("sql select notifications: %w", err)
	}

	out.Items, err = pgx.CollectRows(rows, pgx.RowToStructByNameLax[types.Notification])
	if err != nil {
		return out, fmt.Errorf("sql collect notifications: %w", err)
	}

	err = applyPageInfo(&out, page, func(n types.Notification) Cursor[time.Time] {
		return Cursor[time.Time]{ID: n.ID, Value: n.CreatedAt}
	})
	if err != nil {
		return out, err
	}

	return out, nil
}

// NotifyTarget is a participant eligible for a notification about activity
// in a conversation.
type NotifyTarget struct {
	UserID string `db:"user_id"`
	Muted  bool   `db:"muted"`
}

// NotificationTargets lists every participant except the actor, with their
// mute flag so the caller can skip muted members.
func (p *Postgres) NotificationTargets(ctx context.Context, conversationID, excludeUserID string) ([]NotifyTarget, error) {
	const q = `
		SELECT user_id, muted
		FROM participants
		WHERE conversation_id = @conversation_id
			AND user_id <> @user_id
	`

	rows, err := p.db.Query(ctx, q, pgx.StrictNamedArgs{
		"conversation_id": conversationID,
		"user_id":         excludeUserID,
	})
	if err != nil {
		return nil, fmt.Errorf("sql select notification targets: %w", err)
	}

	targets, err := pgx.CollectRows(rows, pgx.RowToStructByNameLax[NotifyTarget])
	if err != nil {
		return nil, fmt.Errorf("sql collect notification targets: %w", err)
	}

	return targets, nil
}

func (p *Postgres) MarkNotificationRead(ctx context.Context, userID, notificationID string) error {
	const q = `
		UPDATE notifications
		SET read_at = now()
		WHERE id = @notification_id
			AND recipient_id = @user_id
			AND read_at IS NULL
	`

	_, err := p.db.Exec(ctx, q, pgx.StrictNamedArgs{
		"notification_id": notificationID,
		"user_id":         userID,
	})
	if err != nil {
		return fmt.Errorf("sql mark notification read: %w", err)
	}

	return nil
}

func (p *Postgres) MarkNotificationsRead(ctx context.Context, userID string) error {
	const q = `
		UPDATE notifications
		SET read_at = now()
		WHERE recipient_id = @user_id
			AND read_at IS NULL
	`

	if _, err := p.db.Exec(ctx, q, pgx.StrictNamedArgs{"user_id": userID}); err != nil {
		return fmt.Errorf("sql mark notifications read: %w", err)
	}

	return nil
}

func (p *Postgres) HasUnreadNotifications(ctx context.Context, userID string) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM notifications
			WHERE recipient_id = @user_id
				AND read_at IS NULL
		)
	`

	exists, err := pgxutil.SelectRow(ctx, p.db, q, []any{pgx.StrictNamedArgs{
		"user_id": userID,
	}}, pgx.RowTo[bool])
	if err != nil {
		return false, fmt.Errorf("sql select has unread notifications: %w", err)
	}

	return exists, nil
}
