package service

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"

	"github.com/parleyhq/parley/auth"
	"github.com/parleyhq/parley/errs"
	"github.com/parleyhq/parley/id"
	"github.com/parleyhq/parley/types"
)

func notificationTopic(userID string) string {
	return "notification_" + userID
}

func (svc *Service) Notifications(ctx context.Context, in types.ListNotifications) (types.Page[types.Notification], error) {
	var out types.Page[types.Notification]

	if err := in.Validate(); err != nil {
		return out, err
	}

	loggedInUser, loggedIn := auth.UserFromContext(ctx)
	if !loggedIn {
		return out, errs.Unauthenticated
	}

	in.SetLoggedInUserID(loggedInUser.ID)

	return svc.Postgres.Notifications(ctx, in)
}

func (svc *Service) MarkNotificationRead(ctx context.Context, notificationID string) error {
	loggedInUser, loggedIn := auth.UserFromContext(ctx)
	if !loggedIn {
		return errs.Unauthenticated
	}

	if !id.Valid(notificationID) {
		return errs.NewInvalidArgumentError("NotificationID", "Notification ID is invalid")
	}

	return svc.Postgres.MarkNotificationRead(ctx, loggedInUser.ID, notificationID)
}

func (svc *Service) MarkNotificationsRead(ctx context.Context) error {
	loggedInUser, loggedIn := auth.UserFromContext(ctx)
	if !loggedIn {
		return errs.Unauthenticated
	}

	return svc.Postgres.MarkNotificationsRead(ctx, loggedInUser.ID)
}

func (svc *Service) HasUnreadNotifications(ctx context.Context) (bool, error) {
	loggedInUser, loggedIn := auth.UserFromContext(ctx)
	if !loggedIn {
		return false, errs.Unauthenticated
	}

	return svc.Postgres.HasUnreadNotifications(ctx, loggedInUser.ID)
}

// NotificationStream delivers the logged in user's notifications in
// realtime.
func (svc *Service) NotificationStream(ctx context.Context) (<-chan types.Notification, error) {
	loggedInUser, loggedIn := auth.UserFromContext(ctx)
	if !loggedIn {
		return nil, errs.Unauthenticated
	}

	nn := make(chan types.Notification)
	raw := make(chan []byte, 64)
	unsub, err := svc.PubSub.Sub(notificationTopic(loggedInUser.ID), func(data []byte) {
		select {
		case raw <- data:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to notifications: %w", err)
	}

	go func() {
		defer close(nn)
		defer func() {
			if err := unsub(); err != nil {
				svc.Logger.Error("unsubscribe from notifications", "error", err)
			}
		}()

		for {
			select {
			case data := <-raw:
				var n types.Notification
				if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&n); err != nil {
					svc.Logger.Error("gob decode notification", "error", err)
					continue
				}

				select {
				case nn <- n:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return nn, nil
}

func (svc *Service) publishNotification(n types.Notification) {
	if svc.PubSub == nil {
		return
	}

	svc.background(func(ctx context.Context) error {
		var b bytes.Buffer
		if err := gob.NewEncoder(&b).Encode(n); err != nil {
			return fmt.Errorf("gob encode notification: %w", err)
		}

		return svc.PubSub.Pub(notificationTopic(n.RecipientID), b.Bytes())
	})
}
