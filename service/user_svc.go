package service

import (
	"context"

	"github.com/parleyhq/parley/auth"
	"github.com/parleyhq/parley/errs"
	"github.com/parleyhq/parley/types"
)

func (svc *Service) CreateUser(ctx context.Context, in types.CreateUser) (types.Created, error) {
	var out types.Created

	if err := in.Validate(); err != nil {
		return out, err
	}

	return svc.Postgres.CreateUser(ctx, in)
}

func (svc *Service) User(ctx context.Context, userID string) (types.User, error) {
	return svc.Postgres.User(ctx, userID)
}

func (svc *Service) SetMessagingPolicy(ctx context.Context, in types.SetMessagingPolicy) error {
	loggedInUser, loggedIn := auth.UserFromContext(ctx)
	if !loggedIn {
		return errs.Unauthenticated
	}

	in.SetLoggedInUserID(loggedInUser.ID)

	return svc.Postgres.SetMessagingPolicy(ctx, in)
}

// ToggleFollow reports whether the follow edge now exists.
func (svc *Service) ToggleFollow(ctx context.Context, in types.ToggleFollow) (bool, error) {
	if err := in.Validate(); err != nil {
		return false, err
	}

	loggedInUser, loggedIn := auth.UserFromContext(ctx)
	if !loggedIn {
		return false, errs.Unauthenticated
	}

	if in.FolloweeID == loggedInUser.ID {
		return false, errs.NewInvalidArgumentError("FolloweeID", "You cannot follow yourself")
	}

	in.SetLoggedInUserID(loggedInUser.ID)

	return svc.Postgres.ToggleFollow(ctx, in)
}
