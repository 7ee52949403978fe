package service

import (
	"context"

	"github.com/parleyhq/parley/auth"
	"github.com/parleyhq/parley/errs"
	"github.com/parleyhq/parley/types"
)

// DefaultReportPolicy auto-blocks on the abuse-category reasons. The policy
// is a table keyed by reason code, never inferred from free text.
func DefaultReportPolicy() map[types.ReportReason]bool {
	return map[types.ReportReason]bool{
		types.ReportReasonHarassment: true,
		types.ReportReasonThreats:    true,
	}
}

func (svc *Service) BlockUser(ctx context.Context, in types.BlockUser) error {
	if err := in.Validate(); err != nil {
		return err
	}

	loggedInUser, loggedIn := auth.UserFromContext(ctx)
	if !loggedIn {
		return errs.Unauthenticated
	}

	if in.BlockedID == loggedInUser.ID {
		return errs.NewInvalidArgumentError("BlockedID", "You cannot block yourself")
	}

	in.SetLoggedInUserID(loggedInUser.ID)

	ctx, cancel := svc.interactive(ctx)
	defer cancel()

	return svc.Postgres.CreateBlock(ctx, in)
}

func (svc *Service) UnblockUser(ctx context.Context, in types.UnblockUser) error {
	if err := in.Validate(); err != nil {
		return err
	}

	loggedInUser, loggedIn := auth.UserFromContext(ctx)
	if !loggedIn {
		return errs.Unauthenticated
	}

	in.SetLoggedInUserID(loggedInUser.ID)

	ctx, cancel := svc.interactive(ctx)
	defer cancel()

	return svc.Postgres.DeleteBlock(ctx, in)
}

func (svc *Service) BlockedUsers(ctx context.Context) ([]types.User, error) {
	loggedInUser, loggedIn := auth.UserFromContext(ctx)
	if !loggedIn {
		return nil, errs.Unauthenticated
	}

	return svc.Postgres.BlockedUsers(ctx, loggedInUser.ID)
}

// CreateReport files an immutable report. When the reason falls under the
// configured policy, the reported user is blocked in the same call.
func (svc *Service) CreateReport(ctx context.Context, in types.CreateReport) (types.Created, error) {
	var out types.Created

	if err := in.Validate(); err != nil {
		return out, err
	}

	loggedInUser, loggedIn := auth.UserFromContext(ctx)
	if !loggedIn {
		return out, errs.Unauthenticated
	}

	if in.TargetUserID == loggedInUser.ID {
		return out, errs.NewInvalidArgumentError("TargetUserID", "You cannot report yourself")
	}

	in.SetLoggedInUserID(loggedInUser.ID)

	ctx, cancel := svc.interactive(ctx)
	defer cancel()

	out, err := svc.Postgres.CreateReport(ctx, in)
	if err != nil {
		return out, err
	}

	if svc.reportPolicy[in.Reason] {
		block := types.BlockUser{BlockedID: in.TargetUserID}
		block.SetLoggedInUserID(loggedInUser.ID)
		if err := svc.Postgres.CreateBlock(ctx, block); err != nil {
			return out, err
		}
	}

	return out, nil
}

func (svc *Service) Reports(ctx context.Context) ([]types.Report, error) {
	loggedInUser, loggedIn := auth.UserFromContext(ctx)
	if !loggedIn {
		return nil, errs.Unauthenticated
	}

	return svc.Postgres.Reports(ctx, loggedInUser.ID)
}
