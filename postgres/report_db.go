package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgxutil"
	"github.com/parleyhq/parley/errs"
	"github.com/parleyhq/parley/id"
	"github.com/parleyhq/parley/types"
)

// CreateReport writes an immutable report record. There is no update or
// delete path.
func (p *Postgres) CreateReport(ctx context.Context, in types.CreateReport) (types.Created, error) {
	const q = `
		INSERT INTO reports (id, reporter_id, target_user_id, reason, details, conversation_id)
		VALUES (@report_id, @reporter_id, @target_user_id, @reason, @details, @conversation_id)
		RETURNING id, created_at
	`

	args := pgx.NamedArgs{
		"report_id":       id.Generate(),
		"reporter_id":     in.LoggedInUserID(),
		"target_user_id":  in.TargetUserID,
		"reason":          in.Reason,
		"details":         in.Details,
		"conversation_id": in.ConversationID,
	}

	out, err := pgxutil.SelectRow(ctx, p.db, q, []any{args}, pgx.RowToStructByNameLax[types.Created])
	if isForeignKeyViolation(err) {
		return out, errs.NewNotFoundError("user not found")
	}

	if err != nil {
		return out, fmt.Errorf("sql insert report: %w", err)
	}

	return out, nil
}

// Reports lists the reports filed by a user, most recent first.
func (p *Postgres) Reports(ctx context.Context, reporterID string) ([]types.Report, error) {
	const q = `
		SELECT id, reporter_id, target_user_id, reason, details, conversation_id, created_at
		FROM reports
		WHERE reporter_id = @reporter_id
		ORDER BY created_at DESC
	`

	rows, err := p.db.Query(ctx, q, pgx.StrictNamedArgs{"reporter_id": reporterID})
	if err != nil {
		return nil, fmt.Errorf("sql select reports: %w", err)
	}

	reports, err := pgx.CollectRows(rows, pgx.RowToStructByNameLax[types.Report])
	if err != nil {
		return nil, fmt.Errorf("sql collect reports: %w", err)
	}

	return reports, nil
}
