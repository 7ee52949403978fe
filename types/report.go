package types

import (
	"time"

	"github.com/parleyhq/parley/id"
	"github.com/parleyhq/parley/validator"
)

// ReportReason is a closed reason code, not free text. Policy actions key
// off these codes; the free-text details ride along untouched.
type ReportReason string

const (
	ReportReasonSpam          ReportReason = "spam"
	ReportReasonHarassment    ReportReason = "harassment"
	ReportReasonThreats       ReportReason = "threats"
	ReportReasonImpersonation ReportReason = "impersonation"
	ReportReasonOther         ReportReason = "other"
)

func (r ReportReason) Valid() bool {
	switch r {
	case ReportReasonSpam, ReportReasonHarassment, ReportReasonThreats,
		ReportReasonImpersonation, ReportReasonOther:
		return true
	}
	return false
}

// Report records are immutable once written.
type Report struct {
	ID             string       `db:"id"`
	ReporterID     string       `db:"reporter_id"`
	TargetUserID   string       `db:"target_user_id"`
	Reason         ReportReason `db:"reason"`
	Details        *string      `db:"details"`
	ConversationID *string      `db:"conversation_id"`
	CreatedAt      time.Time    `db:"created_at"`
}

type CreateReport struct {
	TargetUserID   string
	Reason         ReportReason
	Details        *string
	ConversationID *string

	loggedInUserID string
}

func (in *CreateReport) SetLoggedInUserID(userID string) {
	in.loggedInUserID = userID
}

func (in CreateReport) LoggedInUserID() string {
	return in.loggedInUserID
}

func (in *CreateReport) Validate() error {
	v := validator.New()

	if in.TargetUserID == "" {
		v.AddError("TargetUserID", "Target user ID is required")
	} else if !id.Valid(in.TargetUserID) {
		v.AddError("TargetUserID", "Target user ID is invalid")
	}
	if !in.Reason.Valid() {
		v.AddError("Reason", "Reason is not a known reason code")
	}
	if in.ConversationID != nil && !id.Valid(*in.ConversationID) {
		v.AddError("ConversationID", "Conversation ID is invalid")
	}

	return v.AsError()
}
