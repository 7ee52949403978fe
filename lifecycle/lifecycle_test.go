package lifecycle

import (
	"testing"

	"github.com/parleyhq/parley/errs"
	"github.com/parleyhq/parley/types"
)

func TestCanSend(t *testing.T) {
	tt := []struct {
		name           string
		ctx            SendContext
		wantErrKind    errs.Kind
		wantTransition *types.ConversationStatus
		wantReset      bool
	}{
		{
			name: "accepted_flows_freely",
			ctx: SendContext{
				Status:   types.ConversationStatusAccepted,
				SenderID: "alice", RequesterID: "alice",
			},
		},
		{
			name: "pending_requester_first_message",
			ctx: SendContext{
				Status:   types.ConversationStatusPending,
				SenderID: "alice", RequesterID: "alice",
				SenderMessageCount: 0,
			},
		},
		{
			name: "pending_requester_hits_cap",
			ctx: SendContext{
				Status:   types.ConversationStatusPending,
				SenderID: "alice", RequesterID: "alice",
				SenderMessageCount: 1,
			},
			wantErrKind: errs.KindRequestLimit,
		},
		{
			name: "pending_recipient_reply_auto_accepts",
			ctx: SendContext{
				Status:   types.ConversationStatusPending,
				SenderID: "bob", RequesterID: "alice",
				SenderMessageCount: 0,
			},
			wantTransition: new(types.ConversationStatusAccepted),
		},
		{
			name: "declined_requester_reopens",
			ctx: SendContext{
				Status:   types.ConversationStatusDeclined,
				SenderID: "alice", RequesterID: "alice",
				SenderMessageCount: 1,
			},
			wantTransition: new(types.ConversationStatusPending),
			wantReset:      true,
		},
		{
			name: "declined_recipient_cannot_send",
			ctx: SendContext{
				Status:   types.ConversationStatusDeclined,
				SenderID: "bob", RequesterID: "alice",
			},
			wantErrKind: errs.KindInvalidState,
		},
		{
			name: "blocked_edge_denies",
			ctx: SendContext{
				Status:   types.ConversationStatusAccepted,
				SenderID: "bob", RequesterID: "alice",
				Blocked: true,
			},
			wantErrKind: errs.KindPermissionDenied,
		},
		{
			name: "blocked_status_denies",
			ctx: SendContext{
				Status:   types.ConversationStatusBlocked,
				SenderID: "bob", RequesterID: "alice",
			},
			wantErrKind: errs.KindPermissionDenied,
		},
		{
			name: "group_skips_lifecycle",
			ctx: SendContext{
				Status:  types.ConversationStatusPending,
				IsGroup: true, SenderID: "carol",
			},
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			d, err := CanSend(tc.ctx)
			if tc.wantErrKind != "" {
				if got := errs.KindOf(err); got != tc.wantErrKind {
					t.Fatalf("want error kind %q, got %v", tc.wantErrKind, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if (d.Transition == nil) != (tc.wantTransition == nil) {
				t.Fatalf("transition = %v, want %v", d.Transition, tc.wantTransition)
			}
			if d.Transition != nil && *d.Transition != *tc.wantTransition {
				t.Fatalf("transition = %v, want %v", *d.Transition, *tc.wantTransition)
			}
			if d.ResetRequesterCount != tc.wantReset {
				t.Fatalf("reset = %v, want %v", d.ResetRequesterCount, tc.wantReset)
			}
		})
	}
}

func TestCanSend_secondMessageAfterReopen(t *testing.T) {
	// Reopening a declined conversation resets the cap to one fresh message:
	// the reopen send itself passes, the next one hits the cap again.
	d, err := CanSend(SendContext{
		Status:   types.ConversationStatusDeclined,
		SenderID: "alice", RequesterID: "alice",
		SenderMessageCount: 1,
	})
	if err != nil {
		t.Fatalf("reopen send: %v", err)
	}
	if !d.ResetRequesterCount {
		t.Fatal("reopen send should reset the requester count")
	}

	_, err = CanSend(SendContext{
		Status:   types.ConversationStatusPending,
		SenderID: "alice", RequesterID: "alice",
		SenderMessageCount: 1,
	})
	if got := errs.KindOf(err); got != errs.KindRequestLimit {
		t.Fatalf("second send after reopen: want request_limit, got %v", err)
	}
}

func TestCanAccept(t *testing.T) {
	tt := []struct {
		name        string
		status      types.ConversationStatus
		caller      string
		wantApply   bool
		wantErrKind errs.Kind
	}{
		{name: "recipient_accepts_pending", status: types.ConversationStatusPending, caller: "bob", wantApply: true},
		{name: "requester_cannot_accept", status: types.ConversationStatusPending, caller: "alice", wantErrKind: errs.KindPermissionDenied},
		{name: "accept_twice_is_noop", status: types.ConversationStatusAccepted, caller: "bob"},
		{name: "accept_declined_invalid", status: types.ConversationStatusDeclined, caller: "bob", wantErrKind: errs.KindInvalidState},
		{name: "accept_blocked_invalid", status: types.ConversationStatusBlocked, caller: "bob", wantErrKind: errs.KindInvalidState},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			apply, err := CanAccept(tc.status, "alice", tc.caller)
			if tc.wantErrKind != "" {
				if got := errs.KindOf(err); got != tc.wantErrKind {
					t.Fatalf("want error kind %q, got %v", tc.wantErrKind, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if apply != tc.wantApply {
				t.Fatalf("apply = %v, want %v", apply, tc.wantApply)
			}
		})
	}
}

func TestCanDecline(t *testing.T) {
	tt := []struct {
		name        string
		status      types.ConversationStatus
		caller      string
		wantApply   bool
		wantErrKind errs.Kind
	}{
		{name: "recipient_declines_pending", status: types.ConversationStatusPending, caller: "bob", wantApply: true},
		{name: "requester_cannot_decline", status: types.ConversationStatusPending, caller: "alice", wantErrKind: errs.KindPermissionDenied},
		{name: "decline_twice_is_noop", status: types.ConversationStatusDeclined, caller: "bob"},
		{name: "decline_accepted_invalid", status: types.ConversationStatusAccepted, caller: "bob", wantErrKind: errs.KindInvalidState},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			apply, err := CanDecline(tc.status, "alice", tc.caller)
			if tc.wantErrKind != "" {
				if got := errs.KindOf(err); got != tc.wantErrKind {
					t.Fatalf("want error kind %q, got %v", tc.wantErrKind, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if apply != tc.wantApply {
				t.Fatalf("apply = %v, want %v", apply, tc.wantApply)
			}
		})
	}
}

func TestUnblocked(t *testing.T) {
	if got := Unblocked(nil); got != types.ConversationStatusAccepted {
		t.Fatalf("nil prev: got %v", got)
	}
	if got := Unblocked(new(types.ConversationStatusPending)); got != types.ConversationStatusPending {
		t.Fatalf("pending prev: got %v", got)
	}
	if got := Unblocked(new(types.ConversationStatusBlocked)); got != types.ConversationStatusAccepted {
		t.Fatalf("blocked prev should fall back to accepted, got %v", got)
	}
}
