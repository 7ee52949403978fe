package service

import "testing"

func TestEvaluatePermission(t *testing.T) {
	tt := []struct {
		name string
		in   PermissionInput
		want Permission
	}{
		{
			name: "blocked pair is denied",
			in: PermissionInput{
				Blocked:           true,
				AllowFromEveryone: true,
			},
			want: Permission{Reason: PermissionReasonBlocked},
		},
		{
			name: "block wins over mutual follow",
			in: PermissionInput{
				Blocked:                   true,
				AllowFromEveryone:         true,
				RequesterFollowsRecipient: true,
				RecipientFollowsRequester: true,
			},
			want: Permission{Reason: PermissionReasonBlocked},
		},
		{
			name: "closed policy is denied",
			in: PermissionInput{
				AllowFromEveryone: false,
			},
			want: Permission{Reason: PermissionReasonPolicyRestricted},
		},
		{
			name: "follow required without follow is denied",
			in: PermissionInput{
				AllowFromEveryone:      true,
				RequireFollowToMessage: true,
			},
			want: Permission{Reason: PermissionReasonFollowRequired},
		},
		{
			name: "follow required with follow opens a request",
			in: PermissionInput{
				AllowFromEveryone:         true,
				RequireFollowToMessage:    true,
				RequesterFollowsRecipient: true,
			},
			want: Permission{Allowed: true, RequiresRequest: true},
		},
		{
			name: "mutual follow skips the request",
			in: PermissionInput{
				AllowFromEveryone:         true,
				RequesterFollowsRecipient: true,
				RecipientFollowsRequester: true,
			},
			want: Permission{Allowed: true},
		},
		{
			name: "one-way follow from recipient still needs a request",
			in: PermissionInput{
				AllowFromEveryone:         true,
				RecipientFollowsRequester: true,
			},
			want: Permission{Allowed: true, RequiresRequest: true},
		},
		{
			name: "strangers with default policy open a request",
			in: PermissionInput{
				AllowFromEveryone: true,
			},
			want: Permission{Allowed: true, RequiresRequest: true},
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			got := EvaluatePermission(tc.in)
			if got != tc.want {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}
