package types

import (
	"testing"

	"github.com/parleyhq/parley/id"
)

func TestPageArgsValidate(t *testing.T) {
	tt := []struct {
		name    string
		args    PageArgs
		wantErr bool
	}{
		{
			name: "empty is fine",
			args: PageArgs{},
		},
		{
			name: "first within bounds",
			args: PageArgs{First: new(uint(25))},
		},
		{
			name: "last within bounds",
			args: PageArgs{Last: new(uint(25))},
		},
		{
			name:    "first and last together",
			args:    PageArgs{First: new(uint(10)), Last: new(uint(10))},
			wantErr: true,
		},
		{
			name:    "zero first",
			args:    PageArgs{First: new(uint(0))},
			wantErr: true,
		},
		{
			name:    "zero last",
			args:    PageArgs{Last: new(uint(0))},
			wantErr: true,
		},
		{
			name:    "first overflow",
			args:    PageArgs{First: new(uint(1_000_000))},
			wantErr: true,
		},
		{
			name:    "last overflow",
			args:    PageArgs{Last: new(uint(maxPageSize + 1))},
			wantErr: true,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.args.Validate()
			if gotErr := err != nil; gotErr != tc.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestListInputsValidatePageArgs(t *testing.T) {
	oversized := PageArgs{First: new(uint(1_000_000))}

	tt := []struct {
		name string
		err  error
	}{
		{
			name: "conversations",
			err:  new(ListConversations{PageArgs: oversized}).Validate(),
		},
		{
			name: "requests",
			err:  new(ListRequests{PageArgs: oversized}).Validate(),
		},
		{
			name: "messages",
			err:  new(ListMessages{ConversationID: id.Generate(), PageArgs: oversized}).Validate(),
		},
		{
			name: "notifications",
			err:  new(ListNotifications{PageArgs: oversized}).Validate(),
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err == nil {
				t.Fatal("oversized page size passed validation")
			}
		})
	}
}
