package service

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"

	"github.com/parleyhq/parley/auth"
	"github.com/parleyhq/parley/errs"
	"github.com/parleyhq/parley/types"
)

func conversationTopic(conversationID string) string {
	return "conversation_event_" + conversationID
}

// ConversationStream delivers incremental diffs for one conversation in
// realtime. Subscribers merge these into their local view; a full replace
// is never sent.
func (svc *Service) ConversationStream(ctx context.Context, conversationID string) (<-chan types.ConversationEvent, error) {
	loggedInUser, loggedIn := auth.UserFromContext(ctx)
	if !loggedIn {
		return nil, errs.Unauthenticated
	}

	// Membership gate before any delivery starts.
	retrieve := types.RetrieveConversation{ConversationID: conversationID}
	if err := retrieve.Validate(); err != nil {
		return nil, err
	}

	retrieve.SetLoggedInUserID(loggedInUser.ID)
	if _, err := svc.Postgres.Conversation(ctx, retrieve); err != nil {
		return nil, err
	}

	ee := make(chan types.ConversationEvent)
	raw := make(chan []byte, 64)
	unsub, err := svc.PubSub.Sub(conversationTopic(conversationID), func(data []byte) {
		select {
		case raw <- data:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to conversation events: %w", err)
	}

	// A single decode loop keeps delivery in publish order and owns the
	// channel close.
	go func() {
		defer close(ee)
		defer func() {
			if err := unsub(); err != nil {
				svc.Logger.Error("unsubscribe from conversation events", "error", err)
			}
		}()

		for {
			select {
			case data := <-raw:
				var ev types.ConversationEvent
				if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&ev); err != nil {
					svc.Logger.Error("gob decode conversation event", "error", err)
					continue
				}

				select {
				case ee <- ev:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return ee, nil
}

func (svc *Service) publishConversationEvent(ev types.ConversationEvent) {
	// The broker is optional; without one, events are simply not fanned out.
	if svc.PubSub == nil {
		return
	}

	svc.background(func(ctx context.Context) error {
		var b bytes.Buffer
		if err := gob.NewEncoder(&b).Encode(ev); err != nil {
			return fmt.Errorf("gob encode conversation event: %w", err)
		}

		return svc.PubSub.Pub(conversationTopic(ev.ConversationID), b.Bytes())
	})
}
