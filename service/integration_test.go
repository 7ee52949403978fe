package service

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/ory/dockertest/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/parleyhq/parley/auth"
	"github.com/parleyhq/parley/errs"
	"github.com/parleyhq/parley/postgres"
	"github.com/parleyhq/parley/postgres/migrator"
	"github.com/parleyhq/parley/pubsub"
	"github.com/parleyhq/parley/types"
)

var (
	testDB      *pgxpool.Pool
	testNATS    *nats.Conn
	testService *Service
)

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	var skipIntegration bool
	flag.BoolVar(&skipIntegration, "skip-integration", false, "Skip integration tests docker setup")
	flag.Parse()

	if skipIntegration || testing.Short() {
		return m.Run()
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		fmt.Printf("could not create docker pool: %v\n", err)
		return 1
	}

	var cleanup func() error
	testDB, cleanup, err = setupTestDB(pool)
	if err != nil {
		fmt.Printf("could not setup test db: %v\n", err)
		return 1
	}

	defer func() {
		if err := cleanup(); err != nil {
			fmt.Printf("could not cleanup postgres container: %v\n", err)
		}
	}()

	if err := migrator.Migrate(context.Background(), testDB, postgres.MigrationsFS); err != nil {
		fmt.Printf("could not migrate test db: %v\n", err)
		return 1
	}

	var natsCleanup func() error
	testNATS, natsCleanup, err = setupTestNATS(pool)
	if err != nil {
		fmt.Printf("could not setup test nats: %v\n", err)
		return 1
	}

	defer func() {
		if err := natsCleanup(); err != nil {
			fmt.Printf("could not cleanup nats container: %v\n", err)
		}
	}()

	testService = New(&Config{
		Postgres:          postgres.New(testDB),
		PubSub:            pubsub.New(testNATS, prometheus.NewRegistry()),
		Logger:            slog.New(slog.DiscardHandler),
		BaseCtx:           context.Background(),
		BackgroundTimeout: time.Second * 5,
	})

	return m.Run()
}

func setupTestNATS(pool *dockertest.Pool) (*nats.Conn, func() error, error) {
	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "nats",
		Tag:        "2-alpine",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("could not create nats resource: %w", err)
	}

	var conn *nats.Conn
	err = pool.Retry(func() (err error) {
		conn, err = nats.Connect("nats://" + resource.GetHostPort("4222/tcp"))
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	return conn, func() error {
		conn.Close()
		return pool.Purge(resource)
	}, nil
}

func setupTestDB(pool *dockertest.Pool) (*pgxpool.Pool, func() error, error) {
	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "17-alpine",
		Env: []string{
			"POSTGRES_USER=parley",
			"POSTGRES_PASSWORD=parley",
			"POSTGRES_DB=parley",
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("could not create postgres resource: %w", err)
	}

	var db *pgxpool.Pool
	err = pool.Retry(func() (err error) {
		hostPort := resource.GetHostPort("5432/tcp")
		db, err = pgxpool.New(context.Background(), "postgresql://parley:parley@"+hostPort+"/parley?sslmode=disable")
		if err != nil {
			return fmt.Errorf("could not open db: %w", err)
		}

		// do not close db

		if err = db.Ping(context.Background()); err != nil {
			return fmt.Errorf("could not ping db: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return db, func() error {
		return pool.Purge(resource)
	}, nil
}

func skipShort(t *testing.T) {
	t.Helper()
	if testing.Short() || testService == nil {
		t.Skip("integration test")
	}
}

var usernameCounter atomic.Int64

// newTestUser creates a user with a unique username and returns it together
// with a context logged in as that user.
func newTestUser(t *testing.T) (types.User, context.Context) {
	t.Helper()

	username := fmt.Sprintf("u%d", usernameCounter.Add(1))
	created, err := testService.CreateUser(t.Context(), types.CreateUser{Username: username})
	if err != nil {
		t.Fatalf("create user %q: %v", username, err)
	}

	user := types.User{ID: created.ID, Username: username}
	return user, auth.ContextWithUser(t.Context(), user)
}

// followEachOther sets up the mutual follow that lets a pair skip the
// request workflow.
func followEachOther(t *testing.T, actx, bctx context.Context, a, b types.User) {
	t.Helper()

	if _, err := testService.ToggleFollow(actx, types.ToggleFollow{FolloweeID: b.ID}); err != nil {
		t.Fatalf("%s follow %s: %v", a.Username, b.Username, err)
	}
	if _, err := testService.ToggleFollow(bctx, types.ToggleFollow{FolloweeID: a.ID}); err != nil {
		t.Fatalf("%s follow %s: %v", b.Username, a.Username, err)
	}
}

func getConversation(t *testing.T, ctx context.Context, conversationID string) types.Conversation {
	t.Helper()

	conv, err := testService.Conversation(ctx, types.RetrieveConversation{ConversationID: conversationID})
	if err != nil {
		t.Fatalf("retrieve conversation: %v", err)
	}
	return conv
}

func sendMessage(t *testing.T, ctx context.Context, conversationID, text string) types.Message {
	t.Helper()

	msg, err := testService.CreateMessage(ctx, types.CreateMessage{
		ConversationID: conversationID,
		Text:           text,
	})
	if err != nil {
		t.Fatalf("send %q: %v", text, err)
	}
	return msg
}

func TestIntegration_directConversationConverges(t *testing.T) {
	skipShort(t)

	alice, actx := newTestUser(t)
	bob, bctx := newTestUser(t)

	var (
		wg  sync.WaitGroup
		ids [2]string
	)

	wg.Go(func() {
		out, err := testService.CreateDirectConversation(actx, types.CreateDirectConversation{OtherUserID: bob.ID})
		if err != nil {
			t.Errorf("alice create: %v", err)
			return
		}
		ids[0] = out.ID
	})
	wg.Go(func() {
		out, err := testService.CreateDirectConversation(bctx, types.CreateDirectConversation{OtherUserID: alice.ID})
		if err != nil {
			t.Errorf("bob create: %v", err)
			return
		}
		ids[1] = out.ID
	})
	wg.Wait()

	if ids[0] == "" || ids[0] != ids[1] {
		t.Fatalf("concurrent creates did not converge: %q vs %q", ids[0], ids[1])
	}
}

func TestIntegration_requestLifecycle(t *testing.T) {
	skipShort(t)

	_, actx := newTestUser(t)
	bob, bctx := newTestUser(t)

	out, err := testService.CreateDirectConversation(actx, types.CreateDirectConversation{OtherUserID: bob.ID})
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	conv := getConversation(t, actx, out.ID)
	if conv.Status != types.ConversationStatusPending {
		t.Fatalf("got status %q, want pending", conv.Status)
	}

	sendMessage(t, actx, out.ID, "Hi")

	// One message per request until the other side responds.
	_, err = testService.CreateMessage(actx, types.CreateMessage{ConversationID: out.ID, Text: "Hi again"})
	if errs.KindOf(err) != errs.KindRequestLimit {
		t.Fatalf("second pending send: got %v, want request limit", err)
	}

	// The pending conversation shows up for bob as a request, not in the
	// regular listing.
	requests, err := testService.Requests(bctx, types.ListRequests{})
	if err != nil {
		t.Fatalf("list requests: %v", err)
	}
	if !containsConversation(requests.Items, out.ID) {
		t.Fatalf("bob's requests do not contain %s", out.ID)
	}

	convs, err := testService.Conversations(bctx, types.ListConversations{})
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if containsConversation(convs.Items, out.ID) {
		t.Fatalf("pending request leaked into bob's conversation list")
	}

	// A reply from the recipient is an implicit accept.
	sendMessage(t, bctx, out.ID, "Hello")

	conv = getConversation(t, bctx, out.ID)
	if conv.Status != types.ConversationStatusAccepted {
		t.Fatalf("after reply got status %q, want accepted", conv.Status)
	}

	// The requester's cap is gone.
	sendMessage(t, actx, out.ID, "Great to hear from you")
	sendMessage(t, actx, out.ID, "Really")
}

func TestIntegration_acceptIsIdempotent(t *testing.T) {
	skipShort(t)

	_, actx := newTestUser(t)
	bob, bctx := newTestUser(t)

	out, err := testService.CreateDirectConversation(actx, types.CreateDirectConversation{OtherUserID: bob.ID})
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	sendMessage(t, actx, out.ID, "Hi")

	// The requester cannot accept their own request.
	_, err = testService.AcceptRequest(actx, types.AcceptRequest{ConversationID: out.ID})
	if errs.KindOf(err) != errs.KindPermissionDenied {
		t.Fatalf("requester accept: got %v, want permission denied", err)
	}

	for range 2 {
		conv, err := testService.AcceptRequest(bctx, types.AcceptRequest{ConversationID: out.ID})
		if err != nil {
			t.Fatalf("accept: %v", err)
		}
		if conv.Status != types.ConversationStatusAccepted {
			t.Fatalf("got status %q, want accepted", conv.Status)
		}
	}

	// Acknowledging a request that already transitioned is a quiet no-op.
	if err := testService.MarkRequestRead(bctx, types.MarkRequestRead{ConversationID: out.ID}); err != nil {
		t.Fatalf("mark request read after accept: %v", err)
	}

	// A non-participant still gets not found.
	_, cctx := newTestUser(t)
	err = testService.MarkRequestRead(cctx, types.MarkRequestRead{ConversationID: out.ID})
	if errs.KindOf(err) != errs.KindNotFound {
		t.Fatalf("outsider mark request read: got %v, want not found", err)
	}
}

func TestIntegration_declineAndReopen(t *testing.T) {
	skipShort(t)

	_, actx := newTestUser(t)
	bob, bctx := newTestUser(t)

	out, err := testService.CreateDirectConversation(actx, types.CreateDirectConversation{OtherUserID: bob.ID})
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	sendMessage(t, actx, out.ID, "Hi")

	conv, err := testService.DeclineRequest(bctx, types.DeclineRequest{ConversationID: out.ID})
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if conv.Status != types.ConversationStatusDeclined {
		t.Fatalf("got status %q, want declined", conv.Status)
	}

	// The decliner cannot message into a conversation they declined.
	_, err = testService.CreateMessage(bctx, types.CreateMessage{ConversationID: out.ID, Text: "actually..."})
	if errs.KindOf(err) != errs.KindInvalidState {
		t.Fatalf("decliner send: got %v, want invalid state", err)
	}

	// The requester reopens the request with a fresh cap.
	sendMessage(t, actx, out.ID, "Please reconsider")

	conv = getConversation(t, actx, out.ID)
	if conv.Status != types.ConversationStatusPending {
		t.Fatalf("after reopen got status %q, want pending", conv.Status)
	}

	_, err = testService.CreateMessage(actx, types.CreateMessage{ConversationID: out.ID, Text: "one more"})
	if errs.KindOf(err) != errs.KindRequestLimit {
		t.Fatalf("second reopened send: got %v, want request limit", err)
	}
}

func TestIntegration_mutualFollowSkipsRequest(t *testing.T) {
	skipShort(t)

	alice, actx := newTestUser(t)
	bob, bctx := newTestUser(t)
	followEachOther(t, actx, bctx, alice, bob)

	perm, err := testService.CanMessage(actx, bob.ID)
	if err != nil {
		t.Fatalf("can message: %v", err)
	}
	if !perm.Allowed || perm.RequiresRequest {
		t.Fatalf("mutual follow permission = %+v, want allowed without request", perm)
	}

	out, err := testService.CreateDirectConversation(actx, types.CreateDirectConversation{OtherUserID: bob.ID})
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	conv := getConversation(t, actx, out.ID)
	if conv.Status != types.ConversationStatusAccepted {
		t.Fatalf("got status %q, want accepted", conv.Status)
	}

	sendMessage(t, actx, out.ID, "first")
	sendMessage(t, actx, out.ID, "second")
}

func TestIntegration_messagingPolicyRestricts(t *testing.T) {
	skipShort(t)

	_, actx := newTestUser(t)
	bob, bctx := newTestUser(t)

	err := testService.SetMessagingPolicy(bctx, types.SetMessagingPolicy{
		Policy: types.MessagingPolicy{AllowFromEveryone: false},
	})
	if err != nil {
		t.Fatalf("set policy: %v", err)
	}

	perm, err := testService.CanMessage(actx, bob.ID)
	if err != nil {
		t.Fatalf("can message: %v", err)
	}
	if perm.Allowed || perm.Reason != PermissionReasonPolicyRestricted {
		t.Fatalf("permission = %+v, want policy restricted", perm)
	}

	_, err = testService.CreateDirectConversation(actx, types.CreateDirectConversation{OtherUserID: bob.ID})
	if errs.KindOf(err) != errs.KindPermissionDenied {
		t.Fatalf("create conversation: got %v, want permission denied", err)
	}
}

func TestIntegration_blockFreezesConversation(t *testing.T) {
	skipShort(t)

	alice, actx := newTestUser(t)
	bob, bctx := newTestUser(t)
	followEachOther(t, actx, bctx, alice, bob)

	out, err := testService.CreateDirectConversation(actx, types.CreateDirectConversation{OtherUserID: bob.ID})
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	sendMessage(t, actx, out.ID, "Hi")

	if err := testService.BlockUser(bctx, types.BlockUser{BlockedID: alice.ID}); err != nil {
		t.Fatalf("block: %v", err)
	}

	conv := getConversation(t, actx, out.ID)
	if conv.Status != types.ConversationStatusBlocked {
		t.Fatalf("after block got status %q, want blocked", conv.Status)
	}

	_, err = testService.CreateMessage(actx, types.CreateMessage{ConversationID: out.ID, Text: "hello?"})
	if errs.KindOf(err) != errs.KindPermissionDenied {
		t.Fatalf("blocked send: got %v, want permission denied", err)
	}

	if err := testService.UnblockUser(bctx, types.UnblockUser{BlockedID: alice.ID}); err != nil {
		t.Fatalf("unblock: %v", err)
	}

	conv = getConversation(t, actx, out.ID)
	if conv.Status != types.ConversationStatusAccepted {
		t.Fatalf("after unblock got status %q, want accepted", conv.Status)
	}

	sendMessage(t, actx, out.ID, "we are back")
}

func TestIntegration_reportAutoBlocks(t *testing.T) {
	skipShort(t)

	alice, actx := newTestUser(t)
	bob, bctx := newTestUser(t)

	_, err := testService.CreateReport(actx, types.CreateReport{
		TargetUserID: bob.ID,
		Reason:       types.ReportReasonHarassment,
	})
	if err != nil {
		t.Fatalf("report: %v", err)
	}

	blocked, err := testService.BlockedUsers(actx)
	if err != nil {
		t.Fatalf("blocked users: %v", err)
	}
	if len(blocked) != 1 || blocked[0].ID != bob.ID {
		t.Fatalf("blocked users = %+v, want just %s", blocked, bob.Username)
	}

	perm, err := testService.CanMessage(bctx, alice.ID)
	if err != nil {
		t.Fatalf("can message: %v", err)
	}
	if perm.Allowed || perm.Reason != PermissionReasonBlocked {
		t.Fatalf("permission = %+v, want blocked", perm)
	}

	// A spam report files but does not block.
	_, cctx := newTestUser(t)
	_, err = testService.CreateReport(cctx, types.CreateReport{
		TargetUserID: alice.ID,
		Reason:       types.ReportReasonSpam,
	})
	if err != nil {
		t.Fatalf("spam report: %v", err)
	}

	blocked, err = testService.BlockedUsers(cctx)
	if err != nil {
		t.Fatalf("blocked users: %v", err)
	}
	if len(blocked) != 0 {
		t.Fatalf("spam report blocked someone: %+v", blocked)
	}
}

func TestIntegration_archiveIsPerParticipant(t *testing.T) {
	skipShort(t)

	alice, actx := newTestUser(t)
	bob, bctx := newTestUser(t)
	followEachOther(t, actx, bctx, alice, bob)

	out, err := testService.CreateDirectConversation(actx, types.CreateDirectConversation{OtherUserID: bob.ID})
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	sendMessage(t, actx, out.ID, "Hi")

	err = testService.SetConversationFlag(actx, types.SetConversationFlag{
		ConversationID: out.ID,
		Flag:           types.ConversationFlagArchived,
		Value:          true,
	})
	if err != nil {
		t.Fatalf("archive: %v", err)
	}

	convs, err := testService.Conversations(actx, types.ListConversations{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if containsConversation(convs.Items, out.ID) {
		t.Fatalf("archived conversation still in alice's default list")
	}

	archived, err := testService.Conversations(actx, types.ListConversations{Archived: true})
	if err != nil {
		t.Fatalf("list archived: %v", err)
	}
	if !containsConversation(archived.Items, out.ID) {
		t.Fatalf("conversation missing from alice's archived list")
	}

	// Bob is unaffected.
	convs, err = testService.Conversations(bctx, types.ListConversations{})
	if err != nil {
		t.Fatalf("bob list: %v", err)
	}
	if !containsConversation(convs.Items, out.ID) {
		t.Fatalf("alice's archive leaked into bob's view")
	}
}

func TestIntegration_orderingAndUnreadCounts(t *testing.T) {
	skipShort(t)

	alice, actx := newTestUser(t)
	bob, bctx := newTestUser(t)
	followEachOther(t, actx, bctx, alice, bob)

	out, err := testService.CreateDirectConversation(actx, types.CreateDirectConversation{OtherUserID: bob.ID})
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	sendMessage(t, actx, out.ID, "Hi")
	sendMessage(t, actx, out.ID, "Hi again")

	conv := getConversation(t, bctx, out.ID)
	if conv.Participation == nil || conv.Participation.UnreadCount != 2 {
		t.Fatalf("bob participation = %+v, want 2 unread", conv.Participation)
	}

	if err := testService.MarkConversationRead(bctx, types.MarkConversationRead{ConversationID: out.ID}); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	conv = getConversation(t, bctx, out.ID)
	if conv.Participation == nil || conv.Participation.UnreadCount != 0 {
		t.Fatalf("bob participation after read = %+v, want 0 unread", conv.Participation)
	}

	sendMessage(t, bctx, out.ID, "Hello")

	conv = getConversation(t, actx, out.ID)
	if conv.Participation == nil || conv.Participation.UnreadCount != 1 {
		t.Fatalf("alice participation = %+v, want 1 unread", conv.Participation)
	}

	// Newest first, sequence gapless from 1.
	page, err := testService.Messages(actx, types.ListMessages{ConversationID: out.ID})
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}

	wantTexts := []string{"Hello", "Hi again", "Hi"}
	if len(page.Items) != len(wantTexts) {
		t.Fatalf("got %d messages, want %d", len(page.Items), len(wantTexts))
	}
	for i, want := range wantTexts {
		if page.Items[i].Text != want {
			t.Errorf("message[%d].Text = %q, want %q", i, page.Items[i].Text, want)
		}
		if wantSeq := int64(len(wantTexts) - i); page.Items[i].Seq != wantSeq {
			t.Errorf("message[%d].Seq = %d, want %d", i, page.Items[i].Seq, wantSeq)
		}
	}
}

func TestIntegration_groupAdminGate(t *testing.T) {
	skipShort(t)

	alice, actx := newTestUser(t)
	bob, bctx := newTestUser(t)
	carol, _ := newTestUser(t)
	dave, _ := newTestUser(t)

	out, err := testService.CreateGroup(actx, types.CreateGroup{
		Name:           "weekend plans",
		ParticipantIDs: []string{bob.ID, carol.ID},
	})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}

	conv := getConversation(t, bctx, out.ID)
	if !conv.IsGroup || conv.Status != types.ConversationStatusAccepted {
		t.Fatalf("group conversation = %+v, want accepted group", conv)
	}

	// Creation leaves a trail: one message for the group itself plus one
	// per initial member.
	page, err := testService.Messages(bctx, types.ListMessages{ConversationID: out.ID})
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	wantTexts := map[string]bool{
		alice.Username + " created the group":       true,
		alice.Username + " added " + bob.Username:   true,
		alice.Username + " added " + carol.Username: true,
	}
	if len(page.Items) != len(wantTexts) {
		t.Fatalf("got %d messages after creation, want %d: %+v", len(page.Items), len(wantTexts), page.Items)
	}
	for _, msg := range page.Items {
		if !msg.IsSystem {
			t.Errorf("message %q is not a system message", msg.Text)
		}
		if !wantTexts[msg.Text] {
			t.Errorf("unexpected system message %q", msg.Text)
		}
		delete(wantTexts, msg.Text)
	}
	// Listing is newest first, so the creation announcement comes last.
	if oldest := page.Items[len(page.Items)-1]; oldest.Text != alice.Username+" created the group" {
		t.Errorf("oldest message = %q, want the creation announcement", oldest.Text)
	}

	// Non-admins cannot change the roster.
	err = testService.AddMembers(bctx, types.AddMembers{ConversationID: out.ID, MemberIDs: []string{dave.ID}})
	if errs.KindOf(err) != errs.KindPermissionDenied {
		t.Fatalf("non-admin add: got %v, want permission denied", err)
	}

	if err := testService.AddMembers(actx, types.AddMembers{ConversationID: out.ID, MemberIDs: []string{dave.ID}}); err != nil {
		t.Fatalf("admin add: %v", err)
	}

	if err := testService.RemoveMembers(actx, types.RemoveMembers{ConversationID: out.ID, MemberIDs: []string{carol.ID}}); err != nil {
		t.Fatalf("admin remove: %v", err)
	}

	// Changing the photo is announced like a rename.
	err = testService.ChangeGroupAvatar(actx, types.ChangeGroupAvatar{ConversationID: out.ID, AvatarRef: "avatars/weekend.png"})
	if err != nil {
		t.Fatalf("change avatar: %v", err)
	}

	page, err = testService.Messages(bctx, types.ListMessages{ConversationID: out.ID})
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if want := alice.Username + " changed the group photo"; page.Items[0].Text != want {
		t.Fatalf("newest message = %q, want %q", page.Items[0].Text, want)
	}

	// When the only admin leaves, the longest-standing member takes over,
	// and the departure is announced.
	if err := testService.LeaveGroup(actx, types.LeaveGroup{ConversationID: out.ID}); err != nil {
		t.Fatalf("leave: %v", err)
	}

	page, err = testService.Messages(bctx, types.ListMessages{ConversationID: out.ID})
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if want := alice.Username + " left the group"; page.Items[0].Text != want || !page.Items[0].IsSystem {
		t.Fatalf("newest message = %+v, want system %q", page.Items[0], want)
	}

	if err := testService.RenameGroup(bctx, types.RenameGroup{ConversationID: out.ID, Name: "new name"}); err != nil {
		t.Fatalf("promoted admin rename: %v", err)
	}
}

func TestIntegration_deleteClearsStoredText(t *testing.T) {
	skipShort(t)

	alice, actx := newTestUser(t)
	bob, bctx := newTestUser(t)
	followEachOther(t, actx, bctx, alice, bob)

	out, err := testService.CreateDirectConversation(actx, types.CreateDirectConversation{OtherUserID: bob.ID})
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	msg := sendMessage(t, actx, out.ID, "meet me at the usual place")

	deleted, err := testService.DeleteMessage(actx, types.DeleteMessage{MessageID: msg.ID})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !deleted.IsDeleted || deleted.Text != "" {
		t.Fatalf("deleted message = %+v, want deleted with empty text", deleted)
	}

	// The row survives for reply resolution, but the stored text is gone,
	// not just hidden on the way out.
	var storedText string
	err = testDB.QueryRow(t.Context(), "SELECT text FROM messages WHERE id = $1", msg.ID).Scan(&storedText)
	if err != nil {
		t.Fatalf("query stored text: %v", err)
	}
	if storedText != "" {
		t.Fatalf("stored text = %q, want empty", storedText)
	}

	page, err := testService.Messages(bctx, types.ListMessages{ConversationID: out.ID})
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(page.Items) != 1 || !page.Items[0].IsDeleted || page.Items[0].Text != "" {
		t.Fatalf("listed messages = %+v, want one deleted tombstone", page.Items)
	}
}

func TestIntegration_streamDeliversAppends(t *testing.T) {
	skipShort(t)

	alice, actx := newTestUser(t)
	bob, bctx := newTestUser(t)
	followEachOther(t, actx, bctx, alice, bob)

	out, err := testService.CreateDirectConversation(actx, types.CreateDirectConversation{OtherUserID: bob.ID})
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	ctx, cancel := context.WithCancel(bctx)
	defer cancel()

	ee, err := testService.ConversationStream(ctx, out.ID)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}

	// Make sure the subscription reached the server before publishing.
	if err := testNATS.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	const sends = 5
	for i := range sends {
		sendMessage(t, actx, out.ID, fmt.Sprintf("message %d", i+1))
	}

	// Publishing happens on background goroutines, so arrival order is not
	// fixed; every send must arrive exactly once though.
	gotSeqs := make(map[int64]bool)
	timeout := time.After(time.Second * 10)
	for len(gotSeqs) < sends {
		select {
		case ev, ok := <-ee:
			if !ok {
				t.Fatalf("stream closed after %d of %d events", len(gotSeqs), sends)
			}
			if ev.Kind != types.ConversationEventMessageAppended || ev.Message == nil {
				t.Fatalf("unexpected event %+v", ev)
			}
			if gotSeqs[ev.Message.Seq] {
				t.Fatalf("seq %d delivered twice", ev.Message.Seq)
			}
			gotSeqs[ev.Message.Seq] = true
		case <-timeout:
			t.Fatalf("timed out after %d of %d events", len(gotSeqs), sends)
		}
	}
	for seq := int64(1); seq <= sends; seq++ {
		if !gotSeqs[seq] {
			t.Errorf("seq %d never delivered", seq)
		}
	}

	// Cancelling the context closes the stream.
	cancel()
	for {
		select {
		case _, ok := <-ee:
			if !ok {
				return
			}
		case <-time.After(time.Second * 5):
			t.Fatal("stream did not close after cancel")
		}
	}
}

func TestIntegration_groupChangesReachStream(t *testing.T) {
	skipShort(t)

	alice, actx := newTestUser(t)
	bob, bctx := newTestUser(t)

	out, err := testService.CreateGroup(actx, types.CreateGroup{
		Name:           "book club",
		ParticipantIDs: []string{bob.ID},
	})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}

	ctx, cancel := context.WithCancel(bctx)
	defer cancel()

	ee, err := testService.ConversationStream(ctx, out.ID)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}

	if err := testNATS.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	err = testService.ChangeGroupAvatar(actx, types.ChangeGroupAvatar{ConversationID: out.ID, AvatarRef: "avatars/club.png"})
	if err != nil {
		t.Fatalf("change avatar: %v", err)
	}
	if err := testService.LeaveGroup(actx, types.LeaveGroup{ConversationID: out.ID}); err != nil {
		t.Fatalf("leave: %v", err)
	}

	wantTexts := map[string]bool{
		alice.Username + " changed the group photo": true,
		alice.Username + " left the group":          true,
	}
	timeout := time.After(time.Second * 10)
	for len(wantTexts) > 0 {
		select {
		case ev, ok := <-ee:
			if !ok {
				t.Fatalf("stream closed with %d announcements outstanding", len(wantTexts))
			}
			if ev.Kind != types.ConversationEventMessageAppended || ev.Message == nil {
				t.Fatalf("unexpected event %+v", ev)
			}
			if !ev.Message.IsSystem {
				t.Fatalf("announcement %q is not a system message", ev.Message.Text)
			}
			delete(wantTexts, ev.Message.Text)
		case <-timeout:
			t.Fatalf("timed out with announcements outstanding: %v", wantTexts)
		}
	}
}

func containsConversation(items []types.Conversation, conversationID string) bool {
	for _, c := range items {
		if c.ID == conversationID {
			return true
		}
	}
	return false
}
