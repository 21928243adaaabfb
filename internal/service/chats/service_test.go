package chats

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/chatline-server/internal/proto"
	"github.com/vovakirdan/chatline-server/internal/store"
	"github.com/vovakirdan/chatline-server/internal/store/sqlite"
)

type notification struct {
	kind  string
	chat  int64
	actor int64
	users []int64
}

// recordingNotifier captures every call made through core.Notifier.
// On ChatLeft it records who is still in the chat at notification time.
type recordingNotifier struct {
	mu    sync.Mutex
	calls []notification
	chats store.ChatStore
}

func (n *recordingNotifier) add(call notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, call)
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.calls))
	for _, c := range n.calls {
		out = append(out, c.kind)
	}
	return out
}

func (n *recordingNotifier) last() notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[len(n.calls)-1]
}

func (n *recordingNotifier) NewChat(_ context.Context, chatID, actorID int64, _ any) {
	n.add(notification{kind: "new-chat", chat: chatID, actor: actorID})
}

func (n *recordingNotifier) MessageSent(_ context.Context, chatID, senderID int64, _ any) {
	n.add(notification{kind: "message-sent", chat: chatID, actor: senderID})
}

func (n *recordingNotifier) MessageEdited(_ context.Context, chatID, actorID int64, _ any) {
	n.add(notification{kind: "message-edited", chat: chatID, actor: actorID})
}

func (n *recordingNotifier) MessageDeleted(_ context.Context, chatID, actorID int64, _ any) {
	n.add(notification{kind: "message-deleted", chat: chatID, actor: actorID})
}

func (n *recordingNotifier) ParticipantsAdded(_ context.Context, added []int64, _ any) {
	n.add(notification{kind: "participants-added", users: added})
}

func (n *recordingNotifier) ParticipantsRemoved(_ context.Context, removed []int64, _ any) {
	n.add(notification{kind: "participants-removed", users: removed})
}

func (n *recordingNotifier) ChatUpdated(_ context.Context, chatID int64, _ any) {
	n.add(notification{kind: "chat-updated", chat: chatID})
}

func (n *recordingNotifier) ChatLeft(ctx context.Context, chatID, leaverID int64, _ any) {
	remaining, _ := n.chats.ListParticipants(ctx, chatID)
	n.add(notification{kind: "chat-left", chat: chatID, actor: leaverID, users: remaining})
}

func (n *recordingNotifier) ChatDeleted(_ context.Context, former []int64, _ any) {
	n.add(notification{kind: "chat-deleted", users: former})
}

func newTestService(t *testing.T) (*Service, *sqlite.SQLiteStore, *recordingNotifier) {
	t.Helper()
	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	n := &recordingNotifier{chats: st}
	return New(st, n, nil), st, n
}

func mustUser(t *testing.T, st store.UserStore, name string) int64 {
	t.Helper()
	u, err := st.CreateUser(context.Background(), name, "hash")
	require.NoError(t, err)
	return u.ID
}

func TestDirectChatCreatedOnce(t *testing.T) {
	r := require.New(t)
	svc, st, n := newTestService(t)
	ctx := context.Background()
	alice, bob := mustUser(t, st, "alice"), mustUser(t, st, "bob")

	chat, sent, err := svc.GetOrCreateDirect(ctx, alice, bob, "hello")
	r.NoError(err)
	r.NotNil(sent)
	r.Equal("hello", sent.Text)
	r.Equal([]string{"new-chat", "message-sent"}, n.kinds())
	r.NotNil(chat.LastMessage)

	again, sent, err := svc.GetOrCreateDirect(ctx, bob, alice, "")
	r.NoError(err)
	r.Nil(sent)
	r.Equal(chat.ID, again.ID)
	r.Len(n.kinds(), 2, "existing chat is not announced again")
}

func TestDirectChatValidation(t *testing.T) {
	r := require.New(t)
	svc, st, _ := newTestService(t)
	alice := mustUser(t, st, "alice")

	_, _, err := svc.GetOrCreateDirect(context.Background(), alice, alice, "")
	r.ErrorIs(err, ErrCannotChatSelf)

	_, _, err = svc.GetOrCreateDirect(context.Background(), alice, 999, "")
	r.ErrorIs(err, ErrUserNotFound)
}

func TestGroupAdministration(t *testing.T) {
	r := require.New(t)
	svc, st, n := newTestService(t)
	ctx := context.Background()
	admin, bob, carol := mustUser(t, st, "admin"), mustUser(t, st, "bob"), mustUser(t, st, "carol")

	group, err := svc.CreateGroup(ctx, admin, GroupRequest{Title: " crew ", Participants: []int64{bob, bob, admin}})
	r.NoError(err)
	r.Equal("crew", group.Title)
	r.Len(group.Participants, 2)
	r.Equal(notification{kind: "new-chat", chat: group.ID, actor: admin}, n.last())

	_, err = svc.AddParticipants(ctx, bob, group.ID, []int64{carol})
	r.ErrorIs(err, ErrNotAdmin)

	view, err := svc.AddParticipants(ctx, admin, group.ID, []int64{carol, bob})
	r.NoError(err)
	r.Len(view.Participants, 3)
	r.Equal([]int64{carol}, n.last().users, "only new members are announced")

	updated, err := svc.UpdateProfile(ctx, admin, group.ID, ProfileRequest{Title: "crew v2", Description: "d"})
	r.NoError(err)
	r.Equal("crew v2", updated.Title)
	r.Equal("chat-updated", n.last().kind)

	r.NoError(svc.SetRole(ctx, admin, group.ID, bob, store.RoleAdmin))
	r.Equal("chat-updated", n.last().kind, "role changes are silent")

	_, err = svc.RemoveParticipants(ctx, bob, group.ID, []int64{carol})
	r.NoError(err)
	r.Equal([]int64{carol}, n.last().users)

	r.NoError(svc.LeaveChat(ctx, bob, group.ID))
	r.Equal(notification{kind: "chat-left", chat: group.ID, actor: bob, users: []int64{admin}}, n.last(),
		"the leaver is gone before the remaining members are notified")

	r.NoError(svc.DeleteChat(ctx, admin, group.ID))
	r.Equal([]int64{admin}, n.last().users)

	_, err = svc.CheckMember(ctx, group.ID, admin)
	r.ErrorIs(err, ErrChatNotFound)
}

func TestGroupValidation(t *testing.T) {
	r := require.New(t)
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	admin := mustUser(t, st, "admin")

	_, err := svc.CreateGroup(ctx, admin, GroupRequest{Title: "solo", Participants: []int64{admin}})
	r.ErrorIs(err, ErrInvalidInput)

	_, err = svc.CreateGroup(ctx, admin, GroupRequest{Title: "  ", Participants: []int64{2}})
	r.ErrorIs(err, ErrInvalidInput)

	_, err = svc.CreateGroup(ctx, admin, GroupRequest{Title: "ghosts", Participants: []int64{404}})
	r.ErrorIs(err, ErrUserNotFound)
}

func TestDirectChatsRejectGroupOperations(t *testing.T) {
	r := require.New(t)
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	alice, bob := mustUser(t, st, "alice"), mustUser(t, st, "bob")

	chat, _, err := svc.GetOrCreateDirect(ctx, alice, bob, "")
	r.NoError(err)

	r.ErrorIs(svc.LeaveChat(ctx, alice, chat.ID), ErrDirectChat)
	r.ErrorIs(svc.DeleteChat(ctx, alice, chat.ID), ErrDirectChat)
}

func TestMessageFlow(t *testing.T) {
	r := require.New(t)
	svc, st, n := newTestService(t)
	ctx := context.Background()
	admin, bob, eve := mustUser(t, st, "admin"), mustUser(t, st, "bob"), mustUser(t, st, "eve")

	group, err := svc.CreateGroup(ctx, admin, GroupRequest{Title: "g", Participants: []int64{bob}})
	r.NoError(err)

	_, err = svc.SendMessage(ctx, eve, group.ID, MessageRequest{Text: "hi"})
	r.ErrorIs(err, ErrNotParticipant)

	_, err = svc.SendMessage(ctx, bob, group.ID, MessageRequest{Text: "   "})
	r.ErrorIs(err, ErrInvalidInput)

	first, err := svc.SendMessage(ctx, bob, group.ID, MessageRequest{Text: "first"})
	r.NoError(err)
	r.Equal(notification{kind: "message-sent", chat: group.ID, actor: bob}, n.last())

	reply, err := svc.SendMessage(ctx, admin, group.ID, MessageRequest{Text: "reply", ReplyToID: &first.ID})
	r.NoError(err)
	r.Equal(first.ID, *reply.ReplyToID)

	_, err = svc.EditMessage(ctx, admin, group.ID, first.ID, "hijack")
	r.ErrorIs(err, ErrNotMessageOwner)

	edited, err := svc.EditMessage(ctx, bob, group.ID, first.ID, "first!")
	r.NoError(err)
	r.Equal("first!", edited.Text)
	r.NotNil(edited.EditedAt)
	r.Equal("message-edited", n.last().kind)

	deleted, err := svc.DeleteMessage(ctx, admin, group.ID, first.ID)
	r.NoError(err, "admins moderate group messages")
	r.Empty(deleted.Text)
	r.Equal(admin, *deleted.DeletedBy)
	r.Equal("message-deleted", n.last().kind)

	_, err = svc.EditMessage(ctx, bob, group.ID, first.ID, "again")
	r.ErrorIs(err, ErrMessageDeleted)

	history, err := svc.ListMessages(ctx, bob, group.ID, 0, nil)
	r.NoError(err)
	r.Len(history, 2)
	r.Equal(reply.ID, history[0].ID)
	r.Equal([]int64{bob}, history[0].SeenBy)
	r.Empty(history[1].SeenBy, "deleted messages are never marked seen")

	history, err = svc.ListMessages(ctx, admin, group.ID, 0, nil)
	r.NoError(err)
	r.ElementsMatch([]int64{bob, admin}, history[0].SeenBy)
}

func TestDirectChatDeleteIsSenderOnly(t *testing.T) {
	r := require.New(t)
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	alice, bob := mustUser(t, st, "alice"), mustUser(t, st, "bob")

	chat, sent, err := svc.GetOrCreateDirect(ctx, alice, bob, "psst")
	r.NoError(err)

	_, err = svc.DeleteMessage(ctx, bob, chat.ID, sent.ID)
	r.ErrorIs(err, ErrNotMessageOwner)

	_, err = svc.DeleteMessage(ctx, alice, chat.ID, sent.ID)
	r.NoError(err)
}

func TestSearchUsersExcludesCaller(t *testing.T) {
	r := require.New(t)
	svc, st, _ := newTestService(t)
	alice := mustUser(t, st, "alice")
	mustUser(t, st, "alicia")

	users, err := svc.SearchUsers(context.Background(), alice, "ali")
	r.NoError(err)
	r.Equal([]string{"alicia"}, []string{users[0].Username})
	r.Len(users, 1)

	empty, err := svc.SearchUsers(context.Background(), alice, " ")
	r.NoError(err)
	r.Equal([]proto.UserResponse{}, empty)
}
