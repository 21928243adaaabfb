package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/chatline-server/internal/store"
)

// recordingTransport buffers pushed events on a channel.
type recordingTransport struct {
	events chan Event

	mu   sync.Mutex
	fail error
}

func newRecordingTransport() *recordingTransport {
	return &recordingTransport{events: make(chan Event, 32)}
}

func (t *recordingTransport) Send(_ context.Context, ev Event) error {
	t.mu.Lock()
	fail := t.fail
	t.mu.Unlock()
	if fail != nil {
		return fail
	}
	select {
	case t.events <- ev:
		return nil
	default:
		return errors.New("buffer full")
	}
}

func (t *recordingTransport) breakWith(err error) {
	t.mu.Lock()
	t.fail = err
	t.mu.Unlock()
}

type panicTransport struct{}

func (panicTransport) Send(context.Context, Event) error { panic("socket exploded") }

func mustEvent(t *testing.T, ch <-chan Event, kind EventKind) Event {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("expected event kind %v not received", kind)
			return Event{}
		}
	}
}

func expectNoEvent(t *testing.T, ch <-chan Event) {
	t.Helper()

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

// fakeAuth maps tokens to user ids.
type fakeAuth map[string]int64

func (f fakeAuth) Verify(_ context.Context, credential string) (int64, error) {
	if credential == "boom" {
		panic("decoder bug")
	}
	id, ok := f[credential]
	if !ok {
		return 0, fmt.Errorf("%w: unknown token", ErrUnauthenticated)
	}
	return id, nil
}

type fakeUsers map[int64]*Identity

func (f fakeUsers) FindUserByID(_ context.Context, id int64) (*Identity, error) {
	u, ok := f[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

// fakeChats serves participant lists from memory.
type fakeChats struct {
	mu           sync.Mutex
	participants map[int64][]int64
	err          error
}

func (f *fakeChats) GetChatByID(_ context.Context, id int64) (*store.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.participants[id]; !ok {
		return nil, store.ErrNotFound
	}
	return &store.Chat{ID: id, Type: store.ChatTypeGroup}, nil
}

func (f *fakeChats) ListParticipants(_ context.Context, chatID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]int64(nil), f.participants[chatID]...), nil
}

func (f *fakeChats) AppendMessage(_ context.Context, msg *store.Message) error {
	if msg.ID == 0 {
		msg.ID = 1
	}
	return nil
}

type testCore struct {
	registry *Registry
	router   *Router
	gateway  *Gateway
	chats    *fakeChats
	auth     fakeAuth
	users    fakeUsers
}

func newTestCore(t *testing.T) *testCore {
	t.Helper()

	auth := fakeAuth{}
	users := fakeUsers{}
	chats := &fakeChats{participants: map[int64][]int64{}}

	emitter := NewEmitter(time.Second, nil)
	registry := NewRegistry(emitter, nil)
	router := NewRouter(chats, registry, nil)
	resolver := NewIdentityResolver(auth, users, "accessToken")
	gateway := NewGateway(resolver, registry, emitter, router, nil)

	return &testCore{
		registry: registry,
		router:   router,
		gateway:  gateway,
		chats:    chats,
		auth:     auth,
		users:    users,
	}
}

// addUser registers a user with a token of the form "tok-<id>".
func (tc *testCore) addUser(id int64, name string) string {
	token := fmt.Sprintf("tok-%d", id)
	tc.auth[token] = id
	tc.users[id] = &Identity{UserID: id, Username: name}
	return token
}

// connect opens an active connection for user id and drains the connected event.
func (tc *testCore) connect(t *testing.T, id int64) (*Conn, *recordingTransport) {
	t.Helper()

	token, ok := "", false
	for tok, uid := range tc.auth {
		if uid == id {
			token, ok = tok, true
			break
		}
	}
	if !ok {
		token = tc.addUser(id, fmt.Sprintf("user%d", id))
	}

	tr := newRecordingTransport()
	c := NewConn(tr)
	if _, err := tc.gateway.Connect(context.Background(), c, Handshake{Token: token}); err != nil {
		t.Fatalf("connect user %d: %v", id, err)
	}
	mustEvent(t, tr.events, EventConnected)
	return c, tr
}
