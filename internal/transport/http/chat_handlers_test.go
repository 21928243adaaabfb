package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/chatline-server/internal/proto"
)

func TestRegisterSetsAccessCookie(t *testing.T) {
	r := require.New(t)
	env := newTestEnv(t)

	body := bytes.NewBufferString(`{"username":"grace","password":"password123"}`)
	resp, err := env.ts.Client().Post(env.ts.URL+"/api/v1/auth/register", "application/json", body)
	r.NoError(err)
	defer resp.Body.Close()
	r.Equal(http.StatusCreated, resp.StatusCode)

	var authResp AuthResponse
	r.NoError(json.NewDecoder(resp.Body).Decode(&authResp))
	r.NotEmpty(authResp.Token)
	r.Equal("grace", authResp.User.Username)

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == env.cfg.AccessCookieName {
			cookie = c
		}
	}
	r.NotNil(cookie)
	r.Equal(authResp.Token, cookie.Value)
	r.True(cookie.HttpOnly)

	// The cookie alone authenticates REST calls.
	req, err := http.NewRequest(http.MethodGet, env.ts.URL+"/api/v1/chats", nil)
	r.NoError(err)
	req.AddCookie(cookie)
	chatsResp, err := env.ts.Client().Do(req)
	r.NoError(err)
	defer chatsResp.Body.Close()
	r.Equal(http.StatusOK, chatsResp.StatusCode)
}

func TestRegisterAndLoginErrors(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "taken")

	cases := []struct {
		name   string
		path   string
		body   any
		status int
	}{
		{name: "duplicate", path: "/api/v1/auth/register", body: RegisterRequest{Username: "taken", Password: "password123"}, status: http.StatusConflict},
		{name: "short password", path: "/api/v1/auth/register", body: RegisterRequest{Username: "newbie", Password: "123"}, status: http.StatusBadRequest},
		{name: "wrong password", path: "/api/v1/auth/login", body: LoginRequest{Username: "taken", Password: "nope-nope"}, status: http.StatusUnauthorized},
		{name: "unknown user", path: "/api/v1/auth/login", body: LoginRequest{Username: "ghost", Password: "password123"}, status: http.StatusUnauthorized},
		{name: "valid login", path: "/api/v1/auth/login", body: LoginRequest{Username: "taken", Password: "password123"}, status: http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status := env.do(t, http.MethodPost, tc.path, "", tc.body, nil)
			require.Equal(t, tc.status, status)
		})
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	require.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/v1/chats", "", nil, nil))
	require.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/v1/chats", "garbage", nil, nil))
}

func TestGroupLifecycleOverREST(t *testing.T) {
	r := require.New(t)
	env := newTestEnv(t)
	adminToken, _ := env.register(t, "admin")
	bobToken, bobID := env.register(t, "bob")
	_, carolID := env.register(t, "carol")
	eveToken, _ := env.register(t, "eve")

	var group proto.ChatResponse
	r.Equal(http.StatusCreated, env.do(t, http.MethodPost, "/api/v1/chats/groups", adminToken,
		CreateGroupRequest{Title: "ops", Participants: []int64{bobID}}, &group))
	base := fmt.Sprintf("/api/v1/chats/%d", group.ID)

	r.Equal(http.StatusForbidden, env.do(t, http.MethodGet, base+"/messages", eveToken, nil, nil), "outsiders are rejected")
	r.Equal(http.StatusNotFound, env.do(t, http.MethodGet, "/api/v1/chats/999/messages", adminToken, nil, nil))
	r.Equal(http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/chats/abc/messages", adminToken, nil, nil))

	r.Equal(http.StatusForbidden, env.do(t, http.MethodPut, base+"/participants", bobToken,
		ParticipantsRequest{Participants: []int64{carolID}}, nil), "members cannot add")

	var updated proto.ChatResponse
	r.Equal(http.StatusOK, env.do(t, http.MethodPut, base+"/participants", adminToken,
		ParticipantsRequest{Participants: []int64{carolID}}, &updated))
	r.Len(updated.Participants, 3)

	r.Equal(http.StatusOK, env.do(t, http.MethodPut, base+"/settings", adminToken,
		SettingsRequest{Title: "ops-2"}, &updated))
	r.Equal("ops-2", updated.Title)

	r.Equal(http.StatusNoContent, env.do(t, http.MethodPatch, base+"/settings", adminToken,
		RoleRequest{UserID: bobID, Role: "admin"}, nil))
	r.Equal(http.StatusBadRequest, env.do(t, http.MethodPatch, base+"/settings", adminToken,
		RoleRequest{UserID: bobID, Role: "owner"}, nil))

	r.Equal(http.StatusOK, env.do(t, http.MethodPatch, base+"/participants", bobToken,
		ParticipantsRequest{Participants: []int64{carolID}}, &updated))
	r.Len(updated.Participants, 2)

	r.Equal(http.StatusNoContent, env.do(t, http.MethodDelete, base+"/leave", bobToken, nil, nil))
	r.Equal(http.StatusNoContent, env.do(t, http.MethodDelete, base, adminToken, nil, nil))

	var list []proto.ChatResponse
	r.Equal(http.StatusOK, env.do(t, http.MethodGet, "/api/v1/chats", adminToken, nil, &list))
	r.Empty(list)
}

func TestMessagesOverREST(t *testing.T) {
	r := require.New(t)
	env := newTestEnv(t)
	aliceToken, _ := env.register(t, "alice")
	bobToken, bobID := env.register(t, "bob")

	var direct DirectChatResponse
	r.Equal(http.StatusOK, env.do(t, http.MethodPut, "/api/v1/chats/direct", aliceToken,
		DirectChatRequest{ReceiverID: bobID}, &direct))
	r.Nil(direct.Message)
	base := fmt.Sprintf("/api/v1/chats/%d/messages", direct.Chat.ID)

	var sent proto.MessageResponse
	r.Equal(http.StatusCreated, env.do(t, http.MethodPost, base, aliceToken, SendMessageRequest{Text: "one"}, &sent))
	r.Equal(http.StatusCreated, env.do(t, http.MethodPost, base, bobToken, SendMessageRequest{Text: "two"}, nil))
	r.Equal(http.StatusBadRequest, env.do(t, http.MethodPost, base, bobToken, SendMessageRequest{}, nil))

	msgPath := fmt.Sprintf("%s/%d", base, sent.ID)
	r.Equal(http.StatusForbidden, env.do(t, http.MethodPatch, msgPath, bobToken, EditMessageRequest{Text: "mine"}, nil))
	r.Equal(http.StatusOK, env.do(t, http.MethodPatch, msgPath, aliceToken, EditMessageRequest{Text: "uno"}, nil))

	r.Equal(http.StatusForbidden, env.do(t, http.MethodDelete, msgPath, bobToken, nil, nil))
	r.Equal(http.StatusOK, env.do(t, http.MethodDelete, msgPath, aliceToken, nil, nil))
	r.Equal(http.StatusGone, env.do(t, http.MethodPatch, msgPath, aliceToken, EditMessageRequest{Text: "again"}, nil))

	var history []proto.MessageResponse
	r.Equal(http.StatusOK, env.do(t, http.MethodGet, base+"?limit=10", bobToken, nil, &history))
	r.Len(history, 2)
	r.Equal("two", history[0].Text)
	r.Empty(history[1].Text)
	r.NotNil(history[1].DeletedBy)

	r.Equal(http.StatusOK, env.do(t, http.MethodGet, fmt.Sprintf("%s?before=%d", base, history[0].ID), bobToken, nil, &history))
	r.Len(history, 1)

	r.Equal(http.StatusBadRequest, env.do(t, http.MethodGet, base+"?limit=x", bobToken, nil, nil))
}

func TestSearchUsersEndpoint(t *testing.T) {
	r := require.New(t)
	env := newTestEnv(t)
	token, _ := env.register(t, "alice")
	env.register(t, "alicia")
	env.register(t, "bob")

	var users []proto.UserResponse
	r.Equal(http.StatusOK, env.do(t, http.MethodGet, "/api/v1/chats/users?s=ali", token, nil, &users))
	r.Len(users, 1)
	r.Equal("alicia", users[0].Username)
}
