package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type failingUsers struct{ err error }

func (f failingUsers) FindUserByID(context.Context, int64) (*Identity, error) {
	return nil, f.err
}

func TestResolvePrefersCookie(t *testing.T) {
	r := require.New(t)

	auth := fakeAuth{"cookie-token": 1, "query-token": 2}
	users := fakeUsers{
		1: {UserID: 1, Username: "alice"},
		2: {UserID: 2, Username: "bob"},
	}
	resolver := NewIdentityResolver(auth, users, "accessToken")

	identity, err := resolver.Resolve(context.Background(), Handshake{
		Cookie: "theme=dark; accessToken=cookie-token",
		Token:  "query-token",
	})
	r.NoError(err)
	r.Equal(int64(1), identity.UserID)
}

func TestResolveFallsBackToToken(t *testing.T) {
	r := require.New(t)

	auth := fakeAuth{"query-token": 2}
	users := fakeUsers{2: {UserID: 2, Username: "bob"}}
	resolver := NewIdentityResolver(auth, users, "accessToken")

	identity, err := resolver.Resolve(context.Background(), Handshake{
		Cookie: "theme=dark",
		Token:  "  query-token ",
	})
	r.NoError(err)
	r.Equal("bob", identity.Username)
}

func TestResolveRejections(t *testing.T) {
	auth := fakeAuth{"valid": 1, "orphan": 9}
	users := fakeUsers{1: {UserID: 1}}
	resolver := NewIdentityResolver(auth, users, "accessToken")

	cases := []struct {
		name string
		hs   Handshake
	}{
		{name: "no credential", hs: Handshake{}},
		{name: "garbage cookie", hs: Handshake{Cookie: "accessToken=nope"}},
		{name: "garbage token", hs: Handshake{Token: "nope"}},
		{name: "deleted user", hs: Handshake{Token: "orphan"}},
		{name: "cookie wins even when invalid", hs: Handshake{Cookie: "accessToken=nope", Token: "valid"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := resolver.Resolve(context.Background(), tc.hs)
			require.ErrorIs(t, err, ErrUnauthenticated)
		})
	}
}

func TestResolveStoreFailureIsNotAuthError(t *testing.T) {
	r := require.New(t)

	boom := errors.New("database is locked")
	resolver := NewIdentityResolver(fakeAuth{"t": 1}, failingUsers{err: boom}, "accessToken")

	_, err := resolver.Resolve(context.Background(), Handshake{Token: "t"})
	r.ErrorIs(err, boom)
	r.NotErrorIs(err, ErrUnauthenticated)
}

func TestCookieValue(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{header: "", want: ""},
		{header: "accessToken=abc", want: "abc"},
		{header: "a=1; accessToken=abc; b=2", want: "abc"},
		{header: "accessTokenX=abc", want: ""},
		{header: "garbage; accessToken=xyz", want: "xyz"},
	}

	for _, tc := range cases {
		if got := CookieValue(tc.header, "accessToken"); got != tc.want {
			t.Errorf("CookieValue(%q) = %q, want %q", tc.header, got, tc.want)
		}
	}
}
