package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// SessionAuthenticator verifies a bearer credential.
type SessionAuthenticator interface {
	Verify(ctx context.Context, credential string) (userID int64, err error)
}

// UserLookup loads the public projection of a user.
// Implementations return an error wrapping ErrUserNotFound for missing users.
type UserLookup interface {
	FindUserByID(ctx context.Context, id int64) (*Identity, error)
}

// Handshake carries the credentials presented when a socket connects.
type Handshake struct {
	// Cookie is the raw Cookie header.
	Cookie string
	// Token is the auxiliary credential, used only when the cookie has none.
	Token string
}

// IdentityResolver turns a handshake into a verified Identity.
type IdentityResolver struct {
	auth       SessionAuthenticator
	users      UserLookup
	cookieName string
}

// NewIdentityResolver builds a resolver reading the access token from cookieName.
func NewIdentityResolver(auth SessionAuthenticator, users UserLookup, cookieName string) *IdentityResolver {
	return &IdentityResolver{auth: auth, users: users, cookieName: cookieName}
}

// Resolve verifies the handshake credential and looks the user up.
// Every rejection wraps ErrUnauthenticated; store failures are returned as-is.
func (r *IdentityResolver) Resolve(ctx context.Context, hs Handshake) (*Identity, error) {
	credential := r.credential(hs)
	if credential == "" {
		return nil, fmt.Errorf("%w: no credential", ErrUnauthenticated)
	}

	userID, err := r.auth.Verify(ctx, credential)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	identity, err := r.users.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
		}
		return nil, fmt.Errorf("lookup user %d: %w", userID, err)
	}
	if identity == nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, ErrUserNotFound)
	}
	return identity, nil
}

// credential prefers the cookie-carried token over the auxiliary one.
func (r *IdentityResolver) credential(hs Handshake) string {
	if v := CookieValue(hs.Cookie, r.cookieName); v != "" {
		return v
	}
	return strings.TrimSpace(hs.Token)
}

// CookieValue extracts one cookie from a raw Cookie header, skipping malformed pairs.
func CookieValue(header, name string) string {
	if header == "" || name == "" {
		return ""
	}
	req := http.Request{Header: http.Header{"Cookie": {header}}}
	c, err := req.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
