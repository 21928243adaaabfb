package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/vovakirdan/chatline-server/internal/core"
	"github.com/vovakirdan/chatline-server/internal/store"
)

// Authenticator adapts the token validator and user store to the socket gateway.
type Authenticator struct {
	service *Service
	users   store.UserStore
}

var (
	_ core.SessionAuthenticator = (*Authenticator)(nil)
	_ core.UserLookup           = (*Authenticator)(nil)
)

// NewAuthenticator builds an Authenticator.
func NewAuthenticator(service *Service, users store.UserStore) *Authenticator {
	return &Authenticator{service: service, users: users}
}

// Verify checks the credential and returns the user id it was issued for.
func (a *Authenticator) Verify(_ context.Context, credential string) (int64, error) {
	claims, err := a.service.ValidateToken(credential)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", core.ErrUnauthenticated, err)
	}
	return claims.UserID, nil
}

// FindUserByID loads the public projection of a user.
func (a *Authenticator) FindUserByID(ctx context.Context, id int64) (*core.Identity, error) {
	user, err := a.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", core.ErrUserNotFound, err)
		}
		return nil, err
	}
	return &core.Identity{
		UserID:    user.ID,
		Username:  user.Username,
		Avatar:    user.Avatar,
		CreatedAt: user.CreatedAt,
	}, nil
}
