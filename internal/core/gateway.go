package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatline-server/internal/metrics"
)

// Gateway drives each connection through Connecting, Active and Closed (or Rejected).
type Gateway struct {
	resolver *IdentityResolver
	registry *Registry
	emitter  *Emitter
	router   *Router
	log      *zerolog.Logger
}

// NewGateway wires the lifecycle manager.
func NewGateway(resolver *IdentityResolver, registry *Registry, emitter *Emitter, router *Router, logger *zerolog.Logger) *Gateway {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Gateway{
		resolver: resolver,
		registry: registry,
		emitter:  emitter,
		router:   router,
		log:      logger,
	}
}

// Authenticate resolves the handshake of a Connecting connection and binds the identity.
// On failure the connection becomes Rejected and nothing is registered.
// Panics raised while decoding the handshake are turned into a rejection.
func (g *Gateway) Authenticate(ctx context.Context, c *Conn, hs Handshake) (identity *Identity, err error) {
	if c.State() != StateConnecting {
		return nil, fmt.Errorf("authenticate in state %s: %w", c.State(), ErrConnNotActive)
	}

	defer func() {
		if rec := recover(); rec != nil {
			identity = nil
			err = fmt.Errorf("%w: handshake panic: %v", ErrUnauthenticated, rec)
		}
		if err != nil {
			g.reject(c, err)
		}
	}()

	identity, err = g.resolver.Resolve(ctx, hs)
	if err != nil {
		return nil, err
	}
	if !c.bindIdentity(identity) {
		return nil, fmt.Errorf("%w: identity already bound", ErrUnauthenticated)
	}
	return identity, nil
}

func (g *Gateway) reject(c *Conn, err error) {
	c.transition(StateConnecting, StateRejected)

	result := "rejected"
	if !errors.Is(err, ErrUnauthenticated) {
		result = "error"
	}
	metrics.HandshakesTotal.WithLabelValues(result).Inc()
	g.log.Info().Err(err).Str("conn_id", c.ID()).Msg("handshake rejected")
}

// Activate moves an authenticated connection to Active, joins its identity room
// and sends the connected event.
func (g *Gateway) Activate(ctx context.Context, c *Conn) error {
	identity := c.Identity()
	if identity == nil {
		return ErrUnauthenticated
	}
	if !c.transition(StateConnecting, StateActive) {
		return fmt.Errorf("activate in state %s: %w", c.State(), ErrConnNotActive)
	}

	metrics.HandshakesTotal.WithLabelValues("accepted").Inc()
	metrics.ConnectionsActive.Inc()

	room := UserRoom(identity.UserID)
	g.registry.Join(c, room)

	_ = g.emitter.Push(ctx, c, Event{
		Kind:    EventConnected,
		Room:    room,
		Payload: ConnectedPayload{ConnID: c.ID(), User: identity},
	})

	g.log.Info().
		Str("conn_id", c.ID()).
		Int64("user_id", identity.UserID).
		Msg("connection active")
	return nil
}

// Connect runs Authenticate followed by Activate.
func (g *Gateway) Connect(ctx context.Context, c *Conn, hs Handshake) (*Identity, error) {
	identity, err := g.Authenticate(ctx, c, hs)
	if err != nil {
		return nil, err
	}
	if err := g.Activate(ctx, c); err != nil {
		return nil, err
	}
	return identity, nil
}

// Handle dispatches an inbound command from an Active connection.
func (g *Gateway) Handle(ctx context.Context, c *Conn, cmd Command) error {
	if c.State() != StateActive {
		return coreError(ErrCodeNotActive, "connection is not active", ErrConnNotActive)
	}
	return g.router.HandleCommand(ctx, c, cmd)
}

// Close tears the connection down and removes it from every room before returning.
// Calling it more than once is safe.
func (g *Gateway) Close(c *Conn) {
	prev := c.close()
	if prev == StateClosed {
		return
	}

	rooms := g.registry.RemoveConnection(c)
	if prev == StateActive {
		metrics.ConnectionsActive.Dec()
	}

	g.log.Info().
		Str("conn_id", c.ID()).
		Int64("user_id", c.UserID()).
		Int("rooms", len(rooms)).
		Str("from", prev.String()).
		Msg("connection closed")
}

// Registry exposes the room registry for read-only inspection.
func (g *Gateway) Registry() *Registry {
	return g.registry
}
