package core

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
)

// ConnState is the lifecycle state of a connection.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateActive
	StateRejected
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateRejected:
		return "rejected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Transport pushes events to one physical socket.
// Send must not block past ctx and must fail, not panic, once the socket is gone.
type Transport interface {
	Send(ctx context.Context, ev Event) error
}

// Conn is one live client socket as seen by the core.
type Conn struct {
	id        string
	transport Transport
	state     atomic.Int32
	identity  atomic.Pointer[Identity]
}

// NewConn wraps a transport in a connection in the Connecting state.
func NewConn(t Transport) *Conn {
	return &Conn{
		id:        uuid.NewString(),
		transport: t,
	}
}

// ID returns the transport-assigned connection id.
func (c *Conn) ID() string {
	return c.id
}

// State returns the current lifecycle state.
func (c *Conn) State() ConnState {
	return ConnState(c.state.Load())
}

// Identity returns the bound user, or nil before authentication.
func (c *Conn) Identity() *Identity {
	return c.identity.Load()
}

// UserID returns the bound user id, or 0 before authentication.
func (c *Conn) UserID() int64 {
	if id := c.identity.Load(); id != nil {
		return id.UserID
	}
	return 0
}

func (c *Conn) transition(from, to ConnState) bool {
	return c.state.CompareAndSwap(int32(from), int32(to))
}

// close moves the connection to Closed and returns the previous state.
func (c *Conn) close() ConnState {
	return ConnState(c.state.Swap(int32(StateClosed)))
}

// bindIdentity sets the user once; later calls are ignored.
func (c *Conn) bindIdentity(identity *Identity) bool {
	return c.identity.CompareAndSwap(nil, identity)
}
