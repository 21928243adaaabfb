package core

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatline-server/internal/metrics"
)

// Registry maps room keys to live connections.
// A single RWMutex guards both indexes; no I/O happens while it is held.
type Registry struct {
	mu     sync.RWMutex
	byRoom map[RoomKey]map[*Conn]struct{}
	byConn map[*Conn]map[RoomKey]struct{}

	emitter *Emitter
	log     *zerolog.Logger
}

// NewRegistry builds an empty registry that delivers through emitter.
func NewRegistry(emitter *Emitter, logger *zerolog.Logger) *Registry {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Registry{
		byRoom:  make(map[RoomKey]map[*Conn]struct{}),
		byConn:  make(map[*Conn]map[RoomKey]struct{}),
		emitter: emitter,
		log:     logger,
	}
}

// Join adds c to room key. It is idempotent and returns true only when c was newly added.
// Connections that are not Active are ignored, so a join racing with Close cannot leak.
func (r *Registry) Join(c *Conn, key RoomKey) bool {
	if c == nil || key == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c.State() != StateActive {
		return false
	}

	conns, ok := r.byRoom[key]
	if !ok {
		conns = make(map[*Conn]struct{})
		r.byRoom[key] = conns
	}
	if _, exists := conns[c]; exists {
		return false
	}
	conns[c] = struct{}{}

	rooms, ok := r.byConn[c]
	if !ok {
		rooms = make(map[RoomKey]struct{})
		r.byConn[c] = rooms
	}
	rooms[key] = struct{}{}

	metrics.RoomsActive.Set(float64(len(r.byRoom)))
	return true
}

// Leave removes c from room key. Returns true if it was a member.
func (r *Registry) Leave(c *Conn, key RoomKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.removeLocked(c, key) {
		return false
	}
	if rooms := r.byConn[c]; len(rooms) == 0 {
		delete(r.byConn, c)
	}
	metrics.RoomsActive.Set(float64(len(r.byRoom)))
	return true
}

// RemoveConnection drops c from every room it joined and returns those rooms.
func (r *Registry) RemoveConnection(c *Conn) []RoomKey {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms := r.byConn[c]
	removed := make([]RoomKey, 0, len(rooms))
	for key := range rooms {
		if r.removeLocked(c, key) {
			removed = append(removed, key)
		}
	}
	delete(r.byConn, c)

	metrics.RoomsActive.Set(float64(len(r.byRoom)))
	return removed
}

func (r *Registry) removeLocked(c *Conn, key RoomKey) bool {
	conns, ok := r.byRoom[key]
	if !ok {
		return false
	}
	if _, exists := conns[c]; !exists {
		return false
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(r.byRoom, key)
	}
	if rooms, ok := r.byConn[c]; ok {
		delete(rooms, key)
	}
	return true
}

// Deliver pushes ev to every connection in room key except the given one.
// The member set is snapshotted first; connections joining afterwards miss this event.
// It returns the number of successful pushes, or ErrTargetUnreachable for an empty room.
func (r *Registry) Deliver(ctx context.Context, key RoomKey, ev Event, except *Conn) (int, error) {
	targets := r.snapshot(key, except)
	if len(targets) == 0 {
		return 0, ErrTargetUnreachable
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.FanoutDuration)

	ev.Room = key
	delivered := 0
	for _, c := range targets {
		// Push logs its own failures; one dead socket does not stop the rest.
		if err := r.emitter.Push(ctx, c, ev); err == nil {
			delivered++
		}
	}

	r.log.Debug().
		Str("room", key.String()).
		Str("event", string(ev.Kind)).
		Int("targets", len(targets)).
		Int("delivered", delivered).
		Msg("event delivered")
	return delivered, nil
}

func (r *Registry) snapshot(key RoomKey, except *Conn) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.byRoom[key]
	targets := make([]*Conn, 0, len(conns))
	for c := range conns {
		if c == except {
			continue
		}
		targets = append(targets, c)
	}
	return targets
}

// Members returns the connections currently in room key.
func (r *Registry) Members(key RoomKey) []*Conn {
	return r.snapshot(key, nil)
}

// RoomsOf returns the rooms c is currently in.
func (r *Registry) RoomsOf(c *Conn) []RoomKey {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]RoomKey, 0, len(r.byConn[c]))
	for key := range r.byConn[c] {
		rooms = append(rooms, key)
	}
	return rooms
}

// Contains reports whether c is in room key.
func (r *Registry) Contains(c *Conn, key RoomKey) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byRoom[key][c]
	return ok
}

// RoomCount returns the number of non-empty rooms.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byRoom)
}

// ConnCount returns the number of connections in at least one room.
func (r *Registry) ConnCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}
