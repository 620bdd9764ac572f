// Package hub implements the Connection Hub: the authoritative, concurrent
// registry of live connections, indexed both by session Identifier and by
// an optional case-insensitive username.
package hub

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/shadowmesh/netcore/pkg/connection"
	"github.com/shadowmesh/netcore/pkg/netlog"
)

// Hub is the registry of live Connections. The zero value is not usable;
// construct with New.
type Hub struct {
	log netlog.Logger

	mu       sync.RWMutex
	byID     map[connection.Identifier]*connection.Connection
	idToUser map[connection.Identifier]string
	userToID map[string]connection.Identifier

	count atomic.Int64

	disposed atomic.Bool

	unregisteredMu sync.RWMutex
	onUnregistered []func(c *connection.Connection)
}

// New constructs an empty Hub. log may be nil, in which case logging is a
// no-op.
func New(log netlog.Logger) *Hub {
	if log == nil {
		log = netlog.Nop
	}
	return &Hub{
		log:      log,
		byID:     make(map[connection.Identifier]*connection.Connection),
		idToUser: make(map[connection.Identifier]string),
		userToID: make(map[string]connection.Identifier),
	}
}

// Count returns the current registered connection count.
func (h *Hub) Count() int64 { return h.count.Load() }

// Register inserts c iff its id is not already present. On success it
// subscribes to c's OnClose so the connection self-unregisters, and
// increments the count. Duplicate registration returns false with no side
// effects.
func (h *Hub) Register(c *connection.Connection) bool {
	if h.disposed.Load() {
		return false
	}

	h.mu.Lock()
	if _, exists := h.byID[c.ID()]; exists {
		h.mu.Unlock()
		return false
	}
	h.byID[c.ID()] = c
	h.mu.Unlock()

	h.count.Add(1)
	c.OnClose(func(reason error) {
		h.Unregister(c)
	})
	h.log.Debug("connection registered", netlog.Fields{"id": c.ID().String()})
	return true
}

// Unregister removes c's id mapping and any associated username mapping
// atomically, decrements the count, and notifies subscribers. Returns false
// if c was not registered.
func (h *Hub) Unregister(c *connection.Connection) bool {
	h.mu.Lock()
	if _, exists := h.byID[c.ID()]; !exists {
		h.mu.Unlock()
		return false
	}
	delete(h.byID, c.ID())
	if name, ok := h.idToUser[c.ID()]; ok {
		delete(h.idToUser, c.ID())
		delete(h.userToID, normalizeUsername(name))
	}
	h.mu.Unlock()

	h.count.Add(-1)

	h.unregisteredMu.RLock()
	callbacks := append([]func(*connection.Connection){}, h.onUnregistered...)
	h.unregisteredMu.RUnlock()
	for _, fn := range callbacks {
		fn(c)
	}

	h.log.Debug("connection unregistered", netlog.Fields{"id": c.ID().String()})
	return true
}

// OnUnregistered subscribes fn to fire every time Unregister succeeds. Used
// by higher layers (e.g. presence tracking) that want a hub-wide hook
// rather than per-connection OnClose.
func (h *Hub) OnUnregistered(fn func(c *connection.Connection)) {
	h.unregisteredMu.Lock()
	defer h.unregisteredMu.Unlock()
	h.onUnregistered = append(h.onUnregistered, fn)
}

// AssociateUsername binds name to c's id, case-insensitively. It is a no-op
// if name is blank or the hub is disposed. If c's id was already associated
// with a different username, the old reverse mapping is removed first so a
// username always maps to exactly one id at a time.
func (h *Hub) AssociateUsername(c *connection.Connection, name string) {
	if h.disposed.Load() {
		return
	}
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return
	}
	key := normalizeUsername(trimmed)

	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.idToUser[c.ID()]; ok {
		delete(h.userToID, normalizeUsername(old))
	}
	h.idToUser[c.ID()] = trimmed
	h.userToID[key] = c.ID()
}

// GetConnection looks up a connection by Identifier.
func (h *Hub) GetConnection(id connection.Identifier) (*connection.Connection, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.byID[id]
	return c, ok
}

// GetConnectionBytes looks up a connection by a serialized Identifier.
func (h *Hub) GetConnectionBytes(idBytes []byte) (*connection.Connection, bool) {
	id, err := connection.ParseIdentifier(idBytes)
	if err != nil {
		return nil, false
	}
	return h.GetConnection(id)
}

// GetConnectionByUsername looks up a connection by its associated username,
// case-insensitively.
func (h *Hub) GetConnectionByUsername(name string) (*connection.Connection, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	id, ok := h.userToID[normalizeUsername(name)]
	if !ok {
		return nil, false
	}
	c, ok := h.byID[id]
	return c, ok
}

// GetUsername returns the username associated with id, if any.
func (h *Hub) GetUsername(id connection.Identifier) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	name, ok := h.idToUser[id]
	return name, ok
}

// ListConnections returns a best-effort snapshot of every registered
// connection. Under concurrent register/unregister it may include a few
// just-removed entries or omit a just-added one; it never leaks a pooled
// backing array to the caller.
func (h *Hub) ListConnections() []*connection.Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*connection.Connection, 0, len(h.byID))
	for _, c := range h.byID {
		out = append(out, c)
	}
	return out
}

// SendFunc writes msg to one connection, returning an error on failure.
type SendFunc func(c *connection.Connection, msg []byte) error

// Broadcast fans msg out to every registered connection via send,
// launching one task per connection and awaiting all of them. Individual
// send failures are logged and counted, not propagated; they never cancel
// delivery to other peers. If ctx is cancelled, no further sends are
// scheduled (in-flight sends are not interrupted).
func (h *Hub) Broadcast(ctx context.Context, msg []byte, send SendFunc) (failures int) {
	return h.BroadcastWhere(ctx, msg, send, func(*connection.Connection) bool { return true })
}

// BroadcastWhere is Broadcast restricted to connections matching predicate.
func (h *Hub) BroadcastWhere(ctx context.Context, msg []byte, send SendFunc, predicate func(*connection.Connection) bool) (failures int) {
	targets := h.ListConnections()

	var wg sync.WaitGroup
	var failCount atomic.Int64

	for _, c := range targets {
		if ctx.Err() != nil {
			break
		}
		if !predicate(c) {
			continue
		}

		wg.Add(1)
		go func(c *connection.Connection) {
			defer wg.Done()
			if err := send(c, msg); err != nil {
				failCount.Add(1)
				h.log.Warn("broadcast send failed", netlog.Fields{
					"id":  c.ID().String(),
					"err": err.Error(),
				})
			}
		}(c)
	}

	wg.Wait()
	return int(failCount.Load())
}

// CloseAll disconnects every registered connection in parallel, swallowing
// per-connection errors, then clears all maps and resets the count.
func (h *Hub) CloseAll(reason error) {
	targets := h.ListConnections()

	var wg sync.WaitGroup
	for _, c := range targets {
		wg.Add(1)
		go func(c *connection.Connection) {
			defer wg.Done()
			c.Disconnect(reason)
		}(c)
	}
	wg.Wait()

	h.mu.Lock()
	h.byID = make(map[connection.Identifier]*connection.Connection)
	h.idToUser = make(map[connection.Identifier]string)
	h.userToID = make(map[string]connection.Identifier)
	h.mu.Unlock()

	h.count.Store(0)
}

// Dispose marks the hub disposed, closes every remaining connection, and
// makes further Register/AssociateUsername calls no-ops. Safe to call more
// than once.
func (h *Hub) Dispose() {
	if !h.disposed.CompareAndSwap(false, true) {
		return
	}
	h.CloseAll(errDisposed)
}

var errDisposed = disposedError{}

type disposedError struct{}

func (disposedError) Error() string { return "hub: disposed" }

func normalizeUsername(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
