// Package connection glues a Framed Socket Channel to a session identity,
// cipher state, and the three lifecycle events (OnClose, OnProcess,
// OnPostProcess) the dispatcher and hub subscribe to.
package connection

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shadowmesh/netcore/pkg/netframe"
)

// PermissionLevel is an ordered enumeration; a handler requiring level L
// admits connections with level >= L.
type PermissionLevel int32

const (
	PermissionNone PermissionLevel = iota
	PermissionGuest
	PermissionUser
	PermissionPrivileged
	PermissionAdmin
)

// CipherSuite is an opaque tag forwarded to the external cipher capability
// without interpretation by this package.
type CipherSuite int32

const (
	// CipherChaCha20Poly1305 is the default suite new connections start
	// with.
	CipherChaCha20Poly1305 CipherSuite = iota
	CipherNone
)

// State is the connection lifecycle state machine. Transitions only move
// forward: Open -> Closing -> Closed -> Disposed.
type State int32

const (
	StateOpen State = iota
	StateClosing
	StateClosed
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	case StateDisposed:
		return "DISPOSED"
	default:
		return "UNKNOWN"
	}
}

var (
	// ErrArgumentNull is returned by New when socket is nil.
	ErrArgumentNull = errors.New("connection: socket must not be nil")
	// ErrInvalidSecretLength is returned by SetSecret when the supplied
	// secret is not exactly 32 bytes.
	ErrInvalidSecretLength = errors.New("connection: secret must be 32 bytes")
	// ErrDisposed is returned by Send when the connection is Closed or
	// Disposed.
	ErrDisposed = errors.New("connection: disposed")
	// ErrNetworkError is joined with the channel's error when a Send on an
	// Open or Closing connection fails to write.
	ErrNetworkError = errors.New("connection: network error")
)

// Connection is one live session: an Identifier, the Framed Socket Channel
// that owns its socket, permission/cipher state, and the close lifecycle.
type Connection struct {
	id      Identifier
	channel *netframe.Channel

	connectedAt time.Time

	permission  atomic.Int32
	cipherSuite atomic.Int32

	secretMu sync.Mutex
	secret   atomic.Pointer[[32]byte]

	state atomic.Int32

	closeFired atomic.Bool

	onCloseMu     sync.RWMutex
	onClose       func(reason error)
	onProcess     func(frame *netframe.Frame)
	onPostProcess func()
}

// New takes ownership of channel — constructed by the caller from a fresh
// socket — and allocates an Identifier. OnClose fires when Run's RX loop
// exits or on Close/Disconnect/Dispose. Permission defaults to None and
// cipher suite to ChaCha20Poly1305.
func New(channel *netframe.Channel) (*Connection, error) {
	if channel == nil {
		return nil, ErrArgumentNull
	}

	c := &Connection{
		id:          NewIdentifier(),
		channel:     channel,
		connectedAt: time.Now(),
	}
	c.permission.Store(int32(PermissionNone))
	c.cipherSuite.Store(int32(CipherChaCha20Poly1305))
	c.state.Store(int32(StateOpen))

	return c, nil
}

// ID returns the connection's session Identifier.
func (c *Connection) ID() Identifier { return c.id }

// State returns the current lifecycle state.
func (c *Connection) State() State { return State(c.state.Load()) }

// UptimeMillis returns milliseconds elapsed since construction.
func (c *Connection) UptimeMillis() int64 {
	return time.Since(c.connectedAt).Milliseconds()
}

// LastPingMillis delegates to the underlying channel's RX tracking.
func (c *Connection) LastPingMillis() int64 {
	return c.channel.LastPingMillis()
}

// RemoteAddr returns the remote endpoint of the connection's socket, used
// by the rate limiter to derive a per-peer key.
func (c *Connection) RemoteAddr() net.Addr {
	return c.channel.RemoteAddr()
}

// Permission returns the connection's current permission level.
func (c *Connection) Permission() PermissionLevel {
	return PermissionLevel(c.permission.Load())
}

// SetPermission updates the connection's permission level.
func (c *Connection) SetPermission(level PermissionLevel) {
	c.permission.Store(int32(level))
}

// CipherSuite returns the connection's current cipher suite tag.
func (c *Connection) CipherSuite() CipherSuite {
	return CipherSuite(c.cipherSuite.Load())
}

// SetCipherSuite updates the connection's cipher suite tag.
func (c *Connection) SetCipherSuite(suite CipherSuite) {
	c.cipherSuite.Store(int32(suite))
}

// Secret returns the current 32-byte symmetric secret, or nil if none has
// been set. The returned slice is a private copy; mutating it does not
// affect the connection's stored secret.
func (c *Connection) Secret() []byte {
	p := c.secret.Load()
	if p == nil {
		return nil
	}
	out := make([]byte, 32)
	copy(out, p[:])
	return out
}

// SetSecret replaces the connection's secret under the internal lock. It
// fails with ErrInvalidSecretLength if secret is not exactly 32 bytes. The
// swap is atomic with respect to concurrent Secret() readers: a reader
// either observes the old or the new buffer in full, never a partial write.
func (c *Connection) SetSecret(secret []byte) error {
	if len(secret) != 32 {
		return ErrInvalidSecretLength
	}

	var buf [32]byte
	copy(buf[:], secret)

	c.secretMu.Lock()
	defer c.secretMu.Unlock()
	c.secret.Store(&buf)
	return nil
}

// OnClose registers the callback fired at most once when the connection
// transitions to Closed. Replaces any previously registered callback.
func (c *Connection) OnClose(fn func(reason error)) {
	c.onCloseMu.Lock()
	defer c.onCloseMu.Unlock()
	c.onClose = fn
}

// OnProcess registers the callback fired once per framed packet the
// channel delivers.
func (c *Connection) OnProcess(fn func(frame *netframe.Frame)) {
	c.onCloseMu.Lock()
	defer c.onCloseMu.Unlock()
	c.onProcess = fn
}

// OnPostProcess registers the callback fired after a successful outbound
// send.
func (c *Connection) OnPostProcess(fn func()) {
	c.onCloseMu.Lock()
	defer c.onCloseMu.Unlock()
	c.onPostProcess = fn
}

// Run starts the channel's RX loop and wires its frame/disconnect events
// into OnProcess/OnClose. It blocks until the channel's RX loop exits;
// callers typically invoke it with `go conn.Run()`.
func (c *Connection) Run() {
	go func() {
		for frame := range c.channel.Incoming() {
			c.onCloseMu.RLock()
			cb := c.onProcess
			c.onCloseMu.RUnlock()
			if cb != nil {
				cb(frame)
			}
		}
	}()
	c.channel.Run()
	c.transitionToClosed(nil)
}

// Send writes payload through the channel and fires OnPostProcess on
// success. It fails with ErrDisposed if the connection is Closed or
// Disposed, and wraps channel write failures as ErrNetworkError.
func (c *Connection) Send(payload []byte) error {
	switch c.State() {
	case StateClosed, StateDisposed:
		return ErrDisposed
	}

	if err := c.channel.Send(payload); err != nil {
		return errors.Join(ErrNetworkError, err)
	}

	c.onCloseMu.RLock()
	cb := c.onPostProcess
	c.onCloseMu.RUnlock()
	if cb != nil {
		cb()
	}
	return nil
}

// Close transitions the connection to Closed and closes the channel. The
// force flag is not consulted: both forms close the socket immediately, and
// an outbound frame that is in the middle of being written is not drained
// first. Close is idempotent: OnClose fires at most once regardless of how many
// times or from how many goroutines Close is called.
func (c *Connection) Close(force bool) {
	c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing))
	_ = c.channel.Close()
	c.transitionToClosed(nil)
}

// Disconnect is equivalent to Close(force=true).
func (c *Connection) Disconnect(reason error) {
	c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing))
	_ = c.channel.Close()
	c.transitionToClosed(reason)
}

func (c *Connection) transitionToClosed(reason error) {
	c.state.CompareAndSwap(int32(StateClosing), int32(StateClosed))
	c.state.CompareAndSwap(int32(StateOpen), int32(StateClosed))

	if c.closeFired.CompareAndSwap(false, true) {
		c.onCloseMu.RLock()
		cb := c.onClose
		c.onCloseMu.RUnlock()
		if cb != nil {
			cb(reason)
		}
	}
}

// Dispose idempotently cancels pending operations, disposes the channel
// (already disposed by Close, but Dispose is safe to call on its own), and
// marks the connection Disposed. Calling Dispose on an already-Disposed
// connection is a no-op.
func (c *Connection) Dispose() {
	if State(c.state.Load()) == StateDisposed {
		return
	}
	_ = c.channel.Close()
	c.transitionToClosed(nil)
	c.state.Store(int32(StateDisposed))
}
