// Package udptransport provides the ancillary UDP capability described by
// the connection model: a single process-wide QUIC listener using the
// datagram extension (unreliable, unordered, no head-of-line blocking)
// multiplexed across every peer that opts in, rather than a listener per
// connection.
package udptransport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
)

// ErrTransportClosed is returned by Send/Receive/DialPeer once Close has
// been called.
var ErrTransportClosed = errors.New("udptransport: transport closed")

// ErrPeerNotFound is returned when a send targets a peer with no registered
// datagram connection.
var ErrPeerNotFound = errors.New("udptransport: unknown peer")

// Transport owns exactly one UDP socket for the whole process. Connections
// register themselves under a peer key (normally the connection
// Identifier's string form) after completing a QUIC handshake, and the
// transport fans datagrams in and out by that key.
type Transport struct {
	listener *quic.Listener

	mu    sync.RWMutex
	peers map[string]*quic.Conn

	closeOnce sync.Once
	closed    chan struct{}
}

// Config configures the shared listener.
type Config struct {
	ListenAddr string
	TLSConfig  *tls.Config
	IdleTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 30 * time.Second
	}
}

// Listen opens the process-wide UDP/QUIC listener. Only one Transport
// should be constructed per process; callers share it across all
// connections that want the ancillary UDP path.
func Listen(cfg Config) (*Transport, error) {
	cfg.setDefaults()

	udpAddr, err := net.ResolveUDPAddr("udp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("udptransport: resolve addr: %w", err)
	}
	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("udptransport: listen udp: %w", err)
	}

	quicConfig := &quic.Config{
		EnableDatagrams: true,
		KeepAlivePeriod: 10 * time.Second,
		MaxIdleTimeout:  cfg.IdleTimeout,
	}

	listener, err := quic.Listen(udpConn, cfg.TLSConfig, quicConfig)
	if err != nil {
		udpConn.Close()
		return nil, fmt.Errorf("udptransport: quic listen: %w", err)
	}

	return &Transport{
		listener: listener,
		peers:    make(map[string]*quic.Conn),
		closed:   make(chan struct{}),
	}, nil
}

// Accept blocks for the next inbound QUIC connection on the shared
// listener. Callers are expected to run Accept in a loop and call Register
// once the peer's identity is known (post-handshake).
func (t *Transport) Accept(ctx context.Context) (*quic.Conn, error) {
	conn, err := t.listener.Accept(ctx)
	if err != nil {
		return nil, fmt.Errorf("udptransport: accept: %w", err)
	}
	return conn, nil
}

// Register binds peerKey to a datagram-capable *quic.Conn so Send can
// target it later. Re-registering a key replaces the prior connection.
func (t *Transport) Register(peerKey string, conn *quic.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peers[peerKey] = conn
}

// Unregister removes a peer's datagram connection, if any.
func (t *Transport) Unregister(peerKey string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.peers, peerKey)
}

// Send writes an unreliable datagram to the named peer.
func (t *Transport) Send(peerKey string, payload []byte) error {
	select {
	case <-t.closed:
		return ErrTransportClosed
	default:
	}

	t.mu.RLock()
	conn, ok := t.peers[peerKey]
	t.mu.RUnlock()
	if !ok {
		return ErrPeerNotFound
	}
	if err := conn.SendDatagram(payload); err != nil {
		return fmt.Errorf("udptransport: send datagram: %w", err)
	}
	return nil
}

// Receive reads the next datagram from conn. It is a thin wrapper so
// callers don't need to import quic-go directly in higher layers.
func (t *Transport) Receive(ctx context.Context, conn *quic.Conn) ([]byte, error) {
	data, err := conn.ReceiveDatagram(ctx)
	if err != nil {
		return nil, fmt.Errorf("udptransport: receive datagram: %w", err)
	}
	return data, nil
}

// Close shuts down the shared listener and every registered peer
// connection.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		t.mu.Lock()
		for key, conn := range t.peers {
			conn.CloseWithError(0, "transport closed")
			delete(t.peers, key)
		}
		t.mu.Unlock()
		err = t.listener.Close()
	})
	return err
}
