package hub

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/shadowmesh/netcore/pkg/connection"
	"github.com/shadowmesh/netcore/pkg/netframe"
)

func newTestConn(t *testing.T) (*connection.Connection, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	ch := netframe.New(server, netframe.Options{})
	c, err := connection.New(ch)
	if err != nil {
		t.Fatalf("connection.New: %v", err)
	}
	return c, client
}

func TestRegister_SucceedsOnce(t *testing.T) {
	h := New(nil)
	c, client := newTestConn(t)
	defer client.Close()

	if !h.Register(c) {
		t.Fatal("expected first registration to succeed")
	}
	if h.Register(c) {
		t.Fatal("expected duplicate registration to fail")
	}
	if h.Count() != 1 {
		t.Fatalf("expected count 1, got %d", h.Count())
	}
	got, ok := h.GetConnection(c.ID())
	if !ok || got != c {
		t.Fatal("expected GetConnection to return the registered connection")
	}
}

func TestUnregister_ViaOnClose(t *testing.T) {
	h := New(nil)
	c, client := newTestConn(t)
	defer client.Close()

	h.Register(c)
	c.Close(true)

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := h.GetConnection(c.ID()); !ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for self-unregistration via OnClose")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if h.Count() != 0 {
		t.Fatalf("expected count 0 after unregister, got %d", h.Count())
	}
}

func TestAssociateUsername_OverwritesReverseMapping(t *testing.T) {
	h := New(nil)
	c, client := newTestConn(t)
	defer client.Close()
	h.Register(c)

	h.AssociateUsername(c, "Alice")
	got, ok := h.GetConnectionByUsername("alice")
	if !ok || got != c {
		t.Fatal("expected case-insensitive username lookup to find the connection")
	}

	h.AssociateUsername(c, "Bob")
	if _, ok := h.GetConnectionByUsername("alice"); ok {
		t.Fatal("expected old username mapping to be removed")
	}
	got, ok = h.GetConnectionByUsername("bob")
	if !ok || got != c {
		t.Fatal("expected new username mapping to resolve")
	}
}

func TestAssociateUsername_BlankIsNoop(t *testing.T) {
	h := New(nil)
	c, client := newTestConn(t)
	defer client.Close()
	h.Register(c)

	h.AssociateUsername(c, "   ")
	if _, ok := h.GetUsername(c.ID()); ok {
		t.Fatal("expected blank username to be a no-op")
	}
}

func TestListConnections_ReturnsSnapshot(t *testing.T) {
	h := New(nil)
	c1, client1 := newTestConn(t)
	defer client1.Close()
	c2, client2 := newTestConn(t)
	defer client2.Close()

	h.Register(c1)
	h.Register(c2)

	snapshot := h.ListConnections()
	if len(snapshot) != 2 {
		t.Fatalf("expected 2 connections in snapshot, got %d", len(snapshot))
	}
}

func TestBroadcast_IndividualFailureDoesNotStopOthers(t *testing.T) {
	h := New(nil)
	c1, client1 := newTestConn(t)
	defer client1.Close()
	c2, client2 := newTestConn(t)
	defer client2.Close()
	h.Register(c1)
	h.Register(c2)

	delivered := make(chan *connection.Connection, 2)
	failures := h.Broadcast(context.Background(), []byte("hi"), func(c *connection.Connection, msg []byte) error {
		if c == c1 {
			return errors.New("boom")
		}
		delivered <- c
		return nil
	})

	if failures != 1 {
		t.Fatalf("expected 1 failure, got %d", failures)
	}
	select {
	case got := <-delivered:
		if got != c2 {
			t.Fatal("expected c2 to receive the broadcast despite c1's failure")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery to c2")
	}
}

func TestCloseAll_ClearsRegistry(t *testing.T) {
	h := New(nil)
	c1, client1 := newTestConn(t)
	defer client1.Close()
	c2, client2 := newTestConn(t)
	defer client2.Close()
	h.Register(c1)
	h.Register(c2)

	h.CloseAll(errors.New("shutdown"))

	if h.Count() != 0 {
		t.Fatalf("expected count 0 after CloseAll, got %d", h.Count())
	}
	if len(h.ListConnections()) != 0 {
		t.Fatal("expected empty snapshot after CloseAll")
	}
}

func TestDispose_IsIdempotentAndRejectsFurtherRegistration(t *testing.T) {
	h := New(nil)
	c, client := newTestConn(t)
	defer client.Close()
	h.Register(c)

	h.Dispose()
	h.Dispose()

	other, client2 := newTestConn(t)
	defer client2.Close()
	if h.Register(other) {
		t.Fatal("expected Register to fail after Dispose")
	}
}
