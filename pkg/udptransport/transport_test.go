package udptransport

import (
	"testing"

	"github.com/quic-go/quic-go"
)

func newBareTransport() *Transport {
	return &Transport{
		peers:  make(map[string]*quic.Conn),
		closed: make(chan struct{}),
	}
}

func TestTransport_SendUnknownPeer(t *testing.T) {
	tr := newBareTransport()
	if err := tr.Send("nobody", []byte("x")); err != ErrPeerNotFound {
		t.Fatalf("expected ErrPeerNotFound, got %v", err)
	}
}

func TestTransport_SendAfterCloseFails(t *testing.T) {
	tr := newBareTransport()
	close(tr.closed)
	if err := tr.Send("anyone", []byte("x")); err != ErrTransportClosed {
		t.Fatalf("expected ErrTransportClosed, got %v", err)
	}
}

func TestTransport_UnregisterUnknownPeerIsNoop(t *testing.T) {
	tr := newBareTransport()
	tr.Unregister("never-registered")
}

func TestTransport_RegisterThenUnregisterRemovesPeer(t *testing.T) {
	tr := newBareTransport()
	tr.Register("peer-a", nil)

	tr.mu.RLock()
	_, ok := tr.peers["peer-a"]
	tr.mu.RUnlock()
	if !ok {
		t.Fatal("expected peer-a to be registered")
	}

	tr.Unregister("peer-a")

	tr.mu.RLock()
	_, ok = tr.peers["peer-a"]
	tr.mu.RUnlock()
	if ok {
		t.Fatal("expected peer-a to be removed")
	}
}
