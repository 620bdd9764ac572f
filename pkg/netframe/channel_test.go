package netframe

import (
	"encoding/binary"
	"net"
	"testing"
	"time"
)

func pipePair(t *testing.T) (client, server net.Conn) {
	t.Helper()
	client, server = net.Pipe()
	return
}

func encodeFrame(payload []byte) []byte {
	buf := make([]byte, lengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[lengthPrefixSize:], payload)
	return buf
}

func TestChannel_DeliversWholeFrame(t *testing.T) {
	client, server := pipePair(t)
	defer client.Close()

	ch := New(server, Options{})
	go ch.Run()

	payload := []byte{0x00, 0x01, 'h', 'i'}
	go func() {
		_, _ = client.Write(encodeFrame(payload))
	}()

	select {
	case frame, ok := <-ch.Incoming():
		if !ok {
			t.Fatal("incoming channel closed unexpectedly")
		}
		if string(frame.Payload) != string(payload) {
			t.Fatalf("unexpected payload: %x", frame.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
}

func TestChannel_OversizeFrameFailsChannel(t *testing.T) {
	client, server := pipePair(t)
	defer client.Close()

	ch := New(server, Options{MaxFrameSize: 8})

	disconnected := make(chan error, 1)
	ch.opts.OnDisconnected = func(reason error) { disconnected <- reason }
	go ch.Run()

	lengthBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lengthBuf, 9999)
	go func() {
		_, _ = client.Write(lengthBuf)
	}()

	select {
	case reason := <-disconnected:
		if reason != ErrFramingError {
			t.Fatalf("expected ErrFramingError, got %v", reason)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for disconnect")
	}
}

func TestChannel_CleanEOFBetweenFramesIsNilReason(t *testing.T) {
	client, server := pipePair(t)

	ch := New(server, Options{})
	disconnected := make(chan error, 1)
	ch.opts.OnDisconnected = func(reason error) { disconnected <- reason }
	go ch.Run()

	client.Close()

	select {
	case reason := <-disconnected:
		if reason != nil {
			t.Fatalf("expected nil reason on clean EOF, got %v", reason)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for disconnect")
	}
}

func TestChannel_TruncatedFrameMidPayload(t *testing.T) {
	client, server := pipePair(t)

	ch := New(server, Options{})
	disconnected := make(chan error, 1)
	ch.opts.OnDisconnected = func(reason error) { disconnected <- reason }
	go ch.Run()

	lengthBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lengthBuf, 10)
	go func() {
		_, _ = client.Write(lengthBuf)
		_, _ = client.Write([]byte{0x01, 0x02}) // only 2 of 10 promised bytes
		client.Close()
	}()

	select {
	case reason := <-disconnected:
		if reason != ErrTruncatedFrame {
			t.Fatalf("expected ErrTruncatedFrame, got %v", reason)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for disconnect")
	}
}

func TestChannel_Send(t *testing.T) {
	client, server := pipePair(t)
	defer client.Close()
	defer server.Close()

	ch := New(server, Options{})

	payload := []byte("hello, wire")
	errCh := make(chan error, 1)
	go func() { errCh <- ch.Send(payload) }()

	lengthBuf := make([]byte, 4)
	if _, err := readFull(client, lengthBuf); err != nil {
		t.Fatalf("read length prefix: %v", err)
	}
	n := binary.BigEndian.Uint32(lengthBuf)
	if int(n) != len(payload) {
		t.Fatalf("unexpected length prefix: %d", n)
	}
	got := make([]byte, n)
	if _, err := readFull(client, got); err != nil {
		t.Fatalf("read payload: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("payload mismatch: %q", got)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestChannel_DropOldestPolicyIncrementsCounter(t *testing.T) {
	client, server := pipePair(t)
	defer client.Close()

	ch := New(server, Options{QueueCapacity: 1, Backpressure: DropOldest})
	go ch.Run()

	go func() {
		_, _ = client.Write(encodeFrame([]byte{0x00, 0x01}))
		_, _ = client.Write(encodeFrame([]byte{0x00, 0x02}))
		_, _ = client.Write(encodeFrame([]byte{0x00, 0x03}))
	}()

	deadline := time.After(2 * time.Second)
	for ch.DroppedCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for a drop")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func readFull(r net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
