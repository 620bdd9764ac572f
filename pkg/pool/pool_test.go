package pool

import "testing"

func TestOutboundBuffer_RentReturnReset(t *testing.T) {
	bufPtr := GetOutboundBuffer()
	if len(*bufPtr) != 0 {
		t.Fatalf("expected zero-length rented buffer, got len %d", len(*bufPtr))
	}
	*bufPtr = append(*bufPtr, 1, 2, 3)
	PutOutboundBuffer(bufPtr)

	again := GetOutboundBuffer()
	if len(*again) != 0 {
		t.Fatalf("expected rented buffer to be reset to zero length, got %d", len(*again))
	}
}

func TestOutboundBuffer_OversizeIsNotPooled(t *testing.T) {
	oversized := make([]byte, 0, OutboundBufferSize*8)
	PutOutboundBuffer(&oversized)
	// Nothing observable to assert beyond "doesn't panic" — discarding an
	// oversize buffer is silent by design.
}

func TestSnapshotSlice_RentReturnClearsEntries(t *testing.T) {
	sPtr := GetSnapshotSlice()
	*sPtr = append(*sPtr, "a", "b", "c")
	PutSnapshotSlice(sPtr)

	again := GetSnapshotSlice()
	if len(*again) != 0 {
		t.Fatalf("expected rented snapshot slice reset to zero length, got %d", len(*again))
	}
}
