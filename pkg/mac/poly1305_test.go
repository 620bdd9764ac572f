package mac

import (
	"bytes"
	"testing"
)

// RFC 8439 §2.5.2 test vector.
func TestPoly1305_RFC8439Vector(t *testing.T) {
	key := mustHex(t, "85d6be7857556d337f4452fe42d506a8")
	key = append(key, mustHex(t, "0103808afb0db2fd4abff6af4149f51b")...)

	msg := []byte("Cryptographic Forum Research Group")
	want := mustHex(t, "a8061dc1305136c6c22b8baf0c0127a9")

	p, err := NewPoly1305(key)
	if err != nil {
		t.Fatalf("NewPoly1305: %v", err)
	}
	defer p.Dispose()

	tag, err := p.Compute(msg)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if !bytes.Equal(tag[:], want) {
		t.Fatalf("poly1305 tag mismatch: got %x want %x", tag, want)
	}
}

func TestPoly1305_InvalidKeySize(t *testing.T) {
	if _, err := NewPoly1305(make([]byte, 31)); err != ErrInvalidKeySize {
		t.Fatalf("expected ErrInvalidKeySize, got %v", err)
	}
	if _, err := NewPoly1305(make([]byte, 33)); err != ErrInvalidKeySize {
		t.Fatalf("expected ErrInvalidKeySize, got %v", err)
	}
}

func TestPoly1305_VerifyRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x11}, 32)
	msg := []byte("arbitrary message that is not a multiple of sixteen bytes long")

	p, err := NewPoly1305(key)
	if err != nil {
		t.Fatalf("NewPoly1305: %v", err)
	}
	defer p.Dispose()

	tag, err := p.Compute(msg)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	ok, err := p.Verify(msg, tag[:])
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatal("expected Verify to succeed on matching tag")
	}

	tampered := append([]byte(nil), tag[:]...)
	tampered[0] ^= 0xff
	ok, err = p.Verify(msg, tampered)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Fatal("expected Verify to fail on tampered tag")
	}
}

func TestPoly1305_EmptyMessage(t *testing.T) {
	key := bytes.Repeat([]byte{0x00}, 32)
	p, err := NewPoly1305(key)
	if err != nil {
		t.Fatalf("NewPoly1305: %v", err)
	}
	defer p.Dispose()

	tag, err := p.Compute(nil)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	// With an all-zero key, s = 0 and r = 0, so the tag of any message is 0.
	if !bytes.Equal(tag[:], make([]byte, 16)) {
		t.Fatalf("expected all-zero tag for all-zero key, got %x", tag)
	}
}

func TestPoly1305_ExactBlockMultiple(t *testing.T) {
	key := bytes.Repeat([]byte{0x07}, 32)
	msg := bytes.Repeat([]byte{0xab}, 32) // exactly two 16-byte blocks

	p, err := NewPoly1305(key)
	if err != nil {
		t.Fatalf("NewPoly1305: %v", err)
	}
	defer p.Dispose()

	if _, err := p.Compute(msg); err != nil {
		t.Fatalf("Compute: %v", err)
	}
}

func TestPoly1305_DisposeThenComputeFails(t *testing.T) {
	p, err := NewPoly1305(bytes.Repeat([]byte{0x01}, 32))
	if err != nil {
		t.Fatalf("NewPoly1305: %v", err)
	}
	p.Dispose()
	p.Dispose() // idempotent

	if _, err := p.Compute([]byte("x")); err != ErrDisposed {
		t.Fatalf("expected ErrDisposed, got %v", err)
	}
}

func TestPoly1305_ClampZeroesReservedBits(t *testing.T) {
	// A key whose r-half is all 0xff must be clamped down to the RFC 8439
	// reserved-bit pattern before use; verify indirectly by checking two
	// keys that differ only in the reserved bits produce the same tag.
	rHigh := bytes.Repeat([]byte{0xff}, 16)
	var rLow [16]byte
	copy(rLow[:], rHigh)
	clampR(&rLow)

	s := bytes.Repeat([]byte{0x22}, 16)
	keyHigh := append(append([]byte{}, rHigh...), s...)
	keyLow := append(append([]byte{}, rLow[:]...), s...)

	msg := []byte("clamp-equivalence-check")

	p1, err := NewPoly1305(keyHigh)
	if err != nil {
		t.Fatalf("NewPoly1305: %v", err)
	}
	defer p1.Dispose()
	t1, err := p1.Compute(msg)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	p2, err := NewPoly1305(keyLow)
	if err != nil {
		t.Fatalf("NewPoly1305: %v", err)
	}
	defer p2.Dispose()
	t2, err := p2.Compute(msg)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	if !bytes.Equal(t1[:], t2[:]) {
		t.Fatalf("clamping did not normalise reserved bits: %x vs %x", t1, t2)
	}
}
