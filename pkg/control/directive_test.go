package control

import "testing"

func TestEncodeDecode_RoundTrip(t *testing.T) {
	d := Directive{
		ControlType: ControlTypeFail,
		Reason:      ReasonRateLimited,
		Action:      ActionRetry,
		Flags:       FlagIsTransient,
		SequenceId:  0xdeadbeef,
		Arg0:        1,
		Arg1:        2,
		Arg2:        3,
	}

	buf := Encode(d)
	if len(buf) != Size {
		t.Fatalf("expected %d bytes, got %d", Size, len(buf))
	}

	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != d {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, d)
	}
}

func TestEncode_IsLittleEndian(t *testing.T) {
	d := Directive{Reason: 0x0102}
	buf := Encode(d)
	// Reason occupies bytes [1:3]; little-endian means the low byte comes
	// first.
	if buf[1] != 0x02 || buf[2] != 0x01 {
		t.Fatalf("expected little-endian reason encoding, got %x %x", buf[1], buf[2])
	}
}

func TestDecode_ShortBuffer(t *testing.T) {
	if _, err := Decode(make([]byte, Size-1)); err != ErrShortBuffer {
		t.Fatalf("expected ErrShortBuffer, got %v", err)
	}
}

func TestFail_EchoesSequenceId(t *testing.T) {
	d := Fail(ReasonTimeout, ActionRetry, FlagIsTransient, 42)
	if d.ControlType != ControlTypeFail {
		t.Fatalf("expected ControlTypeFail, got %v", d.ControlType)
	}
	if d.SequenceId != 42 {
		t.Fatalf("expected sequenceId 42, got %d", d.SequenceId)
	}
}
