// Package control encodes the outbound control-fail directive: the
// bit-exact wire message the dispatcher sends back to a peer whenever a
// dispatch attempt is rejected or a handler fails.
package control

import (
	"encoding/binary"
	"errors"
)

// ErrShortBuffer is returned by Decode when buf is smaller than Size.
var ErrShortBuffer = errors.New("control: buffer too short for a directive")

// Size is the fixed wire size of a Directive in bytes:
// controlType(1) + reason(2) + action(2) + flags(2) + sequenceId(4) +
// arg0(4) + arg1(4) + arg2(2).
const Size = 1 + 2 + 2 + 2 + 4 + 4 + 4 + 2

// ControlType identifies the single directive kind this package emits
// today; it is a byte field so the wire format can grow new directive
// kinds without breaking Size.
type ControlType uint8

const ControlTypeFail ControlType = 0x01

// Reason codes, authoritative per the exception-classification table.
type Reason uint16

const (
	ReasonNone                 Reason = 0
	ReasonTimeout              Reason = 1
	ReasonRequestInvalid       Reason = 2
	ReasonAccountLocked        Reason = 3
	ReasonOperationUnsupported Reason = 4
	ReasonNetworkError         Reason = 5
	ReasonInternalError        Reason = 6
	ReasonRateLimited          Reason = 7
)

// Action codes.
type Action uint16

const (
	ActionNone        Action = 0
	ActionRetry       Action = 1
	ActionFixAndRetry Action = 2
)

// Flag bits, combinable.
type Flags uint16

const (
	FlagNone        Flags = 0
	FlagIsTransient Flags = 1 << 0
)

// Directive is the control-fail outbound message. SequenceId echoes the
// inbound packet's sequence id when one was present, or 0 for a
// server-initiated directive with no correlation.
type Directive struct {
	ControlType ControlType
	Reason      Reason
	Action      Action
	Flags       Flags
	SequenceId  uint32
	Arg0        uint32
	Arg1        uint32
	Arg2        uint16
}

// Fail builds a ControlTypeFail directive for the given (reason, action,
// flags) triple, echoing sequenceId.
func Fail(reason Reason, action Action, flags Flags, sequenceId uint32) Directive {
	return Directive{
		ControlType: ControlTypeFail,
		Reason:      reason,
		Action:      action,
		Flags:       flags,
		SequenceId:  sequenceId,
	}
}

// Encode writes d into a freshly allocated Size-byte little-endian buffer.
func Encode(d Directive) []byte {
	buf := make([]byte, Size)
	EncodeInto(d, buf)
	return buf
}

// EncodeInto writes d into buf, which must be at least Size bytes.
func EncodeInto(d Directive, buf []byte) {
	_ = buf[Size-1]
	buf[0] = byte(d.ControlType)
	binary.LittleEndian.PutUint16(buf[1:3], uint16(d.Reason))
	binary.LittleEndian.PutUint16(buf[3:5], uint16(d.Action))
	binary.LittleEndian.PutUint16(buf[5:7], uint16(d.Flags))
	binary.LittleEndian.PutUint32(buf[7:11], d.SequenceId)
	binary.LittleEndian.PutUint32(buf[11:15], d.Arg0)
	binary.LittleEndian.PutUint32(buf[15:19], d.Arg1)
	binary.LittleEndian.PutUint16(buf[19:21], d.Arg2)
}

// Decode parses a Directive from the front of buf.
func Decode(buf []byte) (Directive, error) {
	if len(buf) < Size {
		return Directive{}, ErrShortBuffer
	}
	return Directive{
		ControlType: ControlType(buf[0]),
		Reason:      Reason(binary.LittleEndian.Uint16(buf[1:3])),
		Action:      Action(binary.LittleEndian.Uint16(buf[3:5])),
		Flags:       Flags(binary.LittleEndian.Uint16(buf[5:7])),
		SequenceId:  binary.LittleEndian.Uint32(buf[7:11]),
		Arg0:        binary.LittleEndian.Uint32(buf[11:15]),
		Arg1:        binary.LittleEndian.Uint32(buf[15:19]),
		Arg2:        binary.LittleEndian.Uint16(buf[19:21]),
	}, nil
}
