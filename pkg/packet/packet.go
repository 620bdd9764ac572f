// Package packet defines the wire shape of one dispatched application
// packet: a small fixed header (opcode, flags, sequence id) in front of an
// opaque body, in the same big-endian, fixed-width-header spirit as the
// teacher's shared/protocol.Header.
package packet

import (
	"encoding/binary"
	"errors"
)

// HeaderSize is the fixed header width in bytes: opcode(2) + flags(2) +
// sequenceId(4).
const HeaderSize = 2 + 2 + 4

// FlagEncrypted marks Body as ciphertext produced by the cipher suite
// negotiated for the connection; the dispatcher decrypts before invoking
// the handler and encrypts "packet"-category return values on the way out.
const FlagEncrypted uint16 = 1 << 0

// ErrShortPacket is returned by Parse when payload is smaller than HeaderSize.
var ErrShortPacket = errors.New("packet: payload shorter than header")

// Packet is one parsed application packet. Body is a slice into the frame
// payload it was parsed from; callers that retain it past the enclosing
// dispatch must copy it.
type Packet struct {
	Opcode     uint16
	Flags      uint16
	SequenceId uint32
	Body       []byte
}

// IsEncrypted reports whether FlagEncrypted is set.
func (p Packet) IsEncrypted() bool { return p.Flags&FlagEncrypted != 0 }

// HasSequence reports whether SequenceId carries a real correlation id
// rather than the "no correlation" value of 0.
func (p Packet) HasSequence() bool { return p.SequenceId != 0 }

// Parse decodes a Packet from the front of payload.
func Parse(payload []byte) (Packet, error) {
	if len(payload) < HeaderSize {
		return Packet{}, ErrShortPacket
	}
	return Packet{
		Opcode:     binary.BigEndian.Uint16(payload[0:2]),
		Flags:      binary.BigEndian.Uint16(payload[2:4]),
		SequenceId: binary.BigEndian.Uint32(payload[4:8]),
		Body:       payload[8:],
	}, nil
}

// Encode serializes p into a freshly allocated buffer suitable for a
// Framed Socket Channel Send call.
func Encode(p Packet) []byte {
	buf := make([]byte, HeaderSize+len(p.Body))
	binary.BigEndian.PutUint16(buf[0:2], p.Opcode)
	binary.BigEndian.PutUint16(buf[2:4], p.Flags)
	binary.BigEndian.PutUint32(buf[4:8], p.SequenceId)
	copy(buf[8:], p.Body)
	return buf
}
