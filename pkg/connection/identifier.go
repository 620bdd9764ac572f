package connection

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
)

// Identifier is an opaque 128-bit session identifier.
type Identifier [16]byte

// ErrInvalidIdentifierLength is returned by ParseIdentifier when the
// serialized form is not exactly 16 bytes.
var ErrInvalidIdentifierLength = errors.New("connection: identifier must be 16 bytes")

// NewIdentifier generates a random Identifier. The core treats identifier
// generation as an external collaborator concern in principle, but a
// crypto/rand-backed generator is the only reasonable default to ship.
func NewIdentifier() Identifier {
	var id Identifier
	if _, err := rand.Read(id[:]); err != nil {
		panic("connection: failed to read random identifier: " + err.Error())
	}
	return id
}

// ParseIdentifier reconstructs an Identifier from its serialized bytes.
func ParseIdentifier(b []byte) (Identifier, error) {
	if len(b) != 16 {
		return Identifier{}, ErrInvalidIdentifierLength
	}
	var id Identifier
	copy(id[:], b)
	return id, nil
}

// String renders the Identifier as lowercase hex.
func (id Identifier) String() string {
	return hex.EncodeToString(id[:])
}

// Bytes returns a copy of the identifier's serialized form.
func (id Identifier) Bytes() []byte {
	b := make([]byte, 16)
	copy(b, id[:])
	return b
}
