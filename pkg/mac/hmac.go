// Package mac implements the message authentication primitives used by
// the framing and crypto layers to validate and tag payloads: streaming
// HMAC over the SHA family, one-shot Poly1305, and a constant-time
// comparison helper shared by both.
package mac

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"hash"
	"runtime"
)

// Algo names the underlying hash function an HMAC instance is built over.
type Algo int

const (
	SHA1 Algo = iota
	SHA224
	SHA256
	SHA384
)

const (
	ipad = 0x36
	opad = 0x5c
)

var (
	// ErrEmptyKey is returned by New when the supplied key has zero length.
	ErrEmptyKey = errors.New("mac: key must not be empty")
	// ErrDisposed is returned by any operation on an HMAC/Poly1305 instance
	// after Dispose has been called.
	ErrDisposed = errors.New("mac: instance disposed")
)

func newHash(a Algo) (h func() hash.Hash, blockSize, hashSize int) {
	switch a {
	case SHA1:
		return sha1.New, 64, sha1.Size
	case SHA224:
		return sha256.New224, 64, sha256.Size224
	case SHA256:
		return sha256.New, 64, sha256.Size
	case SHA384:
		return sha512.New384, 128, sha512.Size384
	default:
		return sha256.New, 64, sha256.Size
	}
}

// HMAC is a streaming HMAC instance. It must be created with New and
// disposed with Dispose once the caller is done with it; key material is
// zeroed on Dispose.
type HMAC struct {
	blockSize int
	hashSize  int
	newHash   func() hash.Hash

	inner    hash.Hash // seeded with k⊕ipad, streams Update() calls
	outerKey []byte    // k⊕opad, retained until Dispose
	disposed bool
}

// New prepares an HMAC instance over algo with the given key. Per RFC 2104,
// keys longer than the block size are hashed down first; shorter keys are
// zero-padded to the block size.
func New(key []byte, algo Algo) (*HMAC, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}

	newHash, blockSize, hashSize := newHash(algo)

	prepared := make([]byte, blockSize)
	if len(key) > blockSize {
		h := newHash()
		h.Write(key)
		sum := h.Sum(nil)
		copy(prepared, sum)
	} else {
		copy(prepared, key)
	}

	innerKey := make([]byte, blockSize)
	outerKey := make([]byte, blockSize)
	for i := 0; i < blockSize; i++ {
		innerKey[i] = prepared[i] ^ ipad
		outerKey[i] = prepared[i] ^ opad
	}

	inner := newHash()
	inner.Write(innerKey)

	// innerKey and prepared are no longer needed once the inner hash has
	// absorbed them; zero them the same way rotation.SecureZero does.
	zero(prepared)
	zero(innerKey)

	return &HMAC{
		blockSize: blockSize,
		hashSize:  hashSize,
		newHash:   newHash,
		inner:     inner,
		outerKey:  outerKey,
	}, nil
}

// Update feeds more message bytes into the running HMAC. It may be called
// any number of times before Finalize.
func (h *HMAC) Update(p []byte) error {
	if h.disposed {
		return ErrDisposed
	}
	h.inner.Write(p)
	return nil
}

// Finalize completes the HMAC computation and returns the tag. It does not
// dispose the instance; callers that are done should call Dispose
// explicitly.
func (h *HMAC) Finalize() ([]byte, error) {
	if h.disposed {
		return nil, ErrDisposed
	}
	innerSum := h.inner.Sum(nil)

	outer := h.newHash()
	outer.Write(h.outerKey)
	outer.Write(innerSum)
	return outer.Sum(nil), nil
}

// Verify finalizes the HMAC and compares it against expectedTag in
// constant time. It returns false (never an error) on length mismatch.
func (h *HMAC) Verify(expectedTag []byte) (bool, error) {
	tag, err := h.Finalize()
	if err != nil {
		return false, err
	}
	return ConstantTimeCompare(tag, expectedTag), nil
}

// Dispose zeroes retained key material. Further calls to Update, Finalize,
// or Verify return ErrDisposed.
func (h *HMAC) Dispose() {
	if h.disposed {
		return
	}
	zero(h.outerKey)
	h.disposed = true
}

// HashSize returns the output size in bytes for the configured algorithm.
func (h *HMAC) HashSize() int { return h.hashSize }

// Sum is a convenience one-shot helper: it streams msg through a fresh
// HMAC(key, algo) instance, finalizes, disposes, and returns the tag.
func Sum(key, msg []byte, algo Algo) ([]byte, error) {
	h, err := New(key, algo)
	if err != nil {
		return nil, err
	}
	defer h.Dispose()
	if err := h.Update(msg); err != nil {
		return nil, err
	}
	return h.Finalize()
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
