// Package cipher is the external collaborator the dispatcher calls to turn
// a connection's opaque cipher-suite tag and secret into concrete
// decrypt/encrypt operations on "packet"-category payloads. It mirrors the
// teacher's pkg/crypto/symmetric package (ChaCha20-Poly1305 AEAD over
// golang.org/x/crypto) but speaks in terms of connection.CipherSuite rather
// than a hardcoded suite, since the dispatcher must never interpret the
// suite tag itself.
package cipher

import (
	stdcipher "crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/shadowmesh/netcore/pkg/connection"
)

var (
	// ErrUnsupportedSuite is returned when asked to operate on a
	// connection.CipherSuite this implementation does not handle.
	ErrUnsupportedSuite = errors.New("cipher: unsupported suite")
	// ErrNoSecret is returned when the connection has no 32-byte secret
	// configured yet.
	ErrNoSecret = errors.New("cipher: connection has no secret configured")
	// ErrShortCiphertext is returned by Open when ciphertext is too short
	// to contain a nonce.
	ErrShortCiphertext = errors.New("cipher: ciphertext shorter than nonce")
)

// AEAD decrypts inbound and encrypts outbound packet bodies. Implementations
// must treat suite as opaque beyond dispatching on the suites they support.
type AEAD interface {
	Open(suite connection.CipherSuite, secret, ciphertext []byte) ([]byte, error)
	Seal(suite connection.CipherSuite, secret, plaintext []byte) ([]byte, error)
}

// ChaCha20Poly1305 implements AEAD for connection.CipherChaCha20Poly1305.
// The wire format is nonce(12) || ciphertext||tag, produced by passing the
// nonce as AEAD.Seal's dst buffer — the same nonce-then-ciphertext
// convention the teacher's symmetric package documents.
type ChaCha20Poly1305 struct{}

// Seal encrypts plaintext under the connection's secret, producing a fresh
// random nonce prepended to the AEAD output.
func (ChaCha20Poly1305) Seal(suite connection.CipherSuite, secret, plaintext []byte) ([]byte, error) {
	aead, err := newAEAD(suite, secret)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("cipher: generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts ciphertext (nonce-prefixed, as produced by Seal) under the
// connection's secret.
func (ChaCha20Poly1305) Open(suite connection.CipherSuite, secret, ciphertext []byte) ([]byte, error) {
	aead, err := newAEAD(suite, secret)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < chacha20poly1305.NonceSize {
		return nil, ErrShortCiphertext
	}

	nonce := ciphertext[:chacha20poly1305.NonceSize]
	body := ciphertext[chacha20poly1305.NonceSize:]
	plaintext, err := aead.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}
	return plaintext, nil
}

func newAEAD(suite connection.CipherSuite, secret []byte) (stdcipher.AEAD, error) {
	if suite != connection.CipherChaCha20Poly1305 {
		return nil, ErrUnsupportedSuite
	}
	if len(secret) != chacha20poly1305.KeySize {
		return nil, ErrNoSecret
	}
	aead, err := chacha20poly1305.New(secret)
	if err != nil {
		return nil, fmt.Errorf("cipher: construct AEAD: %w", err)
	}
	return aead, nil
}
