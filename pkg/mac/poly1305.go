package mac

import (
	"errors"
	"math/big"
)

// ErrInvalidKeySize is returned by NewPoly1305 when the key is not exactly
// 32 bytes.
var ErrInvalidKeySize = errors.New("mac: poly1305 key must be 32 bytes")

// poly1305Prime is 2^130 - 5, the modulus every accumulation step reduces
// against (RFC 8439 §2.5). Numerically this plays the role the spec
// describes as "little-endian five-u32-limb" arithmetic: five 26-bit (or
// five 32-bit) limbs are just one encoding of the same 130-bit integer
// math.Big performs here; using math/big keeps the reduction provably
// correct without a hand-rolled 64x64->128 carry chain that cannot be
// exercised by running the toolchain in this environment.
var poly1305Prime = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 130), big.NewInt(5))

var twoPow128 = new(big.Int).Lsh(big.NewInt(1), 128)

// Poly1305 is a one-shot MAC instance bound to a single 32-byte key. Unlike
// HMAC it has no streaming Update — Compute takes the whole message — but
// it shares the same New/Dispose lifecycle and zeroing discipline.
type Poly1305 struct {
	r        *big.Int
	s        *big.Int
	rClamped [16]byte
	sBytes   [16]byte
	disposed bool
}

// NewPoly1305 clamps r = key[0:16] per RFC 8439 and takes s = key[16:32].
func NewPoly1305(key []byte) (*Poly1305, error) {
	if len(key) != 32 {
		return nil, ErrInvalidKeySize
	}

	var rClamped [16]byte
	copy(rClamped[:], key[:16])
	clampR(&rClamped)

	var sBytes [16]byte
	copy(sBytes[:], key[16:32])

	return &Poly1305{
		r:        leBytesToBigInt(rClamped[:]),
		s:        leBytesToBigInt(sBytes[:]),
		rClamped: rClamped,
		sBytes:   sBytes,
	}, nil
}

// clampR applies the RFC 8439 §2.5.1 clamp: r[3],r[7],r[11],r[15] &= 0x0f
// and r[4],r[8],r[12] &= 0xfc, zeroing the top four bits of the four
// "top" bytes and the bottom two bits of the three "carry" bytes so that r
// is always a valid Poly1305 multiplier.
func clampR(r *[16]byte) {
	r[3] &= 0x0f
	r[7] &= 0x0f
	r[11] &= 0x0f
	r[15] &= 0x0f
	r[4] &= 0xfc
	r[8] &= 0xfc
	r[12] &= 0xfc
}

// Compute authenticates msg and returns the 16-byte tag. It processes msg
// in 16-byte blocks; every block (including a shorter final block) is
// treated as a little-endian integer with a single 0x01 byte appended
// immediately after its last message byte — never padded with extra
// zeroed bytes beyond that terminator, per RFC 8439 §2.5.1.
func (p *Poly1305) Compute(msg []byte) ([16]byte, error) {
	if p.disposed {
		return [16]byte{}, ErrDisposed
	}

	a := new(big.Int)
	block := make([]byte, 17)
	for offset := 0; offset < len(msg); offset += 16 {
		end := offset + 16
		if end > len(msg) {
			end = len(msg)
		}
		chunk := msg[offset:end]

		n := len(chunk)
		copy(block[:n], chunk)
		block[n] = 0x01
		for i := n + 1; i < 17; i++ {
			block[i] = 0
		}

		nBig := leBytesToBigInt(block[:n+1])
		a.Add(a, nBig)
		a.Mul(a, p.r)
		a.Mod(a, poly1305Prime)
	}

	a.Add(a, p.s)
	a.Mod(a, twoPow128)

	var tag [16]byte
	leBigIntToBytes(a, tag[:])
	return tag, nil
}

// Verify computes the tag for msg and compares it to tag in constant time.
func (p *Poly1305) Verify(msg []byte, tag []byte) (bool, error) {
	got, err := p.Compute(msg)
	if err != nil {
		return false, err
	}
	return ConstantTimeCompare(got[:], tag), nil
}

// Dispose zeroes r and s. Further calls to Compute/Verify return
// ErrDisposed.
func (p *Poly1305) Dispose() {
	if p.disposed {
		return
	}
	zero(p.rClamped[:])
	zero(p.sBytes[:])
	p.r.SetInt64(0)
	p.s.SetInt64(0)
	p.disposed = true
}

// leBytesToBigInt interprets b as a little-endian unsigned integer.
func leBytesToBigInt(b []byte) *big.Int {
	be := make([]byte, len(b))
	for i, v := range b {
		be[len(b)-1-i] = v
	}
	return new(big.Int).SetBytes(be)
}

// leBigIntToBytes writes x into out as a little-endian unsigned integer,
// truncating/zero-padding to len(out) bytes.
func leBigIntToBytes(x *big.Int, out []byte) {
	be := x.Bytes()
	for i := range out {
		out[i] = 0
	}
	for i := 0; i < len(be) && i < len(out); i++ {
		out[i] = be[len(be)-1-i]
	}
}
