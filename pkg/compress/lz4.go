// Package compress implements the "compress then encrypt" half of
// packet-category dispatch using github.com/pierrec/lz4/v4, an indirect
// dependency in the teacher's own go.mod promoted here to direct use.
package compress

import (
	"encoding/binary"
	"errors"

	"github.com/pierrec/lz4/v4"
)

// header is a 1-byte encoding flag followed by the 4-byte big-endian
// original length, prepended to every compressed payload so Decompress
// never needs the caller to remember the pre-compression size.
const headerSize = 1 + 4

const (
	encodingStored byte = iota
	encodingLZ4
)

// ErrShortBuffer is returned by Decompress when src is smaller than the
// header it requires.
var ErrShortBuffer = errors.New("compress: buffer shorter than header")

// Compressor is the external collaborator the dispatcher calls before
// encrypting a "packet"-category return value, and after decrypting one.
type Compressor interface {
	Compress(src []byte) []byte
	Decompress(src []byte) ([]byte, error)
}

// LZ4 implements Compressor with block-mode LZ4. Incompressible input (the
// common case for already-encrypted or already-compressed bodies) is
// stored verbatim rather than expanded, matching CompressBlock's own
// "returns 0 if the data is incompressible" contract.
type LZ4 struct{}

// Compress returns src compressed, or stored verbatim if compression does
// not shrink it.
func (LZ4) Compress(src []byte) []byte {
	bound := lz4.CompressBlockBound(len(src))
	out := make([]byte, headerSize+bound)

	var c lz4.Compressor
	n, err := c.CompressBlock(src, out[headerSize:])
	if err != nil || n == 0 || n >= len(src) {
		stored := make([]byte, headerSize+len(src))
		stored[0] = encodingStored
		binary.BigEndian.PutUint32(stored[1:headerSize], uint32(len(src)))
		copy(stored[headerSize:], src)
		return stored
	}

	out[0] = encodingLZ4
	binary.BigEndian.PutUint32(out[1:headerSize], uint32(len(src)))
	return out[:headerSize+n]
}

// Decompress reverses Compress.
func (LZ4) Decompress(src []byte) ([]byte, error) {
	if len(src) < headerSize {
		return nil, ErrShortBuffer
	}
	encoding := src[0]
	originalLen := binary.BigEndian.Uint32(src[1:headerSize])
	body := src[headerSize:]

	if encoding == encodingStored {
		out := make([]byte, len(body))
		copy(out, body)
		return out, nil
	}

	dst := make([]byte, originalLen)
	n, err := lz4.UncompressBlock(body, dst)
	if err != nil {
		return nil, err
	}
	return dst[:n], nil
}
