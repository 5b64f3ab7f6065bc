// Package testutil provides fixtures shared by the protocol tests:
// deterministic entropy sources and byte-tampering helpers.
package testutil

import (
	"bytes"
	"io"

	"golang.org/x/crypto/sha3"
)

// Rand returns a deterministic entropy source derived from seed. Two
// readers with the same seed produce the same byte stream, so tests can
// recompute values drawn elsewhere.
func Rand(seed string) io.Reader {
	h := sha3.NewShake128()
	h.Write([]byte(seed))
	return h
}

// Flip returns a copy of data with one byte inverted.
func Flip(data []byte, index int) []byte {
	out := bytes.Clone(data)
	out[index] ^= 0xff
	return out
}
