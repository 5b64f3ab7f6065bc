package enclave

import (
	"fmt"
	"io"

	"github.com/moshih/nitro-oprf/crypto"
)

// SecretKey holds the OPRF key k and its public counterpart g^k. The key is
// generated once at service startup, lives for the process lifetime, and is
// never serialized or transmitted off-process.
type SecretKey struct {
	k           *crypto.Scalar
	public      *crypto.Point
	publicBytes []byte
}

// GenerateSecretKey samples k from rng and derives g^k.
func GenerateSecretKey(rng io.Reader) (*SecretKey, error) {
	k := crypto.RandomScalar(rng)
	public := crypto.ScalarMulGenerator(k)
	publicBytes, err := public.Bytes()
	if err != nil {
		return nil, fmt.Errorf("serializing public key: %w", err)
	}
	return &SecretKey{k: k, public: public, publicBytes: publicBytes}, nil
}

// Evaluate computes p^k without exposing k.
func (sk *SecretKey) Evaluate(p *crypto.Point) *crypto.Point {
	return crypto.ScalarMul(p, sk.k)
}

// Public returns g^k.
func (sk *SecretKey) Public() *crypto.Point {
	return sk.public
}

// PublicBytes returns the compressed encoding of g^k.
func (sk *SecretKey) PublicBytes() []byte {
	return sk.publicBytes
}
