// Package crypto implements the group algebra underlying the OPRF protocol.
//
// All operations run over the P-256 prime-order group. Scalars are elements
// of the curve's scalar field, points are members of the prime-order
// subgroup. Point decoding validates that the input is a canonical encoding
// of a curve point; it is the trust boundary between wire bytes and group
// arithmetic.
package crypto

import (
	"errors"
	"fmt"
	"io"

	circl "github.com/cloudflare/circl/group"
)

var group = circl.P256

var (
	// ErrInvalidPoint is returned when bytes do not decode to a valid
	// element of the prime-order subgroup.
	ErrInvalidPoint = errors.New("invalid group element encoding")

	// ErrZeroScalar is returned when inverting the additive identity.
	ErrZeroScalar = errors.New("scalar is the additive identity")
)

// Scalar is an element of the curve's scalar field.
type Scalar struct {
	s circl.Scalar
}

// Point is an element of the curve's prime-order subgroup.
type Point struct {
	p circl.Element
}

// Generator returns the canonical group generator g.
func Generator() *Point {
	return &Point{p: group.Generator()}
}

// RandomScalar samples a uniformly random scalar from rng. Production
// callers pass crypto/rand.Reader; tests may inject a deterministic source.
func RandomScalar(rng io.Reader) *Scalar {
	return &Scalar{s: group.RandomScalar(rng)}
}

// ScalarMulGenerator computes g^s.
func ScalarMulGenerator(s *Scalar) *Point {
	return &Point{p: group.NewElement().MulGen(s.s)}
}

// ScalarMul computes p^s.
func ScalarMul(p *Point, s *Scalar) *Point {
	return &Point{p: group.NewElement().Mul(p.p, s.s)}
}

// Mul returns a·b in the scalar field.
func (a *Scalar) Mul(b *Scalar) *Scalar {
	return &Scalar{s: group.NewScalar().Mul(a.s, b.s)}
}

// IsZero reports whether the scalar is the additive identity.
func (a *Scalar) IsZero() bool {
	return a.s.IsEqual(group.NewScalar())
}

// Inverse returns the multiplicative inverse of the scalar, or ErrZeroScalar
// for the additive identity.
func (a *Scalar) Inverse() (*Scalar, error) {
	if a.IsZero() {
		return nil, ErrZeroScalar
	}
	return &Scalar{s: group.NewScalar().Inv(a.s)}, nil
}

// Equal reports whether two scalars are the same field element.
func (a *Scalar) Equal(b *Scalar) bool {
	return a.s.IsEqual(b.s)
}

// Bytes returns the canonical scalar encoding.
func (a *Scalar) Bytes() ([]byte, error) {
	return a.s.MarshalBinary()
}

// ParseScalar decodes a canonical scalar encoding.
func ParseScalar(data []byte) (*Scalar, error) {
	s := group.NewScalar()
	if err := s.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("decoding scalar: %w", err)
	}
	return &Scalar{s: s}, nil
}

// Equal reports whether two points are the same group element.
func (p *Point) Equal(q *Point) bool {
	return p.p.IsEqual(q.p)
}

// Bytes returns the compressed point encoding.
func (p *Point) Bytes() ([]byte, error) {
	return p.p.MarshalBinaryCompress()
}

// ParsePoint decodes a compressed point encoding. Inputs that are not a
// canonical encoding of a subgroup element fail with ErrInvalidPoint.
func ParsePoint(data []byte) (*Point, error) {
	e := group.NewElement()
	if err := e.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPoint, err)
	}
	return &Point{p: e}, nil
}
