package crypto

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPointRoundTrip(t *testing.T) {
	for i := 0; i < 16; i++ {
		s := RandomScalar(rand.Reader)
		p := ScalarMulGenerator(s)

		encoded, err := p.Bytes()
		require.NoError(t, err)

		decoded, err := ParsePoint(encoded)
		require.NoError(t, err)
		require.True(t, p.Equal(decoded))
	}
}

func TestParsePointRejectsMalformed(t *testing.T) {
	valid, err := Generator().Bytes()
	require.NoError(t, err)

	cases := map[string][]byte{
		"empty":       {},
		"truncated":   valid[:len(valid)-1],
		"wrong tag":   append([]byte{0xff}, valid[1:]...),
		"all zeros":   make([]byte, len(valid)),
		"extra bytes": append(bytes.Clone(valid), 0x00),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePoint(data)
			require.Error(t, err)
		})
	}
}

func TestScalarRoundTrip(t *testing.T) {
	s := RandomScalar(rand.Reader)
	encoded, err := s.Bytes()
	require.NoError(t, err)

	decoded, err := ParseScalar(encoded)
	require.NoError(t, err)
	require.True(t, s.Equal(decoded))
}

func TestScalarInverse(t *testing.T) {
	s := RandomScalar(rand.Reader)
	inv, err := s.Inverse()
	require.NoError(t, err)

	// p^(s·s⁻¹) == p
	p := ScalarMulGenerator(RandomScalar(rand.Reader))
	roundTrip := ScalarMul(ScalarMul(p, s), inv)
	require.True(t, p.Equal(roundTrip))
}

func TestZeroScalarInverse(t *testing.T) {
	zero, err := ParseScalar(make([]byte, 32))
	require.NoError(t, err)
	require.True(t, zero.IsZero())

	_, err = zero.Inverse()
	require.ErrorIs(t, err, ErrZeroScalar)
}

func TestUnblindAlgebra(t *testing.T) {
	k := RandomScalar(rand.Reader)
	m := RandomScalar(rand.Reader)
	b := RandomScalar(rand.Reader)

	blinded := ScalarMulGenerator(m.Mul(b))
	evaluated := ScalarMul(blinded, k)

	bInv, err := b.Inverse()
	require.NoError(t, err)

	unblinded := ScalarMul(evaluated, bInv)
	expected := ScalarMulGenerator(m.Mul(k))
	require.True(t, unblinded.Equal(expected))
}

func TestDigest(t *testing.T) {
	require.Len(t, Digest([]byte("query")), DigestSize)
	require.Equal(t, Digest([]byte("query")), Digest([]byte("query")))
	require.NotEqual(t, Digest([]byte("query")), Digest([]byte("query2")))

	rd := ReportData([]byte("query"))
	require.Equal(t, Digest([]byte("query")), rd[:DigestSize])
	require.Equal(t, make([]byte, ReportDataSize-DigestSize), rd[DigestSize:])
}
