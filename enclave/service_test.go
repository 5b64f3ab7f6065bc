package enclave

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/moshih/nitro-oprf/attest"
	"github.com/moshih/nitro-oprf/crypto"
	"github.com/moshih/nitro-oprf/protocol"
	"github.com/moshih/nitro-oprf/testutil"
)

func testRequest(t *testing.T, m *crypto.Scalar) *protocol.OprfRequest {
	t.Helper()
	blinded := crypto.ScalarMulGenerator(m)
	blindedBytes, err := blinded.Bytes()
	require.NoError(t, err)
	return &protocol.OprfRequest{
		BlindedQuery: blindedBytes,
		QueryHash:    crypto.Digest(blindedBytes),
	}
}

func TestNewRequiresProvider(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestEvaluate(t *testing.T) {
	// A seeded rng makes the key recomputable for checking the result.
	svc, err := New(Config{Provider: &attest.MockProvider{}, Rand: testutil.Rand("enclave key")})
	require.NoError(t, err)

	k := crypto.RandomScalar(testutil.Rand("enclave key"))
	require.True(t, svc.PublicKey().Equal(crypto.ScalarMulGenerator(k)))

	m := crypto.RandomScalar(rand.Reader)
	resp, err := svc.Evaluate(testRequest(t, m))
	require.NoError(t, err)

	evaluated, err := crypto.ParsePoint(resp.EvaluatedPoint)
	require.NoError(t, err)
	require.True(t, evaluated.Equal(crypto.ScalarMulGenerator(m.Mul(k))))
	require.Equal(t, svc.key.PublicBytes(), resp.PublicKey)

	// The attestation binds the evaluated point digest.
	require.Equal(t, crypto.Digest(resp.EvaluatedPoint), resp.Attestation.UserData)
	require.Equal(t, protocol.KindMock, resp.Attestation.Kind)
}

func TestEvaluateRejectsIntegrityMismatch(t *testing.T) {
	svc, err := New(Config{Provider: &attest.MockProvider{}})
	require.NoError(t, err)

	req := testRequest(t, crypto.RandomScalar(rand.Reader))
	req.BlindedQuery[1] ^= 0xff

	_, err = svc.Evaluate(req)
	require.ErrorIs(t, err, ErrIntegrity)
}

func TestEvaluateRejectsInvalidPoint(t *testing.T) {
	svc, err := New(Config{Provider: &attest.MockProvider{}})
	require.NoError(t, err)

	// Hash is consistent, but the bytes are not a group element.
	garbage := []byte("definitely not a point")
	req := &protocol.OprfRequest{
		BlindedQuery: garbage,
		QueryHash:    crypto.Digest(garbage),
	}

	_, err = svc.Evaluate(req)
	require.ErrorIs(t, err, crypto.ErrInvalidPoint)
}

func TestEvaluateDeterministicPerKey(t *testing.T) {
	svc, err := New(Config{Provider: &attest.MockProvider{}})
	require.NoError(t, err)

	m := crypto.RandomScalar(rand.Reader)
	resp1, err := svc.Evaluate(testRequest(t, m))
	require.NoError(t, err)
	resp2, err := svc.Evaluate(testRequest(t, m))
	require.NoError(t, err)

	require.Equal(t, resp1.EvaluatedPoint, resp2.EvaluatedPoint)
}
