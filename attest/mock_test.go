package attest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/moshih/nitro-oprf/crypto"
	"github.com/moshih/nitro-oprf/protocol"
)

func TestMockAttestVerify(t *testing.T) {
	provider := &MockProvider{}
	userData := crypto.Digest([]byte("evaluated point"))

	doc, err := provider.Attest(userData)
	require.NoError(t, err)
	require.Equal(t, protocol.KindMock, doc.Kind)
	require.Equal(t, userData, doc.UserData)
	require.Len(t, doc.Measurements, mockPCRCount)

	meas, err := provider.Verify(doc, userData)
	require.NoError(t, err)
	require.Len(t, meas, mockPCRCount)
}

func TestMockVerifyBindingMismatch(t *testing.T) {
	provider := &MockProvider{}
	doc, err := provider.Attest(crypto.Digest([]byte("point A")))
	require.NoError(t, err)

	_, err = provider.Verify(doc, crypto.Digest([]byte("point B")))
	require.ErrorIs(t, err, ErrBindingMismatch)
}

func TestMockVerifyKindMismatch(t *testing.T) {
	provider := &MockProvider{}
	userData := crypto.Digest([]byte("point"))
	doc, err := provider.Attest(userData)
	require.NoError(t, err)

	doc.Kind = protocol.KindTDX
	_, err = provider.Verify(doc, userData)
	require.ErrorIs(t, err, ErrKindMismatch)
}

func TestMockVerifyTamperedUserData(t *testing.T) {
	provider := &MockProvider{}
	userData := crypto.Digest([]byte("point"))
	doc, err := provider.Attest(userData)
	require.NoError(t, err)

	// Swap user data consistently so the binding check passes but the
	// signed body no longer matches.
	other := crypto.Digest([]byte("other point"))
	doc.UserData = other
	_, err = provider.Verify(doc, other)
	require.ErrorIs(t, err, ErrMalformedDocument)
}

func TestMockVerifyMalformedDocument(t *testing.T) {
	provider := &MockProvider{}
	userData := crypto.Digest([]byte("point"))

	doc := &protocol.AttestationDocument{
		Kind:        protocol.KindMock,
		RawDocument: []byte("not json"),
		UserData:    userData,
	}
	_, err := provider.Verify(doc, userData)
	require.ErrorIs(t, err, ErrMalformedDocument)
}
