package attest

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/moshih/nitro-oprf/crypto"
	"github.com/moshih/nitro-oprf/protocol"
)

func testPCRs() [][]byte {
	pcrs := make([][]byte, tpmPCRCount)
	for i := range pcrs {
		pcrs[i] = bytes.Repeat([]byte{byte(i + 1)}, sha256.Size)
	}
	return pcrs
}

func TestTPMDocumentRoundTrip(t *testing.T) {
	doc := &tpmDocument{
		Attestation: []byte("attestation blob"),
		Signature:   []byte("signature blob"),
		PCRs:        testPCRs(),
	}

	raw, err := encodeTPMDocument(doc)
	require.NoError(t, err)

	parsed, err := parseTPMDocument(raw)
	require.NoError(t, err)
	require.Equal(t, doc.Attestation, parsed.Attestation)
	require.Equal(t, doc.Signature, parsed.Signature)
	require.Equal(t, doc.PCRs, parsed.PCRs)
}

func TestParseTPMDocumentTruncated(t *testing.T) {
	doc := &tpmDocument{
		Attestation: []byte("attestation blob"),
		Signature:   []byte("signature blob"),
		PCRs:        testPCRs(),
	}
	raw, err := encodeTPMDocument(doc)
	require.NoError(t, err)

	for _, cut := range []int{1, 3, len(raw) - 7} {
		_, err := parseTPMDocument(raw[:cut])
		require.ErrorIs(t, err, ErrMalformedDocument)
	}
}

func TestEncodeTPMDocumentRejectsShortPCR(t *testing.T) {
	pcrs := testPCRs()
	pcrs[5] = pcrs[5][:16]

	_, err := encodeTPMDocument(&tpmDocument{PCRs: pcrs})
	require.Error(t, err)
}

func TestTPMVerifyRejectsMalformed(t *testing.T) {
	provider := &TPMProvider{}
	userData := crypto.Digest([]byte("evaluated point"))

	doc := &protocol.AttestationDocument{
		Kind:        protocol.KindVTPM,
		RawDocument: []byte{0x00},
		UserData:    userData,
	}
	_, err := provider.Verify(doc, userData)
	require.ErrorIs(t, err, ErrMalformedDocument)
}

func TestTPMVerifyRejectsIncompleteRegisterSet(t *testing.T) {
	provider := &TPMProvider{}
	userData := crypto.Digest([]byte("evaluated point"))

	raw, err := encodeTPMDocument(&tpmDocument{
		Attestation: []byte("attestation blob"),
		Signature:   []byte("signature blob"),
		PCRs:        testPCRs()[:5],
	})
	require.NoError(t, err)

	doc := &protocol.AttestationDocument{
		Kind:        protocol.KindVTPM,
		RawDocument: raw,
		UserData:    userData,
	}
	_, err = provider.Verify(doc, userData)
	require.ErrorIs(t, err, ErrMalformedDocument)
}

func TestTPMVerifyBindingPrecedesParsing(t *testing.T) {
	provider := &TPMProvider{}
	doc := &protocol.AttestationDocument{
		Kind:        protocol.KindVTPM,
		RawDocument: []byte{0x00},
		UserData:    crypto.Digest([]byte("point A")),
	}

	_, err := provider.Verify(doc, crypto.Digest([]byte("point B")))
	require.ErrorIs(t, err, ErrBindingMismatch)
}
