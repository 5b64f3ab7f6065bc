package attest

import (
	"bytes"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"

	"github.com/moshih/nitro-oprf/crypto"
	"github.com/moshih/nitro-oprf/protocol"
)

// encodeNSMDocument builds a COSE_Sign1 envelope around payload the way the
// NSM device does, minus the signature.
func encodeNSMDocument(t *testing.T, payload *nsmDocument) []byte {
	t.Helper()

	payloadBytes, err := cbor.Marshal(payload)
	require.NoError(t, err)

	raw, err := cbor.Marshal(&coseSign1{
		Protected: []byte{0xa1, 0x01, 0x38, 0x22},
		Payload:   payloadBytes,
		Signature: bytes.Repeat([]byte{0xcc}, 96),
	})
	require.NoError(t, err)
	return raw
}

func testNSMPayload(userData []byte) *nsmDocument {
	return &nsmDocument{
		ModuleID:  "i-0123456789abcdef0-enc0123456789abcdef",
		Timestamp: 1700000000,
		Digest:    "SHA384",
		PCRs: map[uint][]byte{
			0: bytes.Repeat([]byte{0x01}, 48),
			1: bytes.Repeat([]byte{0x02}, 48),
			2: bytes.Repeat([]byte{0x03}, 48),
		},
		UserData: userData,
	}
}

func TestNSMVerify(t *testing.T) {
	userData := crypto.Digest([]byte("evaluated point"))
	raw := encodeNSMDocument(t, testNSMPayload(userData))

	provider := &NSMProvider{}
	doc := &protocol.AttestationDocument{
		Kind:        protocol.KindNSM,
		RawDocument: raw,
		UserData:    userData,
	}

	meas, err := provider.Verify(doc, userData)
	require.NoError(t, err)
	require.Len(t, meas, nsmPCRCount)
	require.Equal(t, bytes.Repeat([]byte{0x01}, 48), meas["pcr0"])
}

func TestNSMVerifyBindingMismatch(t *testing.T) {
	userData := crypto.Digest([]byte("evaluated point"))
	raw := encodeNSMDocument(t, testNSMPayload(userData))

	provider := &NSMProvider{}
	doc := &protocol.AttestationDocument{
		Kind:        protocol.KindNSM,
		RawDocument: raw,
		UserData:    userData,
	}

	_, err := provider.Verify(doc, crypto.Digest([]byte("other point")))
	require.ErrorIs(t, err, ErrBindingMismatch)
}

func TestNSMVerifyPayloadBindingMismatch(t *testing.T) {
	// Outer user data matches the expectation but the signed payload was
	// produced for a different evaluation.
	outer := crypto.Digest([]byte("evaluated point"))
	raw := encodeNSMDocument(t, testNSMPayload(crypto.Digest([]byte("other point"))))

	provider := &NSMProvider{}
	doc := &protocol.AttestationDocument{
		Kind:        protocol.KindNSM,
		RawDocument: raw,
		UserData:    outer,
	}

	_, err := provider.Verify(doc, outer)
	require.ErrorIs(t, err, ErrBindingMismatch)
}

func TestNSMVerifyMissingPCR(t *testing.T) {
	userData := crypto.Digest([]byte("evaluated point"))
	payload := testNSMPayload(userData)
	delete(payload.PCRs, 2)
	raw := encodeNSMDocument(t, payload)

	provider := &NSMProvider{}
	doc := &protocol.AttestationDocument{
		Kind:        protocol.KindNSM,
		RawDocument: raw,
		UserData:    userData,
	}

	_, err := provider.Verify(doc, userData)
	require.ErrorIs(t, err, ErrMalformedDocument)
}

func TestNSMVerifyMalformedDocument(t *testing.T) {
	userData := crypto.Digest([]byte("evaluated point"))

	provider := &NSMProvider{}
	doc := &protocol.AttestationDocument{
		Kind:        protocol.KindNSM,
		RawDocument: []byte{0x00, 0x01, 0x02},
		UserData:    userData,
	}

	_, err := provider.Verify(doc, userData)
	require.ErrorIs(t, err, ErrMalformedDocument)
}
