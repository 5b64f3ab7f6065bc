// Package protocol defines the wire structures and framed codec for the
// OPRF request/response exchange between the parent client and the enclave
// service.
package protocol

// AttestationKind identifies the trust root that produced an attestation
// document.
type AttestationKind string

const (
	// KindMock is an in-process synthetic attestation for local testing.
	KindMock AttestationKind = "mock"

	// KindNSM is a Nitro Security Module attestation document.
	KindNSM AttestationKind = "nsm"

	// KindTDX is an Intel TDX DCAP quote.
	KindTDX AttestationKind = "dcap-tdx"

	// KindVTPM is a virtual TPM 2.0 quote over PCRs 0-7.
	KindVTPM AttestationKind = "vtpm"
)

// Valid returns true if the attestation kind is recognized.
func (k AttestationKind) Valid() bool {
	switch k {
	case KindMock, KindNSM, KindTDX, KindVTPM:
		return true
	}
	return false
}

// AttestationDocument carries a hardware (or mock) attestation binding the
// enclave's evaluation to the code that produced it.
type AttestationDocument struct {
	Kind AttestationKind `json:"kind"`

	// RawDocument is the provider-native document: a COSE-encoded NSM
	// document, a DCAP quote blob, a framed TPM quote, or synthetic JSON
	// for the mock provider.
	RawDocument []byte `json:"raw_document"`

	// Measurements holds the named registers extracted from the document
	// (PCRs, MRTD/RTMRs) for caller inspection and allow-list matching.
	Measurements map[string][]byte `json:"measurements,omitempty"`

	// UserData is the digest of the evaluated point, binding the document
	// to one specific evaluation.
	UserData []byte `json:"user_data"`
}

// OprfRequest asks the enclave to evaluate a blinded query point.
type OprfRequest struct {
	// BlindedQuery is the compressed encoding of g^(m·b).
	BlindedQuery []byte `json:"blinded_query"`

	// QueryHash is the digest of BlindedQuery, checked by the enclave
	// before evaluation to catch transport corruption.
	QueryHash []byte `json:"query_hash"`
}

// OprfResponse carries the evaluation result and its attestation.
type OprfResponse struct {
	// EvaluatedPoint is the compressed encoding of blinded_query^k.
	EvaluatedPoint []byte `json:"evaluated_point"`

	// PublicKey is the compressed encoding of g^k.
	PublicKey []byte `json:"public_key"`

	Attestation AttestationDocument `json:"attestation"`
}
