package attest

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/hf/nsm"
	"github.com/hf/nsm/request"

	"github.com/moshih/nitro-oprf/protocol"
)

// nsmPCRCount is the number of platform configuration registers carried in
// the measurements map. PCR0-2 cover the enclave image, kernel and
// application.
const nsmPCRCount = 3

// NSMProvider generates attestations through the Nitro Security Module
// device and verifies NSM documents. Verification checks the COSE/CBOR
// document structure, PCR presence and the user-data binding; the COSE
// signature chain against the Nitro root CA is not validated here, callers
// pin expected measurements instead.
type NSMProvider struct{}

// coseSign1 is the outer COSE_Sign1 layout of an NSM document.
type coseSign1 struct {
	_           struct{} `cbor:",toarray"`
	Protected   []byte
	Unprotected cbor.RawMessage
	Payload     []byte
	Signature   []byte
}

// nsmDocument is the signed payload of an NSM attestation document.
type nsmDocument struct {
	ModuleID    string          `cbor:"module_id"`
	Timestamp   uint64          `cbor:"timestamp"`
	Digest      string          `cbor:"digest"`
	PCRs        map[uint][]byte `cbor:"pcrs"`
	Certificate []byte          `cbor:"certificate"`
	CABundle    [][]byte        `cbor:"cabundle"`
	PublicKey   []byte          `cbor:"public_key"`
	UserData    []byte          `cbor:"user_data"`
	Nonce       []byte          `cbor:"nonce"`
}

func (p *NSMProvider) Kind() protocol.AttestationKind {
	return protocol.KindNSM
}

// Attest requests an attestation document from the NSM device with
// userData bound into it.
func (p *NSMProvider) Attest(userData []byte) (*protocol.AttestationDocument, error) {
	sess, err := nsm.OpenDefaultSession()
	if err != nil {
		return nil, fmt.Errorf("opening NSM session: %w", err)
	}
	defer sess.Close()

	res, err := sess.Send(&request.Attestation{UserData: userData})
	if err != nil {
		return nil, fmt.Errorf("requesting NSM attestation: %w", err)
	}
	if res.Error != "" {
		return nil, fmt.Errorf("NSM device error: %s", res.Error)
	}
	if res.Attestation == nil || res.Attestation.Document == nil {
		return nil, errors.New("NSM device returned no attestation document")
	}

	payload, err := parseNSMDocument(res.Attestation.Document)
	if err != nil {
		return nil, err
	}

	return &protocol.AttestationDocument{
		Kind:         protocol.KindNSM,
		RawDocument:  res.Attestation.Document,
		Measurements: nsmMeasurements(payload),
		UserData:     userData,
	}, nil
}

// Verify parses the COSE document, checks that its signed payload carries
// the expected user data and a complete PCR set, and returns the PCRs.
func (p *NSMProvider) Verify(doc *protocol.AttestationDocument, expectedUserData []byte) (Measurements, error) {
	if err := checkBinding(doc, protocol.KindNSM, expectedUserData); err != nil {
		return nil, err
	}

	payload, err := parseNSMDocument(doc.RawDocument)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(payload.UserData, expectedUserData) {
		return nil, fmt.Errorf("%w: signed payload user data differs from document user data", ErrBindingMismatch)
	}
	for i := 0; i < nsmPCRCount; i++ {
		if len(payload.PCRs[uint(i)]) == 0 {
			return nil, fmt.Errorf("%w: missing PCR%d", ErrMalformedDocument, i)
		}
	}

	return nsmMeasurements(payload), nil
}

// parseNSMDocument unwraps the COSE_Sign1 envelope and decodes the signed
// payload.
func parseNSMDocument(raw []byte) (*nsmDocument, error) {
	var envelope coseSign1
	if err := cbor.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("%w: decoding COSE envelope: %s", ErrMalformedDocument, err)
	}

	var payload nsmDocument
	if err := cbor.Unmarshal(envelope.Payload, &payload); err != nil {
		return nil, fmt.Errorf("%w: decoding document payload: %s", ErrMalformedDocument, err)
	}
	return &payload, nil
}

func nsmMeasurements(payload *nsmDocument) Measurements {
	m := make(Measurements, nsmPCRCount)
	for i := 0; i < nsmPCRCount; i++ {
		m[registerName("pcr", i)] = payload.PCRs[uint(i)]
	}
	return m
}
