// Package attest abstracts attestation document generation and verification
// over four trust roots: an in-process mock, the Nitro Security Module, the
// Intel TDX quoting interface, and a virtual TPM.
//
// All variants enforce the same binding invariant: the document's user data
// must equal the evaluated-point digest supplied by the caller. Only the
// source and shape of the measurements differ between variants. A provider
// is selected once at process configuration time and fixed for the process
// lifetime.
package attest

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/moshih/nitro-oprf/protocol"
)

// Measurements maps register names (pcr0..pcrN, mrtd, rtmr0..rtmr3) to
// their values as carried in an attestation document.
type Measurements map[string][]byte

var (
	// ErrBindingMismatch is returned when a document's user data does not
	// equal the expected evaluated-point digest.
	ErrBindingMismatch = errors.New("attestation user data does not match expected binding")

	// ErrKindMismatch is returned when a document's declared kind does
	// not match the verifying provider.
	ErrKindMismatch = errors.New("attestation document kind does not match provider")

	// ErrMalformedDocument is returned when a raw document cannot be
	// parsed or is missing required measurement fields.
	ErrMalformedDocument = errors.New("malformed attestation document")
)

// Provider generates and verifies attestation documents for one trust root.
type Provider interface {
	// Kind identifies the document variant this provider produces.
	Kind() protocol.AttestationKind

	// Attest produces a document binding userData to the platform's
	// current measurements. userData is the evaluated-point digest.
	Attest(userData []byte) (*protocol.AttestationDocument, error)

	// Verify checks the document's well-formedness and its binding to
	// expectedUserData, returning the measurements it carries.
	Verify(doc *protocol.AttestationDocument, expectedUserData []byte) (Measurements, error)
}

// checkBinding enforces the invariant shared by every provider variant:
// the document kind matches and its user data equals the expected digest.
func checkBinding(doc *protocol.AttestationDocument, kind protocol.AttestationKind, expectedUserData []byte) error {
	if doc.Kind != kind {
		return fmt.Errorf("%w: got %q, want %q", ErrKindMismatch, doc.Kind, kind)
	}
	if !bytes.Equal(doc.UserData, expectedUserData) {
		return ErrBindingMismatch
	}
	return nil
}

// registerName formats a numbered measurement register name.
func registerName(prefix string, index int) string {
	return fmt.Sprintf("%s%d", prefix, index)
}
