package attest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/moshih/nitro-oprf/crypto"
	"github.com/moshih/nitro-oprf/protocol"
)

// mockMeasurementSize mirrors the width of the SHA-384 registers real trust
// roots report, so allow-list plumbing sees realistic shapes.
const mockMeasurementSize = 48

// mockPCRCount is the number of synthetic registers the mock reports.
const mockPCRCount = 3

// MockProvider produces synthetic attestations for non-adversarial local
// testing. Verification checks well-formedness and the user-data binding
// and otherwise always succeeds.
type MockProvider struct {
	// ModuleID names the synthetic enclave module. Defaults to
	// "mock-enclave".
	ModuleID string
}

// mockDocument is the synthetic raw document body.
type mockDocument struct {
	ModuleID     string `json:"module_id"`
	Timestamp    uint64 `json:"timestamp"`
	UserDataHash string `json:"user_data_hash"`
}

func (p *MockProvider) moduleID() string {
	if p.ModuleID != "" {
		return p.ModuleID
	}
	return "mock-enclave"
}

func (p *MockProvider) Kind() protocol.AttestationKind {
	return protocol.KindMock
}

// Attest builds a synthetic document echoing userData.
func (p *MockProvider) Attest(userData []byte) (*protocol.AttestationDocument, error) {
	raw, err := json.Marshal(&mockDocument{
		ModuleID:     p.moduleID(),
		Timestamp:    uint64(time.Now().Unix()),
		UserDataHash: fmt.Sprintf("%x", crypto.Digest(userData)),
	})
	if err != nil {
		return nil, fmt.Errorf("serializing mock document: %w", err)
	}

	return &protocol.AttestationDocument{
		Kind:         protocol.KindMock,
		RawDocument:  raw,
		Measurements: mockMeasurements(),
		UserData:     userData,
	}, nil
}

// Verify checks document shape and the user-data binding.
func (p *MockProvider) Verify(doc *protocol.AttestationDocument, expectedUserData []byte) (Measurements, error) {
	if err := checkBinding(doc, protocol.KindMock, expectedUserData); err != nil {
		return nil, err
	}

	var body mockDocument
	if err := json.Unmarshal(doc.RawDocument, &body); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedDocument, err)
	}
	if body.UserDataHash != fmt.Sprintf("%x", crypto.Digest(doc.UserData)) {
		return nil, fmt.Errorf("%w: user data hash mismatch", ErrMalformedDocument)
	}

	return mockMeasurements(), nil
}

func mockMeasurements() Measurements {
	m := make(Measurements, mockPCRCount)
	for i := 0; i < mockPCRCount; i++ {
		m[registerName("pcr", i)] = make([]byte, mockMeasurementSize)
	}
	return m
}
