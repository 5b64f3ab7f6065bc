package attest

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// PublishedMeasurements contains attestation measurements for released
// builds. Fetched from a public URL and used by the parent client to pin
// the enclave images it will accept.
//
// JSON format:
//
//	[
//	  {
//	    "measurement_id": "nitro-oprf-v0.1.0-tdx-abc123",
//	    "measurements": {
//	      "mrtd":  {"expected": "hex-encoded-mrtd..."},
//	      "rtmr0": {"expected": "hex-encoded-rtmr0..."}
//	    }
//	  }
//	]
//
// Each entry represents an acceptable build. A document is accepted if its
// measurements match any entry in the array.
type PublishedMeasurements []MeasurementEntry

// MeasurementEntry represents a single acceptable build configuration.
type MeasurementEntry struct {
	MeasurementID string                      `json:"measurement_id"`
	Measurements  map[string]MeasurementValue `json:"measurements"`
}

// MeasurementValue holds an expected measurement value.
type MeasurementValue struct {
	Expected string `json:"expected"`
}

// ToMeasurements converts a MeasurementEntry to the internal format.
func (e *MeasurementEntry) ToMeasurements() (Measurements, error) {
	result := make(Measurements, len(e.Measurements))
	for name, mv := range e.Measurements {
		val, err := hex.DecodeString(mv.Expected)
		if err != nil {
			return nil, fmt.Errorf("invalid hex for register %q: %w", name, err)
		}
		result[name] = val
	}
	return result, nil
}

// MatchesAny reports whether the measurements satisfy at least one
// published entry. An entry matches when every register it names is
// present with the expected value.
func (m Measurements) MatchesAny(published PublishedMeasurements) bool {
	for i := range published {
		expected, err := published[i].ToMeasurements()
		if err != nil {
			continue
		}
		if m.matches(expected) {
			return true
		}
	}
	return false
}

func (m Measurements) matches(expected Measurements) bool {
	if len(expected) == 0 {
		return false
	}
	for name, val := range expected {
		if !bytes.Equal(m[name], val) {
			return false
		}
	}
	return true
}

// MeasurementSource provides expected measurements for attestation
// verification.
type MeasurementSource interface {
	// GetAllowedMeasurements returns all acceptable measurement sets.
	GetAllowedMeasurements() (PublishedMeasurements, error)
}

// StaticMeasurementSource provides measurements from a static
// configuration. Useful for testing and demo deployments where the
// expected values are known in advance.
type StaticMeasurementSource struct {
	Measurements PublishedMeasurements
}

// NewStaticMeasurementSource creates a source with predefined measurements.
func NewStaticMeasurementSource(measurements PublishedMeasurements) *StaticMeasurementSource {
	return &StaticMeasurementSource{Measurements: measurements}
}

// GetAllowedMeasurements returns the static measurement sets.
func (s *StaticMeasurementSource) GetAllowedMeasurements() (PublishedMeasurements, error) {
	return s.Measurements, nil
}

// MockMeasurementSource returns a source accepting MockProvider documents.
// Only use in demo and testing environments.
func MockMeasurementSource() *StaticMeasurementSource {
	entry := MeasurementEntry{
		MeasurementID: "mock-attestation",
		Measurements:  make(map[string]MeasurementValue, mockPCRCount),
	}
	for name, val := range mockMeasurements() {
		entry.Measurements[name] = MeasurementValue{Expected: hex.EncodeToString(val)}
	}
	return NewStaticMeasurementSource(PublishedMeasurements{entry})
}

// RemoteMeasurementSource fetches published measurements from a URL.
type RemoteMeasurementSource struct {
	URL     string
	Timeout time.Duration
}

// NewRemoteMeasurementSource creates a source backed by url.
func NewRemoteMeasurementSource(url string) *RemoteMeasurementSource {
	return &RemoteMeasurementSource{URL: url, Timeout: 30 * time.Second}
}

// GetAllowedMeasurements fetches and decodes the published measurements.
func (s *RemoteMeasurementSource) GetAllowedMeasurements() (PublishedMeasurements, error) {
	httpClient := &http.Client{Timeout: s.Timeout}
	resp, err := httpClient.Get(s.URL)
	if err != nil {
		return nil, fmt.Errorf("fetching measurements: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("measurements endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading measurements: %w", err)
	}

	var published PublishedMeasurements
	if err := json.Unmarshal(body, &published); err != nil {
		return nil, fmt.Errorf("decoding measurements: %w", err)
	}
	if len(published) == 0 {
		return nil, errors.New("measurements endpoint returned no entries")
	}
	return published, nil
}
