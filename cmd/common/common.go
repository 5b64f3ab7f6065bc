// Package common provides shared utilities for the nitro-oprf CLI
// commands: attestation provider and transport factories and YAML
// configuration loading used by the enclave, parent and quote-server
// binaries.
package common

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/moshih/nitro-oprf/attest"
	"github.com/moshih/nitro-oprf/protocol"
	"github.com/moshih/nitro-oprf/transport"
)

// AttestationConfig selects and parameterizes the attestation provider.
type AttestationConfig struct {
	// Kind is one of mock, nsm, dcap-tdx, vtpm.
	Kind string `yaml:"kind"`

	// RemoteURL switches the dcap-tdx kind to a remote quote sidecar.
	RemoteURL string `yaml:"remote_url"`

	// TPMDevice overrides the vtpm kind's device path.
	TPMDevice string `yaml:"tpm_device"`

	// MeasurementsURL points at published allowed measurements. Empty
	// disables the allow-list check.
	MeasurementsURL string `yaml:"measurements_url"`
}

// Config is the YAML configuration shared by the binaries. Flags override
// file values.
type Config struct {
	Transport   transport.Config  `yaml:"transport"`
	Attestation AttestationConfig `yaml:"attestation"`
}

// LoadConfig reads a YAML configuration file. A missing path yields the
// zero config so flags alone can configure a binary.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decoding config file: %w", err)
	}
	return cfg, nil
}

// NewAttestationProvider creates the configured provider. Verification
// never touches hardware, so the factory does not require a quoting
// device to be present; services that produce documents probe their
// device at startup instead.
func NewAttestationProvider(cfg AttestationConfig) (attest.Provider, error) {
	switch protocol.AttestationKind(cfg.Kind) {
	case protocol.KindMock, "":
		return &attest.MockProvider{}, nil
	case protocol.KindNSM:
		return &attest.NSMProvider{}, nil
	case protocol.KindTDX:
		if cfg.RemoteURL != "" {
			return &attest.RemoteTDXProvider{URL: cfg.RemoteURL, Timeout: 30 * time.Second}, nil
		}
		return &attest.TDXProvider{}, nil
	case protocol.KindVTPM:
		return &attest.TPMProvider{Device: cfg.TPMDevice}, nil
	default:
		return nil, fmt.Errorf("unknown attestation kind %q", cfg.Kind)
	}
}

// NewMeasurementSource creates a measurement source from a URL. Returns
// nil if measurementsURL is empty, indicating no allow-list check should
// be performed.
func NewMeasurementSource(measurementsURL string) attest.MeasurementSource {
	if measurementsURL != "" {
		return attest.NewRemoteMeasurementSource(measurementsURL)
	}
	return nil
}
