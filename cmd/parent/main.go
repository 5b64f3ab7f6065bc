// Command parent performs one OPRF invocation against an enclave service.
//
// The parent samples a fresh input and blinding factor, sends the blinded
// query over the configured transport, verifies the attestation in the
// response and prints the unblinded OPRF output together with the
// enclave's public key.
//
// The attestation kind must match the enclave's provider. When
// --measurements-url is set, the document's measurements must additionally
// match one of the published allowed builds.
//
// # Usage
//
//	go run ./cmd/parent --transport=tcp --attestation=mock
//	go run ./cmd/parent --transport=vsock --cid=16 --attestation=dcap-tdx \
//	    --measurements-url=https://example.com/measurements.json
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/moshih/nitro-oprf/client"
	"github.com/moshih/nitro-oprf/cmd/common"
	"github.com/moshih/nitro-oprf/transport"
)

func main() {
	var (
		configPath      = flag.String("config", "", "YAML config file (flags override)")
		transportKind   = flag.String("transport", "", "Transport kind: tcp or vsock")
		tcpAddr         = flag.String("addr", "", "TCP dial address")
		vsockCID        = flag.Uint("cid", 0, "vsock context ID of the enclave")
		vsockPort       = flag.Uint("port", 0, "vsock port")
		attestationKind = flag.String("attestation", "", "Attestation kind: mock, nsm, dcap-tdx or vtpm")
		remoteTDXURL    = flag.String("tdx-url", "", "Remote TDX quote sidecar URL")
		measurementsURL = flag.String("measurements-url", "", "URL for allowed measurements")
	)
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil)).With("service", "parent")

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *transportKind != "" {
		cfg.Transport.Kind = transport.Kind(*transportKind)
	}
	if *tcpAddr != "" {
		cfg.Transport.TCPAddr = *tcpAddr
	}
	if *vsockCID != 0 {
		cfg.Transport.ContextID = uint32(*vsockCID)
	}
	if *vsockPort != 0 {
		cfg.Transport.Port = uint32(*vsockPort)
	}
	if *attestationKind != "" {
		cfg.Attestation.Kind = *attestationKind
	}
	if *remoteTDXURL != "" {
		cfg.Attestation.RemoteURL = *remoteTDXURL
	}
	if *measurementsURL != "" {
		cfg.Attestation.MeasurementsURL = *measurementsURL
	}

	provider, err := common.NewAttestationProvider(cfg.Attestation)
	if err != nil {
		log.Error("initializing attestation provider", "err", err)
		os.Exit(1)
	}

	c, err := client.New(client.Config{
		Transport:    cfg.Transport,
		Provider:     provider,
		Measurements: common.NewMeasurementSource(cfg.Attestation.MeasurementsURL),
		Log:          log,
	})
	if err != nil {
		log.Error("initializing client", "err", err)
		os.Exit(1)
	}

	out, err := c.Invoke(context.Background())
	if err != nil {
		log.Error("OPRF invocation failed", "err", err)
		os.Exit(1)
	}

	resultBytes, err := out.Result.Bytes()
	if err != nil {
		log.Error("serializing result", "err", err)
		os.Exit(1)
	}
	publicBytes, err := out.PublicKey.Bytes()
	if err != nil {
		log.Error("serializing public key", "err", err)
		os.Exit(1)
	}

	fmt.Printf("oprf_output=%s\n", hex.EncodeToString(resultBytes))
	fmt.Printf("enclave_public_key=%s\n", hex.EncodeToString(publicBytes))
	for name, val := range out.Measurements {
		fmt.Printf("measurement_%s=%s\n", name, hex.EncodeToString(val))
	}
}
