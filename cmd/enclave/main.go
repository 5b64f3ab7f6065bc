// Command enclave runs the OPRF evaluation service.
//
// The service generates its secret key at startup, listens on the
// configured transport and answers framed OPRF requests with
// attestation-bound responses. The key lives for the process lifetime and
// is never persisted.
//
// # Transports
//
// Inside an enclave or confidential VM the service listens on a vsock port
// (--transport=vsock); for local development it listens on loopback TCP.
//
// # Attestation
//
// The attestation provider is fixed at startup (--attestation). A service
// whose provider cannot be initialized exits immediately: without a
// working trust root it cannot honor its security contract.
//
// # Usage
//
//	go run ./cmd/enclave --transport=tcp --attestation=mock
//	go run ./cmd/enclave --transport=vsock --attestation=dcap-tdx
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/moshih/nitro-oprf/cmd/common"
	"github.com/moshih/nitro-oprf/enclave"
	"github.com/moshih/nitro-oprf/transport"
)

func main() {
	var (
		configPath      = flag.String("config", "", "YAML config file (flags override)")
		transportKind   = flag.String("transport", "", "Transport kind: tcp or vsock")
		tcpAddr         = flag.String("addr", "", "TCP listen address")
		vsockPort       = flag.Uint("port", 0, "vsock listen port")
		attestationKind = flag.String("attestation", "", "Attestation kind: mock, nsm, dcap-tdx or vtpm")
		remoteTDXURL    = flag.String("tdx-url", "", "Remote TDX quote sidecar URL")
		tpmDevice       = flag.String("tpm-device", "", "TPM device path")
	)
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stderr, nil)).With("service", "enclave")

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
	if *vsockPort != 0 {
		cfg.Transport.Port = uint32(*vsockPort)
	}
	if *attestationKind != "" {
		cfg.Attestation.Kind = *attestationKind
	}
	if *remoteTDXURL != "" {
		cfg.Attestation.RemoteURL = *remoteTDXURL
	}
	if *tpmDevice != "" {
		cfg.Attestation.TPMDevice = *tpmDevice
	}

	provider, err := common.NewAttestationProvider(cfg.Attestation)
	if err != nil {
		log.Error("initializing attestation provider", "err", err)
		os.Exit(1)
	}
	// Fail at startup when the attestation device is missing instead of
	// on the first request.
	if prober, ok := provider.(interface{ Probe() error }); ok {
		if err := prober.Probe(); err != nil {
			log.Error("probing attestation device", "err", err)
			os.Exit(1)
		}
	}

	svc, err := enclave.New(enclave.Config{Provider: provider, Log: log})
	if err != nil {
		log.Error("initializing service", "err", err)
		os.Exit(1)
	}

	ln, err := transport.Listen(cfg.Transport)
	if err != nil {
		log.Error("opening listener", "err", err)
		os.Exit(1)
	}
	log.Info("listening", "addr", ln.Addr().String(), "transport", string(cfg.Transport.WithDefaults().Kind))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.Serve(ctx, ln); err != nil {
		log.Error("serve failed", "err", err)
		os.Exit(1)
	}
}
