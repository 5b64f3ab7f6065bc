// Command quote-server exposes the local TDX quoting device over HTTP.
//
// On hosts where only one process may open the configfs quote interface,
// this sidecar serves raw quotes to co-located services. Enclave services
// configured with --tdx-url fetch their quotes from here via
// GET /attest/{report_data}.
//
// # Endpoints
//
//	GET /attest/{report_data}  raw quote for the hex-encoded report data
//	GET /livez                 liveness check
//	GET /readyz                readiness check
//	GET /drain, /undrain       load-balancer drain control
//
// # Usage
//
//	go run ./cmd/quote-server --listen-addr=127.0.0.1:8081
//	go run ./cmd/quote-server --listen-addr=127.0.0.1:8081 --dummy
package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/moshih/nitro-oprf/api/httpserver"
	"github.com/moshih/nitro-oprf/attest"
	"github.com/moshih/nitro-oprf/crypto"
)

// dummySource answers with the report data itself instead of a real quote.
// Useful for exercising the HTTP plumbing on machines without a TDX device.
type dummySource struct{}

func (dummySource) RawQuote(reportData [crypto.ReportDataSize]byte) ([]byte, error) {
	return reportData[:], nil
}

func main() {
	var (
		listenAddr  = flag.String("listen-addr", "127.0.0.1:8081", "HTTP listen address")
		enablePprof = flag.Bool("pprof", false, "Enable pprof debug API")
		dummy       = flag.Bool("dummy", false, "Echo report data instead of quoting (no TDX device needed)")
	)
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stderr, nil)).With("service", "quote-server")

	var source httpserver.QuoteSource = &attest.TDXProvider{}
	if *dummy {
		log.Warn("Serving dummy quotes, do not use in production")
		source = dummySource{}
	}

	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               *listenAddr,
		EnablePprof:              *enablePprof,
		Log:                      log,
		DrainDuration:            5 * time.Second,
		GracefulShutdownDuration: 10 * time.Second,
		ReadTimeout:              10 * time.Second,
		WriteTimeout:             10 * time.Second,
	}, httpserver.NewQuoteHandler(source, log))
	if err != nil {
		log.Error("initializing HTTP server", "err", err)
		os.Exit(1)
	}

	srv.RunInBackground()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down")
	srv.Shutdown()
}
