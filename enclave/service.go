// Package enclave implements the OPRF evaluation service. The service owns
// the secret key, accepts connections, evaluates blinded queries and
// returns attestation-bound responses.
package enclave

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/moshih/nitro-oprf/attest"
	"github.com/moshih/nitro-oprf/crypto"
	"github.com/moshih/nitro-oprf/protocol"
)

// ErrIntegrity is returned when a request's query hash does not match its
// blinded query. The request is rejected before any evaluation.
var ErrIntegrity = errors.New("query hash does not match blinded query")

// DefaultFrameTimeout bounds one request/response exchange per connection.
const DefaultFrameTimeout = 30 * time.Second

// Config configures the enclave service.
type Config struct {
	// Provider generates attestations for evaluated responses. Required;
	// a service without a working provider cannot honor its security
	// contract.
	Provider attest.Provider

	// Rand is the entropy source for key generation. Defaults to
	// crypto/rand.Reader.
	Rand io.Reader

	// Log is the structured logger. Defaults to slog.Default().
	Log *slog.Logger

	// FrameTimeout bounds the per-connection exchange. Defaults to
	// DefaultFrameTimeout.
	FrameTimeout time.Duration
}

// Service evaluates blinded OPRF queries. The secret key is immutable after
// New returns; concurrent connections share it read-only.
type Service struct {
	key          *SecretKey
	provider     attest.Provider
	log          *slog.Logger
	frameTimeout time.Duration
}

// New generates the secret key and readies the service.
func New(cfg Config) (*Service, error) {
	if cfg.Provider == nil {
		return nil, errors.New("attestation provider is required")
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.Reader
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	frameTimeout := cfg.FrameTimeout
	if frameTimeout == 0 {
		frameTimeout = DefaultFrameTimeout
	}

	key, err := GenerateSecretKey(rng)
	if err != nil {
		return nil, fmt.Errorf("generating secret key: %w", err)
	}

	log.Info("generated OPRF key",
		"public_key", hex.EncodeToString(key.PublicBytes()),
		"attestation", string(cfg.Provider.Kind()))

	return &Service{
		key:          key,
		provider:     cfg.Provider,
		log:          log,
		frameTimeout: frameTimeout,
	}, nil
}

// PublicKey returns g^k for key pinning.
func (s *Service) PublicKey() *crypto.Point {
	return s.key.Public()
}

// Serve accepts connections until ctx is canceled or the listener fails.
// Each connection is handled in its own goroutine; the exchange is a single
// framed request and response.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accepting connection: %w", err)
		}
		go s.handleConn(conn)
	}
}

func (s *Service) handleConn(conn net.Conn) {
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(s.frameTimeout)); err != nil {
		s.log.Error("setting connection deadline", "err", err)
		return
	}

	req, err := protocol.ReadFrame[protocol.OprfRequest](conn)
	if err != nil {
		s.log.Error("reading request frame", "err", err, "remote", conn.RemoteAddr())
		return
	}

	resp, err := s.Evaluate(req)
	if err != nil {
		s.log.Error("evaluating request", "err", err, "remote", conn.RemoteAddr())
		return
	}

	if err := protocol.WriteFrame(conn, resp); err != nil {
		s.log.Error("writing response frame", "err", err, "remote", conn.RemoteAddr())
		return
	}

	s.log.Info("request served", "remote", conn.RemoteAddr())
}

// Evaluate runs one OPRF evaluation: integrity check, point validation,
// exponentiation by k, and attestation of the result.
func (s *Service) Evaluate(req *protocol.OprfRequest) (*protocol.OprfResponse, error) {
	if !bytes.Equal(crypto.Digest(req.BlindedQuery), req.QueryHash) {
		return nil, ErrIntegrity
	}

	blinded, err := crypto.ParsePoint(req.BlindedQuery)
	if err != nil {
		return nil, fmt.Errorf("decoding blinded query: %w", err)
	}

	evaluated := s.key.Evaluate(blinded)
	evaluatedBytes, err := evaluated.Bytes()
	if err != nil {
		return nil, fmt.Errorf("serializing evaluated point: %w", err)
	}

	doc, err := s.provider.Attest(crypto.Digest(evaluatedBytes))
	if err != nil {
		return nil, fmt.Errorf("generating attestation: %w", err)
	}

	return &protocol.OprfResponse{
		EvaluatedPoint: evaluatedBytes,
		PublicKey:      s.key.PublicBytes(),
		Attestation:    *doc,
	}, nil
}
