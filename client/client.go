// Package client implements the parent side of the OPRF protocol: blinding
// the input, driving the framed request/response exchange, verifying the
// attestation and unblinding the result.
package client

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/moshih/nitro-oprf/attest"
	"github.com/moshih/nitro-oprf/crypto"
	"github.com/moshih/nitro-oprf/protocol"
	"github.com/moshih/nitro-oprf/transport"
)

var (
	// ErrBindingMismatch is returned when the attestation user data does
	// not match the digest of the returned evaluated point. The result
	// is never trusted.
	ErrBindingMismatch = errors.New("attestation binding does not match evaluated point")

	// ErrAttestationRejected is returned when the provider rejects the
	// attestation document.
	ErrAttestationRejected = errors.New("attestation verification failed")

	// ErrMeasurementsRejected is returned when the document's
	// measurements match no allow-listed build.
	ErrMeasurementsRejected = errors.New("attestation measurements not in allow-list")
)

// DefaultFrameTimeout bounds the request/response exchange.
const DefaultFrameTimeout = 30 * time.Second

// Config configures the parent client.
type Config struct {
	// Transport selects the channel to the enclave.
	Transport transport.Config

	// Provider verifies attestation documents. Required; its kind must
	// match the documents the enclave produces.
	Provider attest.Provider

	// Measurements optionally pins acceptable enclave builds. When nil,
	// no allow-list check is performed.
	Measurements attest.MeasurementSource

	// Rand is the entropy source for the input and blinding factor.
	// Defaults to crypto/rand.Reader.
	Rand io.Reader

	// Log is the structured logger. Defaults to slog.Default().
	Log *slog.Logger

	// FrameTimeout bounds the exchange. Defaults to DefaultFrameTimeout.
	FrameTimeout time.Duration
}

// Output is the result of one OPRF invocation.
type Output struct {
	// Result is the unblinded PRF value g^(m·k).
	Result *crypto.Point

	// PublicKey is the enclave's g^k, returned for key pinning across
	// sessions.
	PublicKey *crypto.Point

	// Measurements are the verified attestation measurements.
	Measurements attest.Measurements
}

// Client performs OPRF invocations against an enclave service. It holds no
// state across invocations and is safe to re-invoke.
type Client struct {
	transport    transport.Config
	provider     attest.Provider
	measurements attest.MeasurementSource
	rand         io.Reader
	log          *slog.Logger
	frameTimeout time.Duration
}

// New validates the configuration and returns a client.
func New(cfg Config) (*Client, error) {
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
	return &Client{
		transport:    cfg.Transport,
		provider:     cfg.Provider,
		measurements: cfg.Measurements,
		rand:         rng,
		log:          log,
		frameTimeout: frameTimeout,
	}, nil
}

// Invoke samples a fresh input m and runs one OPRF exchange.
func (c *Client) Invoke(ctx context.Context) (*Output, error) {
	return c.InvokeScalar(ctx, crypto.RandomScalar(c.rand))
}

// InvokeScalar runs one OPRF exchange for the given input scalar m,
// returning g^(m·k).
func (c *Client) InvokeScalar(ctx context.Context, m *crypto.Scalar) (*Output, error) {
	b, bInv, err := c.sampleBlinding()
	if err != nil {
		return nil, err
	}

	blinded := crypto.ScalarMulGenerator(m.Mul(b))
	blindedBytes, err := blinded.Bytes()
	if err != nil {
		return nil, fmt.Errorf("serializing blinded query: %w", err)
	}

	req := &protocol.OprfRequest{
		BlindedQuery: blindedBytes,
		QueryHash:    crypto.Digest(blindedBytes),
	}

	resp, err := c.exchange(ctx, req)
	if err != nil {
		return nil, err
	}

	meas, err := c.verifyResponse(resp)
	if err != nil {
		return nil, err
	}

	evaluated, err := crypto.ParsePoint(resp.EvaluatedPoint)
	if err != nil {
		return nil, fmt.Errorf("decoding evaluated point: %w", err)
	}
	publicKey, err := crypto.ParsePoint(resp.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("decoding public key: %w", err)
	}

	return &Output{
		Result:       crypto.ScalarMul(evaluated, bInv),
		PublicKey:    publicKey,
		Measurements: meas,
	}, nil
}

// sampleBlinding draws a blinding factor and its inverse, resampling in the
// astronomically unlikely event the additive identity comes up.
func (c *Client) sampleBlinding() (*crypto.Scalar, *crypto.Scalar, error) {
	for attempt := 0; attempt < 3; attempt++ {
		b := crypto.RandomScalar(c.rand)
		if b.IsZero() {
			continue
		}
		bInv, err := b.Inverse()
		if err != nil {
			return nil, nil, fmt.Errorf("inverting blinding factor: %w", err)
		}
		return b, bInv, nil
	}
	// Three zero scalars in a row means the entropy source is broken.
	return nil, nil, fmt.Errorf("sampling blinding factor: %w", crypto.ErrZeroScalar)
}

// exchange performs the framed request/response round trip.
func (c *Client) exchange(ctx context.Context, req *protocol.OprfRequest) (*protocol.OprfResponse, error) {
	conn, err := transport.Dial(ctx, c.transport)
	if err != nil {
		return nil, fmt.Errorf("connecting to enclave: %w", err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(c.frameTimeout)); err != nil {
		return nil, fmt.Errorf("setting connection deadline: %w", err)
	}

	if err := protocol.WriteFrame(conn, req); err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}

	resp, err := protocol.ReadFrame[protocol.OprfResponse](conn)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return resp, nil
}

// verifyResponse enforces the binding between the attestation and the
// returned evaluated point, then runs provider verification and the
// optional measurement allow-list check.
func (c *Client) verifyResponse(resp *protocol.OprfResponse) (attest.Measurements, error) {
	expected := crypto.Digest(resp.EvaluatedPoint)
	if !bytes.Equal(resp.Attestation.UserData, expected) {
		return nil, ErrBindingMismatch
	}

	meas, err := c.provider.Verify(&resp.Attestation, expected)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrAttestationRejected, err)
	}

	if c.measurements != nil {
		allowed, err := c.measurements.GetAllowedMeasurements()
		if err != nil {
			return nil, fmt.Errorf("fetching allowed measurements: %w", err)
		}
		if !meas.MatchesAny(allowed) {
			return nil, ErrMeasurementsRejected
		}
	}

	c.log.Debug("attestation verified", "kind", string(resp.Attestation.Kind))
	return meas, nil
}
