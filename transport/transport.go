// Package transport provides the connection-oriented byte stream underneath
// the OPRF protocol. Two address spaces are supported: loopback TCP sockets
// for local runs and vsock hypervisor-guest sockets for enclave deployments.
// The choice is configuration, invisible to the protocol layer above.
package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/mdlayher/vsock"
)

// Kind selects the address space used for listen and dial.
type Kind string

const (
	// TCP listens and dials on a loopback TCP address.
	TCP Kind = "tcp"

	// VSock listens and dials on a hypervisor-guest stream socket.
	VSock Kind = "vsock"
)

// Valid returns true if the transport kind is recognized.
func (k Kind) Valid() bool {
	return k == TCP || k == VSock
}

const (
	// DefaultTCPAddr is the loopback endpoint used when no address is
	// configured.
	DefaultTCPAddr = "127.0.0.1:5000"

	// DefaultPort is the vsock port used when none is configured.
	DefaultPort = 5000

	// DefaultEnclaveCID is the context ID parents dial to reach the
	// enclave guest.
	DefaultEnclaveCID = 16

	// DefaultDialTimeout bounds connection establishment.
	DefaultDialTimeout = 10 * time.Second
)

// Config selects a transport kind and its endpoint.
type Config struct {
	Kind Kind `yaml:"kind" json:"kind"`

	// TCPAddr is the listen/dial address for the TCP kind.
	TCPAddr string `yaml:"tcp_addr" json:"tcp_addr"`

	// ContextID is the vsock CID dialed by clients. Listeners bind to
	// the local CID and ignore this field.
	ContextID uint32 `yaml:"context_id" json:"context_id"`

	// Port is the vsock port for the VSock kind.
	Port uint32 `yaml:"port" json:"port"`
}

// WithDefaults fills unset fields with the default endpoints.
func (c Config) WithDefaults() Config {
	if c.Kind == "" {
		c.Kind = TCP
	}
	if c.TCPAddr == "" {
		c.TCPAddr = DefaultTCPAddr
	}
	if c.ContextID == 0 {
		c.ContextID = DefaultEnclaveCID
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	return c
}

// Listen opens a listener for the configured address space.
func Listen(cfg Config) (net.Listener, error) {
	cfg = cfg.WithDefaults()
	switch cfg.Kind {
	case TCP:
		ln, err := net.Listen("tcp", cfg.TCPAddr)
		if err != nil {
			return nil, fmt.Errorf("listening on %s: %w", cfg.TCPAddr, err)
		}
		return ln, nil
	case VSock:
		ln, err := vsock.Listen(cfg.Port, nil)
		if err != nil {
			return nil, fmt.Errorf("listening on vsock port %d: %w", cfg.Port, err)
		}
		return ln, nil
	default:
		return nil, fmt.Errorf("unknown transport kind %q", cfg.Kind)
	}
}

// Dial connects to the configured endpoint. The TCP path honors ctx for
// cancellation; vsock establishment is bounded by the kernel's own timeout.
func Dial(ctx context.Context, cfg Config) (net.Conn, error) {
	cfg = cfg.WithDefaults()
	switch cfg.Kind {
	case TCP:
		dialer := net.Dialer{Timeout: DefaultDialTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", cfg.TCPAddr)
		if err != nil {
			return nil, fmt.Errorf("dialing %s: %w", cfg.TCPAddr, err)
		}
		return conn, nil
	case VSock:
		conn, err := vsock.Dial(cfg.ContextID, cfg.Port, nil)
		if err != nil {
			return nil, fmt.Errorf("dialing vsock cid %d port %d: %w", cfg.ContextID, cfg.Port, err)
		}
		return conn, nil
	default:
		return nil, fmt.Errorf("unknown transport kind %q", cfg.Kind)
	}
}
