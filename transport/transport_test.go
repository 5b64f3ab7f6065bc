package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/moshih/nitro-oprf/protocol"
)

func TestDefaults(t *testing.T) {
	cfg := Config{}.WithDefaults()
	require.Equal(t, TCP, cfg.Kind)
	require.Equal(t, DefaultTCPAddr, cfg.TCPAddr)
	require.Equal(t, uint32(DefaultEnclaveCID), cfg.ContextID)
	require.Equal(t, uint32(DefaultPort), cfg.Port)
}

func TestUnknownKind(t *testing.T) {
	_, err := Listen(Config{Kind: "unix"})
	require.Error(t, err)

	_, err = Dial(context.Background(), Config{Kind: "unix"})
	require.Error(t, err)
}

func TestTCPListenDialFrames(t *testing.T) {
	cfg := Config{Kind: TCP, TCPAddr: "127.0.0.1:0"}
	ln, err := Listen(cfg)
	require.NoError(t, err)
	defer ln.Close()

	cfg.TCPAddr = ln.Addr().String()

	done := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			done <- err
			return
		}
		defer conn.Close()

		req, err := protocol.ReadFrame[protocol.OprfRequest](conn)
		if err != nil {
			done <- err
			return
		}
		done <- protocol.WriteFrame(conn, &protocol.OprfResponse{EvaluatedPoint: req.BlindedQuery})
	}()

	conn, err := Dial(context.Background(), cfg)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	require.NoError(t, protocol.WriteFrame(conn, &protocol.OprfRequest{BlindedQuery: []byte{1, 2, 3}}))

	resp, err := protocol.ReadFrame[protocol.OprfResponse](conn)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, resp.EvaluatedPoint)
	require.NoError(t, <-done)
}

func TestDialRefused(t *testing.T) {
	// Grab a port that is closed by the time we dial it.
	ln, err := Listen(Config{Kind: TCP, TCPAddr: "127.0.0.1:0"})
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = Dial(context.Background(), Config{Kind: TCP, TCPAddr: addr})
	require.Error(t, err)
}
