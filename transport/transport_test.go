package transport

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arjsin/simproto/sim"
)

// echoEndpoint returns an endpoint serving an "echo" RPC topic.
func echoEndpoint(t *testing.T) *sim.Sim {
	t.Helper()
	h := sim.NewHandler(sim.HandlerOptions{})
	h.OnRPC([]byte("echo"), func(_ context.Context, msg []byte) ([]byte, error) {
		return msg, nil
	})
	s := sim.New(h, sim.Options{})
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func clientEndpoint(t *testing.T) *sim.Sim {
	t.Helper()
	s := sim.New(sim.NewHandler(sim.HandlerOptions{}), sim.Options{})
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testEcho(t *testing.T, server *sim.Sim, serverConn, clientConn net.Conn) {
	t.Helper()
	_, err := server.Attach(serverConn)
	require.NoError(t, err)

	req, err := clientEndpoint(t).Attach(clientConn)
	require.NoError(t, err)

	resp, err := req.RPC(context.Background(), []byte("echo"), []byte("ping"))
	require.NoError(t, err)
	assert.Equal(t, sim.StatusAccepted, resp.Status)
	assert.Equal(t, []byte("ping"), resp.Body)
}

func TestSimOverTCP(t *testing.T) {
	ln, err := ListenTCP("127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	connCh := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		connCh <- conn
	}()

	clientConn, err := DialTCP(TCPOptions{Address: ln.Addr().String()})
	require.NoError(t, err)

	testEcho(t, echoEndpoint(t), <-connCh, clientConn)
}

func TestSimOverIPC(t *testing.T) {
	path := t.TempDir() + "/sim.sock"
	ln, err := ListenIPC(path)
	require.NoError(t, err)
	defer ln.Close()

	connCh := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		connCh <- conn
	}()

	clientConn, err := DialIPC(IPCOptions{Path: path})
	require.NoError(t, err)

	testEcho(t, echoEndpoint(t), <-connCh, clientConn)
}

func TestDialTCPEmptyAddress(t *testing.T) {
	_, err := DialTCP(TCPOptions{})
	assert.Error(t, err)
}

func TestDialIPCEmptyPath(t *testing.T) {
	_, err := DialIPC(IPCOptions{})
	assert.Error(t, err)
}
