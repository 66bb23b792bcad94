package blockserver

import (
	"bufio"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedCoordinator is a minimal raw TCP stub speaking just enough of the
// control protocol to exercise CoordinatorClient without importing the
// coordinator package (which would make this a circular test dependency).
func scriptedCoordinator(t *testing.T, reply string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		reader := bufio.NewReader(conn)
		_, _ = reader.ReadString('\n')
		conn.Write([]byte(reply + "\n"))
	}()
	return ln.Addr().String()
}

func TestCoordinatorClientRegister(t *testing.T) {
	addr := scriptedCoordinator(t, "DataNode 127.0.0.1:9101 registered")
	c := NewCoordinatorClient(addr)
	require.NoError(t, c.Register("127.0.0.1:9101"))
}

func TestCoordinatorClientHeartbeat(t *testing.T) {
	addr := scriptedCoordinator(t, "Heartbeat acknowledged")
	c := NewCoordinatorClient(addr)
	require.NoError(t, c.Heartbeat("127.0.0.1:9101"))
}

func TestCoordinatorClientPeersExcludesSelf(t *testing.T) {
	addr := scriptedCoordinator(t, "datanodes 127.0.0.1:9101 127.0.0.1:9102")
	c := NewCoordinatorClient(addr)
	peers, err := c.Peers("127.0.0.1:9101")
	require.NoError(t, err)
	assert.Equal(t, []string{"127.0.0.1:9102"}, peers)
}

func TestCoordinatorClientRejectsUnexpectedResponse(t *testing.T) {
	addr := scriptedCoordinator(t, "nonsense")
	c := NewCoordinatorClient(addr)
	assert.Error(t, c.Register("x"))
}

func TestCoordinatorClientDialFailure(t *testing.T) {
	c := NewCoordinatorClient("127.0.0.1:1")
	_, err := c.Peers("x")
	assert.Error(t, err)
}
