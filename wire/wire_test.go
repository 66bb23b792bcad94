package wire

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello blocks")
	require.NoError(t, WriteFrame(&buf, payload))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestFrameEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, nil))
	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	_, err := ReadFrame(&buf)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestControlLineRoundTrip(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	done := make(chan string, 1)
	go func() {
		line, err := ReadLine(server, MaxControlRequest, 2*time.Second)
		require.NoError(t, err)
		done <- line
	}()

	require.NoError(t, WriteLine(client, "register 127.0.0.1:9001", 2*time.Second))
	assert.Equal(t, "register 127.0.0.1:9001", <-done)
}

func TestSplitPrefixKeepsRemainderIntact(t *testing.T) {
	parts := SplitPrefix("mkdir_result False Parent directory does not exist", 3)
	require.Len(t, parts, 3)
	assert.Equal(t, "Parent directory does not exist", parts[2])
}

func TestFields(t *testing.T) {
	assert.Equal(t, []string{"get_datanodes"}, Fields("get_datanodes  "))
}
