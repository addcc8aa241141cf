package redisub

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startServer returns a listener plus a channel yielding accepted
// connections. The listener is closed with the test.
func startServer(t *testing.T) (net.Listener, <-chan net.Conn) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	conns := make(chan net.Conn, 4)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conns <- conn
		}
	}()
	return ln, conns
}

func serverPort(t *testing.T, ln net.Listener) int {
	t.Helper()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestTCPTransportSendCommitReceive(t *testing.T) {
	ln, conns := startServer(t)

	tr := newTCPTransport(testLogger())
	received := make(chan Reply, 1)
	require.NoError(t, tr.Connect("127.0.0.1", serverPort(t, ln), nil,
		func(reply Reply) { received <- reply }, time.Second, nil))
	require.True(t, tr.IsConnected())

	conn := <-conns
	defer conn.Close()

	// Nothing hits the wire before Commit.
	require.NoError(t, tr.Send("SUBSCRIBE", "news"))
	require.NoError(t, tr.Send("PING"))
	require.NoError(t, tr.Commit())

	want := "*2\r\n$9\r\nSUBSCRIBE\r\n$4\r\nnews\r\n*1\r\n$4\r\nPING\r\n"
	buf := make([]byte, len(want))
	_, err := io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, want, string(buf))

	// Server push is parsed and delivered to the receive handler.
	_, err = conn.Write([]byte("*3\r\n$9\r\nsubscribe\r\n$4\r\nnews\r\n:1\r\n"))
	require.NoError(t, err)

	select {
	case reply := <-received:
		require.True(t, reply.IsArray())
		elems := reply.AsArray()
		require.Len(t, elems, 3)
		assert.Equal(t, "subscribe", elems[0].AsString())
		assert.Equal(t, "news", elems[1].AsString())
		assert.Equal(t, int64(1), elems[2].AsInteger())
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for pushed reply")
	}

	tr.Disconnect(true)
	assert.False(t, tr.IsConnected())
}

func TestTCPTransportServerCloseFiresDisconnect(t *testing.T) {
	ln, conns := startServer(t)

	tr := newTCPTransport(testLogger())
	dropped := make(chan struct{}, 1)
	require.NoError(t, tr.Connect("127.0.0.1", serverPort(t, ln), func() {
		dropped <- struct{}{}
	}, nil, time.Second, nil))

	conn := <-conns
	conn.Close()

	select {
	case <-dropped:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for disconnect handler")
	}
	assert.False(t, tr.IsConnected())
	tr.Disconnect(true)
}

func TestTCPTransportExplicitDisconnectIsSilent(t *testing.T) {
	ln, conns := startServer(t)

	tr := newTCPTransport(testLogger())
	dropped := make(chan struct{}, 1)
	require.NoError(t, tr.Connect("127.0.0.1", serverPort(t, ln), func() {
		dropped <- struct{}{}
	}, nil, time.Second, nil))
	defer (<-conns).Close()

	// A requested disconnect must not look like a connection loss.
	tr.Disconnect(true)

	select {
	case <-dropped:
		t.Fatal("disconnect handler fired for an explicit disconnect")
	default:
	}
	assert.False(t, tr.IsConnected())
}

func TestTCPTransportConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	tr := newTCPTransport(testLogger())
	err = tr.Connect("127.0.0.1", port, nil, nil, 250*time.Millisecond, nil)
	require.Error(t, err)
	assert.False(t, tr.IsConnected())
}

func TestTCPTransportAlreadyConnected(t *testing.T) {
	ln, conns := startServer(t)

	tr := newTCPTransport(testLogger())
	require.NoError(t, tr.Connect("127.0.0.1", serverPort(t, ln), nil, nil, time.Second, nil))
	defer (<-conns).Close()
	defer tr.Disconnect(true)

	err := tr.Connect("127.0.0.1", serverPort(t, ln), nil, nil, time.Second, nil)
	assert.ErrorIs(t, err, ErrAlreadyConnected)
}

func TestTCPTransportCommitWhenNotConnected(t *testing.T) {
	tr := newTCPTransport(testLogger())

	// An empty pipeline commits trivially.
	require.NoError(t, tr.Commit())

	require.NoError(t, tr.Send("PING"))
	assert.ErrorIs(t, tr.Commit(), ErrNotConnected)
}
