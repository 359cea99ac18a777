package socket_test

import (
	"bytes"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/OpenListTeam/gosock/sockerr"
	"github.com/OpenListTeam/gosock/socket"
)

// freeTCPPort grabs an ephemeral port from the kernel and releases it so
// the listener under test can bind it. A tiny race window exists but is
// harmless on a quiet test host.
func freeTCPPort(t *testing.T) uint16 {
	t.Helper()
	l, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return uint16(port)
}

func startListener(t *testing.T) (*socket.ServerSocket, uint16) {
	t.Helper()
	port := freeTCPPort(t)
	srv, err := socket.NewServerSocket(port)
	require.NoError(t, err)
	require.NoError(t, srv.Bind())
	require.NoError(t, srv.Listen(0))
	t.Cleanup(func() { srv.Close() })
	return srv, port
}

func acceptOne(t *testing.T, srv *socket.ServerSocket) <-chan *socket.Socket {
	t.Helper()
	ch := make(chan *socket.Socket, 1)
	go func() {
		conn, err := srv.Accept()
		if err != nil {
			close(ch)
			return
		}
		ch <- conn
	}()
	return ch
}

func readFull(t *testing.T, s *socket.Socket, n int) []byte {
	t.Helper()
	var got []byte
	for len(got) < n {
		chunk, err := s.Read(n - len(got))
		require.NoError(t, err)
		got = append(got, chunk...)
	}
	return got
}

func TestStreamRoundTrip(t *testing.T) {
	srv, port := startListener(t)
	accepted := acceptOne(t, srv)

	cli, err := socket.NewSocket("127.0.0.1", port, 0)
	require.NoError(t, err)
	defer cli.Close()
	require.NoError(t, cli.Connect())
	require.True(t, cli.IsConnected())

	conn, ok := <-accepted
	require.True(t, ok, "accept failed")
	defer conn.Close()
	require.True(t, strings.HasPrefix(conn.RemoteAddress(), "127.0.0.1:"))

	payload := bytes.Repeat([]byte("0123456789abcdef"), 512)
	require.NoError(t, cli.WriteAll(payload))
	require.Equal(t, payload, readFull(t, conn, len(payload)))

	require.NoError(t, conn.WriteAll(payload))
	require.Equal(t, payload, readFull(t, cli, len(payload)))
}

func TestReadStringAndWriteString(t *testing.T) {
	srv, port := startListener(t)
	accepted := acceptOne(t, srv)

	cli, err := socket.NewSocket("127.0.0.1", port, 0)
	require.NoError(t, err)
	defer cli.Close()
	require.NoError(t, cli.Connect())

	conn := <-accepted
	defer conn.Close()

	_, err = cli.WriteString("ping")
	require.NoError(t, err)
	msg, err := conn.ReadString()
	require.NoError(t, err)
	require.Equal(t, "ping", msg)
}

func TestReadAfterPeerClose(t *testing.T) {
	srv, port := startListener(t)
	accepted := acceptOne(t, srv)

	cli, err := socket.NewSocket("127.0.0.1", port, 0)
	require.NoError(t, err)
	defer cli.Close()
	require.NoError(t, cli.Connect())

	conn := <-accepted
	require.NoError(t, conn.WriteAll([]byte("bye")))
	require.NoError(t, conn.Close())

	// Buffered bytes drain normally; only then does the closed state
	// surface.
	require.Equal(t, []byte("bye"), readFull(t, cli, 3))
	_, err = cli.Read(16)
	require.Error(t, err)
	require.True(t, sockerr.IsClosedByPeer(err))
}

func TestShutdownWriteSignalsPeer(t *testing.T) {
	srv, port := startListener(t)
	accepted := acceptOne(t, srv)

	cli, err := socket.NewSocket("127.0.0.1", port, 0)
	require.NoError(t, err)
	defer cli.Close()
	require.NoError(t, cli.Connect())

	conn := <-accepted
	defer conn.Close()

	require.NoError(t, cli.Shutdown(socket.ShutdownWrite))
	_, err = conn.Read(16)
	require.True(t, sockerr.IsClosedByPeer(err))
}

func TestConnectTimeout(t *testing.T) {
	// 203.0.113.0/24 is reserved for documentation and never routed, so
	// SYNs disappear and the bounded wait has to fire.
	cli, err := socket.NewSocket("203.0.113.1", 65000, 0)
	require.NoError(t, err)
	defer cli.Close()
	require.NoError(t, cli.SetTimeout(250, true))

	start := time.Now()
	err = cli.Connect()
	require.Error(t, err)
	if sockerr.IsKind(err, sockerr.KindConnection) {
		t.Skipf("host rejects test-net traffic outright: %v", err)
	}
	require.True(t, sockerr.IsTimeout(err))
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestSocketCloseIdempotent(t *testing.T) {
	srv, port := startListener(t)
	accepted := acceptOne(t, srv)

	cli, err := socket.NewSocket("127.0.0.1", port, 0)
	require.NoError(t, err)
	require.NoError(t, cli.Connect())
	<-accepted

	require.NoError(t, cli.Close())
	require.NoError(t, cli.Close())
	require.False(t, cli.IsValid())
	require.False(t, cli.IsConnected())

	_, err = cli.Write([]byte("x"))
	require.True(t, sockerr.IsKind(err, sockerr.KindInvalidState))
	_, err = cli.Read(1)
	require.True(t, sockerr.IsKind(err, sockerr.KindInvalidState))
}

func TestServerBindPortZeroFails(t *testing.T) {
	srv, err := socket.NewServerSocket(0)
	require.NoError(t, err)
	defer srv.Close()

	err = srv.Bind()
	require.Error(t, err)
	require.True(t, sockerr.IsKind(err, sockerr.KindBind))
	require.False(t, srv.IsValid())
}

func TestServerBindConflictFails(t *testing.T) {
	_, port := startListener(t)

	second, err := socket.NewServerSocket(port)
	require.NoError(t, err)
	defer second.Close()

	err = second.Bind()
	require.Error(t, err)
	require.True(t, sockerr.IsKind(err, sockerr.KindBind))
	require.False(t, second.IsValid())
}

func TestServerLifecycleGuards(t *testing.T) {
	port := freeTCPPort(t)
	srv, err := socket.NewServerSocket(port)
	require.NoError(t, err)
	defer srv.Close()

	// Listen before Bind and Accept before Listen are state errors.
	require.True(t, sockerr.IsKind(srv.Listen(0), sockerr.KindInvalidState))
	_, err = srv.Accept()
	require.True(t, sockerr.IsKind(err, sockerr.KindInvalidState))

	require.NoError(t, srv.Bind())
	require.True(t, sockerr.IsKind(srv.Bind(), sockerr.KindInvalidState))
	require.NoError(t, srv.Listen(0))
	require.Contains(t, srv.LocalAddress(), ":")
}

func TestServerCloseIdempotent(t *testing.T) {
	srv, _ := startListener(t)
	require.NoError(t, srv.Close())
	require.NoError(t, srv.Close())
	require.False(t, srv.IsValid())
}

func TestNonBlockingReadWouldBlock(t *testing.T) {
	srv, port := startListener(t)
	accepted := acceptOne(t, srv)

	cli, err := socket.NewSocket("127.0.0.1", port, 0)
	require.NoError(t, err)
	defer cli.Close()
	require.NoError(t, cli.Connect())
	conn := <-accepted
	defer conn.Close()

	require.NoError(t, cli.SetNonBlocking(true))
	_, err = cli.Read(16)
	require.True(t, sockerr.IsWouldBlock(err))

	// Data arriving makes the same call succeed.
	require.NoError(t, conn.WriteAll([]byte("now")))
	ready, err := cli.WaitReady(false, 2000)
	require.NoError(t, err)
	require.True(t, ready)
	got, err := cli.Read(16)
	require.NoError(t, err)
	require.Equal(t, []byte("now"), got)
}

func TestSocketOptionsApply(t *testing.T) {
	srv, port := startListener(t)
	accepted := acceptOne(t, srv)

	cli, err := socket.NewSocket("127.0.0.1", port, 0)
	require.NoError(t, err)
	defer cli.Close()
	require.NoError(t, cli.Connect())
	<-accepted

	require.NoError(t, cli.EnableNoDelay(true))
	require.NoError(t, cli.EnableKeepAlive(true))
	require.NoError(t, cli.SetTimeout(500, false))
	cli.SetBufferSize(16 * 1024)
	require.Contains(t, cli.LocalAddress(), "127.0.0.1:")
}
