package socket_test

import (
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/OpenListTeam/gosock/sockerr"
	"github.com/OpenListTeam/gosock/socket"
)

func freeUDPPort(t *testing.T) uint16 {
	t.Helper()
	c, err := net.ListenPacket("udp", ":0")
	require.NoError(t, err)
	port := c.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, c.Close())
	return uint16(port)
}

func TestDatagramRoundTrip(t *testing.T) {
	port := freeUDPPort(t)
	recv, err := socket.NewBoundDatagramSocket(port)
	require.NoError(t, err)
	defer recv.Close()
	require.NoError(t, recv.SetTimeout(2000))

	cli, err := socket.NewDatagramSocket()
	require.NoError(t, err)
	defer cli.Close()

	payload := []byte("gtest-udp")
	n, err := cli.SendTo(payload, "127.0.0.1", port)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	buf := make([]byte, 64)
	n, host, senderPort, err := recv.RecvFrom(buf)
	require.NoError(t, err)
	require.Equal(t, payload, buf[:n])
	require.Equal(t, "127.0.0.1", host)
	require.Equal(t, cli.LocalPort(), senderPort)
}

func TestDatagramReplyToSender(t *testing.T) {
	port := freeUDPPort(t)
	recv, err := socket.NewBoundDatagramSocket(port)
	require.NoError(t, err)
	defer recv.Close()
	require.NoError(t, recv.SetTimeout(2000))

	cli, err := socket.NewDatagramSocket()
	require.NoError(t, err)
	defer cli.Close()

	_, err = cli.SendTo([]byte("hello"), "127.0.0.1", port)
	require.NoError(t, err)

	buf := make([]byte, 64)
	_, host, senderPort, err := recv.RecvFrom(buf)
	require.NoError(t, err)

	// The receiver answers using the address RecvFrom reported.
	_, err = recv.SendTo([]byte("world"), host, senderPort)
	require.NoError(t, err)

	require.NoError(t, cli.SetTimeout(2000))
	n, _, _, err := cli.RecvFrom(buf)
	require.NoError(t, err)
	require.Equal(t, "world", string(buf[:n]))
}

func TestDatagramLazyDescriptor(t *testing.T) {
	cli, err := socket.NewDatagramSocket()
	require.NoError(t, err)
	defer cli.Close()

	// No descriptor exists until the first send.
	require.False(t, cli.IsValid())
	require.Equal(t, uint16(0), cli.LocalPort())
	require.Equal(t, "null", cli.LocalAddress())

	_, _, _, err = cli.RecvFrom(make([]byte, 8))
	require.True(t, sockerr.IsKind(err, sockerr.KindInvalidState))

	_, err = cli.SendTo([]byte("x"), "127.0.0.1", freeUDPPort(t))
	require.NoError(t, err)
	require.True(t, cli.IsValid())
	require.NotEqual(t, uint16(0), cli.LocalPort())
}

func TestDatagramDoubleBindFails(t *testing.T) {
	port := freeUDPPort(t)
	d, err := socket.NewBoundDatagramSocket(port)
	require.NoError(t, err)
	defer d.Close()

	err = d.Bind(port)
	require.True(t, sockerr.IsKind(err, sockerr.KindInvalidState))
}

func TestDatagramBindConflictFails(t *testing.T) {
	port := freeUDPPort(t)
	first, err := socket.NewBoundDatagramSocket(port)
	require.NoError(t, err)
	defer first.Close()

	second, err := socket.NewDatagramSocket()
	require.NoError(t, err)
	defer second.Close()
	err = second.Bind(port)
	require.Error(t, err)
	require.True(t, sockerr.IsKind(err, sockerr.KindBind))
	require.False(t, second.IsValid())
}

func TestDatagramOptions(t *testing.T) {
	port := freeUDPPort(t)
	d, err := socket.NewBoundDatagramSocket(port)
	require.NoError(t, err)
	defer d.Close()

	require.NoError(t, d.SetOption(syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1))
	v, err := d.GetOption(syscall.SOL_SOCKET, syscall.SO_BROADCAST)
	require.NoError(t, err)
	require.NotEqual(t, 0, v)
}

func TestDatagramUseAfterCloseFails(t *testing.T) {
	port := freeUDPPort(t)
	d, err := socket.NewBoundDatagramSocket(port)
	require.NoError(t, err)
	require.NoError(t, d.Close())

	// Rebinding or sending would recreate a descriptor on a socket whose
	// stack reference is already released.
	err = d.Bind(port)
	require.True(t, sockerr.IsKind(err, sockerr.KindInvalidState))
	_, err = d.SendTo([]byte("x"), "127.0.0.1", port)
	require.True(t, sockerr.IsKind(err, sockerr.KindInvalidState))
	require.False(t, d.IsValid())
}

func TestDatagramCloseIdempotent(t *testing.T) {
	d, err := socket.NewBoundDatagramSocket(freeUDPPort(t))
	require.NoError(t, err)
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	require.False(t, d.IsValid())
}
