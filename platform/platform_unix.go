//go:build unix

package platform

import (
	"net"
	"net/netip"
	"time"

	"golang.org/x/sys/unix"
)

// FD is the native descriptor type.
type FD = int

// InvalidFD is the sentinel a released handle carries.
const InvalidFD FD = -1

// Socket creates a descriptor for the given family and transport.
// The descriptor is close-on-exec and starts in blocking mode.
func Socket(family Family, sotype SockType) (FD, error) {
	domain := unix.AF_INET
	if family == FamilyIPv6 {
		domain = unix.AF_INET6
	}
	typ, proto := unix.SOCK_STREAM, unix.IPPROTO_TCP
	if sotype == TypeDatagram {
		typ, proto = unix.SOCK_DGRAM, unix.IPPROTO_UDP
	}
	fd, err := unix.Socket(domain, typ, proto)
	if err != nil {
		return InvalidFD, err
	}
	unix.CloseOnExec(fd)
	if err := setNoSigpipe(fd); err != nil {
		unix.Close(fd)
		return InvalidFD, err
	}
	return fd, nil
}

// Close releases the descriptor.
func Close(fd FD) error {
	return unix.Close(fd)
}

// SetNonblock toggles O_NONBLOCK.
func SetNonblock(fd FD, nonblocking bool) error {
	return unix.SetNonblock(fd, nonblocking)
}

// Shutdown closes one or both directions of a connected descriptor.
func Shutdown(fd FD, how How) error {
	var h int
	switch how {
	case ShutRead:
		h = unix.SHUT_RD
	case ShutWrite:
		h = unix.SHUT_WR
	default:
		h = unix.SHUT_RDWR
	}
	return unix.Shutdown(fd, h)
}

func Bind(fd FD, ap netip.AddrPort) error {
	return unix.Bind(fd, sockaddrFromAddrPort(ap))
}

func Connect(fd FD, ap netip.AddrPort) error {
	return unix.Connect(fd, sockaddrFromAddrPort(ap))
}

func Listen(fd FD, backlog int) error {
	return unix.Listen(fd, backlog)
}

// Accept returns a connected descriptor and the peer address captured by
// the kernel at accept time.
func Accept(fd FD) (FD, netip.AddrPort, error) {
	nfd, sa, err := unix.Accept(fd)
	if err != nil {
		return InvalidFD, netip.AddrPort{}, err
	}
	unix.CloseOnExec(nfd)
	return nfd, addrPortFromSockaddr(sa), nil
}

func Read(fd FD, p []byte) (int, error) {
	return unix.Read(fd, p)
}

// Write sends on a connected descriptor. MSG_NOSIGNAL (or SO_NOSIGPIPE set
// at creation) turns write-to-closed-peer into a normal error return
// instead of a process-level signal.
func Write(fd FD, p []byte) (int, error) {
	return unix.SendmsgN(fd, p, nil, nil, msgNoSignal)
}

func RecvFrom(fd FD, p []byte) (int, netip.AddrPort, error) {
	n, sa, err := unix.Recvfrom(fd, p, 0)
	if err != nil {
		return 0, netip.AddrPort{}, err
	}
	return n, addrPortFromSockaddr(sa), nil
}

func SendTo(fd FD, p []byte, ap netip.AddrPort) (int, error) {
	if err := unix.Sendto(fd, p, msgNoSignal, sockaddrFromAddrPort(ap)); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Peek reads up to len(p) bytes without consuming them and without
// blocking, regardless of the descriptor's blocking mode. The mode is not
// touched: MSG_DONTWAIT applies per call.
func Peek(fd FD, p []byte, _ bool) (int, error) {
	n, _, err := unix.Recvfrom(fd, p, unix.MSG_PEEK|unix.MSG_DONTWAIT)
	return n, err
}

// Wait polls the descriptor for readability or writability. Returns false
// with a nil error when the timeout elapses. A negative timeout waits
// indefinitely. Signal interruptions retry with the remaining budget, so
// the total wait never exceeds the caller's timeout.
func Wait(fd FD, forWrite bool, timeoutMillis int) (bool, error) {
	events := int16(unix.POLLIN)
	if forWrite {
		events = unix.POLLOUT
	}
	fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
	var deadline time.Time
	if timeoutMillis >= 0 {
		deadline = time.Now().Add(time.Duration(timeoutMillis) * time.Millisecond)
	}
	for {
		n, err := unix.Poll(fds, timeoutMillis)
		if err == unix.EINTR {
			if timeoutMillis >= 0 {
				remaining := time.Until(deadline)
				if remaining <= 0 {
					return false, nil
				}
				timeoutMillis = int(remaining.Milliseconds()) + 1
			}
			fds[0].Revents = 0
			continue
		}
		if err != nil {
			return false, err
		}
		return n > 0, nil
	}
}

func LocalAddr(fd FD) (netip.AddrPort, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return addrPortFromSockaddr(sa), nil
}

func PeerAddr(fd FD) (netip.AddrPort, error) {
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return addrPortFromSockaddr(sa), nil
}

func SetRecvTimeout(fd FD, millis int) error {
	tv := unix.NsecToTimeval(int64(millis) * 1e6)
	return unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv)
}

func SetSendTimeout(fd FD, millis int) error {
	tv := unix.NsecToTimeval(int64(millis) * 1e6)
	return unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_SNDTIMEO, &tv)
}

func SetKeepAlive(fd FD, enable bool) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, boolToInt(enable))
}

func SetNoDelay(fd FD, enable bool) error {
	return unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, boolToInt(enable))
}

// SetDualStack clears IPV6_V6ONLY so an IPv6 listener also accepts IPv4.
func SetDualStack(fd FD) error {
	return unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0)
}

// SetReuseAddr applies the address-reuse policy appropriate to the
// platform. SO_REUSEADDR here allows fast rebinding after close without
// the hijack risk its Winsock namesake carries.
func SetReuseAddr(fd FD) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
}

func GetsockoptInt(fd FD, level, opt int) (int, error) {
	return unix.GetsockoptInt(fd, level, opt)
}

func SetsockoptInt(fd FD, level, opt, value int) error {
	return unix.SetsockoptInt(fd, level, opt, value)
}

// SocketError drains SO_ERROR, the deferred result of a non-blocking
// connect.
func SocketError(fd FD) (int, error) {
	return unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
}

// IsWouldBlock reports the non-blocking "try again" errno.
func IsWouldBlock(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK
}

// IsInProgress reports the errno a non-blocking connect returns while the
// handshake is still pending.
func IsInProgress(err error) bool {
	return err == unix.EINPROGRESS || err == unix.EALREADY
}

// Errno turns a raw platform error code back into an error value whose
// message is the platform's own description (strerror).
func Errno(code int) error {
	return unix.Errno(code)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func sockaddrFromAddrPort(ap netip.AddrPort) unix.Sockaddr {
	if ap.Addr().Is4() {
		return &unix.SockaddrInet4{
			Port: int(ap.Port()),
			Addr: ap.Addr().As4(),
		}
	}
	sa := &unix.SockaddrInet6{
		Port: int(ap.Port()),
		Addr: ap.Addr().As16(),
	}
	if zone := ap.Addr().Zone(); zone != "" {
		if ifi, err := net.InterfaceByName(zone); err == nil {
			sa.ZoneId = uint32(ifi.Index)
		}
	}
	return sa
}

func addrPortFromSockaddr(sa unix.Sockaddr) netip.AddrPort {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(sa.Addr), uint16(sa.Port))
	case *unix.SockaddrInet6:
		addr := netip.AddrFrom16(sa.Addr)
		if sa.ZoneId != 0 {
			if ifi, err := net.InterfaceByIndex(int(sa.ZoneId)); err == nil {
				addr = addr.WithZone(ifi.Name)
			}
		}
		return netip.AddrPortFrom(addr, uint16(sa.Port))
	}
	return netip.AddrPort{}
}
