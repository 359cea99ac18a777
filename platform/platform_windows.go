//go:build windows

package platform

import (
	"net/netip"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// FD is the native descriptor type.
type FD = windows.Handle

// InvalidFD is the sentinel a released handle carries.
const InvalidFD FD = windows.InvalidHandle

// Winsock constants defined here to avoid depending on a specific version
// of the x/sys/windows package.
const (
	_FIONBIO = 0x8004667e

	soError            = 0x1007
	soRcvTimeo         = 0x1006
	soSndTimeo         = 0x1005
	soExclusiveAddrUse = ^windows.SO_REUSEADDR

	sdReceive = 0
	sdSend    = 1
	sdBoth    = 2

	pollRDNorm = 0x0100
	pollWRNorm = 0x0010

	socketError = -1
)

var (
	modws2_32   = windows.NewLazySystemDLL("ws2_32.dll")
	procaccept  = modws2_32.NewProc("accept")
	procWSAPoll = modws2_32.NewProc("WSAPoll")
)

// Socket creates a descriptor for the given family and transport. The
// descriptor starts in blocking mode.
func Socket(family Family, sotype SockType) (FD, error) {
	domain := windows.AF_INET
	if family == FamilyIPv6 {
		domain = windows.AF_INET6
	}
	typ, proto := windows.SOCK_STREAM, windows.IPPROTO_TCP
	if sotype == TypeDatagram {
		typ, proto = windows.SOCK_DGRAM, windows.IPPROTO_UDP
	}
	fd, err := windows.Socket(domain, typ, proto)
	if err != nil {
		return InvalidFD, err
	}
	return fd, nil
}

// Close releases the descriptor.
func Close(fd FD) error {
	return windows.Closesocket(fd)
}

// SetNonblock toggles the FIONBIO mode of the socket.
func SetNonblock(fd FD, nonblocking bool) error {
	var mode uint32
	if nonblocking {
		mode = 1
	}
	var returned uint32
	return windows.WSAIoctl(
		fd,
		_FIONBIO,
		(*byte)(unsafe.Pointer(&mode)),
		uint32(unsafe.Sizeof(mode)),
		nil,
		0,
		&returned,
		nil,
		0,
	)
}

// Shutdown closes one or both directions of a connected descriptor.
func Shutdown(fd FD, how How) error {
	var h int
	switch how {
	case ShutRead:
		h = sdReceive
	case ShutWrite:
		h = sdSend
	default:
		h = sdBoth
	}
	return windows.Shutdown(fd, h)
}

func Bind(fd FD, ap netip.AddrPort) error {
	return windows.Bind(fd, sockaddrFromAddrPort(ap))
}

func Connect(fd FD, ap netip.AddrPort) error {
	return windows.Connect(fd, sockaddrFromAddrPort(ap))
}

func Listen(fd FD, backlog int) error {
	return windows.Listen(fd, backlog)
}

// Accept returns a connected descriptor and the peer address captured by
// Winsock at accept time. The plain accept entry point is loaded from
// ws2_32 directly; x/sys/windows only exposes AcceptEx.
func Accept(fd FD) (FD, netip.AddrPort, error) {
	var rsa windows.RawSockaddrAny
	rsaLen := int32(unsafe.Sizeof(rsa))
	r, _, lastErr := procaccept.Call(
		uintptr(fd),
		uintptr(unsafe.Pointer(&rsa)),
		uintptr(unsafe.Pointer(&rsaLen)),
	)
	nfd := windows.Handle(r)
	if nfd == windows.InvalidHandle {
		return InvalidFD, netip.AddrPort{}, lastErr
	}
	sa, err := rsa.Sockaddr()
	if err != nil {
		windows.Closesocket(nfd)
		return InvalidFD, netip.AddrPort{}, err
	}
	return nfd, addrPortFromSockaddr(sa), nil
}

func Read(fd FD, p []byte) (int, error) {
	buf := windows.WSABuf{Len: uint32(len(p))}
	if len(p) > 0 {
		buf.Buf = &p[0]
	}
	var n, flags uint32
	if err := windows.WSARecv(fd, &buf, 1, &n, &flags, nil, nil); err != nil {
		return 0, err
	}
	return int(n), nil
}

// Write sends on a connected descriptor. Winsock reports a closed peer via
// an error return; no signal suppression is needed.
func Write(fd FD, p []byte) (int, error) {
	buf := windows.WSABuf{Len: uint32(len(p))}
	if len(p) > 0 {
		buf.Buf = &p[0]
	}
	var n uint32
	if err := windows.WSASend(fd, &buf, 1, &n, 0, nil, nil); err != nil {
		return 0, err
	}
	return int(n), nil
}

func RecvFrom(fd FD, p []byte) (int, netip.AddrPort, error) {
	n, sa, err := windows.Recvfrom(fd, p, 0)
	if err != nil {
		return 0, netip.AddrPort{}, err
	}
	return n, addrPortFromSockaddr(sa), nil
}

func SendTo(fd FD, p []byte, ap netip.AddrPort) (int, error) {
	if err := windows.Sendto(fd, p, 0, sockaddrFromAddrPort(ap)); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Peek reads up to len(p) bytes without consuming them and without
// blocking. Winsock has no per-call MSG_DONTWAIT, so a blocking socket is
// flipped to FIONBIO for the probe and restored to the caller's tracked
// mode afterward.
func Peek(fd FD, p []byte, nonblocking bool) (int, error) {
	if !nonblocking {
		if err := SetNonblock(fd, true); err != nil {
			return 0, err
		}
		defer SetNonblock(fd, false)
	}
	n, _, err := windows.Recvfrom(fd, p, windows.MSG_PEEK)
	return n, err
}

// Wait polls the descriptor for readability or writability via WSAPoll.
// Returns false with a nil error when the timeout elapses.
func Wait(fd FD, forWrite bool, timeoutMillis int) (bool, error) {
	type wsaPollFd struct {
		fd      uintptr
		events  int16
		revents int16
	}
	pfd := wsaPollFd{fd: uintptr(fd), events: pollRDNorm}
	if forWrite {
		pfd.events = pollWRNorm
	}
	r, _, lastErr := procWSAPoll.Call(
		uintptr(unsafe.Pointer(&pfd)),
		1,
		uintptr(timeoutMillis),
	)
	if int32(r) == socketError {
		return false, lastErr
	}
	return int32(r) > 0, nil
}

func LocalAddr(fd FD) (netip.AddrPort, error) {
	sa, err := windows.Getsockname(fd)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return addrPortFromSockaddr(sa), nil
}

func PeerAddr(fd FD) (netip.AddrPort, error) {
	sa, err := windows.Getpeername(fd)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return addrPortFromSockaddr(sa), nil
}

// SetRecvTimeout applies SO_RCVTIMEO; Winsock takes milliseconds directly.
func SetRecvTimeout(fd FD, millis int) error {
	return windows.SetsockoptInt(fd, windows.SOL_SOCKET, soRcvTimeo, millis)
}

func SetSendTimeout(fd FD, millis int) error {
	return windows.SetsockoptInt(fd, windows.SOL_SOCKET, soSndTimeo, millis)
}

func SetKeepAlive(fd FD, enable bool) error {
	return windows.SetsockoptInt(fd, windows.SOL_SOCKET, windows.SO_KEEPALIVE, boolToInt(enable))
}

func SetNoDelay(fd FD, enable bool) error {
	return windows.SetsockoptInt(fd, windows.IPPROTO_TCP, windows.TCP_NODELAY, boolToInt(enable))
}

// SetDualStack clears IPV6_V6ONLY so an IPv6 listener also accepts IPv4.
func SetDualStack(fd FD) error {
	return windows.SetsockoptInt(fd, windows.IPPROTO_IPV6, windows.IPV6_V6ONLY, 0)
}

// SetReuseAddr applies the address-reuse policy appropriate to the
// platform. On Winsock SO_REUSEADDR would let another process hijack a
// live binding, so SO_EXCLUSIVEADDRUSE is used instead.
func SetReuseAddr(fd FD) error {
	return windows.SetsockoptInt(fd, windows.SOL_SOCKET, soExclusiveAddrUse, 1)
}

func GetsockoptInt(fd FD, level, opt int) (int, error) {
	return windows.GetsockoptInt(fd, level, opt)
}

func SetsockoptInt(fd FD, level, opt, value int) error {
	return windows.SetsockoptInt(fd, level, opt, value)
}

// SocketError drains SO_ERROR, the deferred result of a non-blocking
// connect.
func SocketError(fd FD) (int, error) {
	return windows.GetsockoptInt(fd, windows.SOL_SOCKET, soError)
}

// IsWouldBlock reports the non-blocking "try again" error.
func IsWouldBlock(err error) bool {
	return err == windows.WSAEWOULDBLOCK
}

// IsInProgress reports the error a non-blocking connect returns while the
// handshake is still pending. Winsock signals this as WSAEWOULDBLOCK.
func IsInProgress(err error) bool {
	return err == windows.WSAEWOULDBLOCK || err == windows.WSAEINPROGRESS || err == windows.WSAEALREADY
}

// Errno turns a raw platform error code back into an error value whose
// message comes from FormatMessage.
func Errno(code int) error {
	return syscall.Errno(code)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func sockaddrFromAddrPort(ap netip.AddrPort) windows.Sockaddr {
	if ap.Addr().Is4() {
		return &windows.SockaddrInet4{
			Port: int(ap.Port()),
			Addr: ap.Addr().As4(),
		}
	}
	return &windows.SockaddrInet6{
		Port: int(ap.Port()),
		Addr: ap.Addr().As16(),
	}
}

func addrPortFromSockaddr(sa windows.Sockaddr) netip.AddrPort {
	switch sa := sa.(type) {
	case *windows.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(sa.Addr), uint16(sa.Port))
	case *windows.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(sa.Addr), uint16(sa.Port))
	}
	return netip.AddrPort{}
}
