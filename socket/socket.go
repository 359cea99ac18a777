// Package socket provides the socket lifecycle cores: Socket (TCP
// stream), ServerSocket (dual-stack listener), DatagramSocket (UDP), and
// UnixSocket (unix-domain stream, unix builds only). All four tear down
// through the shared Handle, and none is safe for concurrent use from
// multiple goroutines without external synchronization.
package socket

import (
	"context"
	"fmt"
	"net/netip"

	"go.uber.org/zap"

	"github.com/OpenListTeam/gosock/common/bytespool"
	"github.com/OpenListTeam/gosock/platform"
	"github.com/OpenListTeam/gosock/resolver"
	"github.com/OpenListTeam/gosock/sockerr"
)

// ShutdownMode selects the direction(s) closed by Shutdown.
type ShutdownMode = platform.How

const (
	ShutdownRead  = platform.ShutRead
	ShutdownWrite = platform.ShutWrite
	ShutdownBoth  = platform.ShutBoth
)

const (
	// DefaultBufferSize is the receive buffer size used when the caller
	// passes a non-positive size.
	DefaultBufferSize = 4096

	// DefaultBacklog is the listen backlog used when the caller passes a
	// non-positive value.
	DefaultBacklog = 128
)

// Socket is a connecting or connected TCP stream peer.
type Socket struct {
	h          *Handle
	candidates *resolver.CandidateList
	selected   resolver.Endpoint
	hasSel     bool

	// remote caches the peer address so address queries do not hit the
	// kernel per call.
	remote netip.AddrPort

	buf            []byte
	nonblocking    bool
	connectTimeout int
	connected      bool

	releaseStack func()
}

// NewSocket resolves host and port and creates a descriptor from the
// first viable candidate. It does not connect; call Connect for that.
func NewSocket(host string, port uint16, receiveBufferSize int) (*Socket, error) {
	releaseStack, err := platform.AcquireStack()
	if err != nil {
		return nil, sockerr.Wrap(sockerr.KindSocketCreation, "socket", err)
	}

	candidates, err := resolver.Resolve(context.Background(), host, port, resolver.Stream, false)
	if err != nil {
		releaseStack()
		return nil, err
	}

	s := &Socket{candidates: candidates, releaseStack: releaseStack}
	var lastErr error
	for _, ep := range candidates.Endpoints() {
		fd, serr := platform.Socket(ep.Family, platform.TypeStream)
		if serr != nil {
			lastErr = serr
			continue
		}
		s.h = NewHandle(fd)
		s.selected = ep
		s.hasSel = true
		break
	}
	if !s.hasSel {
		candidates.Release()
		releaseStack()
		return nil, sockerr.Wrap(sockerr.KindSocketCreation, "socket", lastErr)
	}

	if receiveBufferSize <= 0 {
		receiveBufferSize = DefaultBufferSize
	}
	s.buf = bytespool.Alloc(int32(receiveBufferSize))
	return s, nil
}

// newAcceptedSocket wraps a ready, already-connected descriptor handed
// over by a listener, with the peer address captured at accept time. No
// resolution occurs.
func newAcceptedSocket(fd platform.FD, remote netip.AddrPort) *Socket {
	releaseStack, _ := platform.AcquireStack()
	return &Socket{
		h:            NewHandle(fd),
		remote:       remote,
		connected:    true,
		buf:          bytespool.Alloc(DefaultBufferSize),
		releaseStack: releaseStack,
	}
}

// Connect establishes the connection using the candidate selected at
// creation. With a connect timeout configured, the connect is emulated
// through a temporary non-blocking switch bounded by a readiness wait;
// the prior blocking mode is restored exactly.
func (s *Socket) Connect() error {
	if !s.hasSel {
		return sockerr.New(sockerr.KindInvalidState, "connect", "no candidate selected")
	}
	if !s.h.IsValid() {
		return sockerr.New(sockerr.KindInvalidState, "connect", "socket is closed")
	}
	fd := s.h.FD()

	if s.connectTimeout <= 0 {
		if err := platform.Connect(fd, s.selected.Addr); err != nil {
			return sockerr.Wrap(sockerr.KindConnection, "connect", err)
		}
		s.finishConnect(fd)
		return nil
	}

	wasNonblocking := s.nonblocking
	if !wasNonblocking {
		if err := platform.SetNonblock(fd, true); err != nil {
			return sockerr.Wrap(sockerr.KindConnection, "connect", err)
		}
		defer func() {
			if err := platform.SetNonblock(fd, false); err != nil {
				Logger().Warn("restoring blocking mode failed", zap.Error(err))
			}
		}()
	}

	err := platform.Connect(fd, s.selected.Addr)
	switch {
	case err == nil:
		// Connected immediately (loopback fast path).
	case platform.IsInProgress(err) || platform.IsWouldBlock(err):
		ready, werr := platform.Wait(fd, true, s.connectTimeout)
		if werr != nil {
			return sockerr.Wrap(sockerr.KindConnection, "connect", werr)
		}
		if !ready {
			return sockerr.New(sockerr.KindConnectTimeout, "connect",
				fmt.Sprintf("no connection within %d ms", s.connectTimeout))
		}
		code, gerr := platform.SocketError(fd)
		if gerr != nil {
			return sockerr.Wrap(sockerr.KindConnection, "connect", gerr)
		}
		if code != 0 {
			return sockerr.Wrap(sockerr.KindConnection, "connect", platform.Errno(code))
		}
	default:
		return sockerr.Wrap(sockerr.KindConnection, "connect", err)
	}

	s.finishConnect(fd)
	return nil
}

func (s *Socket) finishConnect(fd platform.FD) {
	s.connected = true
	if pa, err := platform.PeerAddr(fd); err == nil {
		s.remote = pa
	} else {
		s.remote = s.selected.Addr
	}
}

// Read receives up to maxBytes bytes. Fewer bytes than requested may be
// returned when the peer sent less. A zero-length read reports
// KindClosedByPeer; a socket error reports KindIO (or KindWouldBlock in
// non-blocking mode).
func (s *Socket) Read(maxBytes int) ([]byte, error) {
	if !s.h.IsValid() {
		return nil, sockerr.New(sockerr.KindInvalidState, "read", "socket is closed")
	}
	if maxBytes <= 0 {
		maxBytes = len(s.buf)
	}
	if maxBytes > len(s.buf) {
		bytespool.Free(s.buf)
		s.buf = bytespool.Alloc(int32(maxBytes))
	}

	n, err := platform.Read(s.h.FD(), s.buf[:maxBytes])
	if err != nil {
		if platform.IsWouldBlock(err) {
			return nil, sockerr.Wrap(sockerr.KindWouldBlock, "read", err)
		}
		return nil, sockerr.Wrap(sockerr.KindIO, "read", err)
	}
	if n == 0 {
		return nil, sockerr.New(sockerr.KindClosedByPeer, "read", "")
	}
	out := make([]byte, n)
	copy(out, s.buf[:n])
	return out, nil
}

// ReadString receives up to one internal buffer's worth of bytes and
// returns them as a string.
func (s *Socket) ReadString() (string, error) {
	b, err := s.Read(len(s.buf))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Write sends the given bytes. It may write fewer than len(p) bytes;
// callers that need full delivery loop or use WriteAll.
func (s *Socket) Write(p []byte) (int, error) {
	if !s.h.IsValid() {
		return 0, sockerr.New(sockerr.KindInvalidState, "write", "socket is closed")
	}
	n, err := platform.Write(s.h.FD(), p)
	if err != nil {
		if platform.IsWouldBlock(err) {
			return n, sockerr.Wrap(sockerr.KindWouldBlock, "write", err)
		}
		return n, sockerr.Wrap(sockerr.KindIO, "write", err)
	}
	return n, nil
}

// WriteString sends a string.
func (s *Socket) WriteString(msg string) (int, error) {
	return s.Write([]byte(msg))
}

// WriteAll loops over Write until every byte of p is delivered.
func (s *Socket) WriteAll(p []byte) error {
	for len(p) > 0 {
		n, err := s.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

// Shutdown closes one or both directions of the connection.
func (s *Socket) Shutdown(how ShutdownMode) error {
	if !s.h.IsValid() {
		return sockerr.New(sockerr.KindInvalidState, "shutdown", "socket is closed")
	}
	if err := platform.Shutdown(s.h.FD(), how); err != nil {
		return sockerr.Wrap(sockerr.KindIO, "shutdown", err)
	}
	return nil
}

// Close releases the descriptor and the resolver-owned candidate list.
// Safe to call multiple times; the second and later calls are no-ops.
func (s *Socket) Close() error {
	s.connected = false
	if s.candidates != nil {
		s.candidates.Release()
		s.candidates = nil
	}
	s.hasSel = false
	s.h.Release()
	if s.buf != nil {
		bytespool.Free(s.buf)
		s.buf = nil
	}
	if s.releaseStack != nil {
		s.releaseStack()
	}
	return nil
}

// SetNonBlocking toggles non-blocking mode. The tracked intent is also
// what IsConnected restores after its probe on platforms that must flip
// the mode.
func (s *Socket) SetNonBlocking(nonblocking bool) error {
	if !s.h.IsValid() {
		return sockerr.New(sockerr.KindInvalidState, "set-nonblocking", "socket is closed")
	}
	if err := platform.SetNonblock(s.h.FD(), nonblocking); err != nil {
		return sockerr.Wrap(sockerr.KindIO, "set-nonblocking", err)
	}
	s.nonblocking = nonblocking
	return nil
}

// SetTimeout configures timeouts in milliseconds. With forConnect=true
// the value bounds a later Connect (no sockopt is issued: neither socket
// API has a native connect timeout, so Connect emulates one). Otherwise
// it applies SO_RCVTIMEO and SO_SNDTIMEO.
func (s *Socket) SetTimeout(millis int, forConnect bool) error {
	if forConnect {
		s.connectTimeout = millis
		return nil
	}
	if !s.h.IsValid() {
		return sockerr.New(sockerr.KindInvalidState, "set-timeout", "socket is closed")
	}
	fd := s.h.FD()
	if err := platform.SetRecvTimeout(fd, millis); err != nil {
		return sockerr.Wrap(sockerr.KindIO, "set-timeout", err)
	}
	if err := platform.SetSendTimeout(fd, millis); err != nil {
		return sockerr.Wrap(sockerr.KindIO, "set-timeout", err)
	}
	return nil
}

// WaitReady polls for readability (or writability). false with a nil
// error means the timeout elapsed.
func (s *Socket) WaitReady(forWrite bool, timeoutMillis int) (bool, error) {
	if !s.h.IsValid() {
		return false, sockerr.New(sockerr.KindInvalidState, "wait-ready", "socket is closed")
	}
	ready, err := platform.Wait(s.h.FD(), forWrite, timeoutMillis)
	if err != nil {
		return false, sockerr.Wrap(sockerr.KindIO, "wait-ready", err)
	}
	return ready, nil
}

// IsConnected is a best-effort liveness probe. It never consumes stream
// data, never blocks, and leaves the blocking mode exactly as it found
// it.
func (s *Socket) IsConnected() bool {
	if !s.h.IsValid() {
		return false
	}
	var probe [1]byte
	n, err := platform.Peek(s.h.FD(), probe[:], s.nonblocking)
	if err != nil {
		return platform.IsWouldBlock(err)
	}
	return n > 0
}

// EnableNoDelay toggles TCP_NODELAY.
func (s *Socket) EnableNoDelay(enable bool) error {
	if !s.h.IsValid() {
		return sockerr.New(sockerr.KindInvalidState, "set-nodelay", "socket is closed")
	}
	if err := platform.SetNoDelay(s.h.FD(), enable); err != nil {
		return sockerr.Wrap(sockerr.KindIO, "set-nodelay", err)
	}
	return nil
}

// EnableKeepAlive toggles SO_KEEPALIVE.
func (s *Socket) EnableKeepAlive(enable bool) error {
	if !s.h.IsValid() {
		return sockerr.New(sockerr.KindInvalidState, "set-keepalive", "socket is closed")
	}
	if err := platform.SetKeepAlive(s.h.FD(), enable); err != nil {
		return sockerr.Wrap(sockerr.KindIO, "set-keepalive", err)
	}
	return nil
}

// RemoteAddress formats the cached peer address as "<ip>:<port>".
// IPv6-mapped IPv4 peers render in dotted-decimal form.
func (s *Socket) RemoteAddress() string {
	return formatAddrPort(s.remote)
}

// LocalAddress formats the local endpoint, or "null" when unbound.
func (s *Socket) LocalAddress() string {
	if !s.h.IsValid() {
		return "null"
	}
	la, err := platform.LocalAddr(s.h.FD())
	if err != nil {
		return "null"
	}
	return formatAddrPort(la)
}

// SetBufferSize replaces the internal receive buffer.
func (s *Socket) SetBufferSize(n int) {
	if n <= 0 {
		n = DefaultBufferSize
	}
	if s.buf != nil {
		bytespool.Free(s.buf)
	}
	s.buf = bytespool.Alloc(int32(n))
}

// IsValid reports whether the socket still owns a live descriptor.
func (s *Socket) IsValid() bool {
	return s.h.IsValid()
}
