//go:build unix

package socket

import (
	"os"

	"github.com/OpenListTeam/gosock/platform"
	"github.com/OpenListTeam/gosock/sockerr"
)

// UnixSocket is a filesystem-path-addressed stream socket. Servers follow
// the same Unbound -> Bound -> Listening -> Accept -> Closed shape as
// ServerSocket; clients call Connect directly. Only built where the
// platform exposes the address family.
type UnixSocket struct {
	h    *Handle
	path string

	state       serverState
	connected   bool
	nonblocking bool
}

// NewUnixSocket creates a stream descriptor addressed by path.
func NewUnixSocket(path string) (*UnixSocket, error) {
	fd, err := platform.SocketLocal()
	if err != nil {
		return nil, sockerr.Wrap(sockerr.KindSocketCreation, "unix-socket", err)
	}
	return &UnixSocket{h: NewHandle(fd), path: path}, nil
}

// Bind attaches the descriptor to the socket path. Any stale filesystem
// entry left by a prior crashed process is removed first, best-effort
// with no existence check.
func (u *UnixSocket) Bind() error {
	if u.state != stateUnbound || !u.h.IsValid() {
		return sockerr.New(sockerr.KindInvalidState, "bind", "socket is not in the unbound state")
	}
	os.Remove(u.path)
	if err := platform.BindLocal(u.h.FD(), u.path); err != nil {
		u.h.Release()
		return sockerr.Wrap(sockerr.KindBind, "bind", err)
	}
	u.state = stateBound
	return nil
}

// Listen starts accepting connections on the bound path.
func (u *UnixSocket) Listen(backlog int) error {
	if u.state != stateBound || !u.h.IsValid() {
		return sockerr.New(sockerr.KindInvalidState, "listen", "socket is not bound")
	}
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	if err := platform.Listen(u.h.FD(), backlog); err != nil {
		u.h.Release()
		return sockerr.Wrap(sockerr.KindListen, "listen", err)
	}
	u.state = stateListening
	return nil
}

// Accept blocks until a client connects and returns its socket.
func (u *UnixSocket) Accept() (*UnixSocket, error) {
	if u.state != stateListening || !u.h.IsValid() {
		return nil, sockerr.New(sockerr.KindInvalidState, "accept", "socket is not listening")
	}
	fd, peerPath, err := platform.AcceptLocal(u.h.FD())
	if err != nil {
		if platform.IsWouldBlock(err) {
			return nil, sockerr.Wrap(sockerr.KindWouldBlock, "accept", err)
		}
		return nil, sockerr.Wrap(sockerr.KindAccept, "accept", err)
	}
	if peerPath == "" {
		peerPath = u.path
	}
	return &UnixSocket{h: NewHandle(fd), path: peerPath, connected: true}, nil
}

// Connect establishes a client connection to the socket path.
func (u *UnixSocket) Connect() error {
	if !u.h.IsValid() {
		return sockerr.New(sockerr.KindInvalidState, "connect", "socket is closed")
	}
	if err := platform.ConnectLocal(u.h.FD(), u.path); err != nil {
		u.h.Release()
		return sockerr.Wrap(sockerr.KindConnection, "connect", err)
	}
	u.connected = true
	return nil
}

// Read receives up to maxBytes bytes. A zero-length read reports
// KindClosedByPeer.
func (u *UnixSocket) Read(maxBytes int) ([]byte, error) {
	if !u.h.IsValid() {
		return nil, sockerr.New(sockerr.KindInvalidState, "read", "socket is closed")
	}
	if maxBytes <= 0 {
		maxBytes = DefaultBufferSize
	}
	buf := make([]byte, maxBytes)
	n, err := platform.Read(u.h.FD(), buf)
	if err != nil {
		if platform.IsWouldBlock(err) {
			return nil, sockerr.Wrap(sockerr.KindWouldBlock, "read", err)
		}
		return nil, sockerr.Wrap(sockerr.KindIO, "read", err)
	}
	if n == 0 {
		return nil, sockerr.New(sockerr.KindClosedByPeer, "read", "")
	}
	return buf[:n], nil
}

// Write sends the given bytes; partial writes are possible.
func (u *UnixSocket) Write(p []byte) (int, error) {
	if !u.h.IsValid() {
		return 0, sockerr.New(sockerr.KindInvalidState, "write", "socket is closed")
	}
	n, err := platform.Write(u.h.FD(), p)
	if err != nil {
		if platform.IsWouldBlock(err) {
			return n, sockerr.Wrap(sockerr.KindWouldBlock, "write", err)
		}
		return n, sockerr.Wrap(sockerr.KindIO, "write", err)
	}
	return n, nil
}

// WriteString sends a string.
func (u *UnixSocket) WriteString(msg string) (int, error) {
	return u.Write([]byte(msg))
}

// SetNonBlocking toggles non-blocking mode.
func (u *UnixSocket) SetNonBlocking(nonblocking bool) error {
	if !u.h.IsValid() {
		return sockerr.New(sockerr.KindInvalidState, "set-nonblocking", "socket is closed")
	}
	if err := platform.SetNonblock(u.h.FD(), nonblocking); err != nil {
		return sockerr.Wrap(sockerr.KindIO, "set-nonblocking", err)
	}
	u.nonblocking = nonblocking
	return nil
}

// SetTimeout applies SO_RCVTIMEO and SO_SNDTIMEO in milliseconds.
func (u *UnixSocket) SetTimeout(millis int) error {
	if !u.h.IsValid() {
		return sockerr.New(sockerr.KindInvalidState, "set-timeout", "socket is closed")
	}
	fd := u.h.FD()
	if err := platform.SetRecvTimeout(fd, millis); err != nil {
		return sockerr.Wrap(sockerr.KindIO, "set-timeout", err)
	}
	if err := platform.SetSendTimeout(fd, millis); err != nil {
		return sockerr.Wrap(sockerr.KindIO, "set-timeout", err)
	}
	return nil
}

// Path reports the filesystem address of this socket.
func (u *UnixSocket) Path() string {
	return u.path
}

// Close releases the descriptor. Safe to call multiple times.
func (u *UnixSocket) Close() error {
	u.connected = false
	u.h.Release()
	u.state = stateClosed
	return nil
}

// IsValid reports whether the socket still owns a live descriptor.
func (u *UnixSocket) IsValid() bool {
	return u.h.IsValid()
}
