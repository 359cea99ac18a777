package socket

import (
	"context"

	"go.uber.org/zap"

	"github.com/OpenListTeam/gosock/platform"
	"github.com/OpenListTeam/gosock/resolver"
	"github.com/OpenListTeam/gosock/sockerr"
)

// serverState tracks the one-directional listener lifecycle.
type serverState uint8

const (
	stateUnbound serverState = iota
	stateBound
	stateListening
	stateClosed
)

// ServerSocket is a dual-stack TCP listener. Lifecycle:
// Unbound -> Bound -> Listening -> (repeated Accept) -> Closed.
type ServerSocket struct {
	h          *Handle
	candidates *resolver.CandidateList
	selected   resolver.Endpoint
	hasSel     bool
	port       uint16
	state      serverState

	releaseStack func()
}

// NewServerSocket resolves the wildcard bind address for port and creates
// the listening descriptor. IPv6 candidates are preferred; when one is
// usable the socket is configured to also accept IPv4 traffic. Only if no
// IPv6 candidate works does it fall back to the first IPv4 candidate.
func NewServerSocket(port uint16) (*ServerSocket, error) {
	releaseStack, err := platform.AcquireStack()
	if err != nil {
		return nil, sockerr.Wrap(sockerr.KindSocketCreation, "server-socket", err)
	}

	candidates, err := resolver.Resolve(context.Background(), "", port, resolver.Stream, true)
	if err != nil {
		releaseStack()
		return nil, err
	}
	candidates.SortIPv6First()

	srv := &ServerSocket{candidates: candidates, port: port, releaseStack: releaseStack}
	cleanupAndFail := func(e *sockerr.Error) (*ServerSocket, error) {
		srv.h.Release()
		candidates.Release()
		releaseStack()
		return nil, e
	}

	var lastErr error
	for _, ep := range candidates.Endpoints() {
		fd, serr := platform.Socket(ep.Family, platform.TypeStream)
		if serr != nil {
			lastErr = serr
			continue
		}
		srv.h = NewHandle(fd)
		srv.selected = ep
		srv.hasSel = true
		if ep.Family == platform.FamilyIPv6 {
			if derr := platform.SetDualStack(fd); derr != nil {
				return cleanupAndFail(sockerr.Wrap(sockerr.KindSocketCreation, "server-socket", derr))
			}
		}
		break
	}
	if !srv.hasSel {
		return cleanupAndFail(sockerr.Wrap(sockerr.KindSocketCreation, "server-socket", lastErr))
	}

	if rerr := platform.SetReuseAddr(srv.h.FD()); rerr != nil {
		return cleanupAndFail(sockerr.Wrap(sockerr.KindSocketCreation, "server-socket", rerr))
	}
	return srv, nil
}

// Bind attaches the descriptor to the candidate selected at construction.
// Port 0 is rejected: the OS would silently pick an ephemeral port, which
// a listener caller has no way to discover through this API. On failure
// the descriptor is released and IsValid reports false.
func (s *ServerSocket) Bind() error {
	if !s.hasSel {
		return sockerr.New(sockerr.KindInvalidState, "bind", "no candidate selected")
	}
	if s.state != stateUnbound || !s.h.IsValid() {
		return sockerr.New(sockerr.KindInvalidState, "bind", "socket is not in the unbound state")
	}
	if s.port == 0 {
		s.h.Release()
		return sockerr.New(sockerr.KindBind, "bind", "port 0 is not bindable for a listener")
	}
	if err := platform.Bind(s.h.FD(), s.selected.Addr); err != nil {
		s.h.Release()
		return sockerr.Wrap(sockerr.KindBind, "bind", err)
	}
	s.state = stateBound
	return nil
}

// Listen starts accepting connections. Requires a prior successful Bind.
func (s *ServerSocket) Listen(backlog int) error {
	if s.state != stateBound || !s.h.IsValid() {
		return sockerr.New(sockerr.KindInvalidState, "listen", "socket is not bound")
	}
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	if err := platform.Listen(s.h.FD(), backlog); err != nil {
		return sockerr.Wrap(sockerr.KindListen, "listen", err)
	}
	s.state = stateListening
	return nil
}

// Accept blocks until a connection arrives and returns one connected
// Socket per call. The listening socket itself is never consumed.
func (s *ServerSocket) Accept() (*Socket, error) {
	if s.state != stateListening || !s.h.IsValid() {
		return nil, sockerr.New(sockerr.KindInvalidState, "accept", "socket is not listening")
	}
	fd, remote, err := platform.Accept(s.h.FD())
	if err != nil {
		if platform.IsWouldBlock(err) {
			return nil, sockerr.Wrap(sockerr.KindWouldBlock, "accept", err)
		}
		return nil, sockerr.Wrap(sockerr.KindAccept, "accept", err)
	}
	return newAcceptedSocket(fd, remote), nil
}

// Shutdown closes both directions of the listening descriptor.
func (s *ServerSocket) Shutdown() error {
	if !s.h.IsValid() {
		return sockerr.New(sockerr.KindInvalidState, "shutdown", "socket is closed")
	}
	if err := platform.Shutdown(s.h.FD(), platform.ShutBoth); err != nil {
		return sockerr.Wrap(sockerr.KindIO, "shutdown", err)
	}
	return nil
}

// Close attempts an orderly shutdown first, swallowing its failure, then
// releases the descriptor and the resolver-owned candidate list. Safe to
// call multiple times.
func (s *ServerSocket) Close() error {
	if s.state == stateClosed {
		return nil
	}
	if s.h.IsValid() {
		if err := platform.Shutdown(s.h.FD(), platform.ShutBoth); err != nil {
			Logger().Debug("listener shutdown before close failed", zap.Error(err))
		}
	}
	s.h.Release()
	if s.candidates != nil {
		s.candidates.Release()
		s.candidates = nil
	}
	if s.releaseStack != nil {
		s.releaseStack()
	}
	s.state = stateClosed
	return nil
}

// LocalAddress formats the bound endpoint, or "null" when unbound.
func (s *ServerSocket) LocalAddress() string {
	if !s.h.IsValid() {
		return "null"
	}
	la, err := platform.LocalAddr(s.h.FD())
	if err != nil {
		return "null"
	}
	return formatAddrPort(la)
}

// IsValid reports whether the listener still owns a live descriptor.
func (s *ServerSocket) IsValid() bool {
	return s.h.IsValid()
}
