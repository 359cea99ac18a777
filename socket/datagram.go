package socket

import (
	"context"
	"net/netip"
	"strings"

	"github.com/OpenListTeam/gosock/platform"
	"github.com/OpenListTeam/gosock/resolver"
	"github.com/OpenListTeam/gosock/sockerr"
)

// DatagramSocket is a connectionless UDP socket. It carries no connection
// state; every SendTo resolves its destination afresh.
type DatagramSocket struct {
	h          *Handle
	candidates *resolver.CandidateList
	family     platform.Family
	bound      bool
	closed     bool

	nonblocking bool

	releaseStack func()
}

// NewDatagramSocket creates an unbound client socket. No descriptor
// exists yet; the first SendTo creates one matching the destination's
// address family, and the OS assigns an ephemeral local port.
func NewDatagramSocket() (*DatagramSocket, error) {
	releaseStack, err := platform.AcquireStack()
	if err != nil {
		return nil, sockerr.Wrap(sockerr.KindSocketCreation, "datagram-socket", err)
	}
	return &DatagramSocket{releaseStack: releaseStack}, nil
}

// NewBoundDatagramSocket creates a receiving socket bound to the wildcard
// address on the given port.
func NewBoundDatagramSocket(port uint16) (*DatagramSocket, error) {
	d, err := NewDatagramSocket()
	if err != nil {
		return nil, err
	}
	if err := d.Bind(port); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// Bind attaches the socket to the wildcard address on port (passive
// resolution). Candidates are tried in order until one binds.
func (d *DatagramSocket) Bind(port uint16) error {
	if d.closed {
		return sockerr.New(sockerr.KindInvalidState, "bind", "socket is closed")
	}
	if d.bound {
		return sockerr.New(sockerr.KindInvalidState, "bind", "socket is already bound")
	}
	if d.h.IsValid() {
		return sockerr.New(sockerr.KindInvalidState, "bind", "descriptor already created by a prior send")
	}

	candidates, err := resolver.Resolve(context.Background(), "", port, resolver.Datagram, true)
	if err != nil {
		return err
	}

	var lastErr error
	for _, ep := range candidates.Endpoints() {
		fd, serr := platform.Socket(ep.Family, platform.TypeDatagram)
		if serr != nil {
			lastErr = serr
			continue
		}
		if ep.Family == platform.FamilyIPv6 {
			if derr := platform.SetDualStack(fd); derr != nil {
				lastErr = derr
				platform.Close(fd)
				continue
			}
		}
		if berr := platform.Bind(fd, ep.Addr); berr != nil {
			lastErr = berr
			platform.Close(fd)
			continue
		}
		d.h = NewHandle(fd)
		d.family = ep.Family
		d.bound = true
		d.candidates = candidates
		return nil
	}
	candidates.Release()
	return sockerr.Wrap(sockerr.KindBind, "bind", lastErr)
}

// SendTo resolves the destination (fresh on every call, never cached) and
// transmits one datagram.
func (d *DatagramSocket) SendTo(data []byte, host string, port uint16) (int, error) {
	if d.closed {
		return 0, sockerr.New(sockerr.KindInvalidState, "sendto", "socket is closed")
	}
	dest, err := resolver.Resolve(context.Background(), host, port, resolver.Datagram, false)
	if err != nil {
		return 0, err
	}
	defer dest.Release()

	// Lazily create the descriptor from the destination's family.
	if !d.h.IsValid() {
		ep := dest.At(0)
		fd, serr := platform.Socket(ep.Family, platform.TypeDatagram)
		if serr != nil {
			return 0, sockerr.Wrap(sockerr.KindSocketCreation, "sendto", serr)
		}
		d.h = NewHandle(fd)
		d.family = ep.Family
		if d.nonblocking {
			platform.SetNonblock(fd, true)
		}
	}

	// Prefer a candidate matching the descriptor's family.
	ep := dest.At(0)
	for _, cand := range dest.Endpoints() {
		if cand.Family == d.family {
			ep = cand
			break
		}
	}
	target := ep.Addr
	if d.family == platform.FamilyIPv6 && target.Addr().Is4() {
		// A dual-stack descriptor reaches IPv4 peers through the
		// v4-mapped form of their address.
		target = netip.AddrPortFrom(netip.AddrFrom16(target.Addr().As16()), target.Port())
	}

	n, err := platform.SendTo(d.h.FD(), data, target)
	if err != nil {
		if platform.IsWouldBlock(err) {
			return 0, sockerr.Wrap(sockerr.KindWouldBlock, "sendto", err)
		}
		return 0, sockerr.Wrap(sockerr.KindIO, "sendto", err)
	}
	return n, nil
}

// RecvFrom receives one datagram into p and reports the sender, formatted
// the same way as peer addresses elsewhere.
func (d *DatagramSocket) RecvFrom(p []byte) (n int, senderHost string, senderPort uint16, err error) {
	if !d.h.IsValid() {
		return 0, "", 0, sockerr.New(sockerr.KindInvalidState, "recvfrom", "socket has no descriptor")
	}
	n, from, rerr := platform.RecvFrom(d.h.FD(), p)
	if rerr != nil {
		if platform.IsWouldBlock(rerr) {
			return 0, "", 0, sockerr.Wrap(sockerr.KindWouldBlock, "recvfrom", rerr)
		}
		return 0, "", 0, sockerr.Wrap(sockerr.KindIO, "recvfrom", rerr)
	}
	formatted := formatAddrPort(from)
	if i := strings.LastIndexByte(formatted, ':'); i >= 0 {
		senderHost = formatted[:i]
	} else {
		senderHost = formatted
	}
	return n, senderHost, from.Port(), nil
}

// SetOption sets a generic integer socket option.
func (d *DatagramSocket) SetOption(level, name, value int) error {
	if !d.h.IsValid() {
		return sockerr.New(sockerr.KindInvalidState, "setsockopt", "socket has no descriptor")
	}
	if err := platform.SetsockoptInt(d.h.FD(), level, name, value); err != nil {
		return sockerr.Wrap(sockerr.KindIO, "setsockopt", err)
	}
	return nil
}

// GetOption reads a generic integer socket option.
func (d *DatagramSocket) GetOption(level, name int) (int, error) {
	if !d.h.IsValid() {
		return 0, sockerr.New(sockerr.KindInvalidState, "getsockopt", "socket has no descriptor")
	}
	v, err := platform.GetsockoptInt(d.h.FD(), level, name)
	if err != nil {
		return 0, sockerr.Wrap(sockerr.KindIO, "getsockopt", err)
	}
	return v, nil
}

// SetNonBlocking toggles non-blocking mode. The intent is remembered so a
// descriptor created lazily by a later SendTo inherits it.
func (d *DatagramSocket) SetNonBlocking(nonblocking bool) error {
	d.nonblocking = nonblocking
	if !d.h.IsValid() {
		return nil
	}
	if err := platform.SetNonblock(d.h.FD(), nonblocking); err != nil {
		return sockerr.Wrap(sockerr.KindIO, "set-nonblocking", err)
	}
	return nil
}

// SetTimeout applies SO_RCVTIMEO and SO_SNDTIMEO in milliseconds.
func (d *DatagramSocket) SetTimeout(millis int) error {
	if !d.h.IsValid() {
		return sockerr.New(sockerr.KindInvalidState, "set-timeout", "socket has no descriptor")
	}
	fd := d.h.FD()
	if err := platform.SetRecvTimeout(fd, millis); err != nil {
		return sockerr.Wrap(sockerr.KindIO, "set-timeout", err)
	}
	if err := platform.SetSendTimeout(fd, millis); err != nil {
		return sockerr.Wrap(sockerr.KindIO, "set-timeout", err)
	}
	return nil
}

// LocalAddress formats the local endpoint, or "null" when no descriptor
// exists yet.
func (d *DatagramSocket) LocalAddress() string {
	if !d.h.IsValid() {
		return "null"
	}
	la, err := platform.LocalAddr(d.h.FD())
	if err != nil {
		return "null"
	}
	return formatAddrPort(la)
}

// LocalPort reports the bound or ephemeral local port, 0 when no
// descriptor exists.
func (d *DatagramSocket) LocalPort() uint16 {
	if !d.h.IsValid() {
		return 0
	}
	la, err := platform.LocalAddr(d.h.FD())
	if err != nil {
		return 0
	}
	return la.Port()
}

// Close releases the descriptor and the resolver-owned candidate list.
// Safe to call multiple times. A closed socket cannot be rebound or
// reused: the network stack reference it held is gone.
func (d *DatagramSocket) Close() error {
	d.closed = true
	d.h.Release()
	if d.candidates != nil {
		d.candidates.Release()
		d.candidates = nil
	}
	d.bound = false
	if d.releaseStack != nil {
		d.releaseStack()
	}
	return nil
}

// IsValid reports whether the socket owns a live descriptor.
func (d *DatagramSocket) IsValid() bool {
	return d.h.IsValid()
}
