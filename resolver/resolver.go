// Package resolver turns (host, port, kind) triples into ordered lists of
// concrete protocol endpoints. Every call performs a fresh lookup; results
// are never cached, so long-lived callers do not act on stale name data.
package resolver

import (
	"context"
	"net"
	"net/netip"
	"sort"
	"strconv"

	"github.com/OpenListTeam/gosock/platform"
	"github.com/OpenListTeam/gosock/sockerr"
)

// Kind selects the transport the endpoints will be used with.
type Kind uint8

const (
	Stream Kind = iota
	Datagram
)

func (k Kind) network() string {
	if k == Datagram {
		return "udp"
	}
	return "tcp"
}

// Endpoint is one resolved (family, address, transport) tuple usable to
// create, bind, or connect a socket. Immutable once produced.
type Endpoint struct {
	Addr   netip.AddrPort
	Family platform.Family
	Kind   Kind
}

// CandidateList is the ordered result of one resolution query. The list
// owns its endpoints until Release is called; releasing is independent of
// any descriptor created from the candidates.
type CandidateList struct {
	eps []Endpoint
}

func (l *CandidateList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.eps)
}

func (l *CandidateList) At(i int) Endpoint { return l.eps[i] }

// Endpoints returns the backing slice for iteration. Callers must not
// retain it across Release.
func (l *CandidateList) Endpoints() []Endpoint {
	if l == nil {
		return nil
	}
	return l.eps
}

// SortIPv6First stable-sorts the list so IPv6 candidates precede IPv4
// ones. Listening sockets rely on this deterministic tie-break to pick a
// dual-stack endpoint when one exists.
func (l *CandidateList) SortIPv6First() {
	sort.SliceStable(l.eps, func(i, j int) bool {
		return l.eps[i].Family == platform.FamilyIPv6 && l.eps[j].Family != platform.FamilyIPv6
	})
}

// Release drops the resolved endpoints. Idempotent.
func (l *CandidateList) Release() {
	if l != nil {
		l.eps = nil
	}
}

// Resolve resolves host and numeric port into candidate endpoints. An
// empty host with passive=true requests the wildcard bind address; with
// passive=false it yields loopback candidates.
func Resolve(ctx context.Context, host string, port uint16, kind Kind, passive bool) (*CandidateList, error) {
	return ResolveService(ctx, host, strconv.Itoa(int(port)), kind, passive)
}

// ResolveService is Resolve with a symbolic or numeric service name in
// place of the port.
func ResolveService(ctx context.Context, host, service string, kind Kind, passive bool) (*CandidateList, error) {
	port, err := net.DefaultResolver.LookupPort(ctx, kind.network(), service)
	if err != nil {
		return nil, sockerr.Wrap(sockerr.KindResolution, "resolve", err)
	}

	if host == "" {
		if passive {
			return wildcard(uint16(port), kind), nil
		}
		return loopback(uint16(port), kind), nil
	}

	// Numeric hosts skip the name service entirely.
	if addr, perr := netip.ParseAddr(host); perr == nil {
		return &CandidateList{eps: []Endpoint{makeEndpoint(addr, uint16(port), kind)}}, nil
	}

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, sockerr.Wrap(sockerr.KindResolution, "resolve", err)
	}

	eps := make([]Endpoint, 0, len(addrs))
	for _, ia := range addrs {
		addr, ok := netip.AddrFromSlice(ia.IP)
		if !ok {
			continue
		}
		addr = addr.Unmap()
		if ia.Zone != "" {
			addr = addr.WithZone(ia.Zone)
		}
		eps = append(eps, makeEndpoint(addr, uint16(port), kind))
	}
	if len(eps) == 0 {
		return nil, sockerr.New(sockerr.KindResolution, "resolve", "no usable addresses for "+host)
	}
	return &CandidateList{eps: eps}, nil
}

// HostAddresses enumerates the addresses assigned to the host's network
// interfaces, one "<interface> <family> <ip>" entry per assigned address,
// in interface order. The snapshot reflects the current interface state;
// nothing is cached.
func HostAddresses() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, sockerr.Wrap(sockerr.KindResolution, "host-addresses", err)
	}
	var out []string
	for _, ifi := range ifaces {
		addrs, aerr := ifi.Addrs()
		if aerr != nil {
			return nil, sockerr.Wrap(sockerr.KindResolution, "host-addresses", aerr)
		}
		for _, a := range addrs {
			var ip net.IP
			switch a := a.(type) {
			case *net.IPNet:
				ip = a.IP
			case *net.IPAddr:
				ip = a.IP
			default:
				continue
			}
			addr, ok := netip.AddrFromSlice(ip)
			if !ok {
				continue
			}
			addr = addr.Unmap()
			family := platform.FamilyIPv6
			if addr.Is4() {
				family = platform.FamilyIPv4
			}
			out = append(out, ifi.Name+" "+family.String()+" "+addr.String())
		}
	}
	return out, nil
}

func makeEndpoint(addr netip.Addr, port uint16, kind Kind) Endpoint {
	family := platform.FamilyIPv6
	if addr.Is4() {
		family = platform.FamilyIPv4
	}
	return Endpoint{
		Addr:   netip.AddrPortFrom(addr, port),
		Family: family,
		Kind:   kind,
	}
}

// wildcard yields the any-interface bind candidates, IPv6 first so a
// listener can configure dual-stack before falling back to IPv4.
func wildcard(port uint16, kind Kind) *CandidateList {
	return &CandidateList{eps: []Endpoint{
		makeEndpoint(netip.IPv6Unspecified(), port, kind),
		makeEndpoint(netip.AddrFrom4([4]byte{}), port, kind),
	}}
}

func loopback(port uint16, kind Kind) *CandidateList {
	return &CandidateList{eps: []Endpoint{
		makeEndpoint(netip.IPv6Loopback(), port, kind),
		makeEndpoint(netip.AddrFrom4([4]byte{127, 0, 0, 1}), port, kind),
	}}
}
