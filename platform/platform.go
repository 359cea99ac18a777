// Package platform normalizes the native socket surface (BSD sockets on
// unix, Winsock on windows) into one small function set operating on raw
// descriptors. Each build selects exactly one implementation of the same
// contract: descriptor create/close, error-code retrieval, blocking-mode
// toggling, readiness waiting, address and option plumbing.
//
// Addresses cross this boundary as netip.AddrPort; conversion to the raw
// sockaddr layout happens inside the per-platform files.
package platform

// Family is a platform-independent address family.
type Family uint8

const (
	FamilyIPv4 Family = iota
	FamilyIPv6
	FamilyLocal
)

func (f Family) String() string {
	switch f {
	case FamilyIPv4:
		return "ipv4"
	case FamilyIPv6:
		return "ipv6"
	case FamilyLocal:
		return "local"
	default:
		return "unknown"
	}
}

// SockType selects the transport semantics of a descriptor.
type SockType uint8

const (
	TypeStream SockType = iota
	TypeDatagram
)

// How selects the direction(s) closed by Shutdown. This is the single
// canonical shutdown surface; there is no raw-integer variant.
type How uint8

const (
	ShutRead How = iota
	ShutWrite
	ShutBoth
)
