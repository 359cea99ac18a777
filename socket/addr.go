package socket

import (
	"net/netip"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Formatted "<ip>:<port>" strings are cached by resolved address. The
// cache never holds resolution results, only the textual rendering of
// addresses the kernel already reported, so it cannot serve stale DNS.
var addrCache *lru.Cache[netip.AddrPort, string]

func init() {
	addrCache, _ = lru.New[netip.AddrPort, string](256)
}

// formatAddrPort renders an endpoint as "<ip>:<port>". IPv6-mapped IPv4
// addresses are normalized to their dotted-decimal form.
func formatAddrPort(ap netip.AddrPort) string {
	if !ap.IsValid() {
		return "null"
	}
	if s, ok := addrCache.Get(ap); ok {
		return s
	}
	s := ap.Addr().Unmap().String() + ":" + strconv.Itoa(int(ap.Port()))
	addrCache.Add(ap, s)
	return s
}
