package discovery

import (
	"net"
	"sort"
)

// SortIPsByPreference orders addresses for dialing. zeroconf reports IPv6
// addresses without a zone, so link-local IPv6 is only usable as a last
// resort. Priority order (highest to lowest):
//  1. IPv4 unicast
//  2. IPv6 global unicast
//  3. IPv6 unique local (fc00::/7)
//  4. IPv4 link-local
//  5. IPv6 link-local
//  6. Everything else
//
// The input slice is not modified.
func SortIPsByPreference(ips []net.IP) []net.IP {
	if len(ips) <= 1 {
		return ips
	}

	sorted := make([]net.IP, len(ips))
	copy(sorted, ips)

	sort.SliceStable(sorted, func(i, j int) bool {
		return ipPriority(sorted[i]) < ipPriority(sorted[j])
	})

	return sorted
}

// ipPriority returns the priority of an IP address (lower is better).
func ipPriority(ip net.IP) int {
	if ip.To16() == nil {
		return 99
	}

	if ip4 := ip.To4(); ip4 != nil {
		switch {
		case ip4.IsLinkLocalUnicast():
			return 40
		case ip4.IsLoopback():
			return 80
		case ip4.IsGlobalUnicast(), ip4.IsPrivate():
			return 0
		default:
			return 90
		}
	}

	switch {
	case isUniqueLocal(ip):
		return 20
	case ip.IsGlobalUnicast():
		return 10
	case ip.IsLinkLocalUnicast():
		return 50
	case ip.IsLoopback():
		return 80
	default:
		return 90
	}
}

// isUniqueLocal reports whether ip is an IPv6 Unique Local Address.
func isUniqueLocal(ip net.IP) bool {
	ip = ip.To16()
	if ip == nil || ip.To4() != nil {
		return false
	}
	return ip[0] == 0xfc || ip[0] == 0xfd
}
