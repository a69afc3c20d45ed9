// Package security implements the SSRF-safe resolver, TLS policy, and secret
// redaction guards shared by every outbound network call Blufio makes.
package security

import (
	"context"
	"fmt"
	"net"
)

// Resolver resolves hostnames and rejects any address that resolves to a
// private, loopback, link-local, or cloud-metadata range.
type Resolver struct {
	resolver *net.Resolver
}

// NewResolver builds a Resolver using the system resolver.
func NewResolver() *Resolver {
	return &Resolver{resolver: net.DefaultResolver}
}

// ValidateHost resolves host and returns an error if any resolved address is
// private. It returns the first public address on success.
func (r *Resolver) ValidateHost(ctx context.Context, host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		if IsPrivate(ip) {
			return nil, fmt.Errorf("host %s resolves to a blocked address %s", host, ip)
		}
		return ip, nil
	}

	addrs, err := r.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("resolve host %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("host %s did not resolve to any address", host)
	}

	for _, addr := range addrs {
		if IsPrivate(addr.IP) {
			return nil, fmt.Errorf("host %s resolves to a blocked address %s", host, addr.IP)
		}
	}
	return addrs[0].IP, nil
}

// cloudMetadataIP is the AWS/GCP/Azure instance metadata address, explicitly
// blocked even though 169.254.0.0/16 already covers it.
var cloudMetadataIP = net.ParseIP("169.254.169.254")

// IsPrivate reports whether ip falls in a range that must never be reachable
// from the http tool: RFC-1918, loopback, link-local, unspecified, multicast,
// broadcast, the cloud metadata address, and IPv6 loopback/ULA/link-local.
func IsPrivate(ip net.IP) bool {
	if ip == nil {
		return true
	}
	if ip.Equal(cloudMetadataIP) {
		return true
	}
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified() || ip.IsMulticast() {
		return true
	}
	if ip4 := ip.To4(); ip4 != nil {
		if ip4.Equal(net.IPv4bcast) {
			return true
		}
		for _, block := range privateIPv4Blocks {
			if block.Contains(ip4) {
				return true
			}
		}
		return false
	}
	for _, block := range privateIPv6Blocks {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}

var privateIPv4Blocks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"0.0.0.0/8",
	"100.64.0.0/10", // carrier-grade NAT
)

var privateIPv6Blocks = mustParseCIDRs(
	"::1/128",
	"fc00::/7",  // unique local
	"fe80::/10", // link-local
	"::/128",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(fmt.Sprintf("security: invalid CIDR literal %q: %v", c, err))
		}
		nets = append(nets, n)
	}
	return nets
}
