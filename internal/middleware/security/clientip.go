package security

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// IPExtractor resolves the client address, trusting forwarding headers only
// when the direct peer is a known proxy.
type IPExtractor struct {
	trustedProxies []*net.IPNet
}

// DefaultTrustedProxies covers loopback and private networks.
var DefaultTrustedProxies = []string{"127.0.0.0/8", "::1/128", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}

// NewIPExtractor parses the trusted proxy CIDRs.
func NewIPExtractor(cidrs []string) (*IPExtractor, error) {
	x := &IPExtractor{}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("parse trusted proxy CIDR %s: %w", cidr, err)
		}
		x.trustedProxies = append(x.trustedProxies, network)
	}
	return x, nil
}

// MustIPExtractor is NewIPExtractor for constant inputs.
func MustIPExtractor(cidrs []string) *IPExtractor {
	x, err := NewIPExtractor(cidrs)
	if err != nil {
		panic(err)
	}
	return x
}

func (x *IPExtractor) trusted(ip net.IP) bool {
	for _, network := range x.trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP returns the originating client address of r.
func (x *IPExtractor) ClientIP(r *http.Request) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}

	parsed := net.ParseIP(directIP)
	if parsed == nil || !x.trusted(parsed) {
		return directIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); net.ParseIP(ip) != nil {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}
	return directIP
}
