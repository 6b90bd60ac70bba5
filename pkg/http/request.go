package http

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// UnknownIP is returned when no client address can be determined
const UnknownIP = "unknown"

// IPConfig holds configuration for IP extraction and validation
type IPConfig struct {
	TrustedProxies []string // CIDR ranges of trusted proxies

	prefixes []netip.Prefix
}

// NewIPConfig parses the trusted proxy ranges once. Invalid ranges are returned
// so the caller can reject the configuration at start-up.
func NewIPConfig(trustedProxies []string) (*IPConfig, []string) {
	cfg := &IPConfig{TrustedProxies: trustedProxies}
	var invalid []string
	for _, cidr := range trustedProxies {
		prefix, err := netip.ParsePrefix(strings.TrimSpace(cidr))
		if err != nil {
			invalid = append(invalid, cidr)
			continue
		}
		cfg.prefixes = append(cfg.prefixes, prefix.Masked())
	}
	return cfg, invalid
}

// ExtractClientIP extracts the real client IP address from the request.
// X-Forwarded-For and X-Real-IP are honoured only when the direct peer is a
// trusted proxy; otherwise the connection's RemoteAddr is used. The result is
// normalised so IPv4-mapped IPv6 peers compare equal to their IPv4 form.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	remoteIP := getRemoteAddr(r)

	if config != nil && config.isTrustedProxy(remoteIP) {
		if addr, ok := config.forwardedClient(r.Header.Values("X-Forwarded-For")); ok {
			return addr
		}

		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			if addr, ok := parseIP(strings.TrimSpace(xri)); ok {
				return addr
			}
		}
	}

	return remoteIP
}

// forwardedClient walks X-Forwarded-For from the right. Each proxy appends the
// peer it saw, so the first address outside the trusted ranges is the client;
// anything left of it was supplied by the client and is ignored.
func (c *IPConfig) forwardedClient(headers []string) (string, bool) {
	var hops []string
	for _, h := range headers {
		hops = append(hops, strings.Split(h, ",")...)
	}

	last := ""
	for i := len(hops) - 1; i >= 0; i-- {
		addr, ok := parseIP(strings.TrimSpace(hops[i]))
		if !ok {
			continue
		}
		if !c.isTrustedProxy(addr) {
			return addr, true
		}
		last = addr
	}

	// every hop is a trusted proxy
	if last != "" {
		return last, true
	}
	return "", false
}

// getRemoteAddr extracts the IP address from RemoteAddr (removing port if present)
func getRemoteAddr(r *http.Request) string {
	if r.RemoteAddr == "" {
		return UnknownIP
	}

	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = h
	}
	if addr, ok := parseIP(host); ok {
		return addr
	}
	return host
}

func (c *IPConfig) isTrustedProxy(ip string) bool {
	prefixes := c.prefixes
	if prefixes == nil && len(c.TrustedProxies) > 0 {
		// Built as a literal rather than through NewIPConfig
		parsed, _ := NewIPConfig(c.TrustedProxies)
		prefixes = parsed.prefixes
	}
	if len(prefixes) == 0 {
		return false
	}

	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()

	for _, prefix := range prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func parseIP(s string) (string, bool) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return "", false
	}
	return addr.Unmap().String(), true
}
