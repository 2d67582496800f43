package http

import (
	"net"
	"net/http"
	"strings"
)

// TrustAllProxies in TrustedProxies honors forwarding headers from any peer
const TrustAllProxies = "*"

// IPConfig holds configuration for IP extraction and validation
type IPConfig struct {
	TrustedProxies []string // CIDR ranges of trusted proxies, or "*"
}

// ExtractClientIP extracts the real client IP address from the request.
// Forwarding headers are only honored when the peer is a trusted proxy,
// to prevent IP spoofing via header manipulation.
//
// Precedence:
// 1. first valid entry of X-Forwarded-For
// 2. X-Real-IP
// 3. CF-Connecting-IP
// 4. RemoteAddr
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	remoteIP := getRemoteAddr(r)

	if config != nil && isTrustedProxy(remoteIP, config.TrustedProxies) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			for _, ip := range strings.Split(xff, ",") {
				ip = strings.TrimSpace(ip)
				if isValidIP(ip) {
					return ip
				}
			}
		}

		for _, header := range []string{"X-Real-IP", "CF-Connecting-IP"} {
			if v := strings.TrimSpace(r.Header.Get(header)); isValidIP(v) {
				return v
			}
		}
	}

	return remoteIP
}

// ForwardedHops returns the number of entries in the X-Forwarded-For chain
func ForwardedHops(r *http.Request) int {
	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return 0
	}
	return len(strings.Split(xff, ","))
}

// getRemoteAddr extracts the IP address from RemoteAddr (removing port if present)
func getRemoteAddr(r *http.Request) string {
	if r.RemoteAddr != "" {
		if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return ip
		}
		return r.RemoteAddr
	}
	return "unknown"
}

// isTrustedProxy checks if an IP address is within any of the trusted proxy CIDR ranges
func isTrustedProxy(ip string, trustedProxies []string) bool {
	if len(trustedProxies) == 0 {
		return false
	}

	for _, cidr := range trustedProxies {
		if cidr == TrustAllProxies {
			return true
		}
	}

	clientIP := net.ParseIP(ip)
	if clientIP == nil {
		return false
	}

	for _, cidr := range trustedProxies {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if ipNet.Contains(clientIP) {
			return true
		}
	}

	return false
}

// isValidIP checks if a string is a valid IPv4 or IPv6 address
func isValidIP(ip string) bool {
	return net.ParseIP(ip) != nil
}

// HasPathPrefix reports whether path is prefix or lies beneath it.
// "/auth" matches "/auth" and "/auth/login" but not "/authors".
func HasPathPrefix(path, prefix string) bool {
	if prefix == "" || !strings.HasPrefix(path, prefix) {
		return false
	}
	if len(path) == len(prefix) || strings.HasSuffix(prefix, "/") {
		return true
	}
	return path[len(prefix)] == '/'
}

// MatchesAnyPrefix reports whether path lies beneath any of prefixes
func MatchesAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if HasPathPrefix(path, p) {
			return true
		}
	}
	return false
}
