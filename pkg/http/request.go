package http

import (
	"net"
	"net/http"
	"strings"
)

// ExtractClientIP extracts the real client IP address from the request.
//
// Header precedence:
//  1. X-Real-IP (set by the trusted reverse proxy in front of the service)
//  2. left-most public address in X-Forwarded-For
//  3. CF-Connecting-IP, then True-Client-IP (edge platform headers)
//  4. RemoteAddr, if public
//
// Private-range and malformed addresses are rejected at every step, which
// defends against trivial spoofing where a client sets its own
// X-Forwarded-For. Returns "" when no candidate validates.
func ExtractClientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); isPublicIP(ip) {
		return ip
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			ip := strings.TrimSpace(part)
			if isPublicIP(ip) {
				return ip
			}
		}
	}

	for _, header := range []string{"CF-Connecting-IP", "True-Client-IP"} {
		if ip := strings.TrimSpace(r.Header.Get(header)); isPublicIP(ip) {
			return ip
		}
	}

	if ip := remoteAddr(r); isPublicIP(ip) {
		return ip
	}

	return ""
}

// remoteAddr extracts the IP address from RemoteAddr (removing port if present)
func remoteAddr(r *http.Request) string {
	if r.RemoteAddr == "" {
		return ""
	}
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}

// isPublicIP reports whether ip parses as a well-formed IPv4/IPv6 address
// outside the private, loopback, and link-local ranges.
func isPublicIP(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	if parsed.IsPrivate() || parsed.IsLoopback() || parsed.IsLinkLocalUnicast() ||
		parsed.IsLinkLocalMulticast() || parsed.IsUnspecified() {
		return false
	}
	return true
}
