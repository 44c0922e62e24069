package utils

import (
	"fmt"
	"net"
	"strings"

	"golang.org/x/net/idna"
)

// CanonicalHost returns a host identifier in canonical form:
// - Trimmed of surrounding whitespace
// - Port stripped when present ("host:443", "[::1]:8080")
// - Lowercased
// - No trailing dots
// - Non-ASCII labels mapped to their IDNA (punycode) form
//
// An empty input canonicalizes to "" with no error. Inputs that cannot be a
// host at all (embedded whitespace, list delimiters, failed IDNA mapping)
// return an error describing the offending token.
func CanonicalHost(raw string) (string, error) {
	host := strings.TrimSpace(raw)
	if host == "" {
		return "", nil
	}
	if strings.ContainsAny(host, " \t;") {
		return "", fmt.Errorf("invalid host %q: contains whitespace or delimiter", raw)
	}
	// Strip a port suffix when one parses cleanly. Bare IPv6 literals contain
	// colons but do not SplitHostPort, so failures here are not errors.
	if h, _, err := net.SplitHostPort(host); err == nil && h != "" {
		host = h
	}
	host = strings.ToLower(host)
	for strings.HasSuffix(host, ".") {
		host = strings.TrimSuffix(host, ".")
	}
	if !isASCII(host) {
		mapped, err := idna.Lookup.ToASCII(host)
		if err != nil {
			return "", fmt.Errorf("invalid host %q: %w", raw, err)
		}
		host = mapped
	}
	return host, nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
