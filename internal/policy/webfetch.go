package policy

import (
	"fmt"
	"net/netip"
	"net/url"
	"strings"
)

// blockedHostSuffixes covers the hostname-shaped denials that aren't IP
// literals: local-network and cloud-metadata names commonly used to reach
// otherwise-unaddressable internal services.
var blockedHostSuffixes = []string{
	"localhost",
	".local",
	".internal",
	"metadata.google.internal",
}

// CheckWebFetchURL reports whether raw is safe to fetch: scheme http/https,
// hostname not in the blocked-suffix set, and — when the hostname is itself
// an IP literal, or resolves to one via ParseAddr — not in a private,
// loopback, link-local, or unspecified range. This is a syntactic check
// against the literal hostname; the runner re-applies it against the
// resolved connection address and against every redirect target, since a
// hostname can pass this check yet still resolve to a blocked address at
// request time (DNS rebinding).
func CheckWebFetchURL(raw string, mode string, requiresApproval bool) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("url does not parse: %s", raw)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("scheme %q is not http or https", u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	for _, suffix := range blockedHostSuffixes {
		if host == suffix || strings.HasSuffix(host, suffix) {
			return fmt.Errorf("hostname %q is blocked", host)
		}
	}

	if ip, err := netip.ParseAddr(host); err == nil {
		if isBlockedAddr(ip) {
			return fmt.Errorf("address %s is in a blocked range", ip)
		}
	}

	if mode == "browser" && !requiresApproval {
		return fmt.Errorf("browser mode requires approval")
	}

	return nil
}

// isBlockedAddr reports whether ip falls in a private, loopback,
// link-local, unique-local, unspecified, or 0.0.0.0/8 ("this network") range.
func isBlockedAddr(ip netip.Addr) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified() ||
		(ip.Is4() && ip.As4()[0] == 0)
}
