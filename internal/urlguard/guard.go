// Package urlguard rejects scrape targets that could reach internal
// infrastructure (SSRF) or use non-web schemes.
package urlguard

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Limits on accepted URL length. Anything shorter than the minimum cannot be
// a usable absolute http URL; the maximum guards the stores' column widths.
const (
	minURLLength = 10
	maxURLLength = 2048
)

var blockedHostnames = map[string]struct{}{
	"localhost": {},
	"0.0.0.0":   {},
}

// Validate decides whether a URL is safe to fetch. It is a pure function:
// no DNS lookups, only scheme, hostname, and literal-IP checks.
func Validate(raw string) error {
	raw = strings.TrimSpace(raw)
	if len(raw) < minURLLength {
		return fmt.Errorf("url is too short to be valid")
	}
	if len(raw) > maxURLLength {
		return fmt.Errorf("url exceeds maximum length of %d characters", maxURLLength)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url format: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("invalid url scheme %q: only http and https are allowed", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("url must have a hostname")
	}

	hostLower := strings.ToLower(host)
	if _, blocked := blockedHostnames[hostLower]; blocked {
		return fmt.Errorf("cannot target host %q", host)
	}

	if ip := net.ParseIP(hostLower); ip != nil {
		if err := checkIP(ip); err != nil {
			return err
		}
	}

	return nil
}

func hostOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func checkIP(ip net.IP) error {
	switch {
	case ip.IsLoopback():
		return fmt.Errorf("cannot target loopback address %s", ip)
	case ip.IsUnspecified():
		return fmt.Errorf("cannot target unspecified address %s", ip)
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		return fmt.Errorf("cannot target link-local address %s", ip)
	case ip.IsPrivate():
		return fmt.Errorf("cannot target private address %s", ip)
	}
	return nil
}
