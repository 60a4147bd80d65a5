package scrape

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL standardizes a URL so the visited set and post dedup compare
// equal URLs reliably. It lowercases the scheme and host, strips default
// ports and fragments, and sorts query parameters.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""

	q := u.Query()
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// ResolveURL makes href absolute against the page it was found on.
// It returns "" for unusable links (empty, fragment-only, unparseable).
func ResolveURL(pageURL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
