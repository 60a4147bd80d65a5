package urlguard

import (
	"fmt"
	"strings"
)

// Blocklist holds exact hosts and suffix wildcards from configuration.
// Patterns of the form "*.example.com" or ".example.com" block the domain
// and every subdomain; anything else matches the host exactly.
type Blocklist struct {
	exact    map[string]struct{}
	suffixes []string
}

// NewBlocklist compiles the patterns. A nil Blocklist blocks nothing, so an
// empty pattern list returns nil.
func NewBlocklist(patterns []string) *Blocklist {
	b := &Blocklist{exact: make(map[string]struct{})}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		if value == "" {
			continue
		}
		switch {
		case strings.HasPrefix(value, "*."):
			b.addSuffix(strings.TrimPrefix(value, "*."))
		case strings.HasPrefix(value, "."):
			b.addSuffix(strings.TrimPrefix(value, "."))
		default:
			b.exact[value] = struct{}{}
		}
	}
	if len(b.exact) == 0 && len(b.suffixes) == 0 {
		return nil
	}
	return b
}

func (b *Blocklist) addSuffix(suffix string) {
	if suffix == "" {
		return
	}
	for _, existing := range b.suffixes {
		if existing == suffix {
			return
		}
	}
	b.suffixes = append(b.suffixes, suffix)
}

// Blocks reports whether host matches a configured pattern.
func (b *Blocklist) Blocks(host string) bool {
	if b == nil {
		return false
	}
	host = strings.TrimSpace(strings.ToLower(host))
	if host == "" {
		return false
	}
	if _, ok := b.exact[host]; ok {
		return true
	}
	for _, suffix := range b.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// Guard combines the built-in safety checks with a deployment blocklist.
type Guard struct {
	blocklist *Blocklist
}

// NewGuard builds a Guard from blocked-domain patterns.
func NewGuard(blockedDomains []string) *Guard {
	return &Guard{blocklist: NewBlocklist(blockedDomains)}
}

// Validate applies the package checks, then the blocklist.
func (g *Guard) Validate(raw string) error {
	if err := Validate(raw); err != nil {
		return err
	}
	host := hostOf(raw)
	if g.blocklist.Blocks(host) {
		return fmt.Errorf("host %q is on the blocklist", host)
	}
	return nil
}
