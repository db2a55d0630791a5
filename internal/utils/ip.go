package utils

import (
	"fmt"
	"net/netip"
	"strings"
)

// Allowlist is a parsed set of networks that may reach administrative routes.
type Allowlist struct {
	prefixes []netip.Prefix
}

// ParseAllowlist accepts CIDR blocks and bare addresses. A bare address is
// treated as a single-host network.
func ParseAllowlist(entries []string) (*Allowlist, error) {
	a := &Allowlist{}
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			addr, err := netip.ParseAddr(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid allowlist entry %q: %w", entry, err)
			}
			a.prefixes = append(a.prefixes, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid allowlist entry %q: %w", entry, err)
		}
		a.prefixes = append(a.prefixes, prefix.Masked())
	}
	return a, nil
}

func (a *Allowlist) Empty() bool {
	return a == nil || len(a.prefixes) == 0
}

// Allows reports whether ip falls in one of the networks.
func (a *Allowlist) Allows(ip string) bool {
	if a == nil {
		return false
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range a.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
