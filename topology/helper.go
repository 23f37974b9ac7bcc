package topology

import "inet.af/netaddr"

// An ipAllocator hands out unused addresses from a management prefix.
type ipAllocator struct {
	builder netaddr.IPSetBuilder
}

// newIPAllocator sets up the free set for the prefix p. The network and
// broadcast addresses are never handed out.
func newIPAllocator(p netaddr.IPPrefix) *ipAllocator {
	a := new(ipAllocator)
	a.builder.AddPrefix(p)
	a.builder.Remove(p.Masked().IP)
	a.builder.Remove(p.Range().To)
	return a
}

// reserve marks ip as taken so allocate skips it. It reports false when
// ip lies outside the prefix or is taken already.
func (a *ipAllocator) reserve(ip netaddr.IP) bool {
	if !a.builder.IPSet().Contains(ip) {
		return false
	}
	a.builder.Remove(ip)
	return true
}

// allocate returns the lowest address still free. The boolean is false
// once the prefix is exhausted.
func (a *ipAllocator) allocate() (netaddr.IP, bool) {
	for _, r := range a.builder.IPSet().Ranges() {
		ip := r.From
		a.builder.Remove(ip)
		return ip, true
	}

	return netaddr.IP{}, false
}

func isASCIIAlpha(c rune) bool {
	return 'A' <= c && c <= 'Z' || 'a' <= c && c <= 'z'
}

func isASCIIAlNum(c rune) bool {
	return isASCIIAlpha(c) || '0' <= c && c <= '9'
}

func isASCIIAlNumHyp(c rune) bool {
	return isASCIIAlNum(c) || c == '-'
}

// isValidIdentifier reports whether s is a hostname-shaped token:
// a letter followed by letters, digits or hyphens, ending in a letter
// or digit.
func isValidIdentifier(s string) bool {
	if len(s) == 0 {
		return false
	}
	if !isASCIIAlpha(rune(s[0])) {
		return false
	}
	for _, c := range s[1:] {
		if !isASCIIAlNumHyp(c) {
			return false
		}
	}
	return isASCIIAlNum(rune(s[len(s)-1]))
}

// isValidPortLabel reports whether s can name a port. Labels are freer
// than node identifiers (interface names like "swp1" or "eth0.100")
// but must not contain the characters used to build port and link
// identifiers.
func isValidPortLabel(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, c := range s {
		switch {
		case isASCIIAlNum(c):
		case c == '-' || c == '_' || c == '.' || c == '/':
		default:
			return false
		}
	}
	return true
}
