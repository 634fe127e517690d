package supervisor

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultPortRangeStart and DefaultPortRangeEnd bound the sweep the
// supervisor performs when no explicit port is known: [start, end).
const (
	DefaultPortRangeStart = 8766
	DefaultPortRangeEnd   = 8776
)

// hostEquivalents lists every loopback-ish host the default port sweep
// covers. Seed expansion is asymmetric (see expandHostEquivalents) and
// does not use this set directly.
var hostEquivalents = []string{"127.0.0.1", "localhost", "wsl.localhost"}

// hostExpansions is the asymmetric seed-expansion table: 0.0.0.0 (a
// wildcard bind address) expands out to every loopback name a
// dispatcher bound to it could actually be reached on, localhost and
// 127.0.0.1 cross-expand into each other plus wsl.localhost, and
// wsl.localhost is never itself an expansion trigger.
var hostExpansions = map[string][]string{
	"0.0.0.0":   {"localhost", "127.0.0.1", "wsl.localhost"},
	"localhost": {"127.0.0.1", "wsl.localhost"},
	"127.0.0.1": {"localhost", "wsl.localhost"},
}

// ResolveEndpoints builds the ordered candidate list the connection
// manager dials through: explicit seed URLs first (each expanded across
// host-equivalents), then a bare-host port sweep over
// [DefaultPortRangeStart, DefaultPortRangeEnd) for every host named in
// extraHosts plus the host-equivalent set. Duplicate ws://host:port
// pairs are kept only once, first occurrence wins.
func ResolveEndpoints(seeds []string, extraHosts []string) []string {
	seen := make(map[string]bool)
	var out []string

	add := func(u string) {
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		out = append(out, u)
	}

	for _, seed := range seeds {
		for _, host := range expandHostEquivalents(seed) {
			add(host)
		}
	}

	hosts := append([]string{}, hostEquivalents...)
	hosts = append(hosts, extraHosts...)
	for _, host := range dedupeStrings(hosts) {
		for port := DefaultPortRangeStart; port < DefaultPortRangeEnd; port++ {
			add(fmt.Sprintf("ws://%s:%d", host, port))
		}
	}

	return out
}

// expandHostEquivalents takes one seed URL and returns it plus its
// asymmetric expansions from hostExpansions, keyed by the seed's own
// host (case-insensitively). A seed naming a host with no entry in that
// table (a LAN IP from config, or wsl.localhost, which is never itself
// an expansion trigger) is returned unexpanded.
func expandHostEquivalents(seed string) []string {
	u, err := url.Parse(seed)
	if err != nil || u.Host == "" {
		return []string{seed}
	}

	hostname := u.Hostname()
	port := u.Port()
	var expansions []string
	for h, exp := range hostExpansions {
		if strings.EqualFold(hostname, h) {
			expansions = exp
			break
		}
	}
	if expansions == nil {
		return []string{seed}
	}

	out := []string{seed}
	for _, h := range expansions {
		out = append(out, buildWSURL(h, port))
	}
	return out
}

func buildWSURL(host, port string) string {
	if port == "" {
		return fmt.Sprintf("ws://%s", host)
	}
	return fmt.Sprintf("ws://%s:%s", host, port)
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// ApplySticky moves sticky, if present in candidates, to the front of
// the list without otherwise reordering it, so the supervisor tries the
// endpoint that worked last time first.
func ApplySticky(candidates []string, sticky string) []string {
	if sticky == "" {
		return candidates
	}
	idx := -1
	for i, c := range candidates {
		if c == sticky {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return candidates
	}
	reordered := make([]string, 0, len(candidates))
	reordered = append(reordered, sticky)
	reordered = append(reordered, candidates[:idx]...)
	reordered = append(reordered, candidates[idx+1:]...)
	return reordered
}
