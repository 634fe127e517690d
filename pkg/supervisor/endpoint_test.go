package supervisor

import (
	"sort"
	"testing"
)

func TestResolveEndpointsExpandsSeedHostEquivalents(t *testing.T) {
	got := ResolveEndpoints([]string{"ws://localhost:9001"}, nil)

	// localhost cross-expands to 127.0.0.1 and adds wsl.localhost, but
	// never to 0.0.0.0: that expansion only runs the other way.
	want := map[string]bool{
		"ws://127.0.0.1:9001":    true,
		"ws://localhost:9001":    true,
		"ws://wsl.localhost:9001": true,
	}
	for w := range want {
		found := false
		for _, g := range got {
			if g == w {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected candidate %s among %v", w, got)
		}
	}
	for _, g := range got {
		if g == "ws://0.0.0.0:9001" {
			t.Errorf("localhost seed should not expand to 0.0.0.0, got %v", got)
		}
	}
}

func TestResolveEndpointsExpandsWildcardSeedToAllLoopbackNames(t *testing.T) {
	got := ResolveEndpoints([]string{"ws://0.0.0.0:9001"}, nil)

	want := []string{"ws://0.0.0.0:9001", "ws://localhost:9001", "ws://127.0.0.1:9001", "ws://wsl.localhost:9001"}
	for _, w := range want {
		found := false
		for _, g := range got {
			if g == w {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected candidate %s among %v", w, got)
		}
	}
}

func TestResolveEndpointsLeavesWslLocalhostSeedUnexpanded(t *testing.T) {
	got := ResolveEndpoints([]string{"ws://wsl.localhost:9001"}, nil)
	for _, g := range got {
		if g == "ws://0.0.0.0:9001" || g == "ws://localhost:9001" || g == "ws://127.0.0.1:9001" {
			t.Fatalf("wsl.localhost seed should not trigger expansion, got %v", got)
		}
	}
}

func TestResolveEndpointsLeavesNonEquivalentSeedUnexpanded(t *testing.T) {
	got := ResolveEndpoints([]string{"ws://192.168.1.50:9001"}, nil)
	if got[0] != "ws://192.168.1.50:9001" {
		t.Fatalf("expected unexpanded LAN seed first, got %v", got[:1])
	}
}

func TestResolveEndpointsSweepsDefaultPortRange(t *testing.T) {
	got := ResolveEndpoints(nil, nil)
	count := 0
	for _, g := range got {
		if g == "ws://127.0.0.1:8766" || g == "ws://127.0.0.1:8775" {
			count++
		}
	}
	if count != 2 {
		t.Fatalf("expected port sweep to include both ends of the range, got %d hits", count)
	}
}

func TestResolveEndpointsDeduplicates(t *testing.T) {
	got := ResolveEndpoints([]string{"ws://127.0.0.1:8766"}, nil)
	seen := make(map[string]int)
	for _, g := range got {
		seen[g]++
	}
	for url, n := range seen {
		if n > 1 {
			t.Errorf("candidate %s appeared %d times, want 1", url, n)
		}
	}
}

func TestApplyStickyMovesMatchToFront(t *testing.T) {
	candidates := []string{"a", "b", "c", "d"}
	got := ApplySticky(candidates, "c")
	want := []string{"c", "a", "b", "d"}
	if !equalSlices(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestApplyStickyNoopWhenAlreadyFirstOrAbsent(t *testing.T) {
	candidates := []string{"a", "b", "c"}
	if got := ApplySticky(candidates, "a"); !equalSlices(got, candidates) {
		t.Fatalf("sticky already first should be a no-op, got %v", got)
	}
	if got := ApplySticky(candidates, "missing"); !equalSlices(got, candidates) {
		t.Fatalf("unknown sticky should be a no-op, got %v", got)
	}
	if got := ApplySticky(candidates, ""); !equalSlices(got, candidates) {
		t.Fatalf("empty sticky should be a no-op, got %v", got)
	}
}

func equalSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestDedupeStringsPreservesFirstOccurrenceOrder(t *testing.T) {
	in := []string{"b", "a", "b", "c", "a"}
	got := dedupeStrings(in)
	want := []string{"b", "a", "c"}
	if !equalSlices(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestResolveEndpointsSortedHostsDoNotAffectCorrectness(t *testing.T) {
	// Order of extraHosts shouldn't produce duplicate or missing entries.
	got1 := ResolveEndpoints(nil, []string{"10.0.0.5", "10.0.0.6"})
	got2 := ResolveEndpoints(nil, []string{"10.0.0.6", "10.0.0.5"})
	sort.Strings(got1)
	sort.Strings(got2)
	if !equalSlices(got1, got2) {
		t.Fatalf("extraHosts order changed the resulting candidate set")
	}
}
