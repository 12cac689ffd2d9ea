package matcher

import (
	"net/netip"
	"sort"
	"testing"
	"time"

	"github.com/hervehildenbrand/bgp-watch/pkg/config"
	"github.com/hervehildenbrand/bgp-watch/pkg/models"
)

func mustPrefix(t *testing.T, s string) netip.Prefix {
	t.Helper()
	p, err := netip.ParsePrefix(s)
	if err != nil {
		t.Fatalf("bad prefix %q: %v", s, err)
	}
	return p.Masked()
}

func newEngine(t *testing.T, asns []uint32, prefixes []string) *Engine {
	t.Helper()
	cfg := &config.Config{MonitoredASNs: asns}
	for _, s := range prefixes {
		cfg.MonitoredPrefixes = append(cfg.MonitoredPrefixes, mustPrefix(t, s))
	}
	// config.Parse keeps the monitored prefixes sorted; mirror that here.
	sort.Slice(cfg.MonitoredPrefixes, func(i, j int) bool {
		a, b := cfg.MonitoredPrefixes[i], cfg.MonitoredPrefixes[j]
		if c := a.Addr().Compare(b.Addr()); c != 0 {
			return c < 0
		}
		return a.Bits() < b.Bits()
	})
	return NewEngine(cfg)
}

func announcement(t *testing.T, prefix string, path []uint32) models.RoutingUpdate {
	t.Helper()
	var origin uint32
	if len(path) > 0 {
		origin = path[len(path)-1]
	}
	return models.RoutingUpdate{
		Collector:    "rrc21",
		Timestamp:    time.Unix(1705320000, 0),
		PeerASN:      6939,
		Prefix:       mustPrefix(t, prefix),
		ASPath:       path,
		OriginASN:    origin,
		Announcement: true,
	}
}

func TestMatch_ASN(t *testing.T) {
	e := newEngine(t, []uint32{3356}, nil)
	update := announcement(t, "185.236.43.0/24", []uint32{64512, 3356, 174})

	events := e.Match(update)
	if len(events) != 1 {
		t.Fatalf("Expected exactly 1 event, got %d", len(events))
	}
	if events[0].Trigger != models.TriggerASNMatch {
		t.Errorf("Expected trigger %s, got %s", models.TriggerASNMatch, events[0].Trigger)
	}
	if events[0].MatchedASN != 3356 {
		t.Errorf("Expected matched ASN 3356, got %d", events[0].MatchedASN)
	}
}

func TestMatch_ASN_OrderIndependent(t *testing.T) {
	e := newEngine(t, []uint32{3356}, nil)

	permutations := [][]uint32{
		{64512, 3356, 174},
		{3356, 64512, 174},
		{174, 64512, 3356},
	}
	for _, path := range permutations {
		events := e.Match(announcement(t, "185.236.43.0/24", path))
		if len(events) != 1 || events[0].MatchedASN != 3356 {
			t.Errorf("Path %v: expected one ASN match on 3356, got %v", path, events)
		}
	}
}

func TestMatch_ASN_DuplicatesCollapse(t *testing.T) {
	e := newEngine(t, []uint32{3356}, nil)
	// Prepended path: 3356 appears three times, still one event.
	events := e.Match(announcement(t, "185.236.43.0/24", []uint32{174, 3356, 3356, 3356}))
	if len(events) != 1 {
		t.Fatalf("Expected 1 event for repeated ASN, got %d", len(events))
	}
}

func TestMatch_PrefixMoreSpecific(t *testing.T) {
	e := newEngine(t, nil, []string{"185.236.43.0/24"})
	events := e.Match(announcement(t, "185.236.43.128/25", []uint32{64512}))

	if len(events) != 1 {
		t.Fatalf("Expected exactly 1 event, got %d", len(events))
	}
	if events[0].Trigger != models.TriggerPrefixMatch {
		t.Errorf("Expected trigger %s, got %s", models.TriggerPrefixMatch, events[0].Trigger)
	}
	if events[0].MatchedPrefix != mustPrefix(t, "185.236.43.0/24") {
		t.Errorf("Expected matched prefix 185.236.43.0/24, got %s", events[0].MatchedPrefix)
	}
}

func TestMatch_PrefixReflexive(t *testing.T) {
	e := newEngine(t, nil, []string{"185.236.43.0/24"})
	events := e.Match(announcement(t, "185.236.43.0/24", []uint32{64512}))
	if len(events) != 1 {
		t.Fatalf("Monitored prefix must match itself, got %d events", len(events))
	}
}

func TestMatch_PrefixLessSpecificDoesNotMatch(t *testing.T) {
	e := newEngine(t, nil, []string{"185.236.43.0/24"})
	// A covering /23 is NOT contained in the monitored /24.
	events := e.Match(announcement(t, "185.236.42.0/23", []uint32{64512}))
	if len(events) != 0 {
		t.Fatalf("Expected no events for less-specific prefix, got %d", len(events))
	}
}

func TestMatch_NoMatch(t *testing.T) {
	e := newEngine(t, []uint32{3356}, []string{"185.236.43.0/24"})
	events := e.Match(announcement(t, "10.0.0.0/24", []uint32{64512, 64513}))
	if len(events) != 0 {
		t.Fatalf("Expected no events, got %d", len(events))
	}
}

func TestMatch_FamilyExclusive(t *testing.T) {
	e4 := newEngine(t, nil, []string{"185.236.43.0/24"})
	if events := e4.Match(announcement(t, "2001:db8::/32", []uint32{64512})); len(events) != 0 {
		t.Errorf("IPv6 update must not match IPv4 monitored prefix, got %d events", len(events))
	}

	e6 := newEngine(t, nil, []string{"2001:db8::/32"})
	if events := e6.Match(announcement(t, "185.236.43.0/24", []uint32{64512})); len(events) != 0 {
		t.Errorf("IPv4 update must not match IPv6 monitored prefix, got %d events", len(events))
	}
	if events := e6.Match(announcement(t, "2001:db8:1::/48", []uint32{64512})); len(events) != 1 {
		t.Errorf("IPv6 more-specific must match IPv6 monitored prefix, got %d events", len(events))
	}
}

func TestMatch_OneEventPerCondition(t *testing.T) {
	// Update satisfies an ASN condition and two prefix conditions at once.
	e := newEngine(t, []uint32{3356}, []string{"185.236.43.0/24", "185.236.0.0/16"})
	events := e.Match(announcement(t, "185.236.43.0/24", []uint32{64512, 3356}))

	if len(events) != 3 {
		t.Fatalf("Expected 3 events (1 ASN + 2 prefix), got %d", len(events))
	}
	// ASN matches come first, then prefix matches in sorted monitored order.
	if events[0].Trigger != models.TriggerASNMatch || events[0].MatchedASN != 3356 {
		t.Errorf("Event 0: expected ASN match on 3356, got %+v", events[0])
	}
	if events[1].MatchedPrefix != mustPrefix(t, "185.236.0.0/16") {
		t.Errorf("Event 1: expected prefix match on 185.236.0.0/16, got %s", events[1].MatchedPrefix)
	}
	if events[2].MatchedPrefix != mustPrefix(t, "185.236.43.0/24") {
		t.Errorf("Event 2: expected prefix match on 185.236.43.0/24, got %s", events[2].MatchedPrefix)
	}
}

func TestMatch_Withdrawal(t *testing.T) {
	e := newEngine(t, nil, []string{"185.236.43.0/24"})
	update := models.RoutingUpdate{
		Collector:    "rrc21",
		Timestamp:    time.Unix(1705320000, 0),
		Prefix:       mustPrefix(t, "185.236.43.0/24"),
		Announcement: false,
	}

	events := e.Match(update)
	if len(events) != 1 {
		t.Fatalf("Expected 1 event for withdrawal, got %d", len(events))
	}
	if events[0].Update.Kind() != "WITHDRAWAL" {
		t.Errorf("Expected WITHDRAWAL kind, got %s", events[0].Update.Kind())
	}
}
