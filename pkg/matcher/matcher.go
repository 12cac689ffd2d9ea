// Package matcher decides whether a routing update is relevant to the
// configured watch list of ASNs and prefixes.
package matcher

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/hervehildenbrand/bgp-watch/pkg/config"
	"github.com/hervehildenbrand/bgp-watch/pkg/models"
)

// Engine evaluates routing updates against an immutable watch list.
// Match is pure and safe for concurrent use.
type Engine struct {
	asns     map[uint32]struct{}
	prefixes []netip.Prefix // sorted by address then prefix length
}

// NewEngine builds an engine from the validated monitor configuration.
func NewEngine(cfg *config.Config) *Engine {
	asns := make(map[uint32]struct{}, len(cfg.MonitoredASNs))
	for _, asn := range cfg.MonitoredASNs {
		asns[asn] = struct{}{}
	}
	return &Engine{
		asns:     asns,
		prefixes: cfg.MonitoredPrefixes,
	}
}

// Match returns one MatchEvent per satisfied condition, or nil when the
// update is irrelevant (the common case). Event order is deterministic:
// ASN matches in order of first occurrence along the AS path, then prefix
// matches in the monitored list's sorted order.
func (e *Engine) Match(update models.RoutingUpdate) []models.MatchEvent {
	var events []models.MatchEvent

	// ASN test: set membership anywhere in the path; duplicates collapse to
	// one event per monitored ASN. No allocation unless something matches.
	for _, asn := range update.ASPath {
		if _, ok := e.asns[asn]; !ok {
			continue
		}
		dup := false
		for _, ev := range events {
			if ev.MatchedASN == asn {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		events = append(events, models.MatchEvent{
			Update:     update,
			Trigger:    models.TriggerASNMatch,
			MatchedASN: asn,
			Summary:    summarize(update, fmt.Sprintf("AS%d in path", asn)),
		})
	}

	// Prefix test: contained in or equal to a monitored prefix, same address
	// family only.
	for _, monitored := range e.prefixes {
		if !contains(monitored, update.Prefix) {
			continue
		}
		events = append(events, models.MatchEvent{
			Update:        update,
			Trigger:       models.TriggerPrefixMatch,
			MatchedPrefix: monitored,
			Summary:       summarize(update, fmt.Sprintf("prefix within %s", monitored)),
		})
	}

	return events
}

// contains reports whether inner's network range is a subset of (or equal to)
// outer's. Cross-family comparisons never match.
func contains(outer, inner netip.Prefix) bool {
	if outer.Addr().Is4() != inner.Addr().Is4() {
		return false
	}
	return inner.Bits() >= outer.Bits() && outer.Contains(inner.Addr())
}

func summarize(u models.RoutingUpdate, reason string) string {
	return fmt.Sprintf("BGP %s %s via AS%d from %s at %s (%s)",
		u.Kind(), u.Prefix, u.OriginASN, u.Collector,
		u.Timestamp.UTC().Format(time.RFC3339), reason)
}
