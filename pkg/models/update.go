// Package models defines data structures for BGP routing updates and match events.
package models

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"time"
)

// RoutingUpdate represents one announced or withdrawn prefix from a RIS Live
// UPDATE message. A single raw message decomposes into one RoutingUpdate per
// prefix it carries.
type RoutingUpdate struct {
	Collector    string // e.g., "rrc21"
	Timestamp    time.Time
	PeerASN      uint32
	PeerIP       string
	Prefix       netip.Prefix
	ASPath       []uint32 // As observed; AS_SETs flattened. Empty only for withdrawals.
	OriginASN    uint32   // Last element of ASPath, 0 when the path is empty.
	Announcement bool     // true=announcement, false=withdrawal
}

// Kind returns the update kind as a display string.
func (u RoutingUpdate) Kind() string {
	if u.Announcement {
		return "ANNOUNCEMENT"
	}
	return "WITHDRAWAL"
}

// PathString renders the AS path as "64512 → 3356 → 174", or "N/A" when empty.
func (u RoutingUpdate) PathString() string {
	if len(u.ASPath) == 0 {
		return "N/A"
	}
	parts := make([]string, len(u.ASPath))
	for i, asn := range u.ASPath {
		parts[i] = strconv.FormatUint(uint64(asn), 10)
	}
	return strings.Join(parts, " → ")
}

// Trigger kinds
const (
	TriggerASNMatch    = "asn_match"
	TriggerPrefixMatch = "prefix_match"
)

// MatchEvent is produced by the match engine when a RoutingUpdate is relevant
// to the monitored ASN/prefix watch list. One event per satisfied condition.
type MatchEvent struct {
	Update        RoutingUpdate
	Trigger       string       // asn_match or prefix_match
	MatchedASN    uint32       // set when Trigger == TriggerASNMatch
	MatchedPrefix netip.Prefix // set when Trigger == TriggerPrefixMatch
	Summary       string
}

// MatchedValue returns the matched ASN or prefix as a display string.
func (e MatchEvent) MatchedValue() string {
	if e.Trigger == TriggerASNMatch {
		return fmt.Sprintf("AS%d", e.MatchedASN)
	}
	return e.MatchedPrefix.String()
}
