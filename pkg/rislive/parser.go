package rislive

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"strconv"
	"time"

	"github.com/hervehildenbrand/bgp-watch/pkg/models"
)

// RISMessage is the top-level message from RIS Live.
type RISMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// RISUpdateData is the BGP update data from RIS Live.
type RISUpdateData struct {
	Type          string            `json:"type"` // BGP message kind, e.g. "UPDATE"
	Timestamp     float64           `json:"timestamp"`
	Host          string            `json:"host"`
	Peer          string            `json:"peer"`
	PeerASN       json.RawMessage   `json:"peer_asn"` // Can be string or number
	Path          json.RawMessage   `json:"path"`
	Announcements []RISAnnouncement `json:"announcements"`
	Withdrawals   []string          `json:"withdrawals"`
}

// RISAnnouncement represents announced prefixes.
type RISAnnouncement struct {
	Prefixes []string `json:"prefixes"`
}

// ParseMessage parses one raw RIS Live frame into zero or more RoutingUpdates,
// one per announced or withdrawn prefix. It is pure: the same input always
// yields the same output.
//
// Non-update frames (ris_error, pong, non-UPDATE BGP kinds) return (nil, nil):
// received but not processed. A malformed frame returns an error and produces
// no updates; the caller counts it and keeps streaming.
func ParseMessage(data []byte) ([]models.RoutingUpdate, error) {
	var msg RISMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}

	if msg.Type != "ris_message" {
		return nil, nil
	}

	var ud RISUpdateData
	if err := json.Unmarshal(msg.Data, &ud); err != nil {
		return nil, fmt.Errorf("unmarshal update data: %w", err)
	}

	// Only BGP UPDATE notifications carry routing changes.
	if ud.Type != "UPDATE" {
		return nil, nil
	}

	asPath, err := parseASPath(ud.Path)
	if err != nil {
		return nil, fmt.Errorf("parse AS path: %w", err)
	}

	var originASN uint32
	if len(asPath) > 0 {
		originASN = asPath[len(asPath)-1]
	}

	collector := ud.Host
	if collector == "" {
		collector = "unknown"
	}

	sec := int64(ud.Timestamp)
	timestamp := time.Unix(sec, int64((ud.Timestamp-float64(sec))*1e9))
	peerASN := parseASN(ud.PeerASN)

	base := models.RoutingUpdate{
		Collector: collector,
		Timestamp: timestamp,
		PeerASN:   peerASN,
		PeerIP:    ud.Peer,
		ASPath:    asPath,
		OriginASN: originASN,
	}

	var updates []models.RoutingUpdate
	for _, ann := range ud.Announcements {
		for _, s := range ann.Prefixes {
			if len(asPath) == 0 {
				return nil, fmt.Errorf("announcement %s with empty AS path", s)
			}
			prefix, err := netip.ParsePrefix(s)
			if err != nil {
				return nil, fmt.Errorf("parse announced prefix %q: %w", s, err)
			}
			u := base
			u.Prefix = prefix.Masked()
			u.Announcement = true
			updates = append(updates, u)
		}
	}
	for _, s := range ud.Withdrawals {
		prefix, err := netip.ParsePrefix(s)
		if err != nil {
			return nil, fmt.Errorf("parse withdrawn prefix %q: %w", s, err)
		}
		u := base
		u.Prefix = prefix.Masked()
		u.Announcement = false
		updates = append(updates, u)
	}

	if len(updates) == 0 {
		return nil, fmt.Errorf("UPDATE message carries no prefixes")
	}

	return updates, nil
}

// parseASN parses an ASN that can be either a string or number.
func parseASN(data json.RawMessage) uint32 {
	if len(data) == 0 {
		return 0
	}

	// Try as number first
	var num uint32
	if err := json.Unmarshal(data, &num); err == nil {
		return num
	}

	// Try as string
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		val, _ := strconv.ParseUint(str, 10, 32)
		return uint32(val)
	}

	return 0
}

// parseASPath flattens the AS path which may contain nested arrays (AS_SET).
// Input can be: [174, 3356, 65001] or [[174], [3356, 65001], 65002]
func parseASPath(data json.RawMessage) ([]uint32, error) {
	if len(data) == 0 {
		return nil, nil
	}

	// Try parsing as simple array of numbers first
	var simpleArray []uint32
	if err := json.Unmarshal(data, &simpleArray); err == nil {
		return simpleArray, nil
	}

	// Try parsing as mixed array (may contain nested arrays)
	var mixedArray []json.RawMessage
	if err := json.Unmarshal(data, &mixedArray); err != nil {
		return nil, fmt.Errorf("cannot parse path: %w", err)
	}

	var result []uint32
	for _, elem := range mixedArray {
		// Try as single number
		var num uint32
		if err := json.Unmarshal(elem, &num); err == nil {
			result = append(result, num)
			continue
		}

		// Try as array of numbers (AS_SET)
		var nums []uint32
		if err := json.Unmarshal(elem, &nums); err == nil {
			result = append(result, nums...)
			continue
		}

		// Anything else would silently truncate the path and could forge a
		// wrong origin ASN; treat the whole message as malformed instead.
		return nil, fmt.Errorf("unrecognized path element %s", string(elem))
	}

	return result, nil
}
