// Package stats maintains the pipeline's aggregate counters and produces
// immutable snapshots on a timer.
package stats

import (
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hervehildenbrand/bgp-watch/pkg/models"
)

// Aggregator holds monotonically increasing counters updated atomically by
// every pipeline stage. Snapshots never block writers.
type Aggregator struct {
	messagesReceived atomic.Uint64
	updatesParsed    atomic.Uint64
	parseErrors      atomic.Uint64
	asnMatches       atomic.Uint64
	prefixMatches    atomic.Uint64
	notifySent       atomic.Uint64
	notifyFailed     atomic.Uint64
	notifyDropped    atomic.Uint64
	reconnects       atomic.Uint64

	mu           sync.Mutex
	perCollector map[string]uint64
	windowStart  time.Time
}

// New creates an Aggregator with the stats window starting now.
func New() *Aggregator {
	return &Aggregator{
		perCollector: make(map[string]uint64),
		windowStart:  time.Now(),
	}
}

// IncMessagesReceived counts one raw feed message, before any filtering.
func (a *Aggregator) IncMessagesReceived() { a.messagesReceived.Add(1) }

// IncUpdatesParsed counts one RoutingUpdate emitted by the parser.
func (a *Aggregator) IncUpdatesParsed() { a.updatesParsed.Add(1) }

// IncParseErrors counts one discarded malformed message.
func (a *Aggregator) IncParseErrors() { a.parseErrors.Add(1) }

// IncReconnects counts one reconnect cycle of the stream client.
func (a *Aggregator) IncReconnects() { a.reconnects.Add(1) }

// IncNotifySent counts one successful notification delivery.
func (a *Aggregator) IncNotifySent() { a.notifySent.Add(1) }

// IncNotifyFailed counts one permanently failed delivery (retries exhausted).
func (a *Aggregator) IncNotifyFailed() { a.notifyFailed.Add(1) }

// IncNotifyDropped counts one event dropped because the dispatch queue was full.
func (a *Aggregator) IncNotifyDropped() { a.notifyDropped.Add(1) }

// IncMatch counts one match event for the given trigger kind.
func (a *Aggregator) IncMatch(trigger string) {
	switch trigger {
	case models.TriggerASNMatch:
		a.asnMatches.Add(1)
	default:
		a.prefixMatches.Add(1)
	}
}

// IncCollector counts one parsed message from the given collector.
func (a *Aggregator) IncCollector(collector string) {
	a.mu.Lock()
	a.perCollector[collector]++
	a.mu.Unlock()
}

// Snapshot is an immutable copy of all counters for one reporting window.
type Snapshot struct {
	MessagesReceived uint64
	UpdatesParsed    uint64
	ParseErrors      uint64
	PerCollector     map[string]uint64
	ASNMatches       uint64
	PrefixMatches    uint64
	NotifySent       uint64
	NotifyFailed     uint64
	NotifyDropped    uint64
	Reconnects       uint64
	WindowStart      time.Time
	WindowEnd        time.Time
}

// Matches returns the total match count across trigger kinds.
func (s Snapshot) Matches() uint64 { return s.ASNMatches + s.PrefixMatches }

// Snapshot takes a consistent copy of the counters and starts a new window.
// Counters themselves are cumulative and are not reset.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	per := make(map[string]uint64, len(a.perCollector))
	for k, v := range a.perCollector {
		per[k] = v
	}
	start := a.windowStart
	a.windowStart = time.Now()
	a.mu.Unlock()

	return Snapshot{
		MessagesReceived: a.messagesReceived.Load(),
		UpdatesParsed:    a.updatesParsed.Load(),
		ParseErrors:      a.parseErrors.Load(),
		PerCollector:     per,
		ASNMatches:       a.asnMatches.Load(),
		PrefixMatches:    a.prefixMatches.Load(),
		NotifySent:       a.notifySent.Load(),
		NotifyFailed:     a.notifyFailed.Load(),
		NotifyDropped:    a.notifyDropped.Load(),
		Reconnects:       a.reconnects.Load(),
		WindowStart:      start,
		WindowEnd:        time.Now(),
	}
}

// Log writes the snapshot as a human-readable block to the standard log.
func (s Snapshot) Log() {
	log.Printf("=== bgp-watch statistics ===")
	log.Printf("messages received: %d (parsed updates: %d, parse errors: %d, reconnects: %d)",
		s.MessagesReceived, s.UpdatesParsed, s.ParseErrors, s.Reconnects)

	collectors := make([]string, 0, len(s.PerCollector))
	for c := range s.PerCollector {
		collectors = append(collectors, c)
	}
	sort.Strings(collectors)
	for _, c := range collectors {
		log.Printf("  %s: %d messages", c, s.PerCollector[c])
	}

	log.Printf("matches: %d (asn=%d, prefix=%d)", s.Matches(), s.ASNMatches, s.PrefixMatches)
	log.Printf("notifications: sent=%d, failed=%d, dropped=%d", s.NotifySent, s.NotifyFailed, s.NotifyDropped)
	log.Printf("============================")
}

// Reporter logs a snapshot at a fixed interval until Stop is called.
type Reporter struct {
	agg      *Aggregator
	interval time.Duration
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewReporter creates a periodic stats reporter.
func NewReporter(agg *Aggregator, interval time.Duration) *Reporter {
	return &Reporter{
		agg:      agg,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins the reporting goroutine.
func (r *Reporter) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.agg.Snapshot().Log()
			case <-r.done:
				return
			}
		}
	}()
}

// Stop halts the reporter and flushes one final snapshot.
func (r *Reporter) Stop() {
	close(r.done)
	r.wg.Wait()
	r.agg.Snapshot().Log()
}
