// Package notifier delivers match events to a Slack webhook with bounded
// retries, decoupled from ingestion by a bounded queue and a single worker.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hervehildenbrand/bgp-watch/pkg/backoff"
	"github.com/hervehildenbrand/bgp-watch/pkg/config"
	"github.com/hervehildenbrand/bgp-watch/pkg/models"
	"github.com/hervehildenbrand/bgp-watch/pkg/stats"
)

const (
	queueSize      = 1000
	enqueueWait    = 2 * time.Second
	requestTimeout = 10 * time.Second
)

// Notifier drains a bounded queue of match events and posts each one to the
// Slack webhook. Delivery is serialized: one worker, FIFO, so alerts for a
// given target keep their order. A slow or dead sink never halts ingestion;
// past a bounded wait, new events are dropped and counted.
type Notifier struct {
	webhookURL string
	queue      chan models.MatchEvent
	client     *http.Client
	retry      backoff.Policy
	agg        *stats.Aggregator
	suppressor *Suppressor // nil when suppression is disabled

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup

	running    atomic.Bool
	suppressed atomic.Uint64
	dropped    atomic.Uint64
}

// New creates a notifier for the given webhook. suppressor may be nil.
func New(webhookURL string, cfg *config.Config, agg *stats.Aggregator, suppressor *Suppressor) *Notifier {
	ctx, cancel := context.WithCancel(context.Background())
	return &Notifier{
		webhookURL: webhookURL,
		queue:      make(chan models.MatchEvent, queueSize),
		client:     &http.Client{Timeout: requestTimeout},
		retry: backoff.Policy{
			Attempts: cfg.SlackRetryAttempts,
			Delay:    backoff.Fixed(cfg.SlackRetryDelay),
		},
		agg:        agg,
		suppressor: suppressor,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Start begins the delivery worker.
func (n *Notifier) Start() {
	if n.running.Swap(true) {
		return
	}
	n.wg.Add(1)
	go n.worker()
	log.Printf("[notifier] started (queue capacity %d)", cap(n.queue))
}

// Stop aborts any in-flight delivery, stops the worker, and discards what is
// left on the queue (counted as dropped).
func (n *Notifier) Stop() {
	if !n.running.Swap(false) {
		return
	}
	n.cancel()
	close(n.done)
	n.wg.Wait()

	for {
		select {
		case <-n.queue:
			n.dropped.Add(1)
			n.agg.IncNotifyDropped()
		default:
			log.Printf("[notifier] stopped (suppressed=%d, dropped=%d)",
				n.suppressed.Load(), n.dropped.Load())
			return
		}
	}
}

// Publish queues an event for delivery. When the queue is full it blocks for
// at most enqueueWait, then drops the event and counts it: backpressure must
// not halt the detection pipeline indefinitely.
func (n *Notifier) Publish(event models.MatchEvent) {
	select {
	case n.queue <- event:
		return
	default:
	}

	select {
	case n.queue <- event:
	case <-time.After(enqueueWait):
		dropped := n.dropped.Add(1)
		n.agg.IncNotifyDropped()
		if dropped%100 == 1 {
			log.Printf("[notifier] queue full, dropped %d events so far", dropped)
		}
	case <-n.done:
		// Shutting down: the event will never be delivered, account for it.
		n.dropped.Add(1)
		n.agg.IncNotifyDropped()
	}
}

func (n *Notifier) worker() {
	defer n.wg.Done()
	for {
		select {
		case event := <-n.queue:
			n.deliver(event)
		case <-n.done:
			return
		}
	}
}

func (n *Notifier) deliver(event models.MatchEvent) {
	if n.suppressor != nil && n.suppressor.Suppress(event) {
		n.suppressed.Add(1)
		return
	}

	payload, err := json.Marshal(map[string]string{"text": FormatMessage(event)})
	if err != nil {
		log.Printf("[notifier] marshal failed: %v", err)
		n.agg.IncNotifyFailed()
		return
	}

	err = backoff.Retry(n.ctx, n.retry, func() error {
		return n.post(payload)
	})
	if err != nil {
		if n.ctx.Err() != nil {
			return // shutting down, not a sink failure
		}
		log.Printf("[notifier] giving up after %d attempts: %v", n.retry.Attempts, err)
		n.agg.IncNotifyFailed()
		return
	}
	n.agg.IncNotifySent()
}

func (n *Notifier) post(payload []byte) error {
	req, err := http.NewRequestWithContext(n.ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}
	return nil
}

// FormatMessage renders a match event as the Slack alert text.
func FormatMessage(event models.MatchEvent) string {
	u := event.Update

	timestamp := "N/A"
	if !u.Timestamp.IsZero() {
		timestamp = u.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC")
	}

	return fmt.Sprintf("🚨 BGP %s (Matched: %s)\n"+
		"• Prefix: %s\n"+
		"• AS Path: %s\n"+
		"• Origin ASN: AS%d\n"+
		"• RIS Collector: %s\n"+
		"• Timestamp: %s",
		u.Kind(), event.MatchedValue(),
		u.Prefix, u.PathString(), u.OriginASN, u.Collector, timestamp)
}
