// Package rislive provides a WebSocket client for the RIPE RIS Live BGP
// stream with automatic reconnection, plus the message parser.
package rislive

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hervehildenbrand/bgp-watch/pkg/backoff"
	"github.com/hervehildenbrand/bgp-watch/pkg/config"
	"github.com/hervehildenbrand/bgp-watch/pkg/models"
	"github.com/hervehildenbrand/bgp-watch/pkg/stats"
)

const (
	// RISLiveURL is the WebSocket endpoint for RIS Live.
	RISLiveURL = "wss://ris-live.ripe.net/v1/ws/?client=bgp-watch"

	// backoffCapExp caps the reconnect backoff exponent: the wait never
	// exceeds base * 2^backoffCapExp.
	backoffCapExp = 6

	// streamingResetPeriod is how long a connection must stream frames before
	// the reconnect attempt counter resets to zero. Dial and subscribe
	// handshakes do not count toward it.
	streamingResetPeriod = 60 * time.Second

	subscribeTimeout  = 30 * time.Second
	connectionTimeout = 60 * time.Second
	pingInterval      = 30 * time.Second
	writeTimeout      = 10 * time.Second
)

// Client maintains one WebSocket connection to RIS Live, subscribes to every
// configured collector over it, and feeds parsed RoutingUpdates to a bounded
// channel. Connection-level failures trigger reconnection with exponential
// backoff; malformed payloads are counted and skipped without touching the
// connection.
type Client struct {
	url        string
	collectors []string
	updates    chan models.RoutingUpdate
	agg        *stats.Aggregator
	reconnect  backoff.Policy
	resetAfter time.Duration

	done  chan struct{}
	fatal chan error
	wg    sync.WaitGroup

	running     atomic.Bool
	connected   atomic.Bool
	parseErrors atomic.Uint64
}

// NewClient creates a RIS Live client for the configured collectors.
func NewClient(cfg *config.Config, agg *stats.Aggregator, bufferSize int) *Client {
	return &Client{
		url:        RISLiveURL,
		collectors: cfg.Collectors,
		updates:    make(chan models.RoutingUpdate, bufferSize),
		agg:        agg,
		reconnect: backoff.Policy{
			Attempts: cfg.MaxReconnectAttempts,
			Delay:    backoff.Exponential(cfg.ReconnectDelay, backoffCapExp),
		},
		resetAfter: streamingResetPeriod,
		done:  make(chan struct{}),
		fatal: make(chan error, 1),
	}
}

// Updates returns the channel of parsed routing updates. It is closed when
// the client stops.
func (c *Client) Updates() <-chan models.RoutingUpdate {
	return c.updates
}

// Fatal delivers the terminal error when the reconnect budget is exhausted.
func (c *Client) Fatal() <-chan error {
	return c.fatal
}

// Connected reports whether the client currently has a live subscription.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Start begins the connection loop in a goroutine.
func (c *Client) Start() {
	if c.running.Swap(true) {
		log.Printf("[rislive] client already running")
		return
	}
	c.wg.Add(1)
	go c.runLoop()
	log.Printf("[rislive] client started (collectors: %v)", c.collectors)
}

// Stop gracefully shuts down the client and closes the updates channel.
func (c *Client) Stop() {
	if !c.running.Swap(false) {
		return
	}
	close(c.done)
	c.wg.Wait()
	log.Printf("[rislive] client stopped")
}

func (c *Client) runLoop() {
	defer c.wg.Done()
	defer close(c.updates)

	attempt := 0
	for c.running.Load() {
		streamed, err := c.connectAndStream()
		if !c.running.Load() {
			return
		}
		if err == nil {
			err = fmt.Errorf("connection closed by remote")
		}

		// A connection that streamed frames long enough proves the endpoint
		// is healthy again; start the backoff schedule over. Time spent in
		// dial/subscribe handshakes never counts: a slow-but-failing endpoint
		// must still exhaust a finite attempt budget.
		if streamed >= c.resetAfter {
			attempt = 0
		}

		c.agg.IncReconnects()
		attempt++
		if c.reconnect.Exhausted(attempt) {
			log.Printf("[rislive] reconnect budget exhausted after %d attempts: %v", attempt, err)
			c.fatal <- err
			return
		}

		delay := c.reconnect.Delay(attempt - 1)
		log.Printf("[rislive] connection error: %v, reconnecting in %v (attempt %d)", err, delay, attempt)
		select {
		case <-c.done:
			return
		case <-time.After(delay):
		}
	}
}

// connectAndStream runs one connection lifecycle and reports how long the
// connection spent actually streaming, measured from the first frame received.
func (c *Client) connectAndStream() (streamed time.Duration, err error) {
	var firstFrame time.Time
	defer func() {
		if !firstFrame.IsZero() {
			streamed = time.Since(firstFrame)
		}
	}()

	dialer := websocket.Dialer{
		HandshakeTimeout: subscribeTimeout,
	}

	log.Printf("[rislive] connecting to %s", c.url)
	conn, _, err := dialer.Dial(c.url, nil)
	if err != nil {
		return 0, fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	// Subscriptions are always issued from config, never carried over from a
	// previous connection.
	for _, collector := range c.collectors {
		subscribeMsg := map[string]interface{}{
			"type": "ris_subscribe",
			"data": map[string]interface{}{
				"type": "UPDATE",
				"host": collector,
				"socketOptions": map[string]interface{}{
					"includeRaw": false,
				},
			},
		}
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(subscribeMsg); err != nil {
			return 0, fmt.Errorf("subscribe %s failed: %w", collector, err)
		}
		log.Printf("[rislive] subscribed to collector: %s", collector)
	}

	// RIS Live sends no explicit subscribe ack: treat the first frame within
	// the deadline as acknowledgment.
	conn.SetReadDeadline(time.Now().Add(subscribeTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(connectionTimeout))
	})

	c.connected.Store(true)
	defer c.connected.Store(false)

	// Keepalive pings; also closes the connection on Stop to unblock the
	// blocked ReadMessage below.
	pingDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-pingDone:
				return
			case <-c.done:
				conn.Close()
				return
			}
		}
	}()
	defer close(pingDone)

	for c.running.Load() {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return 0, nil
			}
			return 0, fmt.Errorf("read failed: %w", err)
		}
		if firstFrame.IsZero() {
			firstFrame = time.Now()
		}
		conn.SetReadDeadline(time.Now().Add(connectionTimeout))

		if messageType != websocket.TextMessage {
			continue
		}

		c.agg.IncMessagesReceived()

		updates, err := ParseMessage(message)
		if err != nil {
			// Malformed payload: discard and keep streaming.
			c.agg.IncParseErrors()
			if c.parseErrors.Add(1) <= 10 {
				log.Printf("[rislive] parse error: %v", err)
			}
			continue
		}
		if len(updates) == 0 {
			// Non-update frame (pong, ris_error, ...): received, not processed.
			continue
		}

		c.agg.IncCollector(updates[0].Collector)
		for _, update := range updates {
			c.agg.IncUpdatesParsed()
			select {
			case c.updates <- update:
			case <-c.done:
				return 0, nil
			}
		}
	}

	return 0, nil
}
