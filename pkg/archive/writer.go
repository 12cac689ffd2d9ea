// Package archive provides optional batched PostgreSQL archiving of match
// events. The pipeline works identically without it.
package archive

import (
	"database/sql"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/hervehildenbrand/bgp-watch/pkg/models"
	_ "github.com/lib/pq"
)

const (
	batchSize     = 50
	batchInterval = 2 * time.Second
	queueSize     = 10000
)

// Writer batches match events and inserts them into the match_events table.
type Writer struct {
	db    *sql.DB
	queue chan models.MatchEvent
	done  chan struct{}
	wg    sync.WaitGroup

	mu      sync.Mutex
	running bool

	eventsWritten  uint64
	eventsDropped  uint64
	batchesWritten uint64
}

// NewWriter connects to PostgreSQL and prepares a batch writer.
func NewWriter(databaseURL string) (*Writer, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[archive] connected to PostgreSQL")

	return &Writer{
		db:    db,
		queue: make(chan models.MatchEvent, queueSize),
		done:  make(chan struct{}),
	}, nil
}

// Start begins the background writer goroutine.
func (w *Writer) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.writerLoop()
	log.Printf("[archive] writer started")
}

// Stop gracefully shuts down the writer, flushing queued events.
func (w *Writer) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)
	w.wg.Wait()
	w.db.Close()
	log.Printf("[archive] writer stopped (written=%d, dropped=%d, batches=%d)",
		w.eventsWritten, w.eventsDropped, w.batchesWritten)
}

// Write queues a match event for archiving. Full queue drops and counts.
func (w *Writer) Write(event models.MatchEvent) {
	select {
	case w.queue <- event:
	default:
		w.eventsDropped++
		if w.eventsDropped%1000 == 0 {
			log.Printf("[archive] queue full, dropped %d events", w.eventsDropped)
		}
	}
}

func (w *Writer) writerLoop() {
	defer w.wg.Done()

	batch := make([]models.MatchEvent, 0, batchSize)
	ticker := time.NewTicker(batchInterval)
	defer ticker.Stop()

	for {
		select {
		case event := <-w.queue:
			batch = append(batch, event)
			if len(batch) >= batchSize {
				w.writeBatch(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.writeBatch(batch)
				batch = batch[:0]
			}

		case <-w.done:
			// Flush remaining events
			close(w.queue)
			for event := range w.queue {
				batch = append(batch, event)
				if len(batch) >= batchSize {
					w.writeBatch(batch)
					batch = batch[:0]
				}
			}
			if len(batch) > 0 {
				w.writeBatch(batch)
			}
			return
		}
	}
}

func (w *Writer) writeBatch(batch []models.MatchEvent) {
	tx, err := w.db.Begin()
	if err != nil {
		log.Printf("[archive] failed to begin transaction: %v", err)
		return
	}
	defer tx.Rollback()

	written := 0
	for _, event := range batch {
		if w.writeEvent(tx, event) {
			written++
		}
	}

	if err := tx.Commit(); err != nil {
		log.Printf("[archive] failed to commit batch: %v", err)
		return
	}

	w.eventsWritten += uint64(written)
	w.batchesWritten++
}

func (w *Writer) writeEvent(tx *sql.Tx, event models.MatchEvent) bool {
	u := event.Update

	pathJSON, err := json.Marshal(u.ASPath)
	if err != nil {
		pathJSON = []byte("[]")
	}

	_, err = tx.Exec(`
		INSERT INTO match_events (
			trigger_kind, matched_value, update_kind,
			prefix, origin_asn, peer_asn, peer_ip, as_path,
			collector, observed_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		event.Trigger,
		event.MatchedValue(),
		u.Kind(),
		u.Prefix.String(),
		u.OriginASN,
		u.PeerASN,
		u.PeerIP,
		pathJSON,
		u.Collector,
		u.Timestamp,
		time.Now(),
	)

	if err != nil {
		log.Printf("[archive] failed to insert event: %v", err)
		return false
	}

	return true
}
