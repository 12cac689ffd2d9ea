package notifier

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/hervehildenbrand/bgp-watch/pkg/models"
	"github.com/redis/go-redis/v9"
)

// Suppressor drops repeats of the same alert within a cooldown window so a
// flapping route does not flood the sink. A local cache answers the common
// case; when a Redis client is configured the cooldown is shared across
// instances.
type Suppressor struct {
	ttl   time.Duration
	redis *redis.Client
	ctx   context.Context

	cache sync.Map // key -> time.Time of last delivery
}

// NewSuppressor creates a suppressor with the given cooldown window.
// redisClient may be nil for local-only suppression.
func NewSuppressor(ttl time.Duration, redisClient *redis.Client) *Suppressor {
	return &Suppressor{
		ttl:   ttl,
		redis: redisClient,
		ctx:   context.Background(),
	}
}

// Suppress reports whether the event repeats a recently delivered alert and
// records it otherwise. The key covers trigger, matched value, prefix, and
// update kind: a withdrawal following an announcement still alerts.
func (s *Suppressor) Suppress(event models.MatchEvent) bool {
	key := fmt.Sprintf("%s:%s:%s:%s",
		event.Trigger, event.MatchedValue(), event.Update.Prefix, event.Update.Kind())

	// Local cache first.
	if t, ok := s.cache.Load(key); ok {
		if time.Since(t.(time.Time)) < s.ttl {
			return true
		}
		s.cache.Delete(key)
	}

	if s.redis != nil {
		set, err := s.redis.SetNX(s.ctx, "bgpwatch:alert:"+key, 1, s.ttl).Result()
		if err != nil {
			// Redis down: fall back to the local cache alone.
			log.Printf("[notifier] redis suppress error: %v", err)
		} else if !set {
			// Another instance delivered this alert within the window.
			s.cache.Store(key, time.Now())
			return true
		}
	}

	s.cache.Store(key, time.Now())
	return false
}
