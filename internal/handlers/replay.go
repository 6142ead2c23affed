package handlers

import (
	"context"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"bursar/pkg/logging"
)

const replayWindow = 24 * time.Hour

// ReplayGuard rejects webhook deliveries that were already processed.
// Event ids are claimed with a Redis SETNX so replays are caught across
// instances; without Redis it degrades to a per-process TTL map, which
// is safe because crediting itself is idempotent either way.
type ReplayGuard struct {
	redis  *goredis.Client
	logger logging.Logger

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewReplayGuard creates a replay guard. redis may be nil.
func NewReplayGuard(redis *goredis.Client, logger logging.Logger) *ReplayGuard {
	return &ReplayGuard{
		redis:  redis,
		logger: logger,
		seen:   make(map[string]time.Time),
	}
}

// ClaimEvent records the event id and reports whether this delivery is the
// first. Returns true exactly once per id within the replay window.
func (g *ReplayGuard) ClaimEvent(ctx context.Context, provider, eventID string) bool {
	key := "bursar:webhook:" + provider + ":" + eventID

	if g.redis != nil {
		ok, err := g.redis.SetNX(ctx, key, time.Now().Unix(), replayWindow).Result()
		if err == nil {
			return ok
		}
		g.logger.WithFields(logging.Fields{
			"event_id": eventID,
			"error":    err.Error(),
		}).Warn("Redis replay check failed, falling back to in-memory guard")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	for k, claimed := range g.seen {
		if now.Sub(claimed) > replayWindow {
			delete(g.seen, k)
		}
	}
	if _, dup := g.seen[key]; dup {
		return false
	}
	g.seen[key] = now
	return true
}

// ReleaseEvent drops a claim so a failed delivery can be retried by the
// provider without being treated as a replay.
func (g *ReplayGuard) ReleaseEvent(ctx context.Context, provider, eventID string) {
	key := "bursar:webhook:" + provider + ":" + eventID

	if g.redis != nil {
		if err := g.redis.Del(ctx, key).Err(); err != nil {
			g.logger.WithFields(logging.Fields{
				"event_id": eventID,
				"error":    err.Error(),
			}).Warn("Failed to release webhook claim in Redis")
		}
	}

	g.mu.Lock()
	delete(g.seen, key)
	g.mu.Unlock()
}
