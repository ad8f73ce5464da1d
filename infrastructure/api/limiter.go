package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterPool is a per-user token bucket. Idle buckets are evicted on access,
// at most once per limiterIdleTTL, so the map does not grow with every user ever seen.
type limiterPool struct {
	mu        sync.Mutex
	entries   map[string]*limiterEntry
	rps       rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &limiterPool{entries: make(map[string]*limiterEntry), rps: rate.Limit(rps), burst: burst, now: time.Now}
}

func (p *limiterPool) Allow(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	if now.Sub(p.lastSweep) > limiterIdleTTL {
		for key, entry := range p.entries {
			if now.Sub(entry.lastSeen) > limiterIdleTTL {
				delete(p.entries, key)
			}
		}
		p.lastSweep = now
	}
	entry, ok := p.entries[userID]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(p.rps, p.burst)}
		p.entries[userID] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}
