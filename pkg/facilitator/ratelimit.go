package facilitator

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// rateLimiter counts requests per caller origin in fixed windows. The
// backing store is a bounded, TTL-evicting LRU, so idle origins age out
// instead of growing the map forever.
type rateLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	buckets *expirable.LRU[string, *rateBucket]
}

type rateBucket struct {
	start time.Time
	count int
}

const rateLimiterOrigins = 16384

func newRateLimiter(max int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		max:     max,
		window:  window,
		buckets: expirable.NewLRU[string, *rateBucket](rateLimiterOrigins, nil, window),
	}
}

// allow consumes one slot for origin, resetting the bucket when its
// window has lapsed.
func (rl *rateLimiter) allow(origin string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	bucket, ok := rl.buckets.Get(origin)
	if !ok || now.Sub(bucket.start) >= rl.window {
		rl.buckets.Add(origin, &rateBucket{start: now, count: 1})
		return true
	}
	if bucket.count >= rl.max {
		return false
	}
	bucket.count++
	return true
}
