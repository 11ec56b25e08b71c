// README: Token bucket limiters keyed by caller, shared by the HTTP and websocket paths.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Keyed holds one token bucket per key. A nil *Keyed allows everything.
// TODO: evict limiters of callers idle for longer than a few minutes.
type Keyed struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewKeyed(perSecond float64, burst int) *Keyed {
	return &Keyed{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// PerMinute builds a limiter allowing n events per minute per key.
func PerMinute(n int) *Keyed {
	return NewKeyed(float64(n)/60, n)
}

func (k *Keyed) Allow(key string) bool {
	if k == nil {
		return true
	}
	k.mu.Lock()
	l, ok := k.limiters[key]
	if !ok {
		l = rate.NewLimiter(k.limit, k.burst)
		k.limiters[key] = l
	}
	k.mu.Unlock()
	return l.Allow()
}
