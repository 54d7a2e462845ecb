package engine

import (
	"time"

	"golang.org/x/time/rate"
)

// Evictor sweeps every collection family's expiration index after each
// command batch and drops entries whose expireAt <= now. It is invoked
// in-line by the Dispatcher on its own goroutine; it never blocks and never
// allocates beyond the slice of keys it removes.
type Evictor struct {
	limiter *rate.Limiter
}

// NewEvictor returns an Evictor that runs at most once per interval, so a
// burst of write-heavy batches can't turn every tick into a full sweep.
func NewEvictor(interval time.Duration) *Evictor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Evictor{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Sweep removes expired entries from st, returning the total count removed
// across every family. It respects the limiter unless force is true; the
// Dispatcher's per-tick call passes false.
func (e *Evictor) Sweep(st *MemoryState, now Time, force bool) int {
	if !force && !e.limiter.Allow() {
		return 0
	}
	removed := 0
	for _, key := range st.jobExpiration.PopExpired(now) {
		st.deleteJob(key)
		removed++
	}
	for _, key := range st.hashExpiration.PopExpired(now) {
		delete(st.hashes, key)
		removed++
	}
	for _, key := range st.listExpiration.PopExpired(now) {
		delete(st.lists, key)
		removed++
	}
	for _, key := range st.setExpiration.PopExpired(now) {
		delete(st.sets, key)
		removed++
	}
	for _, key := range st.counterExpiration.PopExpired(now) {
		delete(st.counters, key)
		removed++
	}
	return removed
}
