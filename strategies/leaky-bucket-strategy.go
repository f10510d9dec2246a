package strategies

import (
	"time"

	"github.com/gabisonia/admission-limiter/clock"
	"github.com/gabisonia/admission-limiter/store"
)

type LeakyBucketStrategy struct {
	capacity     int
	leakInterval int64
	clock        clock.Clock
	clients      *store.Keyed[leakyBucketState]
}

type leakyBucketState struct {
	fill     int
	lastLeak int64
}

// NewLeakyBucketStrategy creates a new Leaky Bucket rate limiting strategy.
//
// Parameters:
//   - capacity: maximum fill level of the bucket.
//   - leakInterval: time it takes for one unit to leak out, at millisecond resolution.
//   - clk: time source; nil uses the system clock.
//
// Returns:
//   - *LeakyBucketStrategy: a pointer to a new instance of the strategy.
//
// Every admitted request adds one unit to the bucket and whole units drain once per
// leakInterval. The leak clock advances by whole intervals only, so a partially
// elapsed interval carries over to the next call. A full bucket denies requests.
func NewLeakyBucketStrategy(capacity int, leakInterval time.Duration, clk clock.Clock) *LeakyBucketStrategy {
	strategy := &LeakyBucketStrategy{
		capacity:     capacity,
		leakInterval: intervalMillis(leakInterval),
		clock:        clockOrSystem(clk),
	}
	strategy.clients = store.NewKeyed(func() leakyBucketState {
		return leakyBucketState{fill: 0, lastLeak: strategy.clock.Now()}
	})
	return strategy
}

func (strategy *LeakyBucketStrategy) IsAllowed(key string) bool {
	return strategy.clients.Update(key, func(state *leakyBucketState) bool {
		now := strategy.clock.Now()

		if leaked := strategy.leaked(state, now); leaked > 0 {
			state.fill = int(max(0, int64(state.fill)-leaked))
			state.lastLeak += leaked * strategy.leakInterval
		}

		if state.fill < strategy.capacity {
			state.fill++
			return true
		}

		return false
	})
}

// RetryAfter returns how long until the next unit leaks out of a full bucket.
func (strategy *LeakyBucketStrategy) RetryAfter(key string) time.Duration {
	var wait int64
	strategy.clients.View(key, func(state *leakyBucketState) {
		now := strategy.clock.Now()

		leaked := strategy.leaked(state, now)
		if int64(state.fill)-leaked < int64(strategy.capacity) {
			return
		}

		wait = state.lastLeak + (leaked+1)*strategy.leakInterval - now
	})

	return millisToDuration(wait)
}

func (strategy *LeakyBucketStrategy) Len() int {
	return strategy.clients.Len()
}

// leaked returns the whole units drained since the last leak.
// A clock that moved backwards drains nothing.
func (strategy *LeakyBucketStrategy) leaked(state *leakyBucketState, now int64) int64 {
	elapsed := now - state.lastLeak
	if elapsed <= 0 {
		return 0
	}
	return elapsed / strategy.leakInterval
}
