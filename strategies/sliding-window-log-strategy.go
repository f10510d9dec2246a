package strategies

import (
	"time"

	"github.com/emirpasic/gods/queues/linkedlistqueue"

	"github.com/gabisonia/admission-limiter/clock"
	"github.com/gabisonia/admission-limiter/store"
)

type SlidingWindowLogStrategy struct {
	limit      int
	windowSize int64
	clock      clock.Clock
	clients    *store.Keyed[windowLogState]
}

// windowLogState holds admitted timestamps oldest-first. The queue grows one
// node per admitted request and never holds more than limit entries.
type windowLogState struct {
	timestamps *linkedlistqueue.Queue
}

// NewSlidingWindowLogStrategy creates a new Sliding Window Log rate limiting strategy.
//
// Parameters:
//   - limit: maximum number of allowed requests within the sliding window.
//   - windowSize: duration of the sliding time window, at millisecond resolution.
//   - clk: time source; nil uses the system clock.
//
// Returns:
//   - *SlidingWindowLogStrategy: a pointer to a new instance of the strategy.
//
// This strategy records the timestamp of every admitted request and admits a new
// one only while fewer than limit timestamps fall inside the trailing window.
// A timestamp exactly windowSize old still counts; it expires one millisecond later.
func NewSlidingWindowLogStrategy(limit int, windowSize time.Duration, clk clock.Clock) *SlidingWindowLogStrategy {
	return &SlidingWindowLogStrategy{
		limit:      limit,
		windowSize: intervalMillis(windowSize),
		clock:      clockOrSystem(clk),
		clients: store.NewKeyed(func() windowLogState {
			return windowLogState{timestamps: linkedlistqueue.New()}
		}),
	}
}

func (strategy *SlidingWindowLogStrategy) IsAllowed(key string) bool {
	return strategy.clients.Update(key, func(state *windowLogState) bool {
		now := strategy.clock.Now()

		// Drop expired timestamps from the oldest end
		for {
			oldest, ok := state.timestamps.Peek()
			if !ok || now-oldest.(int64) <= strategy.windowSize {
				break
			}
			state.timestamps.Dequeue()
		}

		if state.timestamps.Size() < strategy.limit {
			state.timestamps.Enqueue(now)
			return true
		}

		return false
	})
}

// RetryAfter returns how long until the oldest in-window timestamp expires and
// capacity frees up.
func (strategy *SlidingWindowLogStrategy) RetryAfter(key string) time.Duration {
	var wait int64
	strategy.clients.View(key, func(state *windowLogState) {
		now := strategy.clock.Now()

		// Skip expired timestamps without pruning them
		expired := 0
		oldestLive := int64(0)
		it := state.timestamps.Iterator()
		for it.Next() {
			ts := it.Value().(int64)
			if now-ts <= strategy.windowSize {
				oldestLive = ts
				break
			}
			expired++
		}
		if state.timestamps.Size()-expired < strategy.limit {
			return
		}

		wait = oldestLive + strategy.windowSize + 1 - now
	})

	return millisToDuration(wait)
}

func (strategy *SlidingWindowLogStrategy) Len() int {
	return strategy.clients.Len()
}
