package strategies

import (
	"time"

	"github.com/gabisonia/admission-limiter/clock"
	"github.com/gabisonia/admission-limiter/store"
)

type SlidingWindowCounterStrategy struct {
	limit      int
	windowSize int64
	clock      clock.Clock
	clients    *store.Keyed[windowCounterState]
}

type windowCounterState struct {
	count       int
	windowStart int64
}

// NewSlidingWindowCounterStrategy creates a new Sliding Window Counter rate limiting strategy.
//
// Parameters:
//   - limit: maximum number of allowed requests per window.
//   - windowSize: duration of the window, at millisecond resolution.
//   - clk: time source; nil uses the system clock.
//
// Returns:
//   - *SlidingWindowCounterStrategy: a pointer to a new instance of the strategy.
//
// Each key keeps one counter and the start of its current window. The first request
// arriving more than windowSize after the window start opens a new window at that
// request. Counts are not pro-rated, so up to 2*limit requests can pass in a short
// span straddling a reset.
func NewSlidingWindowCounterStrategy(limit int, windowSize time.Duration, clk clock.Clock) *SlidingWindowCounterStrategy {
	strategy := &SlidingWindowCounterStrategy{
		limit:      limit,
		windowSize: intervalMillis(windowSize),
		clock:      clockOrSystem(clk),
	}
	strategy.clients = store.NewKeyed(func() windowCounterState {
		return windowCounterState{count: 0, windowStart: strategy.clock.Now()}
	})
	return strategy
}

func (strategy *SlidingWindowCounterStrategy) IsAllowed(key string) bool {
	return strategy.clients.Update(key, func(state *windowCounterState) bool {
		now := strategy.clock.Now()

		if now-state.windowStart > strategy.windowSize {
			state.count = 1
			state.windowStart = now
			return true
		}

		if state.count < strategy.limit {
			state.count++
			return true
		}

		return false
	})
}

// RetryAfter returns the remaining time in the current window when it is exhausted.
func (strategy *SlidingWindowCounterStrategy) RetryAfter(key string) time.Duration {
	var wait int64
	strategy.clients.View(key, func(state *windowCounterState) {
		now := strategy.clock.Now()

		if now-state.windowStart > strategy.windowSize || state.count < strategy.limit {
			return
		}

		wait = state.windowStart + strategy.windowSize + 1 - now
	})

	return millisToDuration(wait)
}

func (strategy *SlidingWindowCounterStrategy) Len() int {
	return strategy.clients.Len()
}
