package strategies

import (
	"math"
	"time"

	"golang.org/x/time/rate"

	"github.com/gabisonia/admission-limiter/clock"
	"github.com/gabisonia/admission-limiter/store"
)

type SmoothRateStrategy struct {
	limit   rate.Limit
	burst   int
	clock   clock.Clock
	clients *store.Keyed[smoothRateState]
}

type smoothRateState struct {
	limiter *rate.Limiter
}

// NewSmoothRateStrategy creates a rate limiting strategy backed by one
// golang.org/x/time/rate limiter per key.
//
// Parameters:
//   - permitsPerSecond: steady rate at which permits become available.
//   - burst: number of permits that may be taken at once.
//   - clk: time source; nil uses the system clock.
//
// Returns:
//   - *SmoothRateStrategy: a pointer to a new instance of the strategy.
//
// A request takes one permit without waiting. With burst 1 requests are spaced
// exactly 1/permitsPerSecond apart.
func NewSmoothRateStrategy(permitsPerSecond float64, burst int, clk clock.Clock) *SmoothRateStrategy {
	limit := rate.Limit(permitsPerSecond)
	return &SmoothRateStrategy{
		limit: limit,
		burst: burst,
		clock: clockOrSystem(clk),
		clients: store.NewKeyed(func() smoothRateState {
			return smoothRateState{limiter: rate.NewLimiter(limit, burst)}
		}),
	}
}

func (strategy *SmoothRateStrategy) IsAllowed(key string) bool {
	return strategy.clients.Update(key, func(state *smoothRateState) bool {
		return state.limiter.AllowN(time.UnixMilli(strategy.clock.Now()), 1)
	})
}

// RetryAfter returns how long until one permit is available.
func (strategy *SmoothRateStrategy) RetryAfter(key string) time.Duration {
	var wait time.Duration
	strategy.clients.View(key, func(state *smoothRateState) {
		tokens := state.limiter.TokensAt(time.UnixMilli(strategy.clock.Now()))
		if tokens >= 1 {
			return
		}

		seconds := (1 - tokens) / float64(strategy.limit)
		wait = time.Duration(math.Ceil(seconds*1000)) * time.Millisecond
	})

	return wait
}

func (strategy *SmoothRateStrategy) Len() int {
	return strategy.clients.Len()
}
