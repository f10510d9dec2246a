package strategies

import (
	"math"
	"time"

	"github.com/gabisonia/admission-limiter/clock"
	"github.com/gabisonia/admission-limiter/store"
)

type TokenBucketStrategy struct {
	maxTokens      float64
	refillInterval int64
	clock          clock.Clock
	clients        *store.Keyed[tokenBucketState]
}

type tokenBucketState struct {
	tokens     float64
	lastRefill int64
}

// NewTokenBucketStrategy creates a new Token Bucket rate limiting strategy.
//
// Parameters:
//   - maxTokens: maximum number of tokens the bucket can hold.
//   - refillInterval: time it takes to accrue one token, at millisecond resolution.
//   - clk: time source; nil uses the system clock.
//
// Returns:
//   - *TokenBucketStrategy: a pointer to a new instance of the strategy.
//
// Buckets start full. Tokens accrue continuously as elapsed/refillInterval and are
// capped at maxTokens. A request consumes one token; if less than one token is
// available, the request is denied.
func NewTokenBucketStrategy(maxTokens float64, refillInterval time.Duration, clk clock.Clock) *TokenBucketStrategy {
	strategy := &TokenBucketStrategy{
		maxTokens:      maxTokens,
		refillInterval: intervalMillis(refillInterval),
		clock:          clockOrSystem(clk),
	}
	strategy.clients = store.NewKeyed(func() tokenBucketState {
		return tokenBucketState{tokens: maxTokens, lastRefill: strategy.clock.Now()}
	})
	return strategy
}

func (strategy *TokenBucketStrategy) IsAllowed(key string) bool {
	return strategy.clients.Update(key, func(state *tokenBucketState) bool {
		now := strategy.clock.Now()

		// lastRefill only moves when tokens are actually added
		tokensToAdd := strategy.accrued(state, now)
		if tokensToAdd > 0 {
			state.tokens = math.Min(strategy.maxTokens, state.tokens+tokensToAdd)
			state.lastRefill = now
		}

		if state.tokens >= 1 {
			state.tokens--
			return true
		}

		return false
	})
}

// RetryAfter returns how long until one full token is available.
func (strategy *TokenBucketStrategy) RetryAfter(key string) time.Duration {
	var wait int64
	strategy.clients.View(key, func(state *tokenBucketState) {
		now := strategy.clock.Now()

		tokens := math.Min(strategy.maxTokens, state.tokens+strategy.accrued(state, now))
		if tokens >= 1 {
			return
		}

		wait = int64(math.Ceil((1 - tokens) * float64(strategy.refillInterval)))
	})

	return millisToDuration(wait)
}

func (strategy *TokenBucketStrategy) Len() int {
	return strategy.clients.Len()
}

// accrued returns the fractional tokens earned since the last refill.
// A clock that moved backwards earns nothing.
func (strategy *TokenBucketStrategy) accrued(state *tokenBucketState, now int64) float64 {
	elapsed := now - state.lastRefill
	if elapsed <= 0 {
		return 0
	}
	return float64(elapsed) / float64(strategy.refillInterval)
}
