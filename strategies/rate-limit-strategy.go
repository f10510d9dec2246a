package strategies

import (
	"errors"
	"fmt"
	"time"

	"github.com/gabisonia/admission-limiter/clock"
)

type RateLimitStrategy interface {
	// IsAllowed returns true if the request identified by key should proceed.
	IsAllowed(key string) bool
	// RetryAfter returns how long a caller should wait before retrying.
	// If zero, the request can be retried immediately.
	RetryAfter(key string) time.Duration
	// Len returns the number of keys the strategy holds state for.
	Len() int
}

// Algorithm names one of the available strategies.
type Algorithm string

const (
	SlidingWindowLog     Algorithm = "sliding_window_log"
	SlidingWindowCounter Algorithm = "sliding_window_counter"
	TokenBucket          Algorithm = "token_bucket"
	LeakyBucket          Algorithm = "leaky_bucket"
	SmoothRate           Algorithm = "smooth_rate"
)

// Algorithms lists every supported algorithm.
var Algorithms = []Algorithm{SlidingWindowLog, SlidingWindowCounter, TokenBucket, LeakyBucket, SmoothRate}

var ErrUnknownAlgorithm = errors.New("unknown rate limiting algorithm")

// Options configures a strategy built by New. Only the fields used by the
// selected algorithm are read.
type Options struct {
	Algorithm Algorithm `yaml:"algorithm"`

	// sliding_window_log, sliding_window_counter
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`

	// token_bucket
	MaxTokens      float64       `yaml:"max_tokens"`
	RefillInterval time.Duration `yaml:"refill_interval"`

	// leaky_bucket
	Capacity     int           `yaml:"capacity"`
	LeakInterval time.Duration `yaml:"leak_interval"`

	// smooth_rate: permits per second and burst size
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
}

// Validate checks the fields required by the selected algorithm.
func (o Options) Validate() error {
	switch o.Algorithm {
	case SlidingWindowLog, SlidingWindowCounter:
		if o.MaxRequests <= 0 {
			return fmt.Errorf("%s: max_requests must be positive, got %d", o.Algorithm, o.MaxRequests)
		}
		if o.Window < time.Millisecond {
			return fmt.Errorf("%s: window must be at least 1ms, got %s", o.Algorithm, o.Window)
		}
	case TokenBucket:
		if o.MaxTokens < 1 {
			return fmt.Errorf("%s: max_tokens must be at least 1, got %v", o.Algorithm, o.MaxTokens)
		}
		if o.RefillInterval < time.Millisecond {
			return fmt.Errorf("%s: refill_interval must be at least 1ms, got %s", o.Algorithm, o.RefillInterval)
		}
	case LeakyBucket:
		if o.Capacity <= 0 {
			return fmt.Errorf("%s: capacity must be positive, got %d", o.Algorithm, o.Capacity)
		}
		if o.LeakInterval < time.Millisecond {
			return fmt.Errorf("%s: leak_interval must be at least 1ms, got %s", o.Algorithm, o.LeakInterval)
		}
	case SmoothRate:
		if o.Rate <= 0 {
			return fmt.Errorf("%s: rate must be positive, got %v", o.Algorithm, o.Rate)
		}
		if o.Burst <= 0 {
			return fmt.Errorf("%s: burst must be positive, got %d", o.Algorithm, o.Burst)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAlgorithm, o.Algorithm)
	}
	return nil
}

// New builds the strategy selected by opts. A nil clk uses the system clock.
func New(opts Options, clk clock.Clock) (RateLimitStrategy, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	switch opts.Algorithm {
	case SlidingWindowLog:
		return NewSlidingWindowLogStrategy(opts.MaxRequests, opts.Window, clk), nil
	case SlidingWindowCounter:
		return NewSlidingWindowCounterStrategy(opts.MaxRequests, opts.Window, clk), nil
	case TokenBucket:
		return NewTokenBucketStrategy(opts.MaxTokens, opts.RefillInterval, clk), nil
	case LeakyBucket:
		return NewLeakyBucketStrategy(opts.Capacity, opts.LeakInterval, clk), nil
	default:
		return NewSmoothRateStrategy(opts.Rate, opts.Burst, clk), nil
	}
}

func clockOrSystem(clk clock.Clock) clock.Clock {
	if clk == nil {
		return clock.System{}
	}
	return clk
}

// intervalMillis converts d to whole milliseconds, never less than one.
func intervalMillis(d time.Duration) int64 {
	ms := d.Milliseconds()
	if ms < 1 {
		return 1
	}
	return ms
}

func millisToDuration(ms int64) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}
