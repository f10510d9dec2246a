package middleware

import (
	"log/slog"
	"math"
	"strconv"

	"github.com/gabisonia/admission-limiter/strategies"
	"github.com/gofiber/fiber/v2"
)

// Option customizes the rate limiting middleware.
type Option func(*settings)

type settings struct {
	logger *slog.Logger
}

// WithLogger logs every rejected request at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// RateLimitingMiddleware creates a Fiber middleware that applies rate limiting
// using the provided strategy and client ID resolver function.
//
// Parameters:
//   - strategy: RateLimitStrategy that decides whether a request is admitted.
//   - clientIdResolver: function to extract a unique client ID from the request.
//   - opts: optional settings such as WithLogger.
//
// Returns:
//   - fiber.Handler: the middleware function that checks rate limits.
//
// If the client exceeds the allowed rate, the middleware responds with HTTP 429
// and, when the strategy can tell, a Retry-After header in whole seconds.
// Otherwise, it passes the request to the next handler.
func RateLimitingMiddleware(strategy strategies.RateLimitStrategy, clientIdResolver func(*fiber.Ctx) string, opts ...Option) fiber.Handler {
	s := settings{}
	for _, opt := range opts {
		opt(&s)
	}

	return func(c *fiber.Ctx) error {
		clientId := clientIdResolver(c)

		if strategy.IsAllowed(clientId) {
			return c.Next()
		}

		wait := strategy.RetryAfter(clientId)
		if wait > 0 {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		}

		if s.logger != nil {
			s.logger.Debug("request rejected",
				"client_id", clientId,
				"path", c.Path(),
				"retry_after", wait,
			)
		}

		return c.Status(fiber.StatusTooManyRequests).SendString("Rate limit exceeded.")
	}
}
