package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gabisonia/admission-limiter/clock"
	"github.com/gabisonia/admission-limiter/strategies"
	"github.com/gofiber/fiber/v2"
)

// fakeStrategy allows deterministic allowance and retry delays.
type fakeStrategy struct {
	allow bool
	wait  time.Duration
}

func (f fakeStrategy) IsAllowed(clientId string) bool { return f.allow }
func (f fakeStrategy) RetryAfter(clientId string) time.Duration {
	return f.wait
}
func (f fakeStrategy) Len() int { return 0 }

func TestMiddlewareSetsRetryAfterOnLimit(t *testing.T) {
	app := fiber.New()
	app.Use(RateLimitingMiddleware(fakeStrategy{allow: false, wait: 2 * time.Second}, func(*fiber.Ctx) string { return "client" }))

	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if resp.StatusCode != fiber.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get(fiber.HeaderRetryAfter); got != "2" {
		t.Fatalf("expected Retry-After=2, got %q", got)
	}

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "Rate limit exceeded." {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestMiddlewareRoundsRetryAfterUp(t *testing.T) {
	app := fiber.New()
	app.Use(RateLimitingMiddleware(fakeStrategy{allow: false, wait: 1500 * time.Millisecond}, func(*fiber.Ctx) string { return "client" }))

	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if got := resp.Header.Get(fiber.HeaderRetryAfter); got != "2" {
		t.Fatalf("expected Retry-After=2, got %q", got)
	}
}

func TestMiddlewareOmitsRetryAfterWhenZero(t *testing.T) {
	app := fiber.New()
	app.Use(RateLimitingMiddleware(fakeStrategy{allow: false, wait: 0}, func(*fiber.Ctx) string { return "client" }))

	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if resp.StatusCode != fiber.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get(fiber.HeaderRetryAfter); got != "" {
		t.Fatalf("expected no Retry-After header, got %q", got)
	}
}

func TestMiddlewarePassesThroughWhenAllowed(t *testing.T) {
	app := fiber.New()
	app.Use(RateLimitingMiddleware(fakeStrategy{allow: true, wait: 0}, func(*fiber.Ctx) string { return "client" }))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get(fiber.HeaderRetryAfter); got != "" {
		t.Fatalf("expected no Retry-After header, got %q", got)
	}
}

func TestMiddlewareLogsRejections(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	app := fiber.New()
	app.Use(RateLimitingMiddleware(fakeStrategy{allow: false}, func(*fiber.Ctx) string { return "10.1.2.3" }, WithLogger(logger)))

	req, _ := http.NewRequest(http.MethodGet, "/orders", nil)
	if _, err := app.Test(req, -1); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "client_id=10.1.2.3") || !strings.Contains(out, "path=/orders") {
		t.Fatalf("expected rejection log, got %q", out)
	}
}

// Seven requests from one forwarded client against a 5-per-minute log.
func TestMiddlewareWithSlidingWindowLog(t *testing.T) {
	strategy := strategies.NewSlidingWindowLogStrategy(5, time.Minute, clock.NewManual(0))

	app := fiber.New()
	app.Use(RateLimitingMiddleware(strategy, ForwardedForResolver))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	send := func(forwardedFor string) int {
		req, _ := http.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(fiber.HeaderXForwardedFor, forwardedFor)
		resp, err := app.Test(req, -1)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		return resp.StatusCode
	}

	want := []int{200, 200, 200, 200, 200, 429, 429}
	for i, expected := range want {
		if got := send("192.168.1.10, 10.0.0.1"); got != expected {
			t.Errorf("request %d: expected %d, got %d", i+1, expected, got)
		}
	}

	if got := send("192.168.1.11"); got != fiber.StatusOK {
		t.Errorf("other client: expected 200, got %d", got)
	}
}
