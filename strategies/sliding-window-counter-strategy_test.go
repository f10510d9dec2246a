package strategies

import (
	"sync"
	"testing"
	"time"

	"github.com/gabisonia/admission-limiter/clock"
)

// Test sequential single-user behavior: allow up to limit, then deny.
func TestSingleUserSequential_SlidingWindowCounter(t *testing.T) {
	s := NewSlidingWindowCounterStrategy(5, time.Minute, clock.NewManual(0))
	client := "192.168.1.10"

	want := []bool{true, true, true, true, true, false, false}
	for i, expected := range want {
		if got := s.IsAllowed(client); got != expected {
			t.Errorf("request %d: expected %v, got %v", i+1, expected, got)
		}
	}
}

// The window resets only once strictly more than windowSize has elapsed.
func TestWindowReset_SlidingWindowCounter(t *testing.T) {
	clk := clock.NewManual(0)
	s := NewSlidingWindowCounterStrategy(2, 100*time.Millisecond, clk)
	client := "userA"

	s.IsAllowed(client)
	s.IsAllowed(client)

	clk.Advance(100 * time.Millisecond)
	if s.IsAllowed(client) {
		t.Fatal("exactly one window later: expected denied")
	}

	clk.Advance(time.Millisecond)
	for i := 0; i < 2; i++ {
		if !s.IsAllowed(client) {
			t.Fatalf("after reset, request %d: expected allowed", i+1)
		}
	}
	if s.IsAllowed(client) {
		t.Fatal("reset request counts toward the new window")
	}
}

// Near a window edge the counter admits up to twice the limit in a short span.
func TestBoundaryBurst_SlidingWindowCounter(t *testing.T) {
	clk := clock.NewManual(0)
	limit := 3
	s := NewSlidingWindowCounterStrategy(limit, 100*time.Millisecond, clk)
	client := "userA"

	s.IsAllowed(client) // opens the window at t=0

	clk.Set(99)
	for i := 0; i < limit-1; i++ {
		if !s.IsAllowed(client) {
			t.Fatalf("late in window, request %d: expected allowed", i+1)
		}
	}

	clk.Set(101)
	for i := 0; i < limit; i++ {
		if !s.IsAllowed(client) {
			t.Fatalf("fresh window, request %d: expected allowed", i+1)
		}
	}
}

// Ensure the counter rolls over cleanly across multiple consecutive windows.
func TestMultipleWindowRollovers_SlidingWindowCounter(t *testing.T) {
	limit := 2
	clk := clock.NewManual(0)
	s := NewSlidingWindowCounterStrategy(limit, 30*time.Millisecond, clk)
	client := "userA"

	for cycle := 0; cycle < 3; cycle++ {
		for i := 0; i < limit; i++ {
			if !s.IsAllowed(client) {
				t.Fatalf("cycle %d request %d: expected allowed", cycle+1, i+1)
			}
		}
		if s.IsAllowed(client) {
			t.Fatalf("cycle %d over limit: expected denied", cycle+1)
		}
		clk.Advance(35 * time.Millisecond)
	}
}

// Test concurrent usage: many goroutines for the same user.
func TestConcurrentSingleUser_SlidingWindowCounter(t *testing.T) {
	limit := 50
	s := NewSlidingWindowCounterStrategy(limit, time.Minute, nil)

	const client = "userA"
	var wg sync.WaitGroup
	allowed := 0
	var mu sync.Mutex

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.IsAllowed(client) {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != limit {
		t.Errorf("concurrent single user: expected %d allowed, got %d", limit, allowed)
	}
}

// Test concurrent usage: two different users in parallel.
func TestConcurrentMultipleUsers_SlidingWindowCounter(t *testing.T) {
	limit := 20
	s := NewSlidingWindowCounterStrategy(limit, time.Minute, nil)

	users := []string{"userA", "userB"}
	var wg sync.WaitGroup
	results := make(map[string]int)
	var mu sync.Mutex

	for _, u := range users {
		for i := 0; i < 2*limit; i++ {
			wg.Add(1)
			go func(user string) {
				defer wg.Done()
				if s.IsAllowed(user) {
					mu.Lock()
					results[user]++
					mu.Unlock()
				}
			}(u)
		}
	}
	wg.Wait()

	for _, u := range users {
		if got := results[u]; got != limit {
			t.Errorf("user %q: expected %d allowed, got %d", u, limit, got)
		}
	}
}

// Rejected calls leave the counter untouched.
func TestRejectionDoesNotMutate_SlidingWindowCounter(t *testing.T) {
	clk := clock.NewManual(0)
	s := NewSlidingWindowCounterStrategy(1, time.Minute, clk)

	s.IsAllowed("userA")
	for i := 0; i < 3; i++ {
		s.IsAllowed("userA")
	}

	s.clients.View("userA", func(state *windowCounterState) {
		if state.count != 1 || state.windowStart != 0 {
			t.Errorf("expected count=1 windowStart=0, got count=%d windowStart=%d", state.count, state.windowStart)
		}
	})
}

// RetryAfter should indicate remaining time in the current window.
func TestRetryAfter_SlidingWindowCounter(t *testing.T) {
	clk := clock.NewManual(0)
	s := NewSlidingWindowCounterStrategy(1, 40*time.Millisecond, clk)
	client := "userA"

	if !s.IsAllowed(client) {
		t.Fatal("first request should be allowed")
	}

	clk.Advance(10 * time.Millisecond)
	if got := s.RetryAfter(client); got != 31*time.Millisecond {
		t.Fatalf("expected 31ms retry-after, got %s", got)
	}

	clk.Advance(31 * time.Millisecond)
	if got := s.RetryAfter(client); got != 0 {
		t.Fatalf("expected zero retry-after after window elapsed, got %s", got)
	}
}
