package middleware

import "testing"

func TestRateLimiter_AllowsWithinWindow(t *testing.T) {
	rl := NewRateLimiter(nil)
	for i := 0; i < rateLimitMaxRequests; i++ {
		if !rl.Allow("1.2.3.4") {
			t.Fatalf("request %d unexpectedly rejected", i)
		}
	}
}

func TestRateLimiter_RejectsOverLimit(t *testing.T) {
	rl := NewRateLimiter(nil)
	for i := 0; i < rateLimitMaxRequests; i++ {
		rl.Allow("5.6.7.8")
	}
	if rl.Allow("5.6.7.8") {
		t.Fatalf("expected rejection after exceeding limit")
	}
}

func TestRateLimiter_PerIPIsolated(t *testing.T) {
	rl := NewRateLimiter(nil)
	for i := 0; i < rateLimitMaxRequests; i++ {
		rl.Allow("9.9.9.9")
	}
	if !rl.Allow("8.8.8.8") {
		t.Fatalf("expected different IP to have its own window")
	}
}
