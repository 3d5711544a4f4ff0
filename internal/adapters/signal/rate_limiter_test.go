package signal

import (
	"testing"
	"time"
)

func TestJoinRateLimiterBlocksAtLimit(t *testing.T) {
	rl := NewJoinRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !rl.Allow("alice") {
			t.Fatalf("attempt %d should pass", i+1)
		}
	}
	if rl.Allow("alice") {
		t.Fatal("fourth attempt inside the window should be blocked")
	}
}

func TestJoinRateLimiterIsPerUser(t *testing.T) {
	rl := NewJoinRateLimiter(1, time.Minute)

	if !rl.Allow("alice") {
		t.Fatal("alice's first attempt should pass")
	}
	if rl.Allow("alice") {
		t.Fatal("alice's second attempt should be blocked")
	}
	if !rl.Allow("bob") {
		t.Fatal("bob must not be affected by alice's attempts")
	}
}

func TestJoinRateLimiterWindowExpiry(t *testing.T) {
	rl := NewJoinRateLimiter(1, 10*time.Millisecond)

	if !rl.Allow("alice") {
		t.Fatal("first attempt should pass")
	}
	if rl.Allow("alice") {
		t.Fatal("second immediate attempt should be blocked")
	}
	time.Sleep(20 * time.Millisecond)
	if !rl.Allow("alice") {
		t.Fatal("attempt after the window expired should pass")
	}
}

func TestJoinRateLimiterDisabled(t *testing.T) {
	rl := NewJoinRateLimiter(0, time.Minute)

	for i := 0; i < 100; i++ {
		if !rl.Allow("alice") {
			t.Fatal("a zero limit disables rate limiting")
		}
	}
}
