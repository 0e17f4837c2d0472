package ratelimit

import (
	"errors"
	"testing"
	"time"
)

func TestUnlimitedWhenRateIsZero(t *testing.T) {
	l := NewLimiter(Config{})
	for i := 0; i < 1000; i++ {
		if err := l.Allow("alice"); err != nil {
			t.Fatalf("Allow returned %v in unlimited mode", err)
		}
	}
}

func TestBurstExhaustion(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 60, BurstSize: 3})

	for i := 0; i < 3; i++ {
		if err := l.Allow("alice"); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}
	if err := l.Allow("alice"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("Allow after burst = %v, want ErrRateLimited", err)
	}
}

func TestPrincipalsHaveIndependentBuckets(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 60, BurstSize: 1})

	if err := l.Allow("alice"); err != nil {
		t.Fatalf("alice first request: %v", err)
	}
	if err := l.Allow("alice"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("alice second request = %v, want ErrRateLimited", err)
	}
	// Bob's bucket is untouched by Alice's exhaustion.
	if err := l.Allow("bob"); err != nil {
		t.Errorf("bob first request: %v", err)
	}
}

func TestTokensRefillOverTime(t *testing.T) {
	// 6000 rpm = 100 tokens/sec, so a short sleep refills the bucket.
	l := NewLimiter(Config{RequestsPerMinute: 6000, BurstSize: 1})

	if err := l.Allow("alice"); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if err := l.Allow("alice"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("second request = %v, want ErrRateLimited", err)
	}

	time.Sleep(50 * time.Millisecond)

	if err := l.Allow("alice"); err != nil {
		t.Errorf("request after refill: %v", err)
	}
}

func TestBurstDefaultsToRate(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 5})

	for i := 0; i < 5; i++ {
		if err := l.Allow("alice"); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}
	if err := l.Allow("alice"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("request past burst = %v, want ErrRateLimited", err)
	}
}
