package worker

import (
	"context"
	"testing"
)

func TestLimiter_New(t *testing.T) {
	limiter := NewLimiter(10, 5)
	if limiter.defaultBurst != 5 {
		t.Errorf("expected burst 5, got %d", limiter.defaultBurst)
	}

	l2 := NewLimiter(10, -1)
	if l2.defaultBurst != 5 {
		t.Errorf("expected default burst 5 for negative input, got %d", l2.defaultBurst)
	}
}

func TestLimiter_Wait(t *testing.T) {
	limiter := NewLimiter(100, 1)
	ctx := context.Background()

	if err := limiter.Wait(ctx, "openai"); err != nil {
		t.Errorf("wait failed: %v", err)
	}
	if err := limiter.Wait(ctx, "ollama"); err != nil {
		t.Errorf("wait failed: %v", err)
	}
}

func TestLimiter_WaitCancelled(t *testing.T) {
	limiter := NewLimiter(0.001, 1)
	if !limiter.Allow("slow") {
		t.Fatal("first request should pass")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := limiter.Wait(ctx, "slow"); err == nil {
		t.Error("expected error from cancelled wait")
	}
}

func TestLimiter_RateLimit(t *testing.T) {
	limiter := NewLimiter(1, 1)

	if !limiter.Allow("anthropic") {
		t.Errorf("first request should pass")
	}
	if limiter.Allow("anthropic") {
		t.Errorf("expected allow to fail (exhausted tokens)")
	}
	if !limiter.Allow("openai") {
		t.Errorf("expected allow for other key")
	}
}

func TestLimiter_Unlimited(t *testing.T) {
	limiter := NewLimiter(0, 1)
	for i := 0; i < 100; i++ {
		if !limiter.Allow("lexical") {
			t.Fatalf("request %d limited with rate disabled", i)
		}
	}
}

func TestLimiter_SetRate(t *testing.T) {
	limiter := NewLimiter(10, 10)
	limiter.SetRate("slow", 0.1, 1)

	if !limiter.Allow("slow") {
		t.Errorf("first request should pass")
	}
	if limiter.Allow("slow") {
		t.Errorf("second request should fail")
	}
	if !limiter.Allow("fast") {
		t.Errorf("other key should pass")
	}
}

func TestHostKey(t *testing.T) {
	host, err := HostKey("http://example.com/foo")
	if err != nil {
		t.Fatalf("HostKey failed: %v", err)
	}
	if host != "example.com" {
		t.Errorf("expected example.com, got %s", host)
	}

	if _, err := HostKey("::invalid"); err == nil {
		t.Errorf("expected error for invalid URL")
	}
}

func TestLimiter_EnsureKeepsExisting(t *testing.T) {
	limiter := NewLimiter(100, 10)
	limiter.Ensure("openai", 0.1, 1)
	if !limiter.Allow("openai") {
		t.Fatal("first request should pass")
	}

	// A second Ensure must not reset the exhausted bucket
	limiter.Ensure("openai", 0.1, 1)
	if limiter.Allow("openai") {
		t.Error("expected bucket to stay exhausted")
	}
}
