package authz

import (
	"context"
	"errors"
	"testing"
	"time"
)

type countingStrategy struct {
	calls   int
	allowed bool
	err     error
}

func (s *countingStrategy) Verify(_ context.Context, _ User, _ string) (bool, error) {
	s.calls++
	return s.allowed, s.err
}

func TestVerifierCachesDecisionWithinTTL(t *testing.T) {
	strategy := &countingStrategy{allowed: true}
	cache := NewCache(DefaultTTL)
	current := time.Now()
	cache.now = func() time.Time { return current }
	verifier := NewVerifier(strategy, cache)

	user := User{Email: "avery@example.org"}
	for i := 0; i < 3; i++ {
		allowed, err := verifier.Allowed(context.Background(), user, "res-1")
		if err != nil {
			t.Fatalf("Allowed call %d: %v", i, err)
		}
		if !allowed {
			t.Fatalf("expected allow on call %d", i)
		}
	}
	if strategy.calls != 1 {
		t.Fatalf("expected strategy invoked once within TTL, got %d", strategy.calls)
	}

	// One second past the TTL the decision must be recomputed
	current = current.Add(5*time.Minute + time.Second)
	if _, err := verifier.Allowed(context.Background(), user, "res-1"); err != nil {
		t.Fatalf("Allowed after expiry: %v", err)
	}
	if strategy.calls != 2 {
		t.Fatalf("expected strategy re-invoked after expiry, got %d calls", strategy.calls)
	}
}

func TestVerifierCachesDenials(t *testing.T) {
	strategy := &countingStrategy{allowed: false}
	verifier := NewVerifier(strategy, NewCache(DefaultTTL))

	user := User{Email: "blair@example.org"}
	for i := 0; i < 2; i++ {
		allowed, err := verifier.Allowed(context.Background(), user, "res-1")
		if err != nil {
			t.Fatalf("Allowed call %d: %v", i, err)
		}
		if allowed {
			t.Fatalf("expected deny on call %d", i)
		}
	}
	if strategy.calls != 1 {
		t.Fatalf("expected denial to be cached, got %d calls", strategy.calls)
	}
}

func TestVerifierDoesNotCacheErrors(t *testing.T) {
	strategy := &countingStrategy{err: errors.New("upstream down")}
	verifier := NewVerifier(strategy, NewCache(DefaultTTL))

	user := User{Email: "avery@example.org"}
	for i := 0; i < 2; i++ {
		if _, err := verifier.Allowed(context.Background(), user, "res-1"); err == nil {
			t.Fatalf("expected error on call %d", i)
		}
	}
	if strategy.calls != 2 {
		t.Fatalf("expected errors to bypass the cache, got %d calls", strategy.calls)
	}
}
