package authz

import "context"

// Verifier wraps a strategy with the decision cache. The strategy is
// chosen once at startup from configuration, never per request.
type Verifier struct {
	strategy Strategy
	cache    *Cache
}

func NewVerifier(strategy Strategy, cache *Cache) *Verifier {
	return &Verifier{strategy: strategy, cache: cache}
}

// Allowed consults the cache first; on a miss it runs the strategy and
// stores the decision. Strategy errors are propagated and never cached.
func (v *Verifier) Allowed(ctx context.Context, user User, resourceID string) (bool, error) {
	if allowed, ok := v.cache.Check(user.Email, resourceID); ok {
		return allowed, nil
	}
	allowed, err := v.strategy.Verify(ctx, user, resourceID)
	if err != nil {
		return false, err
	}
	v.cache.Set(user.Email, resourceID, allowed)
	return allowed, nil
}
