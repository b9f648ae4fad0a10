package auth

import (
	"context"
	"sync"
	"time"
)

// DefaultExpiryMargin is how long before expiry a cached token stops being served.
const DefaultExpiryMargin = 60 * time.Second

// TokenCache holds the current installation token.
// Refreshes are serialized so that concurrent callers observing expiry trigger one exchange.
type TokenCache struct {
	mu     sync.Mutex
	cred   Credential
	margin time.Duration
	now    func() time.Time

	// refresh is a one-slot semaphore; waiters can give up when their context ends.
	refresh chan struct{}
}

// NewTokenCache creates an empty cache. A nil now uses time.Now.
func NewTokenCache(margin time.Duration, now func() time.Time) *TokenCache {
	if now == nil {
		now = time.Now
	}
	if margin < 0 {
		margin = 0
	}
	return &TokenCache{
		margin:  margin,
		now:     now,
		refresh: make(chan struct{}, 1),
	}
}

// Get returns the cached credential if it is outside the safety margin of expiry.
func (c *TokenCache) Get() (Credential, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cred.Expired(c.now(), c.margin) {
		return Credential{}, false
	}
	return c.cred, true
}

// Store replaces the cached credential.
func (c *TokenCache) Store(cred Credential) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cred = cred
}

// Invalidate clears the cache. When token is non-empty, the cache is only cleared if it still
// holds that token, so a rejection of an old token cannot evict a newer one.
func (c *TokenCache) Invalidate(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if token != "" && c.cred.Token != token {
		return
	}
	c.cred = Credential{}
}

// GetOrRefresh returns a valid cached credential or calls refresh once to obtain a new one.
func (c *TokenCache) GetOrRefresh(ctx context.Context, refresh func(ctx context.Context) (Credential, error)) (Credential, error) {
	if cred, ok := c.Get(); ok {
		return cred, nil
	}

	select {
	case c.refresh <- struct{}{}:
	case <-ctx.Done():
		return Credential{}, ctx.Err()
	}
	defer func() { <-c.refresh }()

	// Another caller may have refreshed while we waited.
	if cred, ok := c.Get(); ok {
		return cred, nil
	}

	cred, err := refresh(ctx)
	if err != nil {
		return Credential{}, err
	}
	c.Store(cred)
	return cred, nil
}
