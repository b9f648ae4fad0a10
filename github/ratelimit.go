package github_handler

import (
	"sync"
	"time"

	"github.com/google/go-github/v73/github"
)

// RateLimit is the rate limit reported by the most recent response.
type RateLimit struct {
	Limit     int
	Remaining int
	Used      int
	Reset     time.Time
	Resource  string
	// ObservedAt is when the response carrying these headers arrived.
	ObservedAt time.Time
}

// Exhausted reports whether no requests remain before Reset.
func (r RateLimit) Exhausted() bool {
	return r.Limit > 0 && r.Remaining == 0
}

// RateLimitState holds the latest RateLimit in memory. It is safe for concurrent use.
type RateLimitState struct {
	mu      sync.RWMutex
	current RateLimit
	seen    bool
}

// Update records the rate limit headers of resp. Responses without the headers are ignored.
func (s *RateLimitState) Update(resp *github.Response, now time.Time) {
	if resp == nil || resp.Rate.Limit == 0 {
		return
	}
	rl := RateLimit{
		Limit:      resp.Rate.Limit,
		Remaining:  resp.Rate.Remaining,
		Used:       resp.Rate.Used,
		Reset:      resp.Rate.Reset.Time,
		Resource:   resp.Rate.Resource,
		ObservedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = rl
	s.seen = true
}

// Snapshot returns the latest RateLimit and whether any response has reported one.
func (s *RateLimitState) Snapshot() (RateLimit, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.seen
}
