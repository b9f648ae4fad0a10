package githubtest

import (
	"context"
	"sync"
	"time"

	"github.com/MyCarrier-DevOps/ghaccess/auth"
)

// MockResolver is an auth.Resolver with scripted tokens and call tracking.
// Each Invalidate of the current token advances to the next token, if any.
type MockResolver struct {
	mu sync.Mutex

	Tokens    []string
	ExpiresAt time.Time

	// Error injection
	ResolveError error

	// Call tracking
	ResolveCalls    int
	InvalidateCalls []string

	current int
}

var _ auth.Resolver = (*MockResolver)(nil)

// NewMockResolver creates a MockResolver that serves tokens in order.
func NewMockResolver(tokens ...string) *MockResolver {
	return &MockResolver{Tokens: tokens}
}

func (m *MockResolver) Resolve(ctx context.Context) (auth.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ResolveCalls++
	if m.ResolveError != nil {
		return auth.Credential{}, m.ResolveError
	}
	if err := ctx.Err(); err != nil {
		return auth.Credential{}, err
	}
	if len(m.Tokens) == 0 {
		return auth.Credential{}, &auth.ConfigError{Reason: "no GitHub authentication configured"}
	}
	return auth.Credential{Token: m.Tokens[m.current], ExpiresAt: m.ExpiresAt}, nil
}

func (m *MockResolver) Invalidate(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.InvalidateCalls = append(m.InvalidateCalls, token)
	if m.current < len(m.Tokens)-1 && m.Tokens[m.current] == token {
		m.current++
	}
}

// Calls returns the number of Resolve calls.
func (m *MockResolver) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ResolveCalls
}
