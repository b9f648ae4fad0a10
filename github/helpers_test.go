package github_handler

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/stretchr/testify/require"

	"github.com/MyCarrier-DevOps/ghaccess/auth"
	"github.com/MyCarrier-DevOps/ghaccess/github/githubtest"
)

var (
	keyOnce sync.Once
	keyPEM  []byte
)

func testKeyPEM(t *testing.T) []byte {
	t.Helper()
	keyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		keyPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	})
	return keyPEM
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// sleepRecorder records requested waits instead of sleeping.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func testPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:      3,
		InitialDelay:     100 * time.Millisecond,
		MaxDelay:         time.Second,
		Backoff:          retryablehttp.DefaultBackoff,
		MaxRateLimitWait: time.Minute,
	}
}

func newTestClient(t *testing.T, srv *githubtest.Server, resolver auth.Resolver, opts ...Option) (*Client, *sleepRecorder) {
	t.Helper()
	sleeper := &sleepRecorder{}
	base := []Option{
		WithAPIBaseURL(srv.URL),
		WithHTTPClient(srv.Client()),
		WithRetryPolicy(testPolicy()),
		WithSleep(sleeper.Sleep),
		WithRepository(RepositoryContext{Owner: "octo", Repo: "hello"}),
	}
	client, err := NewClient(resolver, append(base, opts...)...)
	require.NoError(t, err)
	return client, sleeper
}
