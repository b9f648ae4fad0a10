package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
	testKeyPEM  []byte
)

func rsaKey(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	testKeyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = key
		testKeyPEM = pem.EncodeToMemory(&pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: x509.MarshalPKCS1PrivateKey(key),
		})
	})
	return testKey, testKeyPEM
}

// fakeClock is a manually advanced clock.
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

// fakeExchanger issues numbered tokens valid for one hour from the clock.
type fakeExchanger struct {
	clock *fakeClock
	calls atomic.Int32
	err   error
	jwts  []string
	mu    sync.Mutex
}

func (f *fakeExchanger) Exchange(ctx context.Context, appJWT string, installationID int64) (Credential, error) {
	n := f.calls.Add(1)
	f.mu.Lock()
	f.jwts = append(f.jwts, appJWT)
	f.mu.Unlock()
	if f.err != nil {
		return Credential{}, f.err
	}
	return Credential{
		Token:     fmt.Sprintf("ghs_token_%d", n),
		ExpiresAt: f.clock.Now().Add(time.Hour),
	}, nil
}
