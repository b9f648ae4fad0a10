package auth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MyCarrier-DevOps/ghaccess/logger/loggertest"
)

func newAppResolver(t *testing.T, clock *fakeClock, exchanger Exchanger, opts ...Option) *CredentialResolver {
	t.Helper()
	_, pemKey := rsaKey(t)
	strategy := GitHubApp{AppID: 11, InstallationID: 22, Key: InlineKeySource{PEM: pemKey}}

	base := []Option{WithClock(clock.Now), WithExchanger(exchanger)}
	r, err := NewResolver(context.Background(), strategy, append(base, opts...)...)
	require.NoError(t, err)
	return r
}

func TestResolver_StaticToken(t *testing.T) {
	r, err := NewResolver(context.Background(), StaticToken{Token: "ghp_static"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		cred, err := r.Resolve(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "ghp_static", cred.Token)
		assert.True(t, cred.ExpiresAt.IsZero())
	}

	r.Invalidate("ghp_static")
	cred, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ghp_static", cred.Token)
}

func TestResolver_EmptyStaticTokenIsConfigError(t *testing.T) {
	_, err := NewResolver(context.Background(), StaticToken{Token: " "})
	assert.ErrorIs(t, err, ErrAuthConfig)
}

func TestResolver_TokenFileRereadEachCall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pat")
	require.NoError(t, os.WriteFile(path, []byte("ghp_first\n"), 0o600))

	r, err := NewResolver(context.Background(), TokenFile{Path: path})
	require.NoError(t, err)

	cred, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ghp_first", cred.Token)

	require.NoError(t, os.WriteFile(path, []byte("ghp_rotated"), 0o600))
	cred, err = r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ghp_rotated", cred.Token)
}

func TestResolver_TokenFileErrors(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(empty, []byte("  \n"), 0o600))

	for name, path := range map[string]string{
		"missing": filepath.Join(dir, "missing"),
		"empty":   empty,
	} {
		t.Run(name, func(t *testing.T) {
			r, err := NewResolver(context.Background(), TokenFile{Path: path})
			require.NoError(t, err)

			_, err = r.Resolve(context.Background())
			require.Error(t, err)
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, "GITHUB_PAT_FILE", cfgErr.Field)
		})
	}
}

func TestResolver_AppCachesUntilMargin(t *testing.T) {
	clock := newFakeClock()
	exchanger := &fakeExchanger{clock: clock}
	log := loggertest.NewMockLogger()
	r := newAppResolver(t, clock, exchanger, WithLogger(log))

	first, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ghs_token_1", first.Token)

	clock.Advance(10 * time.Second)
	again, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.Token, again.Token)
	assert.Equal(t, int32(1), exchanger.calls.Load())

	clock.Advance(time.Hour - 10*time.Second - 30*time.Second)
	refreshed, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ghs_token_2", refreshed.Token)
	assert.Equal(t, int32(2), exchanger.calls.Load())

	assert.True(t, log.HasLog("info", "Installation token refreshed"))
	for _, e := range log.Entries("") {
		for _, v := range e.Fields {
			assert.NotEqual(t, "ghs_token_1", v, "tokens must never be logged")
		}
	}
}

func TestResolver_AppSignsJWTForConfiguredApp(t *testing.T) {
	clock := newFakeClock()
	exchanger := &fakeExchanger{clock: clock}
	r := newAppResolver(t, clock, exchanger)

	_, err := r.Resolve(context.Background())
	require.NoError(t, err)

	require.Len(t, exchanger.jwts, 1)
	claims := &jwt.RegisteredClaims{}
	_, _, err = jwt.NewParser().ParseUnverified(exchanger.jwts[0], claims)
	require.NoError(t, err)
	assert.Equal(t, "11", claims.Issuer)
	assert.True(t, clock.Now().Add(-time.Minute).Equal(claims.IssuedAt.Time))
}

func TestResolver_AppInvalidateForcesExchange(t *testing.T) {
	clock := newFakeClock()
	exchanger := &fakeExchanger{clock: clock}
	r := newAppResolver(t, clock, exchanger)

	cred, err := r.Resolve(context.Background())
	require.NoError(t, err)

	r.Invalidate(cred.Token)
	next, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ghs_token_2", next.Token)
	assert.Equal(t, int32(2), exchanger.calls.Load())
}

func TestResolver_AppConcurrentResolveExchangesOnce(t *testing.T) {
	clock := newFakeClock()
	exchanger := &fakeExchanger{clock: clock}
	r := newAppResolver(t, clock, exchanger)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Resolve(context.Background())
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), exchanger.calls.Load())
}

func TestResolver_AppExchangeErrorPropagates(t *testing.T) {
	clock := newFakeClock()
	exchanger := &fakeExchanger{clock: clock, err: &AuthError{Reason: ReasonInvalidCredentials, StatusCode: 401}}
	log := loggertest.NewMockLogger()
	r := newAppResolver(t, clock, exchanger, WithLogger(log))

	_, err := r.Resolve(context.Background())
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.True(t, log.HasLog("error", "exchange failed"))
}

func TestResolver_AppMalformedKeyFailsAtConstruction(t *testing.T) {
	strategy := GitHubApp{AppID: 1, InstallationID: 2, Key: InlineKeySource{PEM: []byte("garbage")}}
	_, err := NewResolver(context.Background(), strategy)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidPrivateKey))
}

func TestResolver_AppKeyFile(t *testing.T) {
	_, pemKey := rsaKey(t)
	path := filepath.Join(t.TempDir(), "app.pem")
	require.NoError(t, os.WriteFile(path, pemKey, 0o600))

	clock := newFakeClock()
	strategy := GitHubApp{AppID: 1, InstallationID: 2, Key: FileKeySource{Path: path}}
	r, err := NewResolver(context.Background(), strategy, WithClock(clock.Now), WithExchanger(&fakeExchanger{clock: clock}))
	require.NoError(t, err)
	assert.Equal(t, strategy, r.Strategy())

	_, err = NewResolver(context.Background(), GitHubApp{AppID: 1, InstallationID: 2, Key: FileKeySource{Path: path + ".missing"}})
	assert.ErrorIs(t, err, ErrAuthConfig)
}

func TestResolver_TokenSource(t *testing.T) {
	clock := newFakeClock()
	exchanger := &fakeExchanger{clock: clock}
	r := newAppResolver(t, clock, exchanger)

	ts := r.TokenSource(context.Background())
	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "ghs_token_1", tok.AccessToken)
	assert.Equal(t, clock.Now().Add(time.Hour), tok.Expiry)

	r.Invalidate(tok.AccessToken)
	tok, err = ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "ghs_token_2", tok.AccessToken)
}
