package github_handler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MyCarrier-DevOps/ghaccess/auth"
	"github.com/MyCarrier-DevOps/ghaccess/github/githubtest"
	"github.com/MyCarrier-DevOps/ghaccess/logger/loggertest"
)

// newAppClient wires a real App resolver and client against srv, both on clock.
func newAppClient(t *testing.T, srv *githubtest.Server, clock *fakeClock) (*Client, *loggertest.MockLogger) {
	t.Helper()
	log := loggertest.NewMockLogger()

	resolver, err := auth.NewResolver(context.Background(),
		auth.GitHubApp{AppID: 12345, InstallationID: 42, Key: auth.InlineKeySource{PEM: testKeyPEM(t)}},
		auth.WithAPIBaseURL(srv.URL),
		auth.WithHTTPClient(srv.Client()),
		auth.WithClock(clock.Now),
		auth.WithLogger(log),
	)
	require.NoError(t, err)

	client, _ := newTestClient(t, srv, resolver, WithClock(clock.Now), WithLogger(log))
	return client, log
}

func TestAppInstallationTokenLifecycle(t *testing.T) {
	clock := newFakeClock()
	srv := githubtest.NewServer(t)
	srv.AcceptTokens()
	srv.SetTokenExpiry(func() time.Time { return clock.Now().Add(time.Hour) })
	srv.Script("GET", repoPath, githubtest.JSON(200, map[string]any{"full_name": "octo/hello"}))

	client, log := newAppClient(t, srv, clock)
	ctx := context.Background()
	get := func() string {
		t.Helper()
		_, err := client.Execute(ctx, Get(repoPath, nil))
		require.NoError(t, err)
		req, ok := srv.LastRequest()
		require.True(t, ok)
		return req.Token()
	}

	assert.Equal(t, "ghs_installation_1", get())
	assert.Equal(t, 1, srv.IssuedTokens())

	exchange, ok := func() (githubtest.RecordedRequest, bool) {
		for _, r := range srv.Requests() {
			if r.Path == "/app/installations/42/access_tokens" {
				return r, true
			}
		}
		return githubtest.RecordedRequest{}, false
	}()
	require.True(t, ok)
	assert.Equal(t, "POST", exchange.Method)
	assert.Regexp(t, `^ey[^.]+\.[^.]+\.[^.]+$`, exchange.Token(), "exchange authenticates with the App JWT")

	clock.Advance(10 * time.Second)
	assert.Equal(t, "ghs_installation_1", get(), "cached token is reused")
	assert.Equal(t, 1, srv.IssuedTokens())

	clock.Advance(2 * time.Hour)
	assert.Equal(t, "ghs_installation_2", get(), "expired token is replaced")
	assert.Equal(t, 2, srv.IssuedTokens())

	srv.RevokeTokens("ghs_installation_2")
	assert.Equal(t, "ghs_installation_3", get(), "a revoked token is refreshed once")
	assert.Equal(t, 3, srv.IssuedTokens())

	assert.True(t, log.HasLog("info", "Installation token refreshed"))
}

func TestAppInstallationToken_WithinMarginRefreshes(t *testing.T) {
	clock := newFakeClock()
	srv := githubtest.NewServer(t)
	srv.SetTokenExpiry(func() time.Time { return clock.Now().Add(time.Hour) })
	srv.Script("GET", repoPath, githubtest.JSON(200, map[string]any{}))

	client, _ := newAppClient(t, srv, clock)
	ctx := context.Background()

	_, err := client.Execute(ctx, Get(repoPath, nil))
	require.NoError(t, err)

	// 30s before expiry is inside the default 60s margin.
	clock.Advance(time.Hour - 30*time.Second)
	_, err = client.Execute(ctx, Get(repoPath, nil))
	require.NoError(t, err)
	assert.Equal(t, 2, srv.IssuedTokens())
}

func TestAppInstallationToken_ConcurrentCallersShareOneExchange(t *testing.T) {
	clock := newFakeClock()
	srv := githubtest.NewServer(t)
	srv.SetTokenExpiry(func() time.Time { return clock.Now().Add(time.Hour) })
	srv.Script("GET", repoPath, githubtest.JSON(200, map[string]any{}))

	client, _ := newAppClient(t, srv, clock)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.Execute(context.Background(), Get(repoPath, nil))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, srv.IssuedTokens())
	assert.Equal(t, 10, srv.Calls("GET", repoPath))
}

func TestAppInstallationToken_UnknownInstallation(t *testing.T) {
	clock := newFakeClock()
	srv := githubtest.NewServer(t)
	srv.Script("POST", "/app/installations/42/access_tokens", githubtest.Error(404, "Not Found"))

	client, log := newAppClient(t, srv, clock)

	_, err := client.Execute(context.Background(), Get(repoPath, nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.ErrorIs(t, err, auth.ErrAuthenticationFailed)

	var authErr *auth.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, auth.ReasonUnknownInstallation, authErr.Reason)
	assert.Equal(t, 0, srv.Calls("GET", repoPath))
	assert.True(t, log.HasLog("error", "Installation token exchange failed"))
}
