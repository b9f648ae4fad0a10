package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExchangeServer(t *testing.T, status int, body interface{}) (*httptest.Server, *[]*http.Request) {
	t.Helper()
	var requests []*http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.Clone(context.Background()))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func TestInstallationTokenExchanger_Success(t *testing.T) {
	expires := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
	srv, requests := newExchangeServer(t, http.StatusCreated, map[string]interface{}{
		"token":      "ghs_installation",
		"expires_at": expires.Format(time.RFC3339),
	})

	exchanger, err := NewInstallationTokenExchanger(srv.Client(), srv.URL, nil)
	require.NoError(t, err)

	cred, err := exchanger.Exchange(context.Background(), "app.jwt.value", 4242)
	require.NoError(t, err)
	assert.Equal(t, "ghs_installation", cred.Token)
	assert.True(t, expires.Equal(cred.ExpiresAt))

	require.Len(t, *requests, 1)
	req := (*requests)[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/app/installations/4242/access_tokens", req.URL.Path)
	assert.Equal(t, "Bearer app.jwt.value", req.Header.Get("Authorization"))
}

func TestInstallationTokenExchanger_MissingExpiryDefaultsToOneHour(t *testing.T) {
	srv, _ := newExchangeServer(t, http.StatusCreated, map[string]interface{}{"token": "ghs_x"})
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	exchanger, err := NewInstallationTokenExchanger(srv.Client(), srv.URL, func() time.Time { return now })
	require.NoError(t, err)

	cred, err := exchanger.Exchange(context.Background(), "jwt", 1)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), cred.ExpiresAt)
}

func TestInstallationTokenExchanger_ErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		wantReason Reason
		retryable  bool
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, wantReason: ReasonInvalidCredentials},
		{name: "forbidden", status: http.StatusForbidden, wantReason: ReasonInvalidCredentials},
		{name: "not found", status: http.StatusNotFound, wantReason: ReasonUnknownInstallation},
		{name: "bad gateway", status: http.StatusBadGateway, wantReason: ReasonUpstream, retryable: true},
		{name: "service unavailable", status: http.StatusServiceUnavailable, wantReason: ReasonUpstream, retryable: true},
		{name: "unprocessable", status: http.StatusUnprocessableEntity, wantReason: ReasonRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, requests := newExchangeServer(t, tt.status, map[string]string{"message": "nope"})
			exchanger, err := NewInstallationTokenExchanger(srv.Client(), srv.URL, nil)
			require.NoError(t, err)

			_, err = exchanger.Exchange(context.Background(), "jwt", 7)
			require.Error(t, err)

			var authErr *AuthError
			require.ErrorAs(t, err, &authErr)
			assert.Equal(t, tt.wantReason, authErr.Reason)
			assert.Equal(t, tt.status, authErr.StatusCode)
			assert.Equal(t, int64(7), authErr.InstallationID)
			assert.Equal(t, tt.retryable, authErr.Retryable())
			assert.True(t, errors.Is(err, ErrAuthenticationFailed))
			assert.Len(t, *requests, 1, "exchanger must not retry")
		})
	}
}

func TestInstallationTokenExchanger_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	exchanger, err := NewInstallationTokenExchanger(nil, url, nil)
	require.NoError(t, err)

	_, err = exchanger.Exchange(context.Background(), "jwt", 1)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, ReasonNetwork, authErr.Reason)
	assert.True(t, authErr.Retryable())
}

func TestInstallationTokenExchanger_EmptyToken(t *testing.T) {
	srv, _ := newExchangeServer(t, http.StatusCreated, map[string]interface{}{"token": ""})
	exchanger, err := NewInstallationTokenExchanger(srv.Client(), srv.URL, nil)
	require.NoError(t, err)

	_, err = exchanger.Exchange(context.Background(), "jwt", 1)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, ReasonRejected, authErr.Reason)
}
