package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v73/github"
)

// DefaultInstallationTokenLifetime is assumed when GitHub omits expires_at.
const DefaultInstallationTokenLifetime = time.Hour

// Exchanger trades an App JWT for an installation token. Implementations must not cache.
type Exchanger interface {
	Exchange(ctx context.Context, appJWT string, installationID int64) (Credential, error)
}

// InstallationTokenExchanger calls POST /app/installations/{id}/access_tokens through go-github.
type InstallationTokenExchanger struct {
	client *github.Client
	now    func() time.Time
}

var _ Exchanger = (*InstallationTokenExchanger)(nil)

// NewInstallationTokenExchanger builds an exchanger against apiBaseURL, for example
// https://api.github.com or https://ghe.example.com/api/v3. A nil httpClient uses http.DefaultClient.
func NewInstallationTokenExchanger(httpClient *http.Client, apiBaseURL string, now func() time.Time) (*InstallationTokenExchanger, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if now == nil {
		now = time.Now
	}

	client := github.NewClient(httpClient)
	if apiBaseURL != "" {
		base, err := url.Parse(strings.TrimRight(apiBaseURL, "/") + "/")
		if err != nil {
			return nil, &ConfigError{Field: "GITHUB_API_URL", Reason: "invalid URL", Err: err}
		}
		client.BaseURL = base
	}

	return &InstallationTokenExchanger{client: client, now: now}, nil
}

// Exchange performs exactly one token request.
func (e *InstallationTokenExchanger) Exchange(ctx context.Context, appJWT string, installationID int64) (Credential, error) {
	ctx = context.WithValue(ctx, github.BypassRateLimitCheck, true)

	token, resp, err := e.client.WithAuthToken(appJWT).Apps.CreateInstallationToken(ctx, installationID, nil)
	if err != nil {
		return Credential{}, classifyExchangeError(installationID, resp, err)
	}
	if token == nil || token.GetToken() == "" {
		return Credential{}, &AuthError{
			Reason:         ReasonRejected,
			InstallationID: installationID,
			Err:            errors.New("response did not contain a token"),
		}
	}

	expiresAt := token.GetExpiresAt().Time
	if expiresAt.IsZero() {
		expiresAt = e.now().Add(DefaultInstallationTokenLifetime)
	}

	return Credential{Token: token.GetToken(), ExpiresAt: expiresAt}, nil
}

func classifyExchangeError(installationID int64, resp *github.Response, err error) error {
	authErr := &AuthError{InstallationID: installationID, Err: err}

	if resp == nil || resp.Response == nil {
		authErr.Reason = ReasonNetwork
		return authErr
	}

	authErr.StatusCode = resp.StatusCode
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		authErr.Reason = ReasonInvalidCredentials
	case resp.StatusCode == http.StatusNotFound:
		authErr.Reason = ReasonUnknownInstallation
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		authErr.Reason = ReasonUpstream
	default:
		authErr.Reason = ReasonRejected
		authErr.Err = fmt.Errorf("unexpected status %d: %w", resp.StatusCode, err)
	}
	return authErr
}
