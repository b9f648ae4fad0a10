package auth

import (
	"errors"
	"fmt"
)

// Sentinel errors for credential resolution.
// Use errors.Is to test for them; the typed errors below unwrap to these.
var (
	// ErrAuthConfig indicates the authentication settings are missing, partial or unreadable.
	// Action: check GITHUB_PAT, GITHUB_PAT_FILE or the GITHUB_APP_ID / GITHUB_INSTALLATION_ID /
	// GITHUB_PRIVATE_KEY_PATH triple.
	ErrAuthConfig = errors.New("invalid GitHub authentication configuration")

	// ErrInvalidPrivateKey indicates the App private key is not a PEM-encoded RSA key.
	ErrInvalidPrivateKey = errors.New("invalid GitHub App private key")

	// ErrAuthenticationFailed indicates GitHub refused to issue an installation token.
	ErrAuthenticationFailed = errors.New("GitHub authentication failed")
)

// ConfigError describes an unusable authentication configuration.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := "GitHub authentication configuration"
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrAuthConfig, e.Err}
	}
	return []error{ErrAuthConfig}
}

// CryptoError reports a private key that cannot be parsed or used for signing.
type CryptoError struct {
	Err error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("%v: %v", ErrInvalidPrivateKey, e.Err)
}

func (e *CryptoError) Unwrap() []error {
	return []error{ErrInvalidPrivateKey, e.Err}
}

// Reason says why an installation token exchange failed.
type Reason string

const (
	ReasonInvalidCredentials  Reason = "invalid app credentials"
	ReasonUnknownInstallation Reason = "unknown installation"
	ReasonUpstream            Reason = "upstream unavailable"
	ReasonNetwork             Reason = "network failure"
	ReasonRejected            Reason = "rejected"
)

// AuthError is returned when exchanging an App JWT for an installation token fails.
type AuthError struct {
	Reason         Reason
	InstallationID int64
	StatusCode     int
	Err            error
}

func (e *AuthError) Error() string {
	msg := fmt.Sprintf("installation token exchange for installation %d failed: %s", e.InstallationID, e.Reason)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrAuthenticationFailed, e.Err}
	}
	return []error{ErrAuthenticationFailed}
}

// Retryable reports whether trying the exchange again might succeed.
func (e *AuthError) Retryable() bool {
	return e.Reason == ReasonUpstream || e.Reason == ReasonNetwork
}
