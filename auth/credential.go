package auth

import (
	"time"

	"golang.org/x/oauth2"
)

// Credential is a bearer token with an optional expiry. A zero ExpiresAt never expires.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// Expired reports whether the credential is expired or within margin of expiring at now.
func (c Credential) Expired(now time.Time, margin time.Duration) bool {
	if c.Token == "" {
		return true
	}
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(margin).Before(c.ExpiresAt)
}

// OAuth2Token converts the credential for use with golang.org/x/oauth2 transports.
func (c Credential) OAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken: c.Token,
		TokenType:   "Bearer",
		Expiry:      c.ExpiresAt,
	}
}

// String never prints the token.
func (c Credential) String() string {
	if c.ExpiresAt.IsZero() {
		return "Credential{expires: never}"
	}
	return "Credential{expires: " + c.ExpiresAt.UTC().Format(time.RFC3339) + "}"
}
