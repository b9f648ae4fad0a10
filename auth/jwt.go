package auth

import (
	"crypto/rsa"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWT timing. GitHub rejects App JWTs that live longer than ten minutes, and issued-at is
// backdated to absorb clock drift between us and GitHub.
const (
	JWTBackdate = 60 * time.Second
	JWTLifetime = 9 * time.Minute
)

// Signer produces App JWTs from a parsed RSA key.
type Signer struct {
	appID int64
	key   *rsa.PrivateKey
}

// NewSigner parses pemKey. A malformed key yields a CryptoError.
func NewSigner(appID int64, pemKey []byte) (*Signer, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemKey)
	if err != nil {
		return nil, &CryptoError{Err: err}
	}
	return &Signer{appID: appID, key: key}, nil
}

// Sign returns an RS256 JWT with iss = app ID, iat = now-60s and exp = iat+9m.
func (s *Signer) Sign(now time.Time) (string, error) {
	issuedAt := now.Add(-JWTBackdate)
	claims := jwt.RegisteredClaims{
		Issuer:    strconv.FormatInt(s.appID, 10),
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(JWTLifetime)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.key)
	if err != nil {
		return "", &CryptoError{Err: err}
	}
	return signed, nil
}

// SignAppJWT parses pemKey and signs a single JWT.
func SignAppJWT(appID int64, pemKey []byte, now time.Time) (string, error) {
	signer, err := NewSigner(appID, pemKey)
	if err != nil {
		return "", err
	}
	return signer.Sign(now)
}
